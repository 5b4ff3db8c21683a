/*
 * @module api/controllers/threshold_controller
 * @description 自适应阈值控制器，提供阈值配置管理、重算、算法建议与有效性分析接口
 * @architecture 分层架构 - 控制器层
 * @stateFlow HTTP请求 -> 参数验证 -> 服务调用 -> 响应返回
 * @rules 统一使用APIResponse响应格式；配置校验失败返回400
 * @dependencies service/threshold, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs api/routes.go
 */

package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"modelops-service/service"
	"modelops-service/service/threshold"
)

// ThresholdController 自适应阈值控制器
type ThresholdController struct {
	thresholdService *threshold.ThresholdService
}

// NewThresholdController 创建自适应阈值控制器
func NewThresholdController() *ThresholdController {
	return &ThresholdController{thresholdService: service.GlobalThresholdService}
}

// GetConfig 查询阈值配置
// @Summary 查询阈值配置
// @Description 查询模型的自适应阈值配置，未配置时返回默认配置
// @Tags 自适应阈值
// @Produce json
// @Param model_id path string true "模型ID"
// @Success 200 {object} APIResponse
// @Router /thresholds/{model_id}/config [get]
func (c *ThresholdController) GetConfig(w http.ResponseWriter, r *http.Request) {
	config, err := c.thresholdService.GetConfig(chi.URLParam(r, "model_id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询阈值配置失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询阈值配置成功", config))
}

// UpdateConfig 更新阈值配置
// @Summary 更新阈值配置
// @Description 更新模型的自适应阈值配置，不存在时创建
// @Tags 自适应阈值
// @Accept json
// @Produce json
// @Param model_id path string true "模型ID"
// @Param config body threshold.ConfigInput true "配置内容"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /thresholds/{model_id}/config [put]
func (c *ThresholdController) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var input threshold.ConfigInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}

	config, err := c.thresholdService.UpdateConfig(chi.URLParam(r, "model_id"), &input)
	if err != nil {
		render.JSON(w, r, BadRequestResponse("更新阈值配置失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("更新阈值配置成功", config))
}

// CalculateThresholds 重算阈值
// @Summary 重算阈值
// @Description 按配置的算法基于历史窗口重算三项漂移阈值
// @Tags 自适应阈值
// @Produce json
// @Param model_id path string true "模型ID"
// @Success 200 {object} APIResponse
// @Router /thresholds/{model_id}/calculate [post]
func (c *ThresholdController) CalculateThresholds(w http.ResponseWriter, r *http.Request) {
	result, err := c.thresholdService.CalculateThresholds(chi.URLParam(r, "model_id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("重算阈值失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("重算阈值成功", result))
}

// SuggestAlgorithm 算法建议
// @Summary 算法建议
// @Description 基于历史数据特征推荐阈值计算算法
// @Tags 自适应阈值
// @Produce json
// @Param model_id path string true "模型ID"
// @Success 200 {object} APIResponse
// @Router /thresholds/{model_id}/suggest [get]
func (c *ThresholdController) SuggestAlgorithm(w http.ResponseWriter, r *http.Request) {
	suggestion, err := c.thresholdService.SuggestAlgorithm(chi.URLParam(r, "model_id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("算法建议失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("算法建议成功", suggestion))
}

// AnalyzeEffectiveness 有效性分析
// @Summary 有效性分析
// @Description 基于历史样本评估当前阈值的误报率与漏报率并给出调整建议
// @Tags 自适应阈值
// @Produce json
// @Param model_id path string true "模型ID"
// @Success 200 {object} APIResponse
// @Router /thresholds/{model_id}/effectiveness [get]
func (c *ThresholdController) AnalyzeEffectiveness(w http.ResponseWriter, r *http.Request) {
	report, err := c.thresholdService.AnalyzeEffectiveness(chi.URLParam(r, "model_id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("有效性分析失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("有效性分析成功", report))
}

// GetModelsWithConfig 查询已启用阈值配置的模型
// @Summary 查询已启用阈值配置的模型
// @Tags 自适应阈值
// @Produce json
// @Success 200 {object} APIResponse
// @Router /thresholds/models [get]
func (c *ThresholdController) GetModelsWithConfig(w http.ResponseWriter, r *http.Request) {
	modelIDs, err := c.thresholdService.GetModelsWithConfig()
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询模型列表失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询模型列表成功", modelIDs))
}
