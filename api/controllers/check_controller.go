/*
 * @module api/controllers/check_controller
 * @description 巡检控制器，提供单模型巡检、全量巡检触发与最近巡检结果查询接口
 * @architecture 分层架构 - 控制器层
 * @stateFlow HTTP请求 -> 服务调用 -> 响应返回
 * @rules 统一使用APIResponse响应格式
 * @dependencies service/monitoring, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs api/routes.go
 */

package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"modelops-service/service"
	"modelops-service/service/monitoring"
)

// CheckController 巡检控制器
type CheckController struct {
	checkService *monitoring.CheckService
}

// NewCheckController 创建巡检控制器
func NewCheckController() *CheckController {
	return &CheckController{checkService: service.GlobalCheckService}
}

// CheckModel 巡检单个模型
// @Summary 巡检单个模型
// @Description 对指定模型执行一次完整的漂移检测与告警流程
// @Tags 巡检
// @Produce json
// @Param model_id path string true "模型ID"
// @Success 200 {object} APIResponse
// @Router /scheduled-check/models/{model_id} [post]
func (c *CheckController) CheckModel(w http.ResponseWriter, r *http.Request) {
	result, err := c.checkService.CheckModel(chi.URLParam(r, "model_id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("模型巡检失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("模型巡检完成", result))
}

// RunScheduledCheck 触发全量巡检
// @Summary 触发全量巡检
// @Description 对所有启用漂移检测的模型执行一轮巡检并记录巡检摘要
// @Tags 巡检
// @Produce json
// @Success 200 {object} APIResponse
// @Router /scheduled-check/run [post]
func (c *CheckController) RunScheduledCheck(w http.ResponseWriter, r *http.Request) {
	summary, err := c.checkService.RunScheduledCheck(r.Context())
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("全量巡检失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("全量巡检完成", summary))
}

// GetLastCheckSummary 查询最近一次巡检摘要
// @Summary 查询最近一次巡检摘要
// @Tags 巡检
// @Produce json
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /scheduled-check/last [get]
func (c *CheckController) GetLastCheckSummary(w http.ResponseWriter, r *http.Request) {
	run, err := c.checkService.GetLastCheckSummary()
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询巡检摘要失败", err))
		return
	}
	if run == nil {
		render.JSON(w, r, NotFoundResponse("暂无巡检记录", nil))
		return
	}
	render.JSON(w, r, SuccessResponse("查询巡检摘要成功", run))
}

// GetMonitoredModels 查询纳入巡检的模型
// @Summary 查询纳入巡检的模型
// @Tags 巡检
// @Produce json
// @Success 200 {object} APIResponse
// @Router /scheduled-check/models [get]
func (c *CheckController) GetMonitoredModels(w http.ResponseWriter, r *http.Request) {
	modelIDs, err := c.checkService.GetModelsWithDriftConfig()
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询巡检模型列表失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询巡检模型列表成功", modelIDs))
}
