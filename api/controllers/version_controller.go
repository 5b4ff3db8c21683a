/*
 * @module api/controllers/version_controller
 * @description 模型版本管理控制器，提供版本创建、部署、回滚、退役与对比接口
 * @architecture 分层架构 - 控制器层
 * @stateFlow HTTP请求 -> 参数验证 -> 服务调用 -> 响应返回
 * @rules 统一使用APIResponse响应格式
 * @dependencies service/versioning, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs api/routes.go
 */

package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"modelops-service/service"
	"modelops-service/service/versioning"
)

// VersionController 模型版本管理控制器
type VersionController struct {
	versioningService *versioning.VersioningService
}

// NewVersionController 创建版本管理控制器
func NewVersionController() *VersionController {
	return &VersionController{versioningService: service.GlobalVersioningService}
}

// CreateVersion 创建模型版本
// @Summary 创建模型版本
// @Description 创建新的模型版本，版本号自动递增，初始为未激活状态
// @Tags 版本管理
// @Accept json
// @Produce json
// @Param version body versioning.VersionInput true "版本信息"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /versions [post]
func (c *VersionController) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var input versioning.VersionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}

	version, err := c.versioningService.CreateVersion(&input)
	if err != nil {
		render.JSON(w, r, BadRequestResponse("创建模型版本失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("创建模型版本成功", version))
}

// GetVersion 查询版本详情
// @Summary 查询版本详情
// @Tags 版本管理
// @Produce json
// @Param id path string true "版本ID"
// @Success 200 {object} APIResponse
// @Router /versions/{id} [get]
func (c *VersionController) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := c.versioningService.GetVersion(chi.URLParam(r, "id"))
	if err != nil {
		render.JSON(w, r, NotFoundResponse("查询模型版本失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询模型版本成功", version))
}

// ListVersions 查询模型版本列表
// @Summary 查询模型版本列表
// @Description 按版本号倒序返回模型全部版本，include_retired=true 时包含已退役版本
// @Tags 版本管理
// @Produce json
// @Param model_id path string true "模型ID"
// @Param include_retired query bool false "是否包含退役版本"
// @Success 200 {object} APIResponse
// @Router /versions/models/{model_id} [get]
func (c *VersionController) ListVersions(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model_id")
	includeRetired := r.URL.Query().Get("include_retired") == "true"

	versions, err := c.versioningService.ListVersions(modelID, includeRetired)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询版本列表失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询版本列表成功", versions))
}

// GetActiveVersion 查询激活版本
// @Summary 查询激活版本
// @Tags 版本管理
// @Produce json
// @Param model_id path string true "模型ID"
// @Success 200 {object} APIResponse
// @Router /versions/models/{model_id}/active [get]
func (c *VersionController) GetActiveVersion(w http.ResponseWriter, r *http.Request) {
	version, err := c.versioningService.GetActiveVersion(chi.URLParam(r, "model_id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询激活版本失败", err))
		return
	}
	if version == nil {
		render.JSON(w, r, NotFoundResponse("模型无激活版本", nil))
		return
	}
	render.JSON(w, r, SuccessResponse("查询激活版本成功", version))
}

// DeployVersion 部署版本
// @Summary 部署版本
// @Description 激活目标版本并取消当前激活版本，切换在事务内完成
// @Tags 版本管理
// @Produce json
// @Param id path string true "版本ID"
// @Success 200 {object} APIResponse
// @Router /versions/{id}/deploy [post]
func (c *VersionController) DeployVersion(w http.ResponseWriter, r *http.Request) {
	version, err := c.versioningService.DeployVersion(chi.URLParam(r, "id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("部署版本失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("部署版本成功", version))
}

// RollbackRequest 回滚请求
type RollbackRequest struct {
	ModelID     string `json:"model_id" binding:"required"`
	ToVersionID string `json:"to_version_id" binding:"required"`
	Reason      string `json:"reason" binding:"required" example:"线上准确率异常下降"`
	TriggeredBy string `json:"triggered_by,omitempty" example:"admin"`
}

// Rollback 手动回滚
// @Summary 手动回滚
// @Description 回滚到指定的可回滚版本并记录回滚历史
// @Tags 版本管理
// @Accept json
// @Produce json
// @Param request body RollbackRequest true "回滚信息"
// @Success 200 {object} APIResponse
// @Router /versions/rollback [post]
func (c *VersionController) Rollback(w http.ResponseWriter, r *http.Request) {
	var req RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	if req.ModelID == "" || req.ToVersionID == "" {
		render.JSON(w, r, BadRequestResponse("模型ID与目标版本ID不能为空", nil))
		return
	}

	record, err := c.versioningService.Rollback(req.ModelID, req.ToVersionID, req.Reason, "manual", req.TriggeredBy)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("模型回滚失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("模型回滚成功", record))
}

// RetireVersion 退役版本
// @Summary 退役版本
// @Description 将版本移出可回滚候选，激活中的版本不可退役
// @Tags 版本管理
// @Produce json
// @Param id path string true "版本ID"
// @Success 200 {object} APIResponse
// @Router /versions/{id}/retire [post]
func (c *VersionController) RetireVersion(w http.ResponseWriter, r *http.Request) {
	version, err := c.versioningService.RetireVersion(chi.URLParam(r, "id"))
	if err != nil {
		render.JSON(w, r, BadRequestResponse("退役版本失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("退役版本成功", version))
}

// RestoreVersion 恢复版本
// @Summary 恢复版本
// @Description 恢复已退役版本为可回滚状态
// @Tags 版本管理
// @Produce json
// @Param id path string true "版本ID"
// @Success 200 {object} APIResponse
// @Router /versions/{id}/restore [post]
func (c *VersionController) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	version, err := c.versioningService.RestoreVersion(chi.URLParam(r, "id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("恢复版本失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("恢复版本成功", version))
}

// CompareVersions 对比两个版本
// @Summary 对比两个版本
// @Description 逐项对比两个版本的指标并给出整体结论
// @Tags 版本管理
// @Produce json
// @Param version_a query string true "版本A的ID"
// @Param version_b query string true "版本B的ID"
// @Success 200 {object} APIResponse
// @Router /versions/compare [get]
func (c *VersionController) CompareVersions(w http.ResponseWriter, r *http.Request) {
	versionA := r.URL.Query().Get("version_a")
	versionB := r.URL.Query().Get("version_b")
	if versionA == "" || versionB == "" {
		render.JSON(w, r, BadRequestResponse("必须提供两个版本ID", nil))
		return
	}

	comparison, err := c.versioningService.CompareVersions(versionA, versionB)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("版本对比失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("版本对比成功", comparison))
}

// GetRollbackHistory 查询回滚历史
// @Summary 查询回滚历史
// @Tags 版本管理
// @Produce json
// @Param model_id path string true "模型ID"
// @Success 200 {object} APIResponse
// @Router /versions/models/{model_id}/rollback-history [get]
func (c *VersionController) GetRollbackHistory(w http.ResponseWriter, r *http.Request) {
	records, err := c.versioningService.GetRollbackHistory(chi.URLParam(r, "model_id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询回滚历史失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询回滚历史成功", records))
}

// GetPerformanceTrend 查询性能趋势
// @Summary 查询性能趋势
// @Description 查询模型各版本某项指标的变化序列，metric 支持 accuracy/precision/recall/f1_score/mae/rmse
// @Tags 版本管理
// @Produce json
// @Param model_id path string true "模型ID"
// @Param metric query string true "指标名"
// @Success 200 {object} APIResponse
// @Router /versions/models/{model_id}/performance-trend [get]
func (c *VersionController) GetPerformanceTrend(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "accuracy"
	}

	points, err := c.versioningService.GetPerformanceTrend(chi.URLParam(r, "model_id"), metric)
	if err != nil {
		render.JSON(w, r, BadRequestResponse("查询性能趋势失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询性能趋势成功", points))
}
