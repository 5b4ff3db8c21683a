/*
 * @module api/controllers/drift_controller
 * @description 漂移监控控制器，提供漂移配置、检测、告警、指标历史与特征统计接口
 * @architecture 分层架构 - 控制器层
 * @stateFlow HTTP请求 -> 参数验证 -> 服务调用 -> 响应返回
 * @rules 统一使用APIResponse响应格式；参数错误返回400，业务错误返回500
 * @dependencies service/drift, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs api/routes.go
 */

package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"modelops-service/service"
	"modelops-service/service/drift"
)

// DriftController 漂移监控控制器
type DriftController struct {
	driftService *drift.DriftService
}

// NewDriftController 创建漂移监控控制器
func NewDriftController() *DriftController {
	return &DriftController{driftService: service.GlobalDriftService}
}

// CreateConfig 创建漂移监控配置
// @Summary 创建漂移监控配置
// @Description 为模型创建漂移监控配置，未提供的阈值使用默认值
// @Tags 漂移监控
// @Accept json
// @Produce json
// @Param config body drift.ConfigInput true "漂移配置"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /drift/configs [post]
func (c *DriftController) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var input drift.ConfigInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}

	config, err := c.driftService.CreateConfig(&input)
	if err != nil {
		render.JSON(w, r, BadRequestResponse("创建漂移配置失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("创建漂移配置成功", config))
}

// GetConfig 获取漂移监控配置
// @Summary 获取漂移监控配置
// @Description 获取模型启用中的漂移监控配置
// @Tags 漂移监控
// @Produce json
// @Param model_id path string true "模型ID"
// @Success 200 {object} APIResponse
// @Router /drift/configs/{model_id} [get]
func (c *DriftController) GetConfig(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model_id")
	config, err := c.driftService.GetConfig(modelID)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询漂移配置失败", err))
		return
	}
	if config == nil {
		render.JSON(w, r, NotFoundResponse("模型未配置漂移监控", nil))
		return
	}
	render.JSON(w, r, SuccessResponse("查询漂移配置成功", config))
}

// UpdateConfig 更新漂移监控配置
// @Summary 更新漂移监控配置
// @Tags 漂移监控
// @Accept json
// @Produce json
// @Param id path string true "配置ID"
// @Param config body drift.ConfigInput true "漂移配置"
// @Success 200 {object} APIResponse
// @Router /drift/configs/{id} [put]
func (c *DriftController) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	configID := chi.URLParam(r, "id")
	var input drift.ConfigInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}

	config, err := c.driftService.UpdateConfig(configID, &input)
	if err != nil {
		render.JSON(w, r, BadRequestResponse("更新漂移配置失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("更新漂移配置成功", config))
}

// DetectRequest 漂移检测请求
type DetectRequest struct {
	ModelID  string               `json:"model_id" binding:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	Accuracy float64              `json:"accuracy" example:"0.85"`
	Features map[string][]float64 `json:"features,omitempty"`
}

// DetectDrift 执行漂移检测
// @Summary 执行漂移检测
// @Description 对模型执行一次漂移检测，返回检测结果但不创建告警
// @Tags 漂移监控
// @Accept json
// @Produce json
// @Param request body DetectRequest true "检测输入"
// @Success 200 {object} APIResponse
// @Router /drift/detect [post]
func (c *DriftController) DetectDrift(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	if req.ModelID == "" {
		render.JSON(w, r, BadRequestResponse("模型ID不能为空", nil))
		return
	}

	result, err := c.driftService.DetectDrift(req.ModelID, &drift.CurrentMetrics{
		Accuracy: req.Accuracy,
		Features: req.Features,
	})
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("漂移检测失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("漂移检测完成", result))
}

// ListAlerts 查询告警列表
// @Summary 查询告警列表
// @Description 按模型、状态、严重级别分页查询漂移告警
// @Tags 漂移监控
// @Produce json
// @Param model_id query string false "模型ID"
// @Param status query string false "告警状态"
// @Param severity query string false "严重级别"
// @Param page query int false "页码"
// @Param size query int false "每页数量"
// @Success 200 {object} PaginatedResponse
// @Router /drift/alerts [get]
func (c *DriftController) ListAlerts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size < 1 {
		size = 50
	}

	alerts, total, err := c.driftService.ListAlerts(&drift.AlertListOptions{
		ModelID:  r.URL.Query().Get("model_id"),
		Status:   r.URL.Query().Get("status"),
		Severity: r.URL.Query().Get("severity"),
		Limit:    size,
		Offset:   (page - 1) * size,
	})
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询告警列表失败", err))
		return
	}
	render.JSON(w, r, SuccessPaginatedResponse("查询告警列表成功", alerts, total, page, size))
}

// GetActiveAlerts 查询活跃告警
// @Summary 查询活跃告警
// @Tags 漂移监控
// @Produce json
// @Param model_id query string false "模型ID"
// @Success 200 {object} APIResponse
// @Router /drift/alerts/active [get]
func (c *DriftController) GetActiveAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := c.driftService.GetActiveAlerts(r.URL.Query().Get("model_id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询活跃告警失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询活跃告警成功", alerts))
}

// AlertActionRequest 告警处置请求
type AlertActionRequest struct {
	Operator string `json:"operator,omitempty" example:"admin"`
	Reason   string `json:"reason,omitempty" example:"已确认为数据源异常"`
}

// AcknowledgeAlert 确认告警
// @Summary 确认告警
// @Tags 漂移监控
// @Accept json
// @Produce json
// @Param id path string true "告警ID"
// @Param request body AlertActionRequest false "处置信息"
// @Success 200 {object} APIResponse
// @Router /drift/alerts/{id}/acknowledge [post]
func (c *DriftController) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")
	var req AlertActionRequest
	json.NewDecoder(r.Body).Decode(&req)

	alert, err := c.driftService.AcknowledgeAlert(alertID, req.Operator)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("确认告警失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("确认告警成功", alert))
}

// ResolveAlert 解决告警
// @Summary 解决告警
// @Tags 漂移监控
// @Accept json
// @Produce json
// @Param id path string true "告警ID"
// @Param request body AlertActionRequest true "处置信息"
// @Success 200 {object} APIResponse
// @Router /drift/alerts/{id}/resolve [post]
func (c *DriftController) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")
	var req AlertActionRequest
	json.NewDecoder(r.Body).Decode(&req)

	alert, err := c.driftService.ResolveAlert(alertID, req.Reason, req.Operator)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("解决告警失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("解决告警成功", alert))
}

// IgnoreAlert 忽略告警
// @Summary 忽略告警
// @Tags 漂移监控
// @Accept json
// @Produce json
// @Param id path string true "告警ID"
// @Param request body AlertActionRequest true "处置信息"
// @Success 200 {object} APIResponse
// @Router /drift/alerts/{id}/ignore [post]
func (c *DriftController) IgnoreAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")
	var req AlertActionRequest
	json.NewDecoder(r.Body).Decode(&req)

	alert, err := c.driftService.IgnoreAlert(alertID, req.Reason)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("忽略告警失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("忽略告警成功", alert))
}

// RecordMetricsRequest 指标采样记录请求
type RecordMetricsRequest struct {
	ModelID         string   `json:"model_id" binding:"required"`
	Accuracy        float64  `json:"accuracy" example:"0.85"`
	Precision       *float64 `json:"precision,omitempty"`
	Recall          *float64 `json:"recall,omitempty"`
	F1Score         *float64 `json:"f1_score,omitempty"`
	PredictionCount int      `json:"prediction_count" example:"1000"`
}

// RecordMetrics 记录指标采样
// @Summary 记录指标采样
// @Tags 漂移监控
// @Accept json
// @Produce json
// @Param request body RecordMetricsRequest true "指标采样"
// @Success 200 {object} APIResponse
// @Router /drift/metrics [post]
func (c *DriftController) RecordMetrics(w http.ResponseWriter, r *http.Request) {
	var req RecordMetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	if req.ModelID == "" {
		render.JSON(w, r, BadRequestResponse("模型ID不能为空", nil))
		return
	}

	sample, err := c.driftService.RecordMetrics(req.ModelID, req.Accuracy,
		req.Precision, req.Recall, req.F1Score, req.PredictionCount)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("记录指标采样失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("记录指标采样成功", sample))
}

// GetMetricsHistory 查询指标历史
// @Summary 查询指标历史
// @Description 查询模型最近N小时的指标采样，默认24小时
// @Tags 漂移监控
// @Produce json
// @Param model_id path string true "模型ID"
// @Param hours query int false "时间窗口（小时）"
// @Success 200 {object} APIResponse
// @Router /drift/metrics/{model_id} [get]
func (c *DriftController) GetMetricsHistory(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model_id")
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))

	samples, err := c.driftService.GetMetricsHistory(modelID, hours)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询指标历史失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询指标历史成功", samples))
}

// SaveFeatureStatsRequest 特征统计保存请求
type SaveFeatureStatsRequest struct {
	ModelID     string    `json:"model_id" binding:"required"`
	FeatureName string    `json:"feature_name" binding:"required" example:"order_amount"`
	Values      []float64 `json:"values" binding:"required"`
	IsBaseline  bool      `json:"is_baseline" example:"true"`
}

// SaveFeatureStatistics 计算并保存特征统计
// @Summary 计算并保存特征统计
// @Description 对特征值计算描述性统计与直方图并保存，is_baseline 标记训练期基线
// @Tags 漂移监控
// @Accept json
// @Produce json
// @Param request body SaveFeatureStatsRequest true "特征数据"
// @Success 200 {object} APIResponse
// @Router /drift/feature-statistics [post]
func (c *DriftController) SaveFeatureStatistics(w http.ResponseWriter, r *http.Request) {
	var req SaveFeatureStatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	if req.ModelID == "" || req.FeatureName == "" {
		render.JSON(w, r, BadRequestResponse("模型ID与特征名不能为空", nil))
		return
	}

	stats := drift.CalculateFeatureStats(req.Values)
	record, err := c.driftService.SaveFeatureStatistics(req.ModelID, req.FeatureName, stats, req.IsBaseline)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("保存特征统计失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("保存特征统计成功", record))
}

// GetBaselineStats 查询特征基线统计
// @Summary 查询特征基线统计
// @Tags 漂移监控
// @Produce json
// @Param model_id path string true "模型ID"
// @Param feature query string true "特征名"
// @Success 200 {object} APIResponse
// @Router /drift/feature-statistics/{model_id} [get]
func (c *DriftController) GetBaselineStats(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model_id")
	featureName := r.URL.Query().Get("feature")
	if featureName == "" {
		render.JSON(w, r, BadRequestResponse("特征名不能为空", nil))
		return
	}

	stats, err := c.driftService.GetBaselineStats(modelID, featureName)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询基线统计失败", err))
		return
	}
	if stats == nil {
		render.JSON(w, r, NotFoundResponse("该特征无基线统计", nil))
		return
	}
	render.JSON(w, r, SuccessResponse("查询基线统计成功", stats))
}

// GetDashboardStats 查询漂移看板统计
// @Summary 查询漂移看板统计
// @Description 汇总告警总数、活跃数、严重数、平均漂移评分与近期趋势
// @Tags 漂移监控
// @Produce json
// @Param model_id query string false "模型ID"
// @Success 200 {object} APIResponse
// @Router /drift/dashboard-stats [get]
func (c *DriftController) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.driftService.GetDashboardStats(r.URL.Query().Get("model_id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询看板统计失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询看板统计成功", stats))
}
