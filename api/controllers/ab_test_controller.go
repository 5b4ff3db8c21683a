/*
 * @module api/controllers/ab_test_controller
 * @description A/B测试控制器，提供测试生命周期、流量分配、结果记录与统计对比接口
 * @architecture 分层架构 - 控制器层
 * @stateFlow HTTP请求 -> 参数验证 -> 服务调用 -> 响应返回
 * @rules 统一使用APIResponse响应格式；状态流转错误返回400
 * @dependencies service/abtest, github.com/go-chi/chi/v5, github.com/go-chi/render
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
	"modelops-service/service/abtest"
)

// ABTestController A/B测试控制器
type ABTestController struct {
	abTestService *abtest.ABTestService
}

// NewABTestController 创建A/B测试控制器
func NewABTestController() *ABTestController {
	return &ABTestController{abTestService: service.GlobalABTestService}
}

// CreateTest 创建A/B测试
// @Summary 创建A/B测试
// @Description 创建新的A/B测试，流量分配之和必须为100
// @Tags A/B测试
// @Accept json
// @Produce json
// @Param test body abtest.CreateTestInput true "测试信息"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /ab-tests [post]
func (c *ABTestController) CreateTest(w http.ResponseWriter, r *http.Request) {
	var input abtest.CreateTestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}

	test, err := c.abTestService.CreateTest(&input)
	if err != nil {
		render.JSON(w, r, BadRequestResponse("创建A/B测试失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("创建A/B测试成功", test))
}

// GetTest 查询测试详情
// @Summary 查询测试详情
// @Tags A/B测试
// @Produce json
// @Param id path string true "测试ID"
// @Success 200 {object} APIResponse
// @Router /ab-tests/{id} [get]
func (c *ABTestController) GetTest(w http.ResponseWriter, r *http.Request) {
	test, err := c.abTestService.GetTest(chi.URLParam(r, "id"))
	if err != nil {
		render.JSON(w, r, NotFoundResponse("查询A/B测试失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询A/B测试成功", test))
}

// ListTests 查询测试列表
// @Summary 查询测试列表
// @Tags A/B测试
// @Produce json
// @Param status query string false "测试状态"
// @Param page query int false "页码"
// @Param size query int false "每页数量"
// @Success 200 {object} PaginatedResponse
// @Router /ab-tests [get]
func (c *ABTestController) ListTests(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size < 1 {
		size = 50
	}

	tests, total, err := c.abTestService.ListTests(&abtest.TestListOptions{
		Status: r.URL.Query().Get("status"),
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询A/B测试列表失败", err))
		return
	}
	render.JSON(w, r, SuccessPaginatedResponse("查询A/B测试列表成功", tests, total, page, size))
}

// GetRunningTests 查询运行中的测试
// @Summary 查询运行中的测试
// @Tags A/B测试
// @Produce json
// @Success 200 {object} APIResponse
// @Router /ab-tests/running [get]
func (c *ABTestController) GetRunningTests(w http.ResponseWriter, r *http.Request) {
	tests, err := c.abTestService.GetRunningTests()
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询运行中测试失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询运行中测试成功", tests))
}

// StartTest 启动测试
// @Summary 启动测试
// @Tags A/B测试
// @Produce json
// @Param id path string true "测试ID"
// @Success 200 {object} APIResponse
// @Router /ab-tests/{id}/start [post]
func (c *ABTestController) StartTest(w http.ResponseWriter, r *http.Request) {
	test, err := c.abTestService.StartTest(chi.URLParam(r, "id"))
	if err != nil {
		render.JSON(w, r, BadRequestResponse("启动A/B测试失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("启动A/B测试成功", test))
}

// PauseTest 暂停测试
// @Summary 暂停测试
// @Tags A/B测试
// @Produce json
// @Param id path string true "测试ID"
// @Success 200 {object} APIResponse
// @Router /ab-tests/{id}/pause [post]
func (c *ABTestController) PauseTest(w http.ResponseWriter, r *http.Request) {
	test, err := c.abTestService.PauseTest(chi.URLParam(r, "id"))
	if err != nil {
		render.JSON(w, r, BadRequestResponse("暂停A/B测试失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("暂停A/B测试成功", test))
}

// CompleteTestRequest 完成测试请求
type CompleteTestRequest struct {
	WinnerModelID string `json:"winner_model_id,omitempty"`
	WinnerReason  string `json:"winner_reason,omitempty"`
}

// CompleteTest 完成测试
// @Summary 完成测试
// @Tags A/B测试
// @Accept json
// @Produce json
// @Param id path string true "测试ID"
// @Param request body CompleteTestRequest false "胜出信息"
// @Success 200 {object} APIResponse
// @Router /ab-tests/{id}/complete [post]
func (c *ABTestController) CompleteTest(w http.ResponseWriter, r *http.Request) {
	var req CompleteTestRequest
	json.NewDecoder(r.Body).Decode(&req)

	test, err := c.abTestService.CompleteTest(chi.URLParam(r, "id"), req.WinnerModelID, req.WinnerReason)
	if err != nil {
		render.JSON(w, r, BadRequestResponse("完成A/B测试失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("完成A/B测试成功", test))
}

// CancelTest 取消测试
// @Summary 取消测试
// @Tags A/B测试
// @Produce json
// @Param id path string true "测试ID"
// @Success 200 {object} APIResponse
// @Router /ab-tests/{id}/cancel [post]
func (c *ABTestController) CancelTest(w http.ResponseWriter, r *http.Request) {
	test, err := c.abTestService.CancelTest(chi.URLParam(r, "id"))
	if err != nil {
		render.JSON(w, r, BadRequestResponse("取消A/B测试失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("取消A/B测试成功", test))
}

// SelectModel 按流量分配选择模型
// @Summary 按流量分配选择模型
// @Description 按测试的流量分配比例随机选择承接本次预测的变体
// @Tags A/B测试
// @Produce json
// @Param id path string true "测试ID"
// @Success 200 {object} APIResponse
// @Router /ab-tests/{id}/select-model [get]
func (c *ABTestController) SelectModel(w http.ResponseWriter, r *http.Request) {
	test, err := c.abTestService.GetTest(chi.URLParam(r, "id"))
	if err != nil {
		render.JSON(w, r, NotFoundResponse("查询A/B测试失败", err))
		return
	}
	selection := c.abTestService.SelectModelForPrediction(test)
	render.JSON(w, r, SuccessResponse("模型选择成功", selection))
}

// RecordResult 记录测试结果
// @Summary 记录测试结果
// @Tags A/B测试
// @Accept json
// @Produce json
// @Param id path string true "测试ID"
// @Param result body abtest.RecordResultInput true "预测结果"
// @Success 200 {object} APIResponse
// @Router /ab-tests/{id}/results [post]
func (c *ABTestController) RecordResult(w http.ResponseWriter, r *http.Request) {
	var input abtest.RecordResultInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	input.TestID = chi.URLParam(r, "id")

	result, err := c.abTestService.RecordResult(&input)
	if err != nil {
		render.JSON(w, r, BadRequestResponse("记录测试结果失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("记录测试结果成功", result))
}

// GetTestStats 查询测试统计
// @Summary 查询测试统计
// @Description 返回两个变体的聚合统计（准确率、误差、响应时间）
// @Tags A/B测试
// @Produce json
// @Param id path string true "测试ID"
// @Success 200 {object} APIResponse
// @Router /ab-tests/{id}/stats [get]
func (c *ABTestController) GetTestStats(w http.ResponseWriter, r *http.Request) {
	statsA, statsB, err := c.abTestService.GetTestStats(chi.URLParam(r, "id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询测试统计失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询测试统计成功", map[string]interface{}{
		"stats_a": statsA,
		"stats_b": statsB,
	}))
}

// CompareModels 对比两个变体
// @Summary 对比两个变体
// @Description 执行两比例z检验并给出部署建议
// @Tags A/B测试
// @Produce json
// @Param id path string true "测试ID"
// @Success 200 {object} APIResponse
// @Router /ab-tests/{id}/compare [get]
func (c *ABTestController) CompareModels(w http.ResponseWriter, r *http.Request) {
	comparison, err := c.abTestService.CompareModels(chi.URLParam(r, "id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("模型对比失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("模型对比成功", comparison))
}

// UpdateStats 重建测试聚合统计
// @Summary 重建测试聚合统计
// @Description 重建按变体的聚合统计行并回写显著性检验结论
// @Tags A/B测试
// @Produce json
// @Param id path string true "测试ID"
// @Success 200 {object} APIResponse
// @Router /ab-tests/{id}/update-stats [post]
func (c *ABTestController) UpdateStats(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "id")
	if err := c.abTestService.UpdateStats(testID); err != nil {
		render.JSON(w, r, InternalErrorResponse("重建聚合统计失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("重建聚合统计成功", nil))
}
