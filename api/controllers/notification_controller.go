/*
 * @module api/controllers/notification_controller
 * @description 通知配置控制器，提供Webhook通知配置管理与测试通知接口
 * @architecture 分层架构 - 控制器层
 * @stateFlow HTTP请求 -> 参数验证 -> 服务调用 -> 响应返回
 * @rules 统一使用APIResponse响应格式
 * @dependencies service/monitoring, github.com/go-chi/render
 * @refs api/routes.go
 */

package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"

	"modelops-service/service"
	"modelops-service/service/monitoring"
)

// NotificationController 通知配置控制器
type NotificationController struct {
	notificationService *monitoring.NotificationService
}

// NewNotificationController 创建通知配置控制器
func NewNotificationController() *NotificationController {
	return &NotificationController{notificationService: service.GlobalNotificationService}
}

// GetConfig 查询通知配置
// @Summary 查询通知配置
// @Tags 通知
// @Produce json
// @Success 200 {object} APIResponse
// @Router /notifications/config [get]
func (c *NotificationController) GetConfig(w http.ResponseWriter, r *http.Request) {
	config, err := c.notificationService.GetConfig()
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询通知配置失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询通知配置成功", config))
}

// UpdateConfig 更新通知配置
// @Summary 更新通知配置
// @Tags 通知
// @Accept json
// @Produce json
// @Param config body monitoring.ConfigInput true "通知配置"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /notifications/config [put]
func (c *NotificationController) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var input monitoring.ConfigInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}

	config, err := c.notificationService.UpdateConfig(&input)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("更新通知配置失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("更新通知配置成功", config))
}

// SendTestNotification 发送测试通知
// @Summary 发送测试通知
// @Description 向所有已启用的通知渠道发送一条测试消息
// @Tags 通知
// @Produce json
// @Success 200 {object} APIResponse
// @Router /notifications/test [post]
func (c *NotificationController) SendTestNotification(w http.ResponseWriter, r *http.Request) {
	c.notificationService.SendTestNotification()
	render.JSON(w, r, SuccessResponse("测试通知已发送", nil))
}
