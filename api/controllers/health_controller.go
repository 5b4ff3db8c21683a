/*
 * @module api/controllers/health_controller
 * @description 健康检查控制器，提供服务存活与就绪探针
 * @architecture 分层架构 - 控制器层
 * @stateFlow HTTP请求 -> 状态检查 -> 响应返回
 * @rules 健康检查不依赖下游服务，始终快速返回
 * @dependencies github.com/go-chi/render
 * @refs api/routes.go
 */

package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthController 健康检查控制器
type HealthController struct{}

// NewHealthController 创建健康检查控制器
func NewHealthController() *HealthController {
	return &HealthController{}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string    `json:"status" example:"ok"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version" example:"1.0.0"`
	Service   string    `json:"service" example:"modelops-service"`
}

// Health 健康检查
// @Summary 健康检查
// @Description 检查服务是否存活
// @Tags 系统
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Service:   "modelops-service",
	})
}

// Ready 就绪检查
// @Summary 就绪检查
// @Description 检查服务是否就绪
// @Tags 系统
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /ready [get]
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Service:   "modelops-service",
	})
}
