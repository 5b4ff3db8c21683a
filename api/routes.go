/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers
 */

package api

import (
	"modelops-service/api/controllers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 漂移检测
	r.Route("/drift", func(r chi.Router) {
		driftController := controllers.NewDriftController()

		// 检测配置管理
		r.Route("/configs", func(r chi.Router) {
			r.Post("/", driftController.CreateConfig)
			r.Get("/{model_id}", driftController.GetConfig)
			r.Put("/{id}", driftController.UpdateConfig)
		})

		// 执行一次漂移检测
		r.Post("/detect", driftController.DetectDrift)

		// 告警管理
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", driftController.ListAlerts)
			r.Get("/active", driftController.GetActiveAlerts)
			r.Post("/{id}/acknowledge", driftController.AcknowledgeAlert)
			r.Post("/{id}/resolve", driftController.ResolveAlert)
			r.Post("/{id}/ignore", driftController.IgnoreAlert)
		})

		// 指标样本
		r.Route("/metrics", func(r chi.Router) {
			r.Post("/", driftController.RecordMetrics)
			r.Get("/{model_id}", driftController.GetMetricsHistory)
		})

		// 特征统计
		r.Route("/feature-statistics", func(r chi.Router) {
			r.Post("/", driftController.SaveFeatureStatistics)
			r.Get("/{model_id}", driftController.GetBaselineStats)
		})

		// 监控仪表板
		r.Get("/dashboard-stats", driftController.GetDashboardStats)
	})

	// 模型版本管理
	r.Route("/versions", func(r chi.Router) {
		versionController := controllers.NewVersionController()

		// 基础CRUD操作
		r.Post("/", versionController.CreateVersion)
		r.Get("/{id}", versionController.GetVersion)

		// 版本控制操作
		r.Post("/{id}/deploy", versionController.DeployVersion)
		r.Post("/{id}/retire", versionController.RetireVersion)
		r.Post("/{id}/restore", versionController.RestoreVersion)
		r.Post("/rollback", versionController.Rollback)

		// 版本对比
		r.Get("/compare", versionController.CompareVersions)

		// 按模型维度查询
		r.Route("/models/{model_id}", func(r chi.Router) {
			r.Get("/", versionController.ListVersions)
			r.Get("/active", versionController.GetActiveVersion)
			r.Get("/rollback-history", versionController.GetRollbackHistory)
			r.Get("/performance-trend", versionController.GetPerformanceTrend)
		})
	})

	// A/B测试
	r.Route("/ab-tests", func(r chi.Router) {
		abTestController := controllers.NewABTestController()

		// 基础CRUD操作
		r.Post("/", abTestController.CreateTest)
		r.Get("/", abTestController.ListTests)
		r.Get("/running", abTestController.GetRunningTests)
		r.Get("/{id}", abTestController.GetTest)

		// 状态流转操作
		r.Post("/{id}/start", abTestController.StartTest)
		r.Post("/{id}/pause", abTestController.PauseTest)
		r.Post("/{id}/complete", abTestController.CompleteTest)
		r.Post("/{id}/cancel", abTestController.CancelTest)

		// 流量分配与结果记录
		r.Get("/{id}/select-model", abTestController.SelectModel)
		r.Post("/{id}/results", abTestController.RecordResult)

		// 统计与对比
		r.Get("/{id}/stats", abTestController.GetTestStats)
		r.Get("/{id}/compare", abTestController.CompareModels)
		r.Post("/{id}/update-stats", abTestController.UpdateStats)
	})

	// 自适应阈值
	r.Route("/thresholds", func(r chi.Router) {
		thresholdController := controllers.NewThresholdController()

		r.Get("/models", thresholdController.GetModelsWithConfig)
		r.Route("/{model_id}", func(r chi.Router) {
			r.Get("/config", thresholdController.GetConfig)
			r.Put("/config", thresholdController.UpdateConfig)
			r.Post("/calculate", thresholdController.CalculateThresholds)
			r.Get("/suggest", thresholdController.SuggestAlgorithm)
			r.Get("/effectiveness", thresholdController.AnalyzeEffectiveness)
		})
	})

	// 定时巡检
	r.Route("/scheduled-check", func(r chi.Router) {
		checkController := controllers.NewCheckController()

		r.Post("/run", checkController.RunScheduledCheck)
		r.Get("/last", checkController.GetLastCheckSummary)
		r.Get("/models", checkController.GetMonitoredModels)
		r.Post("/models/{model_id}", checkController.CheckModel)
	})

	// 通知配置
	r.Route("/notifications", func(r chi.Router) {
		notificationController := controllers.NewNotificationController()

		r.Get("/config", notificationController.GetConfig)
		r.Put("/config", notificationController.UpdateConfig)
		r.Post("/test", notificationController.SendTestNotification)
	})
}
