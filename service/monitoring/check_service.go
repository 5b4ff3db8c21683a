/*
 * @module service/monitoring/check_service
 * @description 模型监控巡检服务，编排漂移检测、告警冷却、自动回滚与通知推送
 * @architecture 分层架构 - 业务编排层
 * @stateFlow 读取启用配置 -> 聚合近期采样 -> 漂移检测 -> 冷却判定 -> 告警/回滚 -> 汇总通知
 * @rules 冷却期内不重复建告警但仍上报漂移；单模型检查失败不中断整轮巡检；通知失败不影响主流程
 * @dependencies gorm.io/gorm, modelops-service/service/drift, modelops-service/service/versioning
 * @refs service/monitoring/check_scheduler.go, service/distributed_lock/redis_lock.go
 */

package monitoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"modelops-service/service/distributed_lock"
	"modelops-service/service/drift"
	"modelops-service/service/models"
	"modelops-service/service/versioning"
)

// recentSampleLimit 单次检查聚合的最大采样条数
const recentSampleLimit = 10

// CheckService 监控巡检服务
type CheckService struct {
	db           *gorm.DB
	driftSvc     *drift.DriftService
	versionSvc   *versioning.VersioningService
	notifySvc    *NotificationService
	lock         distributed_lock.DistributedLock // 可选，多实例部署时避免并发巡检同一模型
}

// NewCheckService 创建巡检服务实例，lock 传 nil 表示单实例部署不加锁
func NewCheckService(db *gorm.DB, driftSvc *drift.DriftService, versionSvc *versioning.VersioningService,
	notifySvc *NotificationService, lock distributed_lock.DistributedLock) *CheckService {
	return &CheckService{
		db:         db,
		driftSvc:   driftSvc,
		versionSvc: versionSvc,
		notifySvc:  notifySvc,
		lock:       lock,
	}
}

// ModelCheckResult 单模型检查结果
type ModelCheckResult struct {
	ModelID           string             `json:"model_id"`
	Checked           bool               `json:"checked"`
	DriftDetected     bool               `json:"drift_detected"`
	AlertCreated      bool               `json:"alert_created"`
	Alert             *models.DriftAlert `json:"alert,omitempty"`
	RollbackPerformed bool               `json:"rollback_performed"`
	Error             string             `json:"error,omitempty"` // 业务性原因，如无配置、无采样
}

// CheckModel 对单个模型执行一次漂移检查。
// 取监控窗口内最近采样的平均准确率作为当前表现；冷却期内的重复漂移不再建告警
func (s *CheckService) CheckModel(modelID string) (*ModelCheckResult, error) {
	result := &ModelCheckResult{ModelID: modelID}

	config, err := s.driftSvc.GetConfig(modelID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		result.Error = "模型未配置漂移监控"
		return result, nil
	}

	samples, err := s.recentSamples(modelID, config.MonitoringWindowHours)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		result.Error = "监控窗口内无指标采样"
		return result, nil
	}

	sum := 0.0
	for _, sample := range samples {
		sum += models.DecimalValue(sample.Accuracy)
	}
	currentAccuracy := sum / float64(len(samples))

	detection, err := s.driftSvc.DetectDrift(modelID, &drift.CurrentMetrics{Accuracy: currentAccuracy})
	if err != nil {
		return nil, err
	}
	result.Checked = true

	// 检查结论回填到最新采样，作为自适应阈值计算的历史输入
	s.backfillSample(&samples[0], detection)

	if !detection.HasDrift {
		return result, nil
	}
	result.DriftDetected = true

	inCooldown, err := s.inCooldown(modelID, config.AlertCooldownMinutes)
	if err != nil {
		return nil, err
	}
	if inCooldown {
		slog.Info("漂移告警处于冷却期，跳过创建", "model_id", modelID, "severity", detection.Severity)
		return result, nil
	}

	alert, err := s.driftSvc.CreateAlert(modelID, detection)
	if err != nil {
		return nil, err
	}
	result.AlertCreated = true
	result.Alert = alert

	if config.AutoRollbackEnabled && detection.Severity == "critical" {
		rollback, err := s.versionSvc.AutoRollbackIfNeeded(modelID, currentAccuracy, config.AutoRollbackThreshold)
		if err != nil {
			slog.Error("自动回滚失败", "model_id", modelID, "error", err)
		} else if rollback.Rolled {
			result.RollbackPerformed = true
			resolution := fmt.Sprintf("已自动回滚到版本 %s", rollback.ToVersion.Version)
			if _, err := s.driftSvc.ResolveAlert(alert.ID, resolution, "system"); err != nil {
				slog.Error("回滚后解决告警失败", "alert_id", alert.ID, "error", err)
			}
		}
	}
	return result, nil
}

func (s *CheckService) recentSamples(modelID string, windowHours int) ([]models.MetricsSample, error) {
	startTime := time.Now().Add(-time.Duration(windowHours) * time.Hour)
	var samples []models.MetricsSample
	err := s.db.Where("model_id = ? AND recorded_at >= ?", modelID, startTime).
		Order("recorded_at DESC").Limit(recentSampleLimit).Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("查询近期采样失败: %w", err)
	}
	return samples, nil
}

func (s *CheckService) inCooldown(modelID string, cooldownMinutes int) (bool, error) {
	alerts, err := s.driftSvc.GetActiveAlerts(modelID)
	if err != nil {
		return false, err
	}
	cooldown := time.Duration(cooldownMinutes) * time.Minute
	for _, alert := range alerts {
		if time.Since(alert.CreatedAt) < cooldown {
			return true, nil
		}
	}
	return false, nil
}

func (s *CheckService) backfillSample(sample *models.MetricsSample, detection *drift.DetectionResult) {
	accuracyDrop := 0.0
	featureDrift := 0.0
	for _, detail := range detection.Details {
		if detail.Metric == "accuracy" {
			accuracyDrop = detail.ChangePercent / 100
		} else if featureDrift < detail.ChangePercent/100 {
			featureDrift = detail.ChangePercent / 100
		}
	}

	updates := map[string]interface{}{
		"accuracy_drop":    models.DecimalPtr(accuracyDrop),
		"feature_drift":    models.DecimalPtr(featureDrift),
		"prediction_drift": models.DecimalPtr(detection.DriftScore),
		"severity":         detection.Severity,
	}
	if err := s.db.Model(sample).Updates(updates).Error; err != nil {
		slog.Error("回填采样漂移列失败", "sample_id", sample.ID, "error", err)
	}
}

// CheckSummary 一轮巡检的汇总结果
type CheckSummary struct {
	ModelsChecked    int            `json:"models_checked"`
	AlertsCreated    int            `json:"alerts_created"`
	AlertsBySeverity map[string]int `json:"alerts_by_severity"`
	Rollbacks        int            `json:"rollbacks"`
	Errors           []string       `json:"errors,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
}

// GetModelsWithDriftConfig 列出启用漂移监控的模型ID
func (s *CheckService) GetModelsWithDriftConfig() ([]string, error) {
	var ids []string
	err := s.db.Model(&models.DriftConfig{}).
		Where("is_enabled = ?", true).Pluck("model_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询启用监控的模型失败: %w", err)
	}
	return ids, nil
}

// RunScheduledCheck 对全部启用监控的模型顺序执行巡检并持久化汇总。
// 配置分布式锁时逐模型加锁，锁被占用的模型跳过本轮
func (s *CheckService) RunScheduledCheck(ctx context.Context) (*CheckSummary, error) {
	summary := &CheckSummary{
		AlertsBySeverity: map[string]int{},
		StartedAt:        time.Now(),
	}

	modelIDs, err := s.GetModelsWithDriftConfig()
	if err != nil {
		return nil, err
	}

	for _, modelID := range modelIDs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := s.checkModelWithLock(ctx, modelID)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", modelID, err))
			slog.Error("模型巡检失败", "model_id", modelID, "error", err)
			continue
		}
		if result == nil {
			continue // 锁被其他实例占用
		}
		if result.Error != "" {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", modelID, result.Error))
		}
		if result.Checked {
			summary.ModelsChecked++
		}
		if result.AlertCreated {
			summary.AlertsCreated++
			summary.AlertsBySeverity[result.Alert.Severity]++
			if result.Alert.Severity == "critical" || result.Alert.Severity == "high" {
				config, err := s.driftSvc.GetConfig(modelID)
				webhook := ""
				if err == nil && config != nil {
					webhook = config.NotificationWebhook
				}
				s.notifySvc.NotifyDriftAlert(result.Alert, webhook)
				if result.Alert.Severity == "critical" && config != nil {
					s.notifySvc.NotifyOwnerEscalation(result.Alert, config)
				}
			}
		}
		if result.RollbackPerformed {
			summary.Rollbacks++
		}
	}
	summary.FinishedAt = time.Now()

	if err := s.saveCheckRun(summary); err != nil {
		slog.Error("保存巡检记录失败", "error", err)
	}
	if summary.AlertsCreated > 0 {
		s.notifySvc.NotifyCheckSummary(summary)
	}

	slog.Info("定时巡检完成", "models_checked", summary.ModelsChecked,
		"alerts_created", summary.AlertsCreated, "rollbacks", summary.Rollbacks,
		"errors", len(summary.Errors))
	return summary, nil
}

func (s *CheckService) checkModelWithLock(ctx context.Context, modelID string) (*ModelCheckResult, error) {
	if s.lock == nil {
		return s.CheckModel(modelID)
	}

	lockKey := "drift_check:" + modelID
	acquired, err := s.lock.TryLock(ctx, lockKey, 5*time.Minute)
	if err != nil {
		slog.Warn("获取巡检锁失败，本轮跳过加锁", "model_id", modelID, "error", err)
		return s.CheckModel(modelID)
	}
	if !acquired {
		return nil, nil
	}
	defer func() {
		if err := s.lock.Unlock(ctx, lockKey); err != nil {
			slog.Warn("释放巡检锁失败", "model_id", modelID, "error", err)
		}
	}()
	return s.CheckModel(modelID)
}

func (s *CheckService) saveCheckRun(summary *CheckSummary) error {
	run := &models.DriftCheckRun{
		ModelsChecked:  summary.ModelsChecked,
		AlertsCreated:  summary.AlertsCreated,
		CriticalAlerts: summary.AlertsBySeverity["critical"],
		HighAlerts:     summary.AlertsBySeverity["high"],
		MediumAlerts:   summary.AlertsBySeverity["medium"],
		LowAlerts:      summary.AlertsBySeverity["low"],
		Rollbacks:      summary.Rollbacks,
		Errors:         models.JSONBStringArray(summary.Errors),
		StartedAt:      summary.StartedAt,
		FinishedAt:     summary.FinishedAt,
	}
	return s.db.Create(run).Error
}

// GetLastCheckSummary 查询最近一次巡检汇总，从未巡检时返回 nil
func (s *CheckService) GetLastCheckSummary() (*models.DriftCheckRun, error) {
	var run models.DriftCheckRun
	err := s.db.Order("finished_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询巡检记录失败: %w", err)
	}
	return &run, nil
}
