/*
 * @module service/drift/drift_service
 * @description 漂移检测服务，负责漂移配置管理、漂移检测、告警生命周期、指标历史与基线统计
 * @architecture 分层架构 - 业务逻辑层
 * @stateFlow 配置 -> 检测（准确率下降 + 特征 KS） -> 告警创建 -> 确认/解决/忽略
 * @rules 无配置时检测返回无漂移结果而非错误；严重级别按准确率下降阈值的 1/2/3 倍判定
 * @dependencies gorm.io/gorm, github.com/spf13/cast
 * @refs service/monitoring/check_service.go, service/versioning/versioning_service.go
 */

package drift

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"modelops-service/service/models"
)

// DriftService 漂移检测服务
type DriftService struct {
	db *gorm.DB
}

// NewDriftService 创建漂移检测服务实例
func NewDriftService(db *gorm.DB) *DriftService {
	return &DriftService{db: db}
}

// CurrentMetrics 检测输入：当前窗口的准确率与各特征采样值
type CurrentMetrics struct {
	Accuracy float64              `json:"accuracy"`
	Features map[string][]float64 `json:"features,omitempty"`
}

// DetectionResult 漂移检测结果
type DetectionResult struct {
	HasDrift       bool                   `json:"has_drift"`
	Severity       string                 `json:"severity"`
	DriftScore     float64                `json:"drift_score"`
	DriftType      string                 `json:"drift_type"`
	Details        models.DriftDetailList `json:"details"`
	Recommendation string                 `json:"recommendation"`
}

// ConfigInput 漂移配置创建/更新入参
type ConfigInput struct {
	ModelID                  string    `json:"model_id"`
	AccuracyDropThreshold    *float64  `json:"accuracy_drop_threshold,omitempty"`
	FeatureDriftThreshold    *float64  `json:"feature_drift_threshold,omitempty"`
	PredictionDriftThreshold *float64  `json:"prediction_drift_threshold,omitempty"`
	MonitoringWindowHours    *int      `json:"monitoring_window_hours,omitempty"`
	AlertCooldownMinutes     *int      `json:"alert_cooldown_minutes,omitempty"`
	AutoRollbackEnabled      *bool     `json:"auto_rollback_enabled,omitempty"`
	AutoRollbackThreshold    *float64  `json:"auto_rollback_threshold,omitempty"`
	NotifyOwner              *bool     `json:"notify_owner,omitempty"`
	NotifyEmails             []string  `json:"notify_emails,omitempty"`
	NotificationWebhook      *string   `json:"notification_webhook,omitempty"`
}

// CreateConfig 创建漂移监控配置，未给出的阈值取默认值
func (s *DriftService) CreateConfig(input *ConfigInput) (*models.DriftConfig, error) {
	if input.ModelID == "" {
		return nil, errors.New("模型ID不能为空")
	}

	config := &models.DriftConfig{
		ModelID:                  input.ModelID,
		AccuracyDropThreshold:    0.05,
		FeatureDriftThreshold:    0.1,
		PredictionDriftThreshold: 0.1,
		MonitoringWindowHours:    24,
		AlertCooldownMinutes:     60,
		AutoRollbackThreshold:    0.15,
		NotifyOwner:              true,
		IsEnabled:                true,
	}
	applyConfigInput(config, input)

	if err := validateThresholds(config); err != nil {
		return nil, err
	}

	if err := s.db.Create(config).Error; err != nil {
		return nil, fmt.Errorf("创建漂移配置失败: %w", err)
	}
	return config, nil
}

// GetConfig 获取模型启用中的漂移配置，未配置时返回 nil 而非错误
func (s *DriftService) GetConfig(modelID string) (*models.DriftConfig, error) {
	config, err := models.GetEnabledDriftConfig(s.db, modelID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询漂移配置失败: %w", err)
	}
	return config, nil
}

// UpdateConfig 更新漂移配置中给出的字段
func (s *DriftService) UpdateConfig(configID string, input *ConfigInput) (*models.DriftConfig, error) {
	var config models.DriftConfig
	if err := s.db.First(&config, "id = ?", configID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("漂移配置不存在: %s", configID)
		}
		return nil, fmt.Errorf("查询漂移配置失败: %w", err)
	}

	applyConfigInput(&config, input)
	if err := validateThresholds(&config); err != nil {
		return nil, err
	}
	config.UpdatedAt = time.Now()

	if err := s.db.Save(&config).Error; err != nil {
		return nil, fmt.Errorf("更新漂移配置失败: %w", err)
	}
	return &config, nil
}

func applyConfigInput(config *models.DriftConfig, input *ConfigInput) {
	if input.AccuracyDropThreshold != nil {
		config.AccuracyDropThreshold = *input.AccuracyDropThreshold
	}
	if input.FeatureDriftThreshold != nil {
		config.FeatureDriftThreshold = *input.FeatureDriftThreshold
	}
	if input.PredictionDriftThreshold != nil {
		config.PredictionDriftThreshold = *input.PredictionDriftThreshold
	}
	if input.MonitoringWindowHours != nil {
		config.MonitoringWindowHours = *input.MonitoringWindowHours
	}
	if input.AlertCooldownMinutes != nil {
		config.AlertCooldownMinutes = *input.AlertCooldownMinutes
	}
	if input.AutoRollbackEnabled != nil {
		config.AutoRollbackEnabled = *input.AutoRollbackEnabled
	}
	if input.AutoRollbackThreshold != nil {
		config.AutoRollbackThreshold = *input.AutoRollbackThreshold
	}
	if input.NotifyOwner != nil {
		config.NotifyOwner = *input.NotifyOwner
	}
	if input.NotifyEmails != nil {
		config.NotifyEmails = models.JSONBStringArray(input.NotifyEmails)
	}
	if input.NotificationWebhook != nil {
		config.NotificationWebhook = *input.NotificationWebhook
	}
}

func validateThresholds(config *models.DriftConfig) error {
	for name, v := range map[string]float64{
		"accuracy_drop_threshold":    config.AccuracyDropThreshold,
		"feature_drift_threshold":    config.FeatureDriftThreshold,
		"prediction_drift_threshold": config.PredictionDriftThreshold,
		"auto_rollback_threshold":    config.AutoRollbackThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("阈值 %s 必须在 [0,1] 区间内: %v", name, v)
		}
	}
	if config.MonitoringWindowHours <= 0 {
		return errors.New("监控窗口必须为正数")
	}
	if config.AlertCooldownMinutes < 0 {
		return errors.New("告警冷却期不能为负数")
	}
	return nil
}

// DetectDrift 对模型执行漂移检测：准确率相对下降 + 各特征直方图 KS 对比。
// 未配置监控的模型返回无漂移结果
func (s *DriftService) DetectDrift(modelID string, metrics *CurrentMetrics) (*DetectionResult, error) {
	config, err := s.GetConfig(modelID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return &DetectionResult{
			HasDrift:       false,
			Severity:       "low",
			DriftScore:     0,
			DriftType:      "accuracy_drop",
			Details:        models.DriftDetailList{},
			Recommendation: "该模型未配置漂移监控",
		}, nil
	}

	details := models.DriftDetailList{}
	maxScore := 0.0
	primaryType := "accuracy_drop"

	// 准确率相对下降，以当前激活版本的训练期准确率为基线
	activeVersion, err := models.GetActiveVersion(s.db, modelID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询激活版本失败: %w", err)
	}
	baselineAccuracy := 0.0
	if activeVersion != nil {
		baselineAccuracy = models.DecimalValue(activeVersion.Accuracy)
	}
	if baselineAccuracy > 0 {
		accuracyDrop := (baselineAccuracy - metrics.Accuracy) / baselineAccuracy
		details = append(details, models.DriftDetail{
			Metric:        "accuracy",
			BaselineValue: baselineAccuracy,
			CurrentValue:  metrics.Accuracy,
			ChangePercent: accuracyDrop * 100,
			Threshold:     config.AccuracyDropThreshold * 100,
		})
		if accuracyDrop > maxScore {
			maxScore = accuracyDrop
			primaryType = "accuracy_drop"
		}
	}

	// 特征漂移：按特征名排序保证结果确定性
	if len(metrics.Features) > 0 {
		names := make([]string, 0, len(metrics.Features))
		for name := range metrics.Features {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			baseline, err := s.GetBaselineStats(modelID, name)
			if err != nil {
				return nil, err
			}
			if baseline == nil {
				continue // 无基线的特征跳过
			}
			currentStats := CalculateFeatureStats(metrics.Features[name])
			score := CalculateKSStatistic(baseline.Histogram, currentStats.Histogram)

			details = append(details, models.DriftDetail{
				Metric:        "feature:" + name,
				BaselineValue: baseline.Mean,
				CurrentValue:  currentStats.Mean,
				ChangePercent: score * 100,
				Threshold:     config.FeatureDriftThreshold * 100,
			})
			if score > maxScore {
				maxScore = score
				primaryType = "feature_drift"
			}
		}
	}

	severity := "low"
	switch {
	case maxScore > config.AccuracyDropThreshold*3:
		severity = "critical"
	case maxScore > config.AccuracyDropThreshold*2:
		severity = "high"
	case maxScore > config.AccuracyDropThreshold:
		severity = "medium"
	}
	hasDrift := maxScore > config.AccuracyDropThreshold

	var recommendation string
	switch {
	case !hasDrift:
		recommendation = "模型表现在可接受阈值范围内"
	case severity == "critical":
		recommendation = "检测到严重漂移！需要立即处理，建议回滚到历史模型版本"
	case severity == "high":
		recommendation = "检测到显著漂移，请检查近期数据变化并考虑重新训练模型"
	case severity == "medium":
		recommendation = "检测到中度漂移，请密切监控并准备模型更新"
	default:
		recommendation = "检测到轻微漂移，继续保持监控"
	}

	return &DetectionResult{
		HasDrift:       hasDrift,
		Severity:       severity,
		DriftScore:     maxScore,
		DriftType:      primaryType,
		Details:        details,
		Recommendation: recommendation,
	}, nil
}

// CreateAlert 根据检测结果创建漂移告警
func (s *DriftService) CreateAlert(modelID string, result *DetectionResult) (*models.DriftAlert, error) {
	alert := &models.DriftAlert{
		ModelID:        modelID,
		DriftType:      result.DriftType,
		Severity:       result.Severity,
		DriftScore:     models.DecimalPtr(result.DriftScore),
		Details:        result.Details,
		Recommendation: result.Recommendation,
		Status:         "active",
	}
	if err := s.db.Create(alert).Error; err != nil {
		return nil, fmt.Errorf("创建漂移告警失败: %w", err)
	}
	slog.Info("漂移告警已创建", "model_id", modelID, "severity", result.Severity, "drift_score", result.DriftScore)
	return alert, nil
}

// GetActiveAlerts 获取活跃告警，modelID 为空时返回全部模型的活跃告警
func (s *DriftService) GetActiveAlerts(modelID string) ([]models.DriftAlert, error) {
	if modelID != "" {
		return models.GetActiveDriftAlerts(s.db, modelID)
	}
	var alerts []models.DriftAlert
	err := s.db.Where("status = ?", "active").Order("created_at DESC").Find(&alerts).Error
	return alerts, err
}

// AlertListOptions 告警列表查询条件
type AlertListOptions struct {
	ModelID  string
	Status   string
	Severity string
	Limit    int
	Offset   int
}

// ListAlerts 分页查询告警
func (s *DriftService) ListAlerts(options *AlertListOptions) ([]models.DriftAlert, int64, error) {
	query := s.db.Model(&models.DriftAlert{})
	if options.ModelID != "" {
		query = query.Where("model_id = ?", options.ModelID)
	}
	if options.Status != "" {
		query = query.Where("status = ?", options.Status)
	}
	if options.Severity != "" {
		query = query.Where("severity = ?", options.Severity)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计告警数量失败: %w", err)
	}

	limit := options.Limit
	if limit <= 0 {
		limit = 50
	}
	var alerts []models.DriftAlert
	err := query.Order("created_at DESC").Limit(limit).Offset(options.Offset).Find(&alerts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询告警列表失败: %w", err)
	}
	return alerts, total, nil
}

// AcknowledgeAlert 确认告警
func (s *DriftService) AcknowledgeAlert(alertID, acknowledgedBy string) (*models.DriftAlert, error) {
	now := time.Now()
	return s.updateAlert(alertID, map[string]interface{}{
		"status":          "acknowledged",
		"acknowledged_by": acknowledgedBy,
		"acknowledged_at": &now,
	})
}

// ResolveAlert 解决告警并记录解决说明
func (s *DriftService) ResolveAlert(alertID, resolution, resolvedBy string) (*models.DriftAlert, error) {
	now := time.Now()
	return s.updateAlert(alertID, map[string]interface{}{
		"status":      "resolved",
		"resolved_by": resolvedBy,
		"resolved_at": &now,
		"resolution":  resolution,
	})
}

// IgnoreAlert 忽略告警
func (s *DriftService) IgnoreAlert(alertID, reason string) (*models.DriftAlert, error) {
	return s.updateAlert(alertID, map[string]interface{}{
		"status":     "ignored",
		"resolution": reason,
	})
}

func (s *DriftService) updateAlert(alertID string, updates map[string]interface{}) (*models.DriftAlert, error) {
	var alert models.DriftAlert
	if err := s.db.First(&alert, "id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("漂移告警不存在: %s", alertID)
		}
		return nil, fmt.Errorf("查询漂移告警失败: %w", err)
	}
	if err := s.db.Model(&alert).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新漂移告警失败: %w", err)
	}
	return &alert, nil
}

// RecordMetrics 记录一次运行期指标采样
func (s *DriftService) RecordMetrics(modelID string, accuracy float64, precision, recall, f1 *float64, predictionCount int) (*models.MetricsSample, error) {
	sample := &models.MetricsSample{
		ModelID:         modelID,
		Accuracy:        models.DecimalPtr(accuracy),
		PredictionCount: predictionCount,
		RecordedAt:      time.Now(),
	}
	if precision != nil {
		sample.Precision = models.DecimalPtr(*precision)
	}
	if recall != nil {
		sample.Recall = models.DecimalPtr(*recall)
	}
	if f1 != nil {
		sample.F1Score = models.DecimalPtr(*f1)
	}
	if err := s.db.Create(sample).Error; err != nil {
		return nil, fmt.Errorf("记录指标采样失败: %w", err)
	}
	return sample, nil
}

// GetMetricsHistory 查询最近 hours 小时内的指标采样，按时间升序
func (s *DriftService) GetMetricsHistory(modelID string, hours int) ([]models.MetricsSample, error) {
	if hours <= 0 {
		hours = 24
	}
	startTime := time.Now().Add(-time.Duration(hours) * time.Hour)
	var samples []models.MetricsSample
	err := s.db.Where("model_id = ? AND recorded_at >= ?", modelID, startTime).
		Order("recorded_at ASC").Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("查询指标历史失败: %w", err)
	}
	return samples, nil
}

// SaveFeatureStatistics 保存特征统计快照
func (s *DriftService) SaveFeatureStatistics(modelID, featureName string, stats FeatureStats, isBaseline bool) (*models.FeatureStatistics, error) {
	record := StatsToModel(modelID, featureName, stats, isBaseline)
	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("保存特征统计失败: %w", err)
	}
	return record, nil
}

// GetBaselineStats 获取特征最近一次基线统计，不存在时返回 nil
func (s *DriftService) GetBaselineStats(modelID, featureName string) (*models.FeatureStatistics, error) {
	var stats models.FeatureStatistics
	err := s.db.Where("model_id = ? AND feature_name = ? AND is_baseline = ?", modelID, featureName, true).
		Order("created_at DESC").First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询基线统计失败: %w", err)
	}
	return &stats, nil
}

// DashboardStats 漂移监控看板统计
type DashboardStats struct {
	TotalAlerts    int64   `json:"total_alerts"`
	ActiveAlerts   int64   `json:"active_alerts"`
	CriticalAlerts int64   `json:"critical_alerts"`
	AvgDriftScore  float64 `json:"avg_drift_score"`
	RecentTrend    string  `json:"recent_trend"` // improving, stable, declining
}

// GetDashboardStats 汇总看板统计，modelID 为空时统计全部模型。
// 趋势取最近 3 条与其前 3 条告警评分均值对比，偏差超过 10% 判定为变化
func (s *DriftService) GetDashboardStats(modelID string) (*DashboardStats, error) {
	base := s.db.Model(&models.DriftAlert{})
	if modelID != "" {
		base = base.Where("model_id = ?", modelID)
	}

	stats := &DashboardStats{RecentTrend: "stable"}
	if err := base.Session(&gorm.Session{}).Count(&stats.TotalAlerts).Error; err != nil {
		return nil, fmt.Errorf("统计告警总数失败: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", "active").Count(&stats.ActiveAlerts).Error; err != nil {
		return nil, fmt.Errorf("统计活跃告警失败: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("severity = ?", "critical").Count(&stats.CriticalAlerts).Error; err != nil {
		return nil, fmt.Errorf("统计严重告警失败: %w", err)
	}

	var recent []models.DriftAlert
	query := s.db.Order("created_at DESC").Limit(10)
	if modelID != "" {
		query = query.Where("model_id = ?", modelID)
	}
	if err := query.Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("查询近期告警失败: %w", err)
	}

	if len(recent) > 0 {
		sum := 0.0
		for _, a := range recent {
			sum += models.DecimalValue(a.DriftScore)
		}
		stats.AvgDriftScore = sum / float64(len(recent))
	}

	if len(recent) >= 3 {
		avgRecent := avgAlertScore(recent[:3])
		end := len(recent)
		if end > 6 {
			end = 6
		}
		older := recent[3:end]
		if len(older) > 0 {
			avgOlder := avgAlertScore(older)
			if avgRecent < avgOlder*0.9 {
				stats.RecentTrend = "improving"
			} else if avgRecent > avgOlder*1.1 {
				stats.RecentTrend = "declining"
			}
		}
	}
	return stats, nil
}

func avgAlertScore(alerts []models.DriftAlert) float64 {
	sum := 0.0
	for _, a := range alerts {
		sum += models.DecimalValue(a.DriftScore)
	}
	return sum / float64(len(alerts))
}
