/*
 * @module service/models/drift_models
 * @description 漂移监控相关模型定义，包含漂移配置、漂移告警、指标采样、特征统计与巡检记录
 * @architecture 分层架构 - 数据模型层
 * @stateFlow 指标采样 -> 漂移检测 -> 告警创建 -> 确认/解决/忽略
 * @rules 每个模型至多一条启用的漂移配置；告警明细以结构化 JSONB 存储
 * @dependencies gorm.io/gorm, time, github.com/google/uuid
 * @refs service/drift/drift_service.go, service/monitoring/check_service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DriftConfig 模型漂移监控配置
type DriftConfig struct {
	ID                       string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ModelID                  string           `json:"model_id" gorm:"not null;type:varchar(36);index"`
	AccuracyDropThreshold    float64          `json:"accuracy_drop_threshold" gorm:"type:decimal(5,4);not null;default:0.05"`    // 准确率下降阈值（相对比例）
	FeatureDriftThreshold    float64          `json:"feature_drift_threshold" gorm:"type:decimal(5,4);not null;default:0.1"`     // 特征漂移 KS 阈值
	PredictionDriftThreshold float64          `json:"prediction_drift_threshold" gorm:"type:decimal(5,4);not null;default:0.1"`  // 预测分布漂移阈值
	MonitoringWindowHours    int              `json:"monitoring_window_hours" gorm:"not null;default:24"`                        // 监控窗口（小时）
	AlertCooldownMinutes     int              `json:"alert_cooldown_minutes" gorm:"not null;default:60"`                         // 告警冷却期（分钟）
	AutoRollbackEnabled      bool             `json:"auto_rollback_enabled" gorm:"not null;default:false"`                       // 是否启用自动回滚
	AutoRollbackThreshold    float64          `json:"auto_rollback_threshold" gorm:"type:decimal(5,4);not null;default:0.15"`    // 自动回滚准确率下降阈值
	NotifyOwner              bool             `json:"notify_owner" gorm:"not null;default:true"`                                 // 是否通知模型负责人
	NotifyEmails             JSONBStringArray `json:"notify_emails,omitempty" gorm:"type:jsonb"`                                 // 额外通知邮箱
	NotificationWebhook      string           `json:"notification_webhook,omitempty" gorm:"size:500"`                            // 通知 Webhook 地址
	IsEnabled                bool             `json:"is_enabled" gorm:"not null;default:true"`
	CreatedAt                time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DriftConfig) TableName() string {
	return "ai_drift_configs"
}

func (c *DriftConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// DriftAlert 漂移告警
type DriftAlert struct {
	ID             string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ModelID        string          `json:"model_id" gorm:"not null;type:varchar(36);index"`
	DriftType      string          `json:"drift_type" gorm:"not null;size:30"` // accuracy_drop, feature_drift, prediction_drift, data_quality
	Severity       string          `json:"severity" gorm:"not null;size:20"`   // low, medium, high, critical
	DriftScore     *string         `json:"drift_score,omitempty" gorm:"type:decimal(10,6)"` // 综合漂移评分
	Details        DriftDetailList `json:"details,omitempty" gorm:"type:jsonb"`             // 漂移明细
	Recommendation string          `json:"recommendation" gorm:"type:text"`                 // 处置建议
	Status         string          `json:"status" gorm:"not null;size:20;default:'active';index"` // active, acknowledged, resolved, ignored
	AcknowledgedBy string          `json:"acknowledged_by,omitempty" gorm:"size:100"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	ResolvedBy     string          `json:"resolved_by,omitempty" gorm:"size:100"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	Resolution     string          `json:"resolution,omitempty" gorm:"type:text"` // 解决说明
	CreatedAt      time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DriftAlert) TableName() string {
	return "ai_drift_alerts"
}

func (a *DriftAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// MetricsSample 模型运行期指标采样，巡检时回填漂移列供阈值计算使用
type MetricsSample struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ModelID         string    `json:"model_id" gorm:"not null;type:varchar(36);index:idx_sample_model_time,priority:1"`
	Accuracy        *string   `json:"accuracy,omitempty" gorm:"type:decimal(10,6)"`
	Precision       *string   `json:"precision,omitempty" gorm:"type:decimal(10,6)"`
	Recall          *string   `json:"recall,omitempty" gorm:"type:decimal(10,6)"`
	F1Score         *string   `json:"f1_score,omitempty" gorm:"type:decimal(10,6)"`
	PredictionCount int       `json:"prediction_count" gorm:"not null;default:0"` // 采样覆盖的预测次数
	AccuracyDrop    *string   `json:"accuracy_drop,omitempty" gorm:"type:decimal(10,6)"`    // 巡检回填：准确率下降比例
	FeatureDrift    *string   `json:"feature_drift,omitempty" gorm:"type:decimal(10,6)"`    // 巡检回填：特征漂移评分
	PredictionDrift *string   `json:"prediction_drift,omitempty" gorm:"type:decimal(10,6)"` // 巡检回填：预测漂移评分
	Severity        string    `json:"severity,omitempty" gorm:"size:20"`                    // 巡检回填：判定严重级别
	RecordedAt      time.Time `json:"recorded_at" gorm:"not null;index:idx_sample_model_time,priority:2"`
	CreatedAt       time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (MetricsSample) TableName() string {
	return "ai_drift_metrics_history"
}

func (s *MetricsSample) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// FeatureStatistics 特征统计快照，is_baseline 标记训练期基线
type FeatureStatistics struct {
	ID          string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ModelID     string        `json:"model_id" gorm:"not null;type:varchar(36);index:idx_feature_stats,priority:1"`
	FeatureName string        `json:"feature_name" gorm:"not null;size:255;index:idx_feature_stats,priority:2"`
	Mean        float64       `json:"mean" gorm:"type:decimal(20,6)"`
	StdDev      float64       `json:"std_dev" gorm:"type:decimal(20,6)"`
	MinValue    float64       `json:"min_value" gorm:"type:decimal(20,6)"`
	MaxValue    float64       `json:"max_value" gorm:"type:decimal(20,6)"`
	Median      float64       `json:"median" gorm:"type:decimal(20,6)"`
	Q1          float64       `json:"q1" gorm:"type:decimal(20,6)"`
	Q3          float64       `json:"q3" gorm:"type:decimal(20,6)"`
	UniqueCount int           `json:"unique_count" gorm:"not null;default:0"`
	Histogram   HistogramBins `json:"histogram,omitempty" gorm:"type:jsonb"` // 10 个等宽分桶
	IsBaseline  bool          `json:"is_baseline" gorm:"not null;default:false;index:idx_feature_stats,priority:3"`
	SampleCount int           `json:"sample_count" gorm:"not null;default:0"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (FeatureStatistics) TableName() string {
	return "ai_feature_statistics"
}

func (f *FeatureStatistics) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return nil
}

// DriftCheckRun 定时巡检运行记录
type DriftCheckRun struct {
	ID             string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ModelsChecked  int              `json:"models_checked" gorm:"not null;default:0"`
	AlertsCreated  int              `json:"alerts_created" gorm:"not null;default:0"`
	CriticalAlerts int              `json:"critical_alerts" gorm:"not null;default:0"`
	HighAlerts     int              `json:"high_alerts" gorm:"not null;default:0"`
	MediumAlerts   int              `json:"medium_alerts" gorm:"not null;default:0"`
	LowAlerts      int              `json:"low_alerts" gorm:"not null;default:0"`
	Rollbacks      int              `json:"rollbacks" gorm:"not null;default:0"`
	Errors         JSONBStringArray `json:"errors,omitempty" gorm:"type:jsonb"` // 各模型检查失败信息
	StartedAt      time.Time        `json:"started_at" gorm:"not null"`
	FinishedAt     time.Time        `json:"finished_at" gorm:"not null;index"`
	CreatedAt      time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DriftCheckRun) TableName() string {
	return "ai_drift_check_runs"
}

func (r *DriftCheckRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// GetEnabledDriftConfig 获取模型启用中的漂移配置，无配置时返回 gorm.ErrRecordNotFound
func GetEnabledDriftConfig(db *gorm.DB, modelID string) (*DriftConfig, error) {
	var config DriftConfig
	err := db.Where("model_id = ? AND is_enabled = ?", modelID, true).First(&config).Error
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// GetActiveDriftAlerts 获取模型当前活跃的漂移告警，按创建时间倒序
func GetActiveDriftAlerts(db *gorm.DB, modelID string) ([]DriftAlert, error) {
	var alerts []DriftAlert
	err := db.Where("model_id = ? AND status = ?", modelID, "active").
		Order("created_at DESC").Find(&alerts).Error
	return alerts, err
}

// GetBaselineStatistics 获取模型各特征的训练期基线统计
func GetBaselineStatistics(db *gorm.DB, modelID string) ([]FeatureStatistics, error) {
	var stats []FeatureStatistics
	err := db.Where("model_id = ? AND is_baseline = ?", modelID, true).Find(&stats).Error
	return stats, err
}
