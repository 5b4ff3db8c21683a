/*
 * @module service/models/threshold_models
 * @description 自适应阈值配置模型定义
 * @architecture 分层架构 - 数据模型层
 * @stateFlow 配置更新 -> 按频率重算 -> 持久化最近计算结果
 * @rules 每个模型至多一条阈值配置；计算结果必须落在 [min_threshold, max_threshold] 区间
 * @dependencies gorm.io/gorm, time, github.com/google/uuid
 * @refs service/threshold/threshold_service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 阈值计算算法
const (
	ThresholdAlgorithmMovingAverage = "moving_average"
	ThresholdAlgorithmPercentile    = "percentile"
	ThresholdAlgorithmStdDeviation  = "std_deviation"
	ThresholdAlgorithmAdaptive      = "adaptive"
)

// ThresholdConfig 自适应阈值配置
type ThresholdConfig struct {
	ID                       string                `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ModelID                  string                `json:"model_id" gorm:"not null;type:varchar(36);uniqueIndex"`
	IsEnabled                bool                  `json:"is_enabled" gorm:"not null;default:false"`
	Algorithm                string                `json:"algorithm" gorm:"not null;size:30;default:'adaptive'"` // moving_average, percentile, std_deviation, adaptive
	WindowSize               int                   `json:"window_size" gorm:"not null;default:100"`              // 历史样本窗口
	SensitivityFactor        float64               `json:"sensitivity_factor" gorm:"type:decimal(4,2);not null;default:1.0"` // 灵敏度因子
	MinThreshold             float64               `json:"min_threshold" gorm:"type:decimal(6,4);not null;default:0.01"`     // 阈值下限
	MaxThreshold             float64               `json:"max_threshold" gorm:"type:decimal(6,4);not null;default:0.5"`      // 阈值上限
	UpdateFrequency          string                `json:"update_frequency" gorm:"not null;size:20;default:'daily'"` // hourly, daily, weekly
	LastCalculatedThresholds *CalculatedThresholds `json:"last_calculated_thresholds,omitempty" gorm:"type:jsonb"`   // 最近计算结果
	LastUpdated              *time.Time            `json:"last_updated,omitempty"`
	CreatedAt                time.Time             `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                time.Time             `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ThresholdConfig) TableName() string {
	return "ai_auto_scaling_configs"
}

func (c *ThresholdConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// DefaultThresholdConfig 未配置模型的默认阈值配置
func DefaultThresholdConfig(modelID string) *ThresholdConfig {
	return &ThresholdConfig{
		ModelID:           modelID,
		IsEnabled:         false,
		Algorithm:         ThresholdAlgorithmAdaptive,
		WindowSize:        100,
		SensitivityFactor: 1.0,
		MinThreshold:      0.01,
		MaxThreshold:      0.5,
		UpdateFrequency:   "daily",
	}
}
