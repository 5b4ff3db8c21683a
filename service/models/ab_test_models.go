/*
 * @module service/models/ab_test_models
 * @description A/B 测试相关模型定义，包含测试、结果明细与聚合统计
 * @architecture 分层架构 - 数据模型层
 * @stateFlow draft -> running <-> paused -> completed/cancelled
 * @rules 流量分配之和必须为 100；结果明细只追加不修改；聚合统计按需重建
 * @dependencies gorm.io/gorm, time, github.com/google/uuid
 * @refs service/abtest/ab_test_service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// A/B 测试状态
const (
	ABTestStatusDraft     = "draft"
	ABTestStatusRunning   = "running"
	ABTestStatusPaused    = "paused"
	ABTestStatusCompleted = "completed"
	ABTestStatusCancelled = "cancelled"
)

// ABTest A/B 测试定义
type ABTest struct {
	ID              string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name            string     `json:"name" gorm:"not null;size:255"`
	Description     string     `json:"description" gorm:"size:1000"`
	ModelAID        string     `json:"model_a_id" gorm:"not null;type:varchar(36)"` // 对照组模型
	ModelBID        string     `json:"model_b_id" gorm:"not null;type:varchar(36)"` // 实验组模型
	TrafficSplitA   int        `json:"traffic_split_a" gorm:"not null;default:50"`  // A 组流量百分比
	TrafficSplitB   int        `json:"traffic_split_b" gorm:"not null;default:50"`  // B 组流量百分比
	Status          string     `json:"status" gorm:"not null;size:20;default:'draft';index"`
	MinSampleSize   int        `json:"min_sample_size" gorm:"not null;default:1000"`            // 每组最小样本量
	ConfidenceLevel float64    `json:"confidence_level" gorm:"type:decimal(4,3);not null;default:0.95"` // 置信水平
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"` // 计划或实际结束时间
	WinnerModelID   *string    `json:"winner_model_id,omitempty" gorm:"type:varchar(36)"`
	WinnerReason    string     `json:"winner_reason,omitempty" gorm:"type:text"`
	PValue          *string    `json:"p_value,omitempty" gorm:"type:decimal(10,8)"` // 最近一次统计检验 p 值
	IsSignificant   bool       `json:"is_significant" gorm:"not null;default:false"`
	CreatedBy       string     `json:"created_by" gorm:"not null;default:'system';size:100"`
	CreatedAt       time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ABTest) TableName() string {
	return "ai_ab_tests"
}

func (t *ABTest) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// ABTestResult A/B 测试单次预测结果，只追加
type ABTestResult struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TestID         string    `json:"test_id" gorm:"not null;type:varchar(36);index:idx_ab_result,priority:1"`
	Variant        string    `json:"variant" gorm:"not null;size:1;index:idx_ab_result,priority:2"` // A 或 B
	ModelID        string    `json:"model_id" gorm:"not null;type:varchar(36)"`
	PredictionID   string    `json:"prediction_id,omitempty" gorm:"size:100"` // 上游预测请求标识
	PredictedValue *string   `json:"predicted_value,omitempty" gorm:"type:decimal(20,6)"`
	ActualValue    *string   `json:"actual_value,omitempty" gorm:"type:decimal(20,6)"`
	IsCorrect      *bool     `json:"is_correct,omitempty"` // 分类任务的命中标记
	ResponseTimeMs int       `json:"response_time_ms" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ABTestResult) TableName() string {
	return "ai_ab_test_results"
}

func (r *ABTestResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// ABTestStat 按变体聚合的测试统计，由结果明细重建
type ABTestStat struct {
	ID                string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TestID            string    `json:"test_id" gorm:"not null;type:varchar(36);index"`
	Variant           string    `json:"variant" gorm:"not null;size:1"`
	TotalPredictions  int       `json:"total_predictions" gorm:"not null;default:0"`
	CorrectCount      int       `json:"correct_count" gorm:"not null;default:0"`
	Accuracy          *string   `json:"accuracy,omitempty" gorm:"type:decimal(10,6)"`
	MeanError         *string   `json:"mean_error,omitempty" gorm:"type:decimal(20,6)"`
	MAE               *string   `json:"mae,omitempty" gorm:"type:decimal(20,6)"`
	RMSE              *string   `json:"rmse,omitempty" gorm:"type:decimal(20,6)"`
	AvgResponseTimeMs *string   `json:"avg_response_time_ms,omitempty" gorm:"type:decimal(12,2)"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ABTestStat) TableName() string {
	return "ai_ab_test_stats"
}

func (s *ABTestStat) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// GetRunningABTests 获取运行中的 A/B 测试
func GetRunningABTests(db *gorm.DB) ([]ABTest, error) {
	var tests []ABTest
	err := db.Where("status = ?", ABTestStatusRunning).Order("created_at DESC").Find(&tests).Error
	return tests, err
}
