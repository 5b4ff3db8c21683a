/*
 * @module service/models/ml_model
 * @description 机器学习模型与版本管理模型定义，包含模型、模型版本、回滚记录
 * @architecture 分层架构 - 数据模型层
 * @stateFlow 版本创建 -> 部署激活 -> 监控 -> 回滚/退役
 * @rules 每个模型同一时刻至多一个激活版本；版本号单调递增；回滚目标必须标记 is_rollback_target
 * @dependencies gorm.io/gorm, time, github.com/google/uuid
 * @refs service/versioning/versioning_service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MLModel 机器学习模型
type MLModel struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name         string    `json:"name" gorm:"not null;size:255"`      // 模型名称
	Description  string    `json:"description" gorm:"size:1000"`       // 模型描述
	ModelType    string    `json:"model_type" gorm:"not null;size:50"` // 模型类型：classification, regression, ranking
	TargetMetric string    `json:"target_metric" gorm:"size:50"`       // 关注指标：accuracy, f1, mae
	Status       string    `json:"status" gorm:"not null;size:20;default:'active'"`
	CreatedBy    string    `json:"created_by" gorm:"not null;default:'system';size:100"` // 模型负责人
	CreatedAt    time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// 关联关系
	Versions []ModelVersion `json:"versions,omitempty" gorm:"foreignKey:ModelID"`
}

func (MLModel) TableName() string {
	return "ai_ml_models"
}

func (m *MLModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// ModelVersion 模型版本，指标列以 decimal 字符串存储
type ModelVersion struct {
	ID                string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ModelID           string        `json:"model_id" gorm:"not null;type:varchar(36);index:idx_model_version,priority:1"`
	Version           string        `json:"version" gorm:"not null;size:20"`                  // 语义化版本串，如 1.2.3
	VersionNumber     int           `json:"version_number" gorm:"not null"`                   // 单调递增的内部版本号
	Accuracy          *string       `json:"accuracy,omitempty" gorm:"type:decimal(10,6)"`     // 准确率
	Precision         *string       `json:"precision,omitempty" gorm:"type:decimal(10,6)"`    // 精确率
	Recall            *string       `json:"recall,omitempty" gorm:"type:decimal(10,6)"`       // 召回率
	F1Score           *string       `json:"f1_score,omitempty" gorm:"type:decimal(10,6)"`     // F1 分数
	MAE               *string       `json:"mae,omitempty" gorm:"type:decimal(14,6)"`          // 平均绝对误差
	RMSE              *string       `json:"rmse,omitempty" gorm:"type:decimal(14,6)"`         // 均方根误差
	Hyperparameters   JSONB         `json:"hyperparameters,omitempty" gorm:"type:jsonb"`      // 超参数
	FeatureImportance JSONB         `json:"feature_importance,omitempty" gorm:"type:jsonb"`   // 特征重要性
	IsActive          bool          `json:"is_active" gorm:"not null;default:false;index:idx_model_version,priority:2"`
	IsRollbackTarget  bool          `json:"is_rollback_target" gorm:"not null;default:true"` // 是否可作为回滚目标
	DeployedAt        *time.Time    `json:"deployed_at,omitempty"`                           // 部署时间
	RetiredAt         *time.Time    `json:"retired_at,omitempty"`                            // 退役时间
	ChangeLog         string        `json:"change_log" gorm:"type:text"`                     // 变更说明
	CreatedBy         string        `json:"created_by" gorm:"not null;default:'system';size:100"`
	CreatedAt         time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ModelVersion) TableName() string {
	return "ai_model_versions"
}

func (v *ModelVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

// RollbackRecord 模型回滚记录
type RollbackRecord struct {
	ID            string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ModelID       string     `json:"model_id" gorm:"not null;type:varchar(36);index"`
	FromVersionID *string    `json:"from_version_id,omitempty" gorm:"type:varchar(36)"` // 回滚前激活版本，可能为空
	ToVersionID   string     `json:"to_version_id" gorm:"not null;type:varchar(36)"`
	Reason        string     `json:"reason" gorm:"not null;size:1000"`                    // 回滚原因
	RollbackType  string     `json:"rollback_type" gorm:"not null;size:20"`               // manual, automatic
	TriggeredBy   string     `json:"triggered_by" gorm:"not null;default:'system';size:100"`
	Status        string     `json:"status" gorm:"not null;size:20;default:'pending'"` // pending, in_progress, completed, failed
	ErrorMessage  string     `json:"error_message,omitempty" gorm:"type:text"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (RollbackRecord) TableName() string {
	return "ai_model_rollback_history"
}

func (r *RollbackRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// GetActiveVersion 获取模型当前激活版本，不存在时返回 gorm.ErrRecordNotFound
func GetActiveVersion(db *gorm.DB, modelID string) (*ModelVersion, error) {
	var version ModelVersion
	err := db.Where("model_id = ? AND is_active = ?", modelID, true).First(&version).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// GetLatestRollbackTarget 获取最近的可回滚非激活版本
func GetLatestRollbackTarget(db *gorm.DB, modelID string) (*ModelVersion, error) {
	var version ModelVersion
	err := db.Where("model_id = ? AND is_active = ? AND is_rollback_target = ?", modelID, false, true).
		Order("version_number DESC").First(&version).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}
