/*
 * @module service/models/notification_models
 * @description 告警通知渠道配置模型定义
 * @architecture 分层架构 - 数据模型层
 * @stateFlow 配置更新 -> 告警触发 -> Webhook 推送
 * @rules 单行全局配置；通知失败只记录日志不影响主流程
 * @dependencies gorm.io/gorm, time, github.com/google/uuid
 * @refs service/monitoring/notification.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationConfig 告警通知渠道配置，全局单行
type NotificationConfig struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SlackWebhookURL string    `json:"slack_webhook_url,omitempty" gorm:"size:500"`
	SlackChannel    string    `json:"slack_channel,omitempty" gorm:"size:100"`
	SlackEnabled    bool      `json:"slack_enabled" gorm:"not null;default:false"`
	TeamsWebhookURL string    `json:"teams_webhook_url,omitempty" gorm:"size:500"`
	TeamsEnabled    bool      `json:"teams_enabled" gorm:"not null;default:false"`
	CreatedAt       time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (NotificationConfig) TableName() string {
	return "ai_notification_configs"
}

func (c *NotificationConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
