/*
 * @module service/monitoring/notification
 * @description 告警通知发送器，将漂移与测试事件以统一负载推送到配置的 Webhook 渠道
 * @architecture 分层架构 - 业务逻辑层
 * @stateFlow 告警产生 -> 构造通知负载 -> 渠道推送（尽力而为）
 * @rules 通知失败只记录日志不向上传播；HTTP 状态码 >= 400 视为发送失败
 * @dependencies net/http, encoding/json, gorm.io/gorm
 * @refs service/monitoring/check_service.go, service/models/notification_models.go
 */

package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"modelops-service/service/models"
)

// NotificationField 通知负载中的键值字段
type NotificationField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NotificationPayload 统一的通知负载
type NotificationPayload struct {
	Title     string              `json:"title"`
	Message   string              `json:"message"`
	Severity  string              `json:"severity"` // info, warning, critical
	Fields    []NotificationField `json:"fields,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// NotificationSender 通知渠道接口
type NotificationSender interface {
	Send(payload *NotificationPayload) error
	GetChannelType() string
	IsEnabled() bool
}

// WebhookChannel 通用 Webhook 通知渠道
type WebhookChannel struct {
	channelType string
	url         string
	enabled     bool
	client      *http.Client
}

// NewWebhookChannel 创建 Webhook 通知渠道
func NewWebhookChannel(channelType, url string, enabled bool) *WebhookChannel {
	return &WebhookChannel{
		channelType: channelType,
		url:         url,
		enabled:     enabled,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *WebhookChannel) GetChannelType() string {
	return c.channelType
}

func (c *WebhookChannel) IsEnabled() bool {
	return c.enabled && c.url != ""
}

// Send 推送通知负载，状态码 >= 400 视为失败
func (c *WebhookChannel) Send(payload *NotificationPayload) error {
	if !c.IsEnabled() {
		return errors.New("通知渠道未启用")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化通知负载失败: %w", err)
	}

	resp, err := c.client.Post(c.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("发送通知请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("通知请求返回错误状态码: %d", resp.StatusCode)
	}
	return nil
}

// NotificationService 通知服务，按全局配置与模型配置装配渠道
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService 创建通知服务实例
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// GetConfig 获取全局通知配置，未配置时返回空配置
func (s *NotificationService) GetConfig() (*models.NotificationConfig, error) {
	var config models.NotificationConfig
	err := s.db.First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.NotificationConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询通知配置失败: %w", err)
	}
	return &config, nil
}

// ConfigInput 通知配置更新入参
type ConfigInput struct {
	SlackWebhookURL *string `json:"slack_webhook_url,omitempty"`
	SlackChannel    *string `json:"slack_channel,omitempty"`
	SlackEnabled    *bool   `json:"slack_enabled,omitempty"`
	TeamsWebhookURL *string `json:"teams_webhook_url,omitempty"`
	TeamsEnabled    *bool   `json:"teams_enabled,omitempty"`
}

// UpdateConfig 更新全局通知配置，不存在时创建
func (s *NotificationService) UpdateConfig(input *ConfigInput) (*models.NotificationConfig, error) {
	config, err := s.GetConfig()
	if err != nil {
		return nil, err
	}

	if input.SlackWebhookURL != nil {
		config.SlackWebhookURL = *input.SlackWebhookURL
	}
	if input.SlackChannel != nil {
		config.SlackChannel = *input.SlackChannel
	}
	if input.SlackEnabled != nil {
		config.SlackEnabled = *input.SlackEnabled
	}
	if input.TeamsWebhookURL != nil {
		config.TeamsWebhookURL = *input.TeamsWebhookURL
	}
	if input.TeamsEnabled != nil {
		config.TeamsEnabled = *input.TeamsEnabled
	}

	config.UpdatedAt = time.Now()
	if config.ID == "" {
		if err := s.db.Create(config).Error; err != nil {
			return nil, fmt.Errorf("创建通知配置失败: %w", err)
		}
	} else {
		if err := s.db.Save(config).Error; err != nil {
			return nil, fmt.Errorf("更新通知配置失败: %w", err)
		}
	}
	return config, nil
}

// channels 装配当前启用的全局通知渠道，extraWebhook 为模型漂移配置的专属渠道
func (s *NotificationService) channels(extraWebhook string) []NotificationSender {
	var senders []NotificationSender

	config, err := s.GetConfig()
	if err != nil {
		slog.Error("加载通知配置失败", "error", err)
	} else {
		senders = append(senders,
			NewWebhookChannel("slack", config.SlackWebhookURL, config.SlackEnabled),
			NewWebhookChannel("teams", config.TeamsWebhookURL, config.TeamsEnabled),
		)
	}
	if extraWebhook != "" {
		senders = append(senders, NewWebhookChannel("webhook", extraWebhook, true))
	}
	return senders
}

// Broadcast 向所有启用渠道推送通知，失败只记录日志
func (s *NotificationService) Broadcast(payload *NotificationPayload, extraWebhook string) {
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}
	for _, sender := range s.channels(extraWebhook) {
		if !sender.IsEnabled() {
			continue
		}
		if err := sender.Send(payload); err != nil {
			slog.Error("通知发送失败", "channel", sender.GetChannelType(),
				"title", payload.Title, "error", err)
			continue
		}
		slog.Info("通知已发送", "channel", sender.GetChannelType(), "title", payload.Title)
	}
}

// SendTestNotification 发送测试通知验证渠道配置
func (s *NotificationService) SendTestNotification() {
	s.Broadcast(&NotificationPayload{
		Title:    "通知渠道测试",
		Message:  "这是一条测试通知，收到即表示渠道配置正确",
		Severity: "info",
	}, "")
}

// severityToLevel 漂移严重级别映射到通知级别
func severityToLevel(severity string) string {
	switch severity {
	case "critical":
		return "critical"
	case "high", "medium":
		return "warning"
	default:
		return "info"
	}
}

// NotifyDriftAlert 推送漂移告警通知
func (s *NotificationService) NotifyDriftAlert(alert *models.DriftAlert, webhook string) {
	s.Broadcast(&NotificationPayload{
		Title:    "模型漂移告警",
		Message:  alert.Recommendation,
		Severity: severityToLevel(alert.Severity),
		Fields: []NotificationField{
			{Name: "模型ID", Value: alert.ModelID},
			{Name: "漂移类型", Value: alert.DriftType},
			{Name: "严重级别", Value: alert.Severity},
			{Name: "漂移评分", Value: fmt.Sprintf("%.4f", models.DecimalValue(alert.DriftScore))},
		},
	}, webhook)
}

// NotifyOwnerEscalation 严重告警升级通知，收件人清单随负载下发由接收端分发
func (s *NotificationService) NotifyOwnerEscalation(alert *models.DriftAlert, config *models.DriftConfig) {
	recipients := append([]string{}, config.NotifyEmails...)
	if config.NotifyOwner {
		var model models.MLModel
		if err := s.db.First(&model, "id = ?", alert.ModelID).Error; err == nil && model.CreatedBy != "" {
			recipients = append([]string{model.CreatedBy}, recipients...)
		}
	}
	if len(recipients) == 0 {
		return
	}

	s.Broadcast(&NotificationPayload{
		Title:    "模型漂移升级通知",
		Message:  alert.Recommendation,
		Severity: "critical",
		Fields: []NotificationField{
			{Name: "模型ID", Value: alert.ModelID},
			{Name: "严重级别", Value: alert.Severity},
			{Name: "漂移评分", Value: fmt.Sprintf("%.4f", models.DecimalValue(alert.DriftScore))},
			{Name: "升级对象", Value: strings.Join(recipients, ", ")},
		},
	}, config.NotificationWebhook)
}

// NotifyABTestCompletion 推送 A/B 测试自动完成通知
func (s *NotificationService) NotifyABTestCompletion(test *models.ABTest) {
	winner := "无显著差异"
	if test.WinnerModelID != nil {
		winner = *test.WinnerModelID
	}
	significant := "否"
	if test.IsSignificant {
		significant = "是"
	}

	fields := []NotificationField{
		{Name: "测试名称", Value: test.Name},
		{Name: "获胜模型", Value: winner},
		{Name: "统计显著", Value: significant},
	}
	var stats []models.ABTestStat
	if err := s.db.Where("test_id = ?", test.ID).Order("variant").Find(&stats).Error; err != nil {
		slog.Error("查询测试聚合统计失败", "test_id", test.ID, "error", err)
	}
	for _, stat := range stats {
		fields = append(fields, NotificationField{
			Name:  fmt.Sprintf("%s组准确率", stat.Variant),
			Value: fmt.Sprintf("%.2f%%", models.DecimalValue(stat.Accuracy)*100),
		})
	}
	if test.PValue != nil {
		fields = append(fields, NotificationField{
			Name: "P值", Value: fmt.Sprintf("%.4f", models.DecimalValue(test.PValue)),
		})
	}

	s.Broadcast(&NotificationPayload{
		Title:    "A/B测试已自动完成",
		Message:  test.WinnerReason,
		Severity: "info",
		Fields:   fields,
	}, "")
}

// NotifyCheckSummary 推送巡检汇总通知
func (s *NotificationService) NotifyCheckSummary(summary *CheckSummary) {
	severity := "info"
	if summary.AlertsBySeverity["critical"] > 0 {
		severity = "critical"
	} else if summary.AlertsCreated > 0 {
		severity = "warning"
	}

	s.Broadcast(&NotificationPayload{
		Title: "模型漂移巡检汇总",
		Message: fmt.Sprintf("本轮巡检 %d 个模型，新建告警 %d 条，自动回滚 %d 次",
			summary.ModelsChecked, summary.AlertsCreated, summary.Rollbacks),
		Severity: severity,
		Fields: []NotificationField{
			{Name: "严重告警", Value: fmt.Sprintf("%d", summary.AlertsBySeverity["critical"])},
			{Name: "高级告警", Value: fmt.Sprintf("%d", summary.AlertsBySeverity["high"])},
			{Name: "检查失败", Value: fmt.Sprintf("%d", len(summary.Errors))},
		},
	}, "")
}
