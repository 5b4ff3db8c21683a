/*
 * @module service/monitoring/notification_test
 * @description 通知服务测试，覆盖渠道配置管理与 Webhook 推送
 * @architecture 测试层
 * @stateFlow 测试数据准备 -> 通知发送 -> 接收端断言
 * @rules 使用 httptest 模拟 Webhook 接收端，不发起真实外部请求
 * @dependencies testing, testify, net/http/httptest, modelops-service/testutil
 * @refs service/monitoring/notification.go
 */

package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"modelops-service/service/models"
	"modelops-service/testutil"
)

func TestWebhookChannelSend(t *testing.T) {
	var received NotificationPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := NewWebhookChannel("slack", server.URL, true)
	assert.Equal(t, "slack", channel.GetChannelType())
	assert.True(t, channel.IsEnabled())

	err := channel.Send(&NotificationPayload{
		Title:     "模型漂移告警",
		Message:   "测试消息",
		Severity:  "warning",
		Timestamp: time.Now(),
	})
	assert.NoError(t, err)
	assert.Equal(t, "模型漂移告警", received.Title)
	assert.Equal(t, "warning", received.Severity)
}

func TestWebhookChannelSendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	channel := NewWebhookChannel("teams", server.URL, true)
	err := channel.Send(&NotificationPayload{Title: "测试"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestWebhookChannelDisabled(t *testing.T) {
	disabled := NewWebhookChannel("slack", "http://example.com/hook", false)
	assert.False(t, disabled.IsEnabled())
	assert.Error(t, disabled.Send(&NotificationPayload{Title: "测试"}))

	// 启用但未配置 URL 同样视为不可用
	noURL := NewWebhookChannel("slack", "", true)
	assert.False(t, noURL.IsEnabled())
}

func TestSeverityToLevel(t *testing.T) {
	assert.Equal(t, "critical", severityToLevel("critical"))
	assert.Equal(t, "warning", severityToLevel("high"))
	assert.Equal(t, "warning", severityToLevel("medium"))
	assert.Equal(t, "info", severityToLevel("low"))
	assert.Equal(t, "info", severityToLevel(""))
}

type NotificationServiceTestSuite struct {
	suite.Suite
	testDB    *testutil.TestDB
	factory   *testutil.TestDataFactory
	notifySvc *NotificationService
}

func (suite *NotificationServiceTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
	suite.notifySvc = NewNotificationService(suite.testDB.DB)
}

func (suite *NotificationServiceTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

func (suite *NotificationServiceTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

func (suite *NotificationServiceTestSuite) TestGetConfigEmpty() {
	config, err := suite.notifySvc.GetConfig()
	suite.NoError(err)
	suite.NotNil(config)
	suite.Empty(config.ID)
	suite.False(config.SlackEnabled)
	suite.False(config.TeamsEnabled)
}

func (suite *NotificationServiceTestSuite) TestUpdateConfigCreatesAndUpdates() {
	url := "https://hooks.slack.com/services/test"
	channel := "#model-alerts"
	enabled := true

	created, err := suite.notifySvc.UpdateConfig(&ConfigInput{
		SlackWebhookURL: &url,
		SlackChannel:    &channel,
		SlackEnabled:    &enabled,
	})
	suite.NoError(err)
	suite.NotEmpty(created.ID)
	suite.Equal(url, created.SlackWebhookURL)
	suite.Equal(channel, created.SlackChannel)
	suite.True(created.SlackEnabled)
	suite.False(created.TeamsEnabled)

	// 局部更新不影响已有字段
	teamsURL := "https://outlook.office.com/webhook/test"
	teamsEnabled := true
	updated, err := suite.notifySvc.UpdateConfig(&ConfigInput{
		TeamsWebhookURL: &teamsURL,
		TeamsEnabled:    &teamsEnabled,
	})
	suite.NoError(err)
	suite.Equal(created.ID, updated.ID)
	suite.Equal(url, updated.SlackWebhookURL)
	suite.True(updated.SlackEnabled)
	suite.Equal(teamsURL, updated.TeamsWebhookURL)
	suite.True(updated.TeamsEnabled)
}

func (suite *NotificationServiceTestSuite) TestBroadcastToEnabledChannels() {
	var payloads []NotificationPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload NotificationPayload
		suite.NoError(json.NewDecoder(r.Body).Decode(&payload))
		payloads = append(payloads, payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	url := server.URL
	enabled := true
	_, err := suite.notifySvc.UpdateConfig(&ConfigInput{
		SlackWebhookURL: &url,
		SlackEnabled:    &enabled,
	})
	suite.NoError(err)

	suite.notifySvc.Broadcast(&NotificationPayload{
		Title:    "测试广播",
		Message:  "消息体",
		Severity: "info",
	}, "")

	suite.Len(payloads, 1)
	suite.Equal("测试广播", payloads[0].Title)
	suite.False(payloads[0].Timestamp.IsZero())
}

func (suite *NotificationServiceTestSuite) TestBroadcastExtraWebhook() {
	count := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// 全局渠道全部禁用，仅模型专属 Webhook 生效
	suite.notifySvc.Broadcast(&NotificationPayload{
		Title:    "模型专属通知",
		Severity: "warning",
	}, server.URL)
	suite.Equal(1, count)
}

func (suite *NotificationServiceTestSuite) TestNotifyDriftAlertPayload() {
	var received NotificationPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		suite.NoError(json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	model := suite.factory.CreateModel()
	alert := suite.factory.CreateDriftAlert(model.ID, "critical", func(a *models.DriftAlert) {
		a.Recommendation = "建议立即回滚"
	})

	suite.notifySvc.NotifyDriftAlert(alert, server.URL)

	suite.Equal("模型漂移告警", received.Title)
	suite.Equal("建议立即回滚", received.Message)
	suite.Equal("critical", received.Severity)

	fields := map[string]string{}
	for _, field := range received.Fields {
		fields[field.Name] = field.Value
	}
	suite.Equal(model.ID, fields["模型ID"])
	suite.Equal("accuracy_drop", fields["漂移类型"])
	suite.Equal("0.2000", fields["漂移评分"])
}

func (suite *NotificationServiceTestSuite) TestNotifyABTestCompletionPayload() {
	var received NotificationPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		suite.NoError(json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	url := server.URL
	enabled := true
	_, err := suite.notifySvc.UpdateConfig(&ConfigInput{
		SlackWebhookURL: &url,
		SlackEnabled:    &enabled,
	})
	suite.NoError(err)

	modelA := suite.factory.CreateModel()
	modelB := suite.factory.CreateModel()
	test := suite.factory.CreateABTest(modelA.ID, modelB.ID, func(t *models.ABTest) {
		t.Status = models.ABTestStatusCompleted
		t.WinnerModelID = &modelA.ID
		t.WinnerReason = "变体A准确率显著更高"
		t.PValue = models.DecimalPtr(0.012)
		t.IsSignificant = true
	})
	suite.NoError(suite.testDB.DB.Create(&models.ABTestStat{
		TestID: test.ID, Variant: "A", TotalPredictions: 100, CorrectCount: 90,
		Accuracy: models.DecimalPtr(0.9),
	}).Error)
	suite.NoError(suite.testDB.DB.Create(&models.ABTestStat{
		TestID: test.ID, Variant: "B", TotalPredictions: 100, CorrectCount: 70,
		Accuracy: models.DecimalPtr(0.7),
	}).Error)

	suite.notifySvc.NotifyABTestCompletion(test)

	suite.Equal("A/B测试已自动完成", received.Title)
	suite.Equal("变体A准确率显著更高", received.Message)
	suite.Equal("info", received.Severity)

	fields := map[string]string{}
	for _, field := range received.Fields {
		fields[field.Name] = field.Value
	}
	suite.Equal(modelA.ID, fields["获胜模型"])
	suite.Equal("是", fields["统计显著"])
	suite.Equal("90.00%", fields["A组准确率"])
	suite.Equal("70.00%", fields["B组准确率"])
	suite.Equal("0.0120", fields["P值"])
}

func (suite *NotificationServiceTestSuite) TestNotifyOwnerEscalation() {
	var received NotificationPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		suite.NoError(json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	model := suite.factory.CreateModel(func(m *models.MLModel) {
		m.CreatedBy = "owner@example.com"
	})
	alert := suite.factory.CreateDriftAlert(model.ID, "critical")
	config := suite.factory.CreateDriftConfig(model.ID, func(c *models.DriftConfig) {
		c.NotifyEmails = models.JSONBStringArray{"oncall@example.com"}
		c.NotificationWebhook = server.URL
	})

	suite.notifySvc.NotifyOwnerEscalation(alert, config)

	suite.Equal("模型漂移升级通知", received.Title)
	suite.Equal("critical", received.Severity)

	fields := map[string]string{}
	for _, field := range received.Fields {
		fields[field.Name] = field.Value
	}
	suite.Equal(model.ID, fields["模型ID"])
	suite.Equal("critical", fields["严重级别"])
	suite.Equal("owner@example.com, oncall@example.com", fields["升级对象"])
}

func (suite *NotificationServiceTestSuite) TestNotifyOwnerEscalationNoRecipients() {
	count := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	model := suite.factory.CreateModel(func(m *models.MLModel) {
		m.CreatedBy = ""
	})
	alert := suite.factory.CreateDriftAlert(model.ID, "critical")
	config := suite.factory.CreateDriftConfig(model.ID, func(c *models.DriftConfig) {
		c.NotificationWebhook = server.URL
	})

	// 负责人与额外收件人均为空时不发送升级通知
	suite.notifySvc.NotifyOwnerEscalation(alert, config)
	suite.Equal(0, count)
}

func (suite *NotificationServiceTestSuite) TestNotifyCheckSummarySeverity() {
	var payloads []NotificationPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload NotificationPayload
		suite.NoError(json.NewDecoder(r.Body).Decode(&payload))
		payloads = append(payloads, payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	url := server.URL
	enabled := true
	_, err := suite.notifySvc.UpdateConfig(&ConfigInput{
		TeamsWebhookURL: &url,
		TeamsEnabled:    &enabled,
	})
	suite.NoError(err)

	suite.notifySvc.NotifyCheckSummary(&CheckSummary{
		ModelsChecked:    3,
		AlertsCreated:    2,
		AlertsBySeverity: map[string]int{"critical": 1, "high": 1},
		StartedAt:        time.Now().Add(-time.Minute),
		FinishedAt:       time.Now(),
	})
	suite.Len(payloads, 1)
	suite.Equal("critical", payloads[0].Severity)

	suite.notifySvc.NotifyCheckSummary(&CheckSummary{
		ModelsChecked:    3,
		AlertsCreated:    1,
		AlertsBySeverity: map[string]int{"medium": 1},
	})
	suite.Len(payloads, 2)
	suite.Equal("warning", payloads[1].Severity)
}

func TestNotificationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(NotificationServiceTestSuite))
}
