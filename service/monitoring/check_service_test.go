/*
 * @module service/monitoring/check_service_test
 * @description 监控巡检服务测试，覆盖单模型检查、冷却抑制、自动回滚与定时巡检汇总
 * @architecture 测试层
 * @stateFlow 测试数据准备 -> 巡检执行 -> 结果与数据库状态断言
 * @rules 使用内存数据库，每个测试用例前清理数据
 * @dependencies testing, testify, modelops-service/testutil
 * @refs service/monitoring/check_service.go
 */

package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"modelops-service/service/drift"
	"modelops-service/service/models"
	"modelops-service/service/versioning"
	"modelops-service/testutil"
)

type CheckServiceTestSuite struct {
	suite.Suite
	testDB     *testutil.TestDB
	factory    *testutil.TestDataFactory
	checkSvc   *CheckService
	driftSvc   *drift.DriftService
	versionSvc *versioning.VersioningService
}

func (suite *CheckServiceTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
	suite.driftSvc = drift.NewDriftService(suite.testDB.DB)
	suite.versionSvc = versioning.NewVersioningService(suite.testDB.DB)
	notifySvc := NewNotificationService(suite.testDB.DB)
	suite.checkSvc = NewCheckService(suite.testDB.DB, suite.driftSvc, suite.versionSvc, notifySvc, nil)
}

func (suite *CheckServiceTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

func (suite *CheckServiceTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

func (suite *CheckServiceTestSuite) TestCheckModelWithoutConfig() {
	model := suite.factory.CreateModel()

	result, err := suite.checkSvc.CheckModel(model.ID)
	suite.NoError(err)
	suite.False(result.Checked)
	suite.Equal("模型未配置漂移监控", result.Error)
}

func (suite *CheckServiceTestSuite) TestCheckModelWithoutSamples() {
	model := suite.factory.CreateModel()
	suite.factory.CreateDriftConfig(model.ID)

	result, err := suite.checkSvc.CheckModel(model.ID)
	suite.NoError(err)
	suite.False(result.Checked)
	suite.Equal("监控窗口内无指标采样", result.Error)
}

func (suite *CheckServiceTestSuite) TestCheckModelNoDriftBackfillsSample() {
	model := suite.factory.CreateModel()
	suite.factory.CreateDriftConfig(model.ID)
	suite.factory.CreateVersion(model.ID, 1, func(v *models.ModelVersion) {
		v.IsActive = true
	})
	suite.factory.CreateMetricsSample(model.ID, 0.88, time.Now().Add(-2*time.Hour))
	newest := suite.factory.CreateMetricsSample(model.ID, 0.90, time.Now().Add(-1*time.Hour))

	result, err := suite.checkSvc.CheckModel(model.ID)
	suite.NoError(err)
	suite.True(result.Checked)
	suite.False(result.DriftDetected)
	suite.False(result.AlertCreated)

	// 检查结论回填到最新采样
	var reloaded models.MetricsSample
	suite.NoError(suite.testDB.DB.First(&reloaded, "id = ?", newest.ID).Error)
	suite.Equal("low", reloaded.Severity)
	suite.InDelta(0.0111, models.DecimalValue(reloaded.AccuracyDrop), 0.001)
	suite.InDelta(0.0111, models.DecimalValue(reloaded.PredictionDrift), 0.001)
	suite.InDelta(0.0, models.DecimalValue(reloaded.FeatureDrift), 0.0001)
}

func (suite *CheckServiceTestSuite) TestCheckModelCreatesAlert() {
	model := suite.factory.CreateModel()
	suite.factory.CreateDriftConfig(model.ID)
	suite.factory.CreateVersion(model.ID, 1, func(v *models.ModelVersion) {
		v.IsActive = true
	})
	suite.factory.CreateMetricsSample(model.ID, 0.45, time.Now().Add(-1*time.Hour))

	result, err := suite.checkSvc.CheckModel(model.ID)
	suite.NoError(err)
	suite.True(result.Checked)
	suite.True(result.DriftDetected)
	suite.True(result.AlertCreated)
	suite.NotNil(result.Alert)
	suite.Equal("critical", result.Alert.Severity)
	suite.False(result.RollbackPerformed)

	alerts, err := suite.driftSvc.GetActiveAlerts(model.ID)
	suite.NoError(err)
	suite.Len(alerts, 1)
}

func (suite *CheckServiceTestSuite) TestCheckModelCooldownSuppressesAlert() {
	model := suite.factory.CreateModel()
	suite.factory.CreateDriftConfig(model.ID)
	suite.factory.CreateVersion(model.ID, 1, func(v *models.ModelVersion) {
		v.IsActive = true
	})
	suite.factory.CreateMetricsSample(model.ID, 0.45, time.Now().Add(-1*time.Hour))
	// 冷却期内已存在活跃告警
	suite.factory.CreateDriftAlert(model.ID, "critical")

	result, err := suite.checkSvc.CheckModel(model.ID)
	suite.NoError(err)
	suite.True(result.DriftDetected)
	suite.False(result.AlertCreated)

	alerts, err := suite.driftSvc.GetActiveAlerts(model.ID)
	suite.NoError(err)
	suite.Len(alerts, 1)
}

func (suite *CheckServiceTestSuite) TestCheckModelCooldownExpiredCreatesAlert() {
	model := suite.factory.CreateModel()
	suite.factory.CreateDriftConfig(model.ID, func(c *models.DriftConfig) {
		c.AlertCooldownMinutes = 30
	})
	suite.factory.CreateVersion(model.ID, 1, func(v *models.ModelVersion) {
		v.IsActive = true
	})
	suite.factory.CreateMetricsSample(model.ID, 0.45, time.Now().Add(-1*time.Hour))
	suite.factory.CreateDriftAlert(model.ID, "critical", func(a *models.DriftAlert) {
		a.CreatedAt = time.Now().Add(-2 * time.Hour)
	})

	result, err := suite.checkSvc.CheckModel(model.ID)
	suite.NoError(err)
	suite.True(result.AlertCreated)

	alerts, err := suite.driftSvc.GetActiveAlerts(model.ID)
	suite.NoError(err)
	suite.Len(alerts, 2)
}

func (suite *CheckServiceTestSuite) TestCheckModelAutoRollback() {
	model := suite.factory.CreateModel()
	suite.factory.CreateDriftConfig(model.ID, func(c *models.DriftConfig) {
		c.AutoRollbackEnabled = true
	})
	fallback := suite.factory.CreateVersion(model.ID, 1)
	active := suite.factory.CreateVersion(model.ID, 2, func(v *models.ModelVersion) {
		v.IsActive = true
	})
	suite.factory.CreateMetricsSample(model.ID, 0.45, time.Now().Add(-1*time.Hour))

	result, err := suite.checkSvc.CheckModel(model.ID)
	suite.NoError(err)
	suite.True(result.AlertCreated)
	suite.True(result.RollbackPerformed)

	// 回滚后旧版本重新激活
	current, err := suite.versionSvc.GetActiveVersion(model.ID)
	suite.NoError(err)
	suite.NotNil(current)
	suite.Equal(fallback.ID, current.ID)

	var deactivated models.ModelVersion
	suite.NoError(suite.testDB.DB.First(&deactivated, "id = ?", active.ID).Error)
	suite.False(deactivated.IsActive)

	// 回滚成功后告警自动解决
	var alert models.DriftAlert
	suite.NoError(suite.testDB.DB.First(&alert, "id = ?", result.Alert.ID).Error)
	suite.Equal("resolved", alert.Status)
	suite.Equal("system", alert.ResolvedBy)
	suite.Contains(alert.Resolution, fallback.Version)
}

func (suite *CheckServiceTestSuite) TestCheckModelAutoRollbackDisabled() {
	model := suite.factory.CreateModel()
	suite.factory.CreateDriftConfig(model.ID)
	active := suite.factory.CreateVersion(model.ID, 2, func(v *models.ModelVersion) {
		v.IsActive = true
	})
	suite.factory.CreateVersion(model.ID, 1)
	suite.factory.CreateMetricsSample(model.ID, 0.45, time.Now().Add(-1*time.Hour))

	result, err := suite.checkSvc.CheckModel(model.ID)
	suite.NoError(err)
	suite.True(result.AlertCreated)
	suite.False(result.RollbackPerformed)

	current, err := suite.versionSvc.GetActiveVersion(model.ID)
	suite.NoError(err)
	suite.Equal(active.ID, current.ID)
}

func (suite *CheckServiceTestSuite) TestGetModelsWithDriftConfig() {
	modelA := suite.factory.CreateModel()
	modelB := suite.factory.CreateModel()
	suite.factory.CreateDriftConfig(modelA.ID)
	suite.factory.CreateDriftConfig(modelB.ID, func(c *models.DriftConfig) {
		c.IsEnabled = false
	})

	ids, err := suite.checkSvc.GetModelsWithDriftConfig()
	suite.NoError(err)
	suite.Equal([]string{modelA.ID}, ids)
}

func (suite *CheckServiceTestSuite) TestRunScheduledCheck() {
	drifted := suite.factory.CreateModel()
	suite.factory.CreateDriftConfig(drifted.ID)
	suite.factory.CreateVersion(drifted.ID, 1, func(v *models.ModelVersion) {
		v.IsActive = true
	})
	suite.factory.CreateMetricsSample(drifted.ID, 0.45, time.Now().Add(-1*time.Hour))

	// 无采样的模型计入错误但不中断巡检
	empty := suite.factory.CreateModel()
	suite.factory.CreateDriftConfig(empty.ID)

	summary, err := suite.checkSvc.RunScheduledCheck(context.Background())
	suite.NoError(err)
	suite.Equal(1, summary.ModelsChecked)
	suite.Equal(1, summary.AlertsCreated)
	suite.Equal(1, summary.AlertsBySeverity["critical"])
	suite.Equal(0, summary.Rollbacks)
	suite.Len(summary.Errors, 1)
	suite.Contains(summary.Errors[0], empty.ID)
	suite.False(summary.FinishedAt.Before(summary.StartedAt))

	// 巡检汇总已持久化
	run, err := suite.checkSvc.GetLastCheckSummary()
	suite.NoError(err)
	suite.NotNil(run)
	suite.Equal(1, run.ModelsChecked)
	suite.Equal(1, run.AlertsCreated)
	suite.Equal(1, run.CriticalAlerts)
	suite.Equal(0, run.HighAlerts)
	suite.Len([]string(run.Errors), 1)
}

func (suite *CheckServiceTestSuite) TestRunScheduledCheckEscalatesCritical() {
	var titles []string
	var escalation NotificationPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload NotificationPayload
		suite.NoError(json.NewDecoder(r.Body).Decode(&payload))
		titles = append(titles, payload.Title)
		if payload.Title == "模型漂移升级通知" {
			escalation = payload
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	model := suite.factory.CreateModel(func(m *models.MLModel) {
		m.CreatedBy = "owner@example.com"
	})
	suite.factory.CreateDriftConfig(model.ID, func(c *models.DriftConfig) {
		c.NotificationWebhook = server.URL
	})
	suite.factory.CreateVersion(model.ID, 1, func(v *models.ModelVersion) {
		v.IsActive = true
	})
	suite.factory.CreateMetricsSample(model.ID, 0.45, time.Now().Add(-1*time.Hour))

	summary, err := suite.checkSvc.RunScheduledCheck(context.Background())
	suite.NoError(err)
	suite.Equal(1, summary.AlertsCreated)

	// 严重告警推送模型专属 Webhook 并升级通知负责人
	suite.Equal([]string{"模型漂移告警", "模型漂移升级通知"}, titles)
	fields := map[string]string{}
	for _, field := range escalation.Fields {
		fields[field.Name] = field.Value
	}
	suite.Equal("owner@example.com", fields["升级对象"])
}

func (suite *CheckServiceTestSuite) TestRunScheduledCheckNoModels() {
	summary, err := suite.checkSvc.RunScheduledCheck(context.Background())
	suite.NoError(err)
	suite.Equal(0, summary.ModelsChecked)
	suite.Equal(0, summary.AlertsCreated)
	suite.Empty(summary.Errors)
}

func (suite *CheckServiceTestSuite) TestRunScheduledCheckContextCancelled() {
	model := suite.factory.CreateModel()
	suite.factory.CreateDriftConfig(model.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := suite.checkSvc.RunScheduledCheck(ctx)
	suite.ErrorIs(err, context.Canceled)
}

func (suite *CheckServiceTestSuite) TestGetLastCheckSummaryEmpty() {
	run, err := suite.checkSvc.GetLastCheckSummary()
	suite.NoError(err)
	suite.Nil(run)
}

func TestCheckServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CheckServiceTestSuite))
}
