/*
 * @module service/versioning/versioning_service_test
 * @description 模型版本管理服务单元测试
 * @architecture 测试层 - 使用内存数据库验证业务逻辑
 * @stateFlow 版本创建 -> 部署 -> 回滚/退役 -> 结果断言
 * @rules 覆盖版本号递增、激活唯一性、回滚记录状态与版本对比
 * @dependencies testing, testify, modelops-service/testutil
 * @refs versioning_service.go
 */

package versioning

import (
	"testing"

	"modelops-service/service/models"
	"modelops-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "0.0.1", formatVersion(1))
	assert.Equal(t, "0.1.5", formatVersion(15))
	assert.Equal(t, "1.0.0", formatVersion(100))
	assert.Equal(t, "1.2.3", formatVersion(123))
}

// VersioningServiceTestSuite 版本管理服务测试套件
type VersioningServiceTestSuite struct {
	suite.Suite
	testDB  *testutil.TestDB
	factory *testutil.TestDataFactory
	service *VersioningService
}

// SetupSuite 设置测试套件
func (suite *VersioningServiceTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
	suite.service = NewVersioningService(suite.testDB.DB)
}

// TearDownSuite 清理测试套件
func (suite *VersioningServiceTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

// SetupTest 设置每个测试
func (suite *VersioningServiceTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

func (suite *VersioningServiceTestSuite) TestCreateVersionSequence() {
	model := suite.factory.CreateModel()
	accuracy := 0.9

	v1, err := suite.service.CreateVersion(&VersionInput{ModelID: model.ID, Accuracy: &accuracy})
	suite.NoError(err)
	suite.Equal(1, v1.VersionNumber)
	suite.Equal("0.0.1", v1.Version)
	suite.False(v1.IsActive)
	suite.True(v1.IsRollbackTarget)
	suite.Equal("system", v1.CreatedBy)
	suite.Equal(0.9, models.DecimalValue(v1.Accuracy))

	v2, err := suite.service.CreateVersion(&VersionInput{ModelID: model.ID})
	suite.NoError(err)
	suite.Equal(2, v2.VersionNumber)
	suite.Equal("0.0.2", v2.Version)
	suite.Nil(v2.Accuracy)
}

func (suite *VersioningServiceTestSuite) TestCreateVersionRequiresModelID() {
	_, err := suite.service.CreateVersion(&VersionInput{})
	suite.Error(err)
}

func (suite *VersioningServiceTestSuite) TestDeployVersionSwitchesActive() {
	model := suite.factory.CreateModel()
	v1 := suite.factory.CreateVersion(model.ID, 1, func(v *models.ModelVersion) { v.IsActive = true })
	v2 := suite.factory.CreateVersion(model.ID, 2)

	deployed, err := suite.service.DeployVersion(v2.ID)
	suite.NoError(err)
	suite.Equal(v2.ID, deployed.ID)

	// 同一时刻至多一个激活版本
	var count int64
	suite.testDB.DB.Model(&models.ModelVersion{}).
		Where("model_id = ? AND is_active = ?", model.ID, true).Count(&count)
	suite.Equal(int64(1), count)

	active, err := suite.service.GetActiveVersion(model.ID)
	suite.NoError(err)
	suite.Equal(v2.ID, active.ID)
	suite.NotNil(active.DeployedAt)

	var old models.ModelVersion
	suite.testDB.DB.First(&old, "id = ?", v1.ID)
	suite.False(old.IsActive)
}

func (suite *VersioningServiceTestSuite) TestGetActiveVersionMissing() {
	active, err := suite.service.GetActiveVersion("no-model")
	suite.NoError(err)
	suite.Nil(active)
}

func (suite *VersioningServiceTestSuite) TestListVersionsExcludesRetired() {
	model := suite.factory.CreateModel()
	suite.factory.CreateVersion(model.ID, 1)
	v2 := suite.factory.CreateVersion(model.ID, 2)

	_, err := suite.service.RetireVersion(v2.ID)
	suite.NoError(err)

	versions, err := suite.service.ListVersions(model.ID, false)
	suite.NoError(err)
	suite.Len(versions, 1)

	versions, err = suite.service.ListVersions(model.ID, true)
	suite.NoError(err)
	suite.Len(versions, 2)
	// 版本号倒序
	suite.Equal(2, versions[0].VersionNumber)
}

func (suite *VersioningServiceTestSuite) TestRollbackFlow() {
	model := suite.factory.CreateModel()
	v1 := suite.factory.CreateVersion(model.ID, 1)
	v2 := suite.factory.CreateVersion(model.ID, 2, func(v *models.ModelVersion) { v.IsActive = true })

	record, err := suite.service.Rollback(model.ID, v1.ID, "准确率下降", "manual", "ops")
	suite.NoError(err)
	suite.Equal("completed", record.Status)
	suite.Equal("manual", record.RollbackType)
	suite.Equal("ops", record.TriggeredBy)
	suite.NotNil(record.FromVersionID)
	suite.Equal(v2.ID, *record.FromVersionID)
	suite.Equal(v1.ID, record.ToVersionID)

	active, err := suite.service.GetActiveVersion(model.ID)
	suite.NoError(err)
	suite.Equal(v1.ID, active.ID)

	history, err := suite.service.GetRollbackHistory(model.ID)
	suite.NoError(err)
	suite.Len(history, 1)
}

func (suite *VersioningServiceTestSuite) TestRollbackValidation() {
	model := suite.factory.CreateModel()
	other := suite.factory.CreateModel()
	v1 := suite.factory.CreateVersion(model.ID, 1)
	retired := suite.factory.CreateVersion(model.ID, 2)
	_, err := suite.service.RetireVersion(retired.ID)
	suite.NoError(err)

	// 目标版本不属于该模型
	_, err = suite.service.Rollback(other.ID, v1.ID, "r", "manual", "ops")
	suite.Error(err)

	// 已退役版本不可作为回滚目标
	_, err = suite.service.Rollback(model.ID, retired.ID, "r", "manual", "ops")
	suite.Error(err)
}

func (suite *VersioningServiceTestSuite) TestAutoRollbackIfNeeded() {
	model := suite.factory.CreateModel()
	v1 := suite.factory.CreateVersion(model.ID, 1)
	suite.factory.CreateVersion(model.ID, 2, func(v *models.ModelVersion) {
		v.IsActive = true
		v.Accuracy = models.DecimalPtr(0.9)
	})

	// 下降 10% 未超阈值 15%，不回滚
	result, err := suite.service.AutoRollbackIfNeeded(model.ID, 0.81, 0.15)
	suite.NoError(err)
	suite.False(result.Rolled)

	// 下降 50% 超阈值，回滚到最近可回滚版本
	result, err = suite.service.AutoRollbackIfNeeded(model.ID, 0.45, 0.15)
	suite.NoError(err)
	suite.True(result.Rolled)
	suite.Equal(v1.ID, result.ToVersion.ID)

	active, err := suite.service.GetActiveVersion(model.ID)
	suite.NoError(err)
	suite.Equal(v1.ID, active.ID)

	history, err := suite.service.GetRollbackHistory(model.ID)
	suite.NoError(err)
	suite.Len(history, 1)
	suite.Equal("automatic", history[0].RollbackType)
}

func (suite *VersioningServiceTestSuite) TestAutoRollbackNoActiveVersion() {
	result, err := suite.service.AutoRollbackIfNeeded("no-model", 0.1, 0.15)
	suite.NoError(err)
	suite.False(result.Rolled)
}

func (suite *VersioningServiceTestSuite) TestRetireActiveVersionRejected() {
	model := suite.factory.CreateModel()
	v := suite.factory.CreateVersion(model.ID, 1, func(v *models.ModelVersion) { v.IsActive = true })

	_, err := suite.service.RetireVersion(v.ID)
	suite.Error(err)
}

func (suite *VersioningServiceTestSuite) TestRestoreVersion() {
	model := suite.factory.CreateModel()
	v := suite.factory.CreateVersion(model.ID, 1)
	_, err := suite.service.RetireVersion(v.ID)
	suite.NoError(err)

	restored, err := suite.service.RestoreVersion(v.ID)
	suite.NoError(err)
	suite.Nil(restored.RetiredAt)

	var saved models.ModelVersion
	suite.testDB.DB.First(&saved, "id = ?", v.ID)
	suite.True(saved.IsRollbackTarget)
	suite.Nil(saved.RetiredAt)
}

func (suite *VersioningServiceTestSuite) TestCompareVersions() {
	model := suite.factory.CreateModel()
	a := suite.factory.CreateVersion(model.ID, 1, func(v *models.ModelVersion) {
		v.Accuracy = models.DecimalPtr(0.9)
		v.Precision = models.DecimalPtr(0.8)
		v.MAE = models.DecimalPtr(0.1)
	})
	b := suite.factory.CreateVersion(model.ID, 2, func(v *models.ModelVersion) {
		v.Accuracy = models.DecimalPtr(0.85)
		v.Precision = models.DecimalPtr(0.8)
		v.MAE = models.DecimalPtr(0.2)
		v.RMSE = models.DecimalPtr(0.3) // A 侧缺失，不参与对比
	})

	comparison, err := suite.service.CompareVersions(a.ID, b.ID)
	suite.NoError(err)
	suite.Len(comparison.Metrics, 3)
	suite.Equal("a", comparison.Overall)

	byMetric := map[string]string{}
	for _, m := range comparison.Metrics {
		byMetric[m.Metric] = m.Winner
	}
	suite.Equal("a", byMetric["accuracy"])
	suite.Equal("tie", byMetric["precision"])
	// MAE 越低越好
	suite.Equal("a", byMetric["mae"])
}

func (suite *VersioningServiceTestSuite) TestGetPerformanceTrend() {
	model := suite.factory.CreateModel()
	suite.factory.CreateVersion(model.ID, 1, func(v *models.ModelVersion) {
		v.Accuracy = models.DecimalPtr(0.8)
	})
	suite.factory.CreateVersion(model.ID, 2, func(v *models.ModelVersion) {
		v.Accuracy = models.DecimalPtr(0.9)
	})
	suite.factory.CreateVersion(model.ID, 3, func(v *models.ModelVersion) {
		v.Accuracy = nil
	})

	trend, err := suite.service.GetPerformanceTrend(model.ID, "accuracy")
	suite.NoError(err)
	suite.Len(trend, 3)
	// 按版本号升序
	suite.Equal(1, trend[0].VersionNumber)
	suite.Equal(0.8, *trend[0].Value)
	suite.Equal(0.9, *trend[1].Value)
	suite.Nil(trend[2].Value)

	_, err = suite.service.GetPerformanceTrend(model.ID, "unknown")
	suite.Error(err)
}

func TestVersioningServiceTestSuite(t *testing.T) {
	suite.Run(t, new(VersioningServiceTestSuite))
}
