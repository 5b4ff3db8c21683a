/*
 * @module service/threshold/threshold_service_test
 * @description 自适应阈值服务单元测试
 * @architecture 测试层 - 使用内存数据库验证业务逻辑
 * @stateFlow 配置校验 -> 窗口加载 -> 阈值计算 -> 有效性分析
 * @rules 覆盖四种算法、区间裁剪、空窗口兜底与配置校验边界
 * @dependencies testing, testify, modelops-service/testutil
 * @refs threshold_service.go
 */

package threshold

import (
	"testing"
	"time"

	"modelops-service/service/models"
	"modelops-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestPercentileNearestRank(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.Equal(t, 10.0, percentile(values, 95))
	assert.Equal(t, 5.0, percentile(values, 50))
	assert.Equal(t, 1.0, percentile(values, 0))
	assert.Equal(t, 10.0, percentile(values, 100))
}

func TestCalculateThresholdAlgorithms(t *testing.T) {
	config := models.DefaultThresholdConfig("m")
	config.MinThreshold = 0
	config.MaxThreshold = 1
	values := []float64{0.1, 0.1, 0.1, 0.1}

	// 零方差序列：均值类算法退化为均值本身
	config.Algorithm = models.ThresholdAlgorithmMovingAverage
	assert.InDelta(t, 0.1, calculateThreshold(values, config), 1e-9)

	config.Algorithm = models.ThresholdAlgorithmStdDeviation
	assert.InDelta(t, 0.1, calculateThreshold(values, config), 1e-9)

	config.Algorithm = models.ThresholdAlgorithmAdaptive
	assert.InDelta(t, 0.1, calculateThreshold(values, config), 1e-9)

	// 灵敏度 1 时百分位法取 P95
	config.Algorithm = models.ThresholdAlgorithmPercentile
	spread := []float64{0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.07, 0.08, 0.09, 0.2}
	assert.InDelta(t, 0.2, calculateThreshold(spread, config), 1e-9)
}

func TestCalculateThresholdClamping(t *testing.T) {
	config := models.DefaultThresholdConfig("m")
	config.Algorithm = models.ThresholdAlgorithmMovingAverage
	config.MinThreshold = 0.05
	config.MaxThreshold = 0.2

	// 均值远超上限时裁剪到上限
	assert.Equal(t, 0.2, calculateThreshold([]float64{0.9, 0.9, 0.9}, config))
	// 均值低于下限时裁剪到下限
	assert.Equal(t, 0.05, calculateThreshold([]float64{0.001, 0.001}, config))
	// 空窗口取区间中点
	assert.InDelta(t, 0.125, calculateThreshold(nil, config), 1e-9)
}

func TestValidateConfigBoundaries(t *testing.T) {
	valid := models.DefaultThresholdConfig("m")
	assert.NoError(t, validateConfig(valid))

	badAlgorithm := models.DefaultThresholdConfig("m")
	badAlgorithm.Algorithm = "magic"
	assert.Error(t, validateConfig(badAlgorithm))

	badWindow := models.DefaultThresholdConfig("m")
	badWindow.WindowSize = 5
	assert.Error(t, validateConfig(badWindow))

	badSensitivity := models.DefaultThresholdConfig("m")
	badSensitivity.SensitivityFactor = 6
	assert.Error(t, validateConfig(badSensitivity))

	badRange := models.DefaultThresholdConfig("m")
	badRange.MinThreshold = 0.5
	badRange.MaxThreshold = 0.1
	assert.Error(t, validateConfig(badRange))

	badFrequency := models.DefaultThresholdConfig("m")
	badFrequency.UpdateFrequency = "monthly"
	assert.Error(t, validateConfig(badFrequency))
}

// ThresholdServiceTestSuite 自适应阈值服务测试套件
type ThresholdServiceTestSuite struct {
	suite.Suite
	testDB  *testutil.TestDB
	factory *testutil.TestDataFactory
	service *ThresholdService
}

// SetupSuite 设置测试套件
func (suite *ThresholdServiceTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
	suite.service = NewThresholdService(suite.testDB.DB)
}

// TearDownSuite 清理测试套件
func (suite *ThresholdServiceTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

// SetupTest 设置每个测试
func (suite *ThresholdServiceTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

// seedDriftSamples 写入已回填漂移列的历史采样
func (suite *ThresholdServiceTestSuite) seedDriftSamples(modelID string, drops []float64) {
	base := time.Now().Add(-time.Duration(len(drops)) * time.Hour)
	for i, drop := range drops {
		suite.factory.CreateMetricsSample(modelID, 0.9, base.Add(time.Duration(i)*time.Hour),
			func(s *models.MetricsSample) {
				s.AccuracyDrop = models.DecimalPtr(drop)
				s.FeatureDrift = models.DecimalPtr(drop / 2)
				s.PredictionDrift = models.DecimalPtr(drop / 3)
			})
	}
}

func (suite *ThresholdServiceTestSuite) TestGetConfigReturnsDefault() {
	config, err := suite.service.GetConfig("unconfigured")
	suite.NoError(err)
	suite.Empty(config.ID)
	suite.False(config.IsEnabled)
	suite.Equal(models.ThresholdAlgorithmAdaptive, config.Algorithm)
	suite.Equal(100, config.WindowSize)
}

func (suite *ThresholdServiceTestSuite) TestUpdateConfigCreatesAndUpdates() {
	model := suite.factory.CreateModel()

	enabled := true
	algorithm := models.ThresholdAlgorithmMovingAverage
	config, err := suite.service.UpdateConfig(model.ID, &ConfigInput{
		IsEnabled: &enabled,
		Algorithm: &algorithm,
	})
	suite.NoError(err)
	suite.NotEmpty(config.ID)
	suite.True(config.IsEnabled)

	window := 50
	updated, err := suite.service.UpdateConfig(model.ID, &ConfigInput{WindowSize: &window})
	suite.NoError(err)
	suite.Equal(config.ID, updated.ID)
	suite.Equal(50, updated.WindowSize)
	suite.Equal(models.ThresholdAlgorithmMovingAverage, updated.Algorithm)

	badWindow := 5
	_, err = suite.service.UpdateConfig(model.ID, &ConfigInput{WindowSize: &badWindow})
	suite.Error(err)
}

func (suite *ThresholdServiceTestSuite) TestCalculateThresholdsPersistsResult() {
	model := suite.factory.CreateModel()
	config := suite.factory.CreateThresholdConfig(model.ID, func(c *models.ThresholdConfig) {
		c.Algorithm = models.ThresholdAlgorithmMovingAverage
		c.WindowSize = 10
		c.MinThreshold = 0.001
		c.MaxThreshold = 0.999
	})
	suite.seedDriftSamples(model.ID, []float64{0.05, 0.05, 0.05, 0.05})

	result, err := suite.service.CalculateThresholds(model.ID)
	suite.NoError(err)
	suite.Equal(4, result.SampleCount)
	suite.InDelta(0.4, result.Confidence, 1e-9)
	suite.Equal(models.ThresholdAlgorithmMovingAverage, result.Algorithm)
	// 零方差序列移动平均退化为均值
	suite.InDelta(0.05, result.AccuracyDropThreshold, 1e-9)
	suite.InDelta(0.025, result.FeatureDriftThreshold, 1e-9)

	var saved models.ThresholdConfig
	suite.NoError(suite.testDB.DB.First(&saved, "id = ?", config.ID).Error)
	suite.NotNil(saved.LastCalculatedThresholds)
	suite.NotNil(saved.LastUpdated)
	suite.Equal(4, saved.LastCalculatedThresholds.SampleCount)
}

func (suite *ThresholdServiceTestSuite) TestCalculateThresholdsEmptyWindow() {
	model := suite.factory.CreateModel()
	suite.factory.CreateThresholdConfig(model.ID)

	result, err := suite.service.CalculateThresholds(model.ID)
	suite.NoError(err)
	suite.Equal(0, result.SampleCount)
	suite.Equal(0.0, result.Confidence)
	// 空窗口取区间中点 (0.01+0.5)/2
	suite.InDelta(0.255, result.AccuracyDropThreshold, 1e-9)
}

func (suite *ThresholdServiceTestSuite) TestLoadWindowSkipsUnbackfilledSamples() {
	model := suite.factory.CreateModel()
	suite.factory.CreateThresholdConfig(model.ID, func(c *models.ThresholdConfig) {
		c.WindowSize = 10
	})
	// 未回填漂移列的采样不参与计算
	suite.factory.CreateMetricsSample(model.ID, 0.9, time.Now())
	suite.seedDriftSamples(model.ID, []float64{0.03, 0.04})

	result, err := suite.service.CalculateThresholds(model.ID)
	suite.NoError(err)
	suite.Equal(2, result.SampleCount)
}

func (suite *ThresholdServiceTestSuite) TestSuggestAlgorithmSmallSample() {
	model := suite.factory.CreateModel()
	suite.seedDriftSamples(model.ID, []float64{0.05, 0.05})

	suggestion, err := suite.service.SuggestAlgorithm(model.ID)
	suite.NoError(err)
	suite.Equal(models.ThresholdAlgorithmPercentile, suggestion.Algorithm)
	suite.Equal(2, suggestion.SampleCount)
}

func (suite *ThresholdServiceTestSuite) TestSuggestAlgorithmShiftingDistribution() {
	model := suite.factory.CreateModel()
	drops := make([]float64, 40)
	for i := range drops {
		if i < 20 {
			drops[i] = 0.05
		} else {
			drops[i] = 0.15 // 后半均值翻三倍
		}
	}
	suite.seedDriftSamples(model.ID, drops)

	suggestion, err := suite.service.SuggestAlgorithm(model.ID)
	suite.NoError(err)
	suite.Equal(models.ThresholdAlgorithmAdaptive, suggestion.Algorithm)
}

func (suite *ThresholdServiceTestSuite) TestSuggestAlgorithmStableDistribution() {
	model := suite.factory.CreateModel()
	drops := make([]float64, 40)
	for i := range drops {
		drops[i] = 0.05
	}
	suite.seedDriftSamples(model.ID, drops)

	suggestion, err := suite.service.SuggestAlgorithm(model.ID)
	suite.NoError(err)
	suite.Equal(models.ThresholdAlgorithmMovingAverage, suggestion.Algorithm)
}

func (suite *ThresholdServiceTestSuite) TestAnalyzeEffectiveness() {
	model := suite.factory.CreateModel()
	suite.factory.CreateThresholdConfig(model.ID, func(c *models.ThresholdConfig) {
		c.WindowSize = 10
		c.LastCalculatedThresholds = &models.CalculatedThresholds{
			AccuracyDropThreshold:    0.08,
			FeatureDriftThreshold:    0.9,
			PredictionDriftThreshold: 0.9,
			CalculatedAt:             time.Now(),
		}
	})
	// 0.05：实际正常且未触发；0.12：实际劣化且触发；0.09：实际正常但触发（误报）
	suite.seedDriftSamples(model.ID, []float64{0.05, 0.12, 0.09})

	report, err := suite.service.AnalyzeEffectiveness(model.ID)
	suite.NoError(err)
	suite.Equal(3, report.SampleCount)
	suite.Equal(1, report.TruePositives)
	suite.Equal(1, report.FalsePositives)
	suite.Equal(1, report.TrueNegatives)
	suite.Equal(0, report.FalseNegatives)
	suite.InDelta(0.5, report.FalsePositiveRate, 1e-9)
	suite.Contains(report.Recommendation, "误报率偏高")
}

func (suite *ThresholdServiceTestSuite) TestGetModelsWithConfig() {
	modelA := suite.factory.CreateModel()
	modelB := suite.factory.CreateModel()
	suite.factory.CreateThresholdConfig(modelA.ID)
	suite.factory.CreateThresholdConfig(modelB.ID, func(c *models.ThresholdConfig) {
		c.IsEnabled = false
	})

	ids, err := suite.service.GetModelsWithConfig()
	suite.NoError(err)
	suite.Equal([]string{modelA.ID}, ids)
}

func TestThresholdServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ThresholdServiceTestSuite))
}
