/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, time
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"modelops-service/service/models"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.MLModel{},
		&models.ModelVersion{},
		&models.RollbackRecord{},
		&models.DriftConfig{},
		&models.DriftAlert{},
		&models.MetricsSample{},
		&models.FeatureStatistics{},
		&models.DriftCheckRun{},
		&models.ABTest{},
		&models.ABTestResult{},
		&models.ABTestStat{},
		&models.ThresholdConfig{},
		&models.NotificationConfig{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	// 清空所有表的数据
	tables := []string{
		"ai_ml_models",
		"ai_model_versions",
		"ai_model_rollback_history",
		"ai_drift_configs",
		"ai_drift_alerts",
		"ai_drift_metrics_history",
		"ai_feature_statistics",
		"ai_drift_check_runs",
		"ai_ab_tests",
		"ai_ab_test_results",
		"ai_ab_test_stats",
		"ai_auto_scaling_configs",
		"ai_notification_configs",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// MLModelOption 模型选项函数类型
type MLModelOption func(*models.MLModel)

// CreateModel 创建测试模型
func (f *TestDataFactory) CreateModel(opts ...MLModelOption) *models.MLModel {
	model := &models.MLModel{
		ID:           generateID("model"),
		Name:         "测试模型",
		Description:  "这是一个测试模型",
		ModelType:    "classification",
		TargetMetric: "accuracy",
		Status:       "active",
		CreatedBy:    "test",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(model)
	}

	err := f.DB.Create(model).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test model: %v", err))
	}

	return model
}

// ModelVersionOption 模型版本选项函数类型
type ModelVersionOption func(*models.ModelVersion)

// CreateVersion 创建测试模型版本
func (f *TestDataFactory) CreateVersion(modelID string, versionNumber int, opts ...ModelVersionOption) *models.ModelVersion {
	version := &models.ModelVersion{
		ID:               generateID("ver"),
		ModelID:          modelID,
		Version:          fmt.Sprintf("1.%d.0", versionNumber),
		VersionNumber:    versionNumber,
		Accuracy:         models.DecimalPtr(0.9),
		IsActive:         false,
		IsRollbackTarget: true,
		ChangeLog:        "测试版本",
		CreatedBy:        "test",
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(version)
	}

	err := f.DB.Create(version).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test model version: %v", err))
	}

	return version
}

// DriftConfigOption 漂移配置选项函数类型
type DriftConfigOption func(*models.DriftConfig)

// CreateDriftConfig 创建测试漂移配置
func (f *TestDataFactory) CreateDriftConfig(modelID string, opts ...DriftConfigOption) *models.DriftConfig {
	config := &models.DriftConfig{
		ID:                       generateID("dc"),
		ModelID:                  modelID,
		AccuracyDropThreshold:    0.05,
		FeatureDriftThreshold:    0.1,
		PredictionDriftThreshold: 0.1,
		MonitoringWindowHours:    24,
		AlertCooldownMinutes:     60,
		AutoRollbackEnabled:      false,
		AutoRollbackThreshold:    0.15,
		NotifyOwner:              true,
		IsEnabled:                true,
		CreatedAt:                time.Now(),
		UpdatedAt:                time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(config)
	}

	err := f.DB.Create(config).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test drift config: %v", err))
	}

	return config
}

// MetricsSampleOption 指标采样选项函数类型
type MetricsSampleOption func(*models.MetricsSample)

// CreateMetricsSample 创建测试指标采样
func (f *TestDataFactory) CreateMetricsSample(modelID string, accuracy float64, recordedAt time.Time, opts ...MetricsSampleOption) *models.MetricsSample {
	sample := &models.MetricsSample{
		ID:              generateID("ms"),
		ModelID:         modelID,
		Accuracy:        models.DecimalPtr(accuracy),
		PredictionCount: 100,
		RecordedAt:      recordedAt,
		CreatedAt:       time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(sample)
	}

	err := f.DB.Create(sample).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test metrics sample: %v", err))
	}

	return sample
}

// FeatureStatisticsOption 特征统计选项函数类型
type FeatureStatisticsOption func(*models.FeatureStatistics)

// CreateFeatureStatistics 创建测试特征统计
func (f *TestDataFactory) CreateFeatureStatistics(modelID, featureName string, isBaseline bool, opts ...FeatureStatisticsOption) *models.FeatureStatistics {
	stats := &models.FeatureStatistics{
		ID:          generateID("fs"),
		ModelID:     modelID,
		FeatureName: featureName,
		Mean:        0.5,
		StdDev:      0.1,
		MinValue:    0,
		MaxValue:    1,
		Median:      0.5,
		Q1:          0.25,
		Q3:          0.75,
		UniqueCount: 100,
		Histogram:   models.HistogramBins{"0.05": 10, "0.5": 80, "0.95": 10},
		IsBaseline:  isBaseline,
		SampleCount: 100,
		CreatedAt:   time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(stats)
	}

	err := f.DB.Create(stats).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test feature statistics: %v", err))
	}

	return stats
}

// ABTestOption A/B测试选项函数类型
type ABTestOption func(*models.ABTest)

// CreateABTest 创建测试A/B测试
func (f *TestDataFactory) CreateABTest(modelAID, modelBID string, opts ...ABTestOption) *models.ABTest {
	test := &models.ABTest{
		ID:              generateID("ab"),
		Name:            "测试A/B实验",
		Description:     "这是一个测试A/B实验",
		ModelAID:        modelAID,
		ModelBID:        modelBID,
		TrafficSplitA:   50,
		TrafficSplitB:   50,
		Status:          models.ABTestStatusDraft,
		MinSampleSize:   1000,
		ConfidenceLevel: 0.95,
		CreatedBy:       "test",
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(test)
	}

	err := f.DB.Create(test).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test ab test: %v", err))
	}

	return test
}

// ABTestResultOption A/B测试结果选项函数类型
type ABTestResultOption func(*models.ABTestResult)

// CreateABTestResult 创建测试A/B测试结果
func (f *TestDataFactory) CreateABTestResult(testID, variant, modelID string, isCorrect bool, opts ...ABTestResultOption) *models.ABTestResult {
	result := &models.ABTestResult{
		ID:             generateID("abr"),
		TestID:         testID,
		Variant:        variant,
		ModelID:        modelID,
		IsCorrect:      &isCorrect,
		ResponseTimeMs: 50,
		CreatedAt:      time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(result)
	}

	err := f.DB.Create(result).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test ab test result: %v", err))
	}

	return result
}

// ThresholdConfigOption 阈值配置选项函数类型
type ThresholdConfigOption func(*models.ThresholdConfig)

// CreateThresholdConfig 创建测试阈值配置
func (f *TestDataFactory) CreateThresholdConfig(modelID string, opts ...ThresholdConfigOption) *models.ThresholdConfig {
	config := models.DefaultThresholdConfig(modelID)
	config.ID = generateID("tc")
	config.IsEnabled = true

	// 应用选项
	for _, opt := range opts {
		opt(config)
	}

	err := f.DB.Create(config).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test threshold config: %v", err))
	}

	return config
}

// DriftAlertOption 漂移告警选项函数类型
type DriftAlertOption func(*models.DriftAlert)

// CreateDriftAlert 创建测试漂移告警
func (f *TestDataFactory) CreateDriftAlert(modelID, severity string, opts ...DriftAlertOption) *models.DriftAlert {
	alert := &models.DriftAlert{
		ID:             generateID("da"),
		ModelID:        modelID,
		DriftType:      "accuracy_drop",
		Severity:       severity,
		DriftScore:     models.DecimalPtr(0.2),
		Recommendation: "测试告警",
		Status:         "active",
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(alert)
	}

	err := f.DB.Create(alert).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test drift alert: %v", err))
	}

	return alert
}

// 辅助函数
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), generateSuffix())
}

func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// AssertJSONResponse 断言JSON响应
func (h *HTTPTestHelper) AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedBody interface{}) {
	assert.Equal(t, expectedStatus, w.Code)

	if expectedBody != nil {
		var actualBody interface{}
		err := json.Unmarshal(w.Body.Bytes(), &actualBody)
		assert.NoError(t, err)

		expectedJSON, _ := json.Marshal(expectedBody)
		actualJSON, _ := json.Marshal(actualBody)

		assert.JSONEq(t, string(expectedJSON), string(actualJSON))
	}
}
