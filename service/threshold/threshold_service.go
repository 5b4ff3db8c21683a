/*
 * @module service/threshold/threshold_service
 * @description 自适应阈值服务，基于历史漂移指标窗口计算动态告警阈值，并评估阈值有效性
 * @architecture 分层架构 - 业务逻辑层
 * @stateFlow 历史采样窗口 -> 算法计算 -> 区间裁剪 -> 持久化计算结果
 * @rules 计算结果必须裁剪到 [min,max] 区间；置信度为样本数与窗口大小之比上限 1
 * @dependencies gorm.io/gorm, math, sort
 * @refs service/models/threshold_models.go, service/drift/drift_service.go
 */

package threshold

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"modelops-service/service/models"
)

// ewmaAlpha 自适应算法的指数加权系数
const ewmaAlpha = 0.3

// ThresholdService 自适应阈值服务
type ThresholdService struct {
	db *gorm.DB
}

// NewThresholdService 创建自适应阈值服务实例
func NewThresholdService(db *gorm.DB) *ThresholdService {
	return &ThresholdService{db: db}
}

// HistoricalMetric 历史漂移指标样本
type HistoricalMetric struct {
	AccuracyDrop    float64   `json:"accuracy_drop"`
	FeatureDrift    float64   `json:"feature_drift"`
	PredictionDrift float64   `json:"prediction_drift"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// GetConfig 获取模型阈值配置，未配置时返回默认配置
func (s *ThresholdService) GetConfig(modelID string) (*models.ThresholdConfig, error) {
	var config models.ThresholdConfig
	err := s.db.Where("model_id = ?", modelID).First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultThresholdConfig(modelID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询阈值配置失败: %w", err)
	}
	return &config, nil
}

// ConfigInput 阈值配置更新入参
type ConfigInput struct {
	IsEnabled         *bool    `json:"is_enabled,omitempty"`
	Algorithm         *string  `json:"algorithm,omitempty"`
	WindowSize        *int     `json:"window_size,omitempty"`
	SensitivityFactor *float64 `json:"sensitivity_factor,omitempty"`
	MinThreshold      *float64 `json:"min_threshold,omitempty"`
	MaxThreshold      *float64 `json:"max_threshold,omitempty"`
	UpdateFrequency   *string  `json:"update_frequency,omitempty"`
}

// UpdateConfig 校验并更新阈值配置，不存在时创建
func (s *ThresholdService) UpdateConfig(modelID string, input *ConfigInput) (*models.ThresholdConfig, error) {
	config, err := s.GetConfig(modelID)
	if err != nil {
		return nil, err
	}

	if input.IsEnabled != nil {
		config.IsEnabled = *input.IsEnabled
	}
	if input.Algorithm != nil {
		config.Algorithm = *input.Algorithm
	}
	if input.WindowSize != nil {
		config.WindowSize = *input.WindowSize
	}
	if input.SensitivityFactor != nil {
		config.SensitivityFactor = *input.SensitivityFactor
	}
	if input.MinThreshold != nil {
		config.MinThreshold = *input.MinThreshold
	}
	if input.MaxThreshold != nil {
		config.MaxThreshold = *input.MaxThreshold
	}
	if input.UpdateFrequency != nil {
		config.UpdateFrequency = *input.UpdateFrequency
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	config.UpdatedAt = time.Now()
	if config.ID == "" {
		if err := s.db.Create(config).Error; err != nil {
			return nil, fmt.Errorf("创建阈值配置失败: %w", err)
		}
	} else {
		if err := s.db.Save(config).Error; err != nil {
			return nil, fmt.Errorf("更新阈值配置失败: %w", err)
		}
	}
	return config, nil
}

func validateConfig(config *models.ThresholdConfig) error {
	switch config.Algorithm {
	case models.ThresholdAlgorithmMovingAverage, models.ThresholdAlgorithmPercentile,
		models.ThresholdAlgorithmStdDeviation, models.ThresholdAlgorithmAdaptive:
	default:
		return fmt.Errorf("不支持的阈值算法: %s", config.Algorithm)
	}
	if config.WindowSize < 10 || config.WindowSize > 1000 {
		return errors.New("窗口大小必须在 10 到 1000 之间")
	}
	if config.SensitivityFactor < 0.1 || config.SensitivityFactor > 5 {
		return errors.New("灵敏度因子必须在 0.1 到 5 之间")
	}
	if config.MinThreshold < 0 || config.MinThreshold > 1 || config.MaxThreshold < 0 || config.MaxThreshold > 1 {
		return errors.New("阈值上下限必须在 [0,1] 区间内")
	}
	if config.MinThreshold >= config.MaxThreshold {
		return errors.New("阈值下限必须小于上限")
	}
	switch config.UpdateFrequency {
	case "hourly", "daily", "weekly":
	default:
		return fmt.Errorf("不支持的更新频率: %s", config.UpdateFrequency)
	}
	return nil
}

// calculateThreshold 对单个指标序列按配置算法计算阈值并裁剪到配置区间
func calculateThreshold(values []float64, config *models.ThresholdConfig) float64 {
	if len(values) == 0 {
		return clamp((config.MinThreshold+config.MaxThreshold)/2, config)
	}

	var threshold float64
	k := config.SensitivityFactor

	switch config.Algorithm {
	case models.ThresholdAlgorithmMovingAverage:
		m, sd := meanStdDev(values)
		threshold = m + k*sd
	case models.ThresholdAlgorithmPercentile:
		p := 95 - (k-1)*10
		threshold = percentile(values, p)
	case models.ThresholdAlgorithmStdDeviation:
		m, sd := meanStdDev(values)
		threshold = m + 2*k*sd
	default: // adaptive
		ewmaMean := values[0]
		ewmaVar := 0.0
		for _, v := range values[1:] {
			diff := v - ewmaMean
			ewmaMean += ewmaAlpha * diff
			ewmaVar = (1-ewmaAlpha)*(ewmaVar + ewmaAlpha*diff*diff)
		}
		threshold = ewmaMean + k*math.Sqrt(ewmaVar)
	}
	return clamp(threshold, config)
}

func clamp(v float64, config *models.ThresholdConfig) float64 {
	if v < config.MinThreshold {
		return config.MinThreshold
	}
	if v > config.MaxThreshold {
		return config.MaxThreshold
	}
	return v
}

func meanStdDev(values []float64) (float64, float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// percentile 最近秩法计算百分位数
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// loadWindow 读取模型最近 windowSize 条已回填漂移列的采样，按时间升序返回
func (s *ThresholdService) loadWindow(modelID string, windowSize int) ([]HistoricalMetric, error) {
	var samples []models.MetricsSample
	err := s.db.Where("model_id = ? AND accuracy_drop IS NOT NULL", modelID).
		Order("recorded_at DESC").Limit(windowSize).Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("查询历史指标失败: %w", err)
	}

	metrics := make([]HistoricalMetric, 0, len(samples))
	for i := len(samples) - 1; i >= 0; i-- {
		sample := samples[i]
		metrics = append(metrics, HistoricalMetric{
			AccuracyDrop:    models.DecimalValue(sample.AccuracyDrop),
			FeatureDrift:    models.DecimalValue(sample.FeatureDrift),
			PredictionDrift: models.DecimalValue(sample.PredictionDrift),
			RecordedAt:      sample.RecordedAt,
		})
	}
	return metrics, nil
}

// CalculateThresholds 按配置算法计算三类漂移阈值并持久化计算结果
func (s *ThresholdService) CalculateThresholds(modelID string) (*models.CalculatedThresholds, error) {
	config, err := s.GetConfig(modelID)
	if err != nil {
		return nil, err
	}

	window, err := s.loadWindow(modelID, config.WindowSize)
	if err != nil {
		return nil, err
	}

	accuracyDrops := make([]float64, len(window))
	featureDrifts := make([]float64, len(window))
	predictionDrifts := make([]float64, len(window))
	for i, m := range window {
		accuracyDrops[i] = m.AccuracyDrop
		featureDrifts[i] = m.FeatureDrift
		predictionDrifts[i] = m.PredictionDrift
	}

	confidence := float64(len(window)) / float64(config.WindowSize)
	if confidence > 1 {
		confidence = 1
	}

	result := &models.CalculatedThresholds{
		AccuracyDropThreshold:    calculateThreshold(accuracyDrops, config),
		FeatureDriftThreshold:    calculateThreshold(featureDrifts, config),
		PredictionDriftThreshold: calculateThreshold(predictionDrifts, config),
		Confidence:               confidence,
		SampleCount:              len(window),
		Algorithm:                config.Algorithm,
		CalculatedAt:             time.Now(),
	}

	if config.ID != "" {
		now := time.Now()
		if err := s.db.Model(config).Updates(map[string]interface{}{
			"last_calculated_thresholds": result,
			"last_updated":               &now,
		}).Error; err != nil {
			return nil, fmt.Errorf("保存阈值计算结果失败: %w", err)
		}
	}
	slog.Info("自适应阈值已计算", "model_id", modelID, "algorithm", config.Algorithm,
		"sample_count", len(window), "confidence", confidence)
	return result, nil
}

// AlgorithmSuggestion 算法推荐结果
type AlgorithmSuggestion struct {
	Algorithm   string `json:"algorithm"`
	Reason      string `json:"reason"`
	SampleCount int    `json:"sample_count"`
}

// SuggestAlgorithm 基于最近 100 条历史样本的分布特征推荐阈值算法
func (s *ThresholdService) SuggestAlgorithm(modelID string) (*AlgorithmSuggestion, error) {
	window, err := s.loadWindow(modelID, 100)
	if err != nil {
		return nil, err
	}

	suggestion := &AlgorithmSuggestion{SampleCount: len(window)}
	if len(window) < 30 {
		suggestion.Algorithm = models.ThresholdAlgorithmPercentile
		suggestion.Reason = "历史样本不足 30 条，百分位法对小样本更稳健"
		return suggestion, nil
	}

	drops := make([]float64, len(window))
	for i, m := range window {
		drops[i] = m.AccuracyDrop
	}

	// 前后两半均值变化判断分布是否随时间漂移
	half := len(drops) / 2
	firstMean, _ := meanStdDev(drops[:half])
	secondMean, _ := meanStdDev(drops[half:])
	if firstMean != 0 {
		change := math.Abs(secondMean-firstMean) / math.Abs(firstMean)
		if change > 0.2 {
			suggestion.Algorithm = models.ThresholdAlgorithmAdaptive
			suggestion.Reason = "指标分布随时间明显变化，自适应 EWMA 算法能更快跟踪"
			return suggestion, nil
		}
	}

	mean, stdDev := meanStdDev(drops)
	if mean != 0 && stdDev/math.Abs(mean) > 0.5 {
		suggestion.Algorithm = models.ThresholdAlgorithmPercentile
		suggestion.Reason = "指标波动系数较大，百分位法对离群值更稳健"
		return suggestion, nil
	}

	suggestion.Algorithm = models.ThresholdAlgorithmMovingAverage
	suggestion.Reason = "指标分布稳定，移动平均法即可满足需求"
	return suggestion, nil
}

// EffectivenessReport 阈值有效性评估报告
type EffectivenessReport struct {
	SampleCount       int     `json:"sample_count"`
	TruePositives     int     `json:"true_positives"`
	FalsePositives    int     `json:"false_positives"`
	TrueNegatives     int     `json:"true_negatives"`
	FalseNegatives    int     `json:"false_negatives"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	FalseNegativeRate float64 `json:"false_negative_rate"`
	Recommendation    string  `json:"recommendation"`
}

// AnalyzeEffectiveness 以历史窗口回放当前阈值，对照既定劣化标准评估误报与漏报
func (s *ThresholdService) AnalyzeEffectiveness(modelID string) (*EffectivenessReport, error) {
	config, err := s.GetConfig(modelID)
	if err != nil {
		return nil, err
	}
	window, err := s.loadWindow(modelID, config.WindowSize)
	if err != nil {
		return nil, err
	}

	thresholds := config.LastCalculatedThresholds
	if thresholds == nil {
		calculated, err := s.CalculateThresholds(modelID)
		if err != nil {
			return nil, err
		}
		thresholds = calculated
	}

	report := &EffectivenessReport{SampleCount: len(window)}
	for _, m := range window {
		// 真实劣化判定标准
		actualBad := m.AccuracyDrop > 0.1 || m.FeatureDrift > 0.2 || m.PredictionDrift > 0.15
		predictedBad := m.AccuracyDrop > thresholds.AccuracyDropThreshold ||
			m.FeatureDrift > thresholds.FeatureDriftThreshold ||
			m.PredictionDrift > thresholds.PredictionDriftThreshold

		switch {
		case actualBad && predictedBad:
			report.TruePositives++
		case !actualBad && predictedBad:
			report.FalsePositives++
		case actualBad && !predictedBad:
			report.FalseNegatives++
		default:
			report.TrueNegatives++
		}
	}

	if alarmCount := report.TruePositives + report.FalsePositives; alarmCount > 0 {
		report.FalsePositiveRate = float64(report.FalsePositives) / float64(alarmCount)
	}
	if badCount := report.TruePositives + report.FalseNegatives; badCount > 0 {
		report.FalseNegativeRate = float64(report.FalseNegatives) / float64(badCount)
	}

	switch {
	case report.FalsePositiveRate > 0.3:
		report.Recommendation = "误报率偏高，建议调低灵敏度因子或放宽阈值"
	case report.FalseNegativeRate > 0.3:
		report.Recommendation = "漏报率偏高，建议调高灵敏度因子或收紧阈值"
	default:
		report.Recommendation = "当前阈值表现良好，保持现有配置"
	}
	return report, nil
}

// GetModelsWithConfig 列出启用自适应阈值的模型ID
func (s *ThresholdService) GetModelsWithConfig() ([]string, error) {
	var ids []string
	err := s.db.Model(&models.ThresholdConfig{}).
		Where("is_enabled = ?", true).Pluck("model_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询阈值配置模型失败: %w", err)
	}
	return ids, nil
}
