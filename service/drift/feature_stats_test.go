/*
 * @module service/drift/feature_stats_test
 * @description 特征统计计算引擎单元测试
 * @architecture 测试层 - 纯计算逻辑验证，无外部依赖
 * @stateFlow 构造特征值 -> 计算统计与直方图 -> 结果断言
 * @rules 覆盖空输入、常量分布、等宽分桶与 KS 统计量的边界行为
 * @dependencies testing, testify
 * @refs feature_stats.go
 */

package drift

import (
	"testing"

	"modelops-service/service/models"

	"github.com/stretchr/testify/assert"
)

func TestCalculateFeatureStatsEmpty(t *testing.T) {
	stats := CalculateFeatureStats(nil)

	assert.Equal(t, 0.0, stats.Mean)
	assert.Equal(t, 0.0, stats.StdDev)
	assert.Equal(t, 0, stats.SampleCount)
	assert.NotNil(t, stats.Histogram)
	assert.Empty(t, stats.Histogram)
}

func TestCalculateFeatureStatsBasic(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	stats := CalculateFeatureStats(values)

	assert.InDelta(t, 5.5, stats.Mean, 1e-9)
	// 总体标准差
	assert.InDelta(t, 2.8722813232690143, stats.StdDev, 1e-9)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 10.0, stats.Max)
	assert.InDelta(t, 5.5, stats.Median, 1e-9)
	// 分位数取 floor(n*0.25) 与 floor(n*0.75) 位置元素
	assert.Equal(t, 3.0, stats.Q1)
	assert.Equal(t, 8.0, stats.Q3)
	assert.Equal(t, 10, stats.UniqueCount)
	assert.Equal(t, 10, stats.SampleCount)
}

func TestCalculateFeatureStatsOddMedian(t *testing.T) {
	stats := CalculateFeatureStats([]float64{3, 1, 2})
	assert.Equal(t, 2.0, stats.Median)
}

func TestBuildHistogramEqualWidth(t *testing.T) {
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	stats := CalculateFeatureStats(values)

	// 固定 10 个桶，每桶一个样本，总计数不丢失
	assert.Len(t, stats.Histogram, 10)
	total := 0
	for _, c := range stats.Histogram {
		total += c
	}
	assert.Equal(t, 10, total)

	// 首桶中心 = min + 0.5*binWidth
	assert.Equal(t, 1, stats.Histogram["0.45"])
	// 最大值归入末桶
	assert.Equal(t, 1, stats.Histogram["8.55"])
}

func TestBuildHistogramConstantValues(t *testing.T) {
	stats := CalculateFeatureStats([]float64{5, 5, 5, 5})

	// max == min 时桶宽退化为 1，全部样本落入首桶
	assert.Len(t, stats.Histogram, 10)
	assert.Equal(t, 4, stats.Histogram["5.5"])
	assert.Equal(t, 1, stats.UniqueCount)
}

func TestCalculateKSStatisticIdentical(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	h := CalculateFeatureStats(values).Histogram

	assert.InDelta(t, 0.0, CalculateKSStatistic(h, h), 1e-9)
}

func TestCalculateKSStatisticDisjoint(t *testing.T) {
	baseline := CalculateFeatureStats([]float64{1, 2, 3, 4, 5}).Histogram
	current := CalculateFeatureStats([]float64{100, 101, 102, 103, 104}).Histogram

	// 完全不相交的分布，累积分布函数最大差为 1
	assert.InDelta(t, 1.0, CalculateKSStatistic(baseline, current), 1e-9)
}

func TestCalculateKSStatisticEmptySide(t *testing.T) {
	h := CalculateFeatureStats([]float64{1, 2, 3}).Histogram

	assert.Equal(t, 0.0, CalculateKSStatistic(models.HistogramBins{}, h))
	assert.Equal(t, 0.0, CalculateKSStatistic(h, nil))
	assert.Equal(t, 0.0, CalculateKSStatistic(h, models.HistogramBins{"1": 0}))
}

func TestCalculateKSStatisticShiftedDistribution(t *testing.T) {
	baseline := CalculateFeatureStats([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}).Histogram
	current := CalculateFeatureStats([]float64{6, 7, 8, 9, 10, 11, 12, 13, 14, 15}).Histogram

	ks := CalculateKSStatistic(baseline, current)
	assert.Greater(t, ks, 0.0)
	assert.LessOrEqual(t, ks, 1.0)
}

func TestStatsToModel(t *testing.T) {
	stats := CalculateFeatureStats([]float64{1, 2, 3, 4})
	record := StatsToModel("model-1", "age", stats, true)

	assert.Equal(t, "model-1", record.ModelID)
	assert.Equal(t, "age", record.FeatureName)
	assert.Equal(t, stats.Mean, record.Mean)
	assert.Equal(t, stats.Min, record.MinValue)
	assert.Equal(t, stats.Max, record.MaxValue)
	assert.True(t, record.IsBaseline)
	assert.Equal(t, 4, record.SampleCount)
}
