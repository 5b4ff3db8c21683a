/*
 * @module service/drift/feature_stats
 * @description 特征统计计算引擎，生成描述性统计与等宽直方图，并基于直方图计算 KS 统计量
 * @architecture 分层架构 - 业务逻辑层（纯计算，无存储依赖）
 * @stateFlow 原始特征值 -> 描述性统计 + 直方图 -> 分布对比 KS 统计量
 * @rules 空样本返回零值统计与空直方图；直方图固定 10 个等宽分桶，末桶双闭区间
 * @dependencies math, sort, strconv
 * @refs service/drift/drift_service.go
 */

package drift

import (
	"math"
	"sort"
	"strconv"

	"modelops-service/service/models"
)

const histogramBinCount = 10

// FeatureStats 单个特征的描述性统计结果
type FeatureStats struct {
	Mean        float64              `json:"mean"`
	StdDev      float64              `json:"std_dev"`
	Min         float64              `json:"min"`
	Max         float64              `json:"max"`
	Median      float64              `json:"median"`
	Q1          float64              `json:"q1"`
	Q3          float64              `json:"q3"`
	UniqueCount int                  `json:"unique_count"`
	Histogram   models.HistogramBins `json:"histogram"`
	SampleCount int                  `json:"sample_count"`
}

// CalculateFeatureStats 计算特征值的描述性统计与直方图，空输入返回零值结果
func CalculateFeatureStats(values []float64) FeatureStats {
	if len(values) == 0 {
		return FeatureStats{Histogram: models.HistogramBins{}}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	// 总体方差
	variance := 0.0
	for _, v := range sorted {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(n)

	min := sorted[0]
	max := sorted[n-1]

	var median float64
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	} else {
		median = sorted[n/2]
	}

	unique := make(map[float64]struct{}, n)
	for _, v := range sorted {
		unique[v] = struct{}{}
	}

	return FeatureStats{
		Mean:        mean,
		StdDev:      math.Sqrt(variance),
		Min:         min,
		Max:         max,
		Median:      median,
		Q1:          sorted[int(math.Floor(float64(n)*0.25))],
		Q3:          sorted[int(math.Floor(float64(n)*0.75))],
		UniqueCount: len(unique),
		Histogram:   buildHistogram(sorted, min, max),
		SampleCount: n,
	}
}

// buildHistogram 等宽分桶，桶键为桶中心值；max==min 时桶宽退化为 1
func buildHistogram(sorted []float64, min, max float64) models.HistogramBins {
	binWidth := (max - min) / float64(histogramBinCount)
	if binWidth == 0 {
		binWidth = 1
	}

	counts := make([]int, histogramBinCount)
	for _, v := range sorted {
		idx := int((v - min) / binWidth)
		if idx >= histogramBinCount {
			idx = histogramBinCount - 1 // 最大值归入末桶
		}
		counts[idx]++
	}

	bins := make(models.HistogramBins, histogramBinCount)
	for i, c := range counts {
		center := min + (float64(i)+0.5)*binWidth
		bins[formatBinKey(center)] = c
	}
	return bins
}

func formatBinKey(center float64) string {
	return strconv.FormatFloat(center, 'f', -1, 64)
}

// CalculateKSStatistic 基于直方图近似计算两个分布的 Kolmogorov-Smirnov 统计量，
// 任一侧为空或总计数为零时返回 0
func CalculateKSStatistic(baseline, current models.HistogramBins) float64 {
	if len(baseline) == 0 || len(current) == 0 {
		return 0
	}

	baseTotal := 0
	for _, c := range baseline {
		baseTotal += c
	}
	currTotal := 0
	for _, c := range current {
		currTotal += c
	}
	if baseTotal == 0 || currTotal == 0 {
		return 0
	}

	// 两侧分桶中心的并集，按数值升序
	centerSet := make(map[float64]struct{})
	for k := range baseline {
		if v, err := strconv.ParseFloat(k, 64); err == nil {
			centerSet[v] = struct{}{}
		}
	}
	for k := range current {
		if v, err := strconv.ParseFloat(k, 64); err == nil {
			centerSet[v] = struct{}{}
		}
	}
	centers := make([]float64, 0, len(centerSet))
	for v := range centerSet {
		centers = append(centers, v)
	}
	sort.Float64s(centers)

	maxDiff := 0.0
	baseCum := 0.0
	currCum := 0.0
	for _, c := range centers {
		key := formatBinKey(c)
		baseCum += float64(baseline[key]) / float64(baseTotal)
		currCum += float64(current[key]) / float64(currTotal)
		if diff := math.Abs(baseCum - currCum); diff > maxDiff {
			maxDiff = diff
		}
	}
	return maxDiff
}

// StatsToModel 将计算结果转换为可持久化的特征统计记录
func StatsToModel(modelID, featureName string, stats FeatureStats, isBaseline bool) *models.FeatureStatistics {
	return &models.FeatureStatistics{
		ModelID:     modelID,
		FeatureName: featureName,
		Mean:        stats.Mean,
		StdDev:      stats.StdDev,
		MinValue:    stats.Min,
		MaxValue:    stats.Max,
		Median:      stats.Median,
		Q1:          stats.Q1,
		Q3:          stats.Q3,
		UniqueCount: stats.UniqueCount,
		Histogram:   stats.Histogram,
		IsBaseline:  isBaseline,
		SampleCount: stats.SampleCount,
	}
}
