/*
 * @module service/abtest/ab_test_service
 * @description A/B 测试服务，负责测试生命周期管理、流量分配、结果记录与两比例 z 检验
 * @architecture 分层架构 - 业务逻辑层
 * @stateFlow draft -> running <-> paused -> completed/cancelled
 * @rules 流量分配之和必须为 100；样本量不足 30 不做显著性判定；统计聚合删除后重建
 * @dependencies gorm.io/gorm, math, math/rand
 * @refs service/models/ab_test_models.go, service/versioning/versioning_service.go
 */

package abtest

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"modelops-service/service/models"
)

// minSamplesForSignificance z 检验要求的每组最小样本量
const minSamplesForSignificance = 30

// ABTestService A/B 测试服务
type ABTestService struct {
	db *gorm.DB
}

// NewABTestService 创建 A/B 测试服务实例
func NewABTestService(db *gorm.DB) *ABTestService {
	return &ABTestService{db: db}
}

// CreateTestInput 测试创建入参
type CreateTestInput struct {
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	ModelAID        string     `json:"model_a_id"`
	ModelBID        string     `json:"model_b_id"`
	TrafficSplitA   *int       `json:"traffic_split_a,omitempty"`
	TrafficSplitB   *int       `json:"traffic_split_b,omitempty"`
	MinSampleSize   *int       `json:"min_sample_size,omitempty"`
	ConfidenceLevel *float64   `json:"confidence_level,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
}

// CreateTest 创建 A/B 测试，初始状态为 draft
func (s *ABTestService) CreateTest(input *CreateTestInput) (*models.ABTest, error) {
	if input.Name == "" {
		return nil, errors.New("测试名称不能为空")
	}
	if input.ModelAID == "" || input.ModelBID == "" {
		return nil, errors.New("对照组与实验组模型ID不能为空")
	}

	splitA, splitB := 50, 50
	if input.TrafficSplitA != nil {
		splitA = *input.TrafficSplitA
	}
	if input.TrafficSplitB != nil {
		splitB = *input.TrafficSplitB
	}
	if splitA+splitB != 100 {
		return nil, errors.New("流量分配之和必须为 100%")
	}

	test := &models.ABTest{
		Name:            input.Name,
		Description:     input.Description,
		ModelAID:        input.ModelAID,
		ModelBID:        input.ModelBID,
		TrafficSplitA:   splitA,
		TrafficSplitB:   splitB,
		Status:          models.ABTestStatusDraft,
		MinSampleSize:   1000,
		ConfidenceLevel: 0.95,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		CreatedBy:       input.CreatedBy,
	}
	if input.MinSampleSize != nil {
		test.MinSampleSize = *input.MinSampleSize
	}
	if input.ConfidenceLevel != nil {
		test.ConfidenceLevel = *input.ConfidenceLevel
	}
	if test.CreatedBy == "" {
		test.CreatedBy = "system"
	}

	if err := s.db.Create(test).Error; err != nil {
		return nil, fmt.Errorf("创建A/B测试失败: %w", err)
	}
	return test, nil
}

// GetTest 按ID获取测试
func (s *ABTestService) GetTest(testID string) (*models.ABTest, error) {
	var test models.ABTest
	if err := s.db.First(&test, "id = ?", testID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("A/B测试不存在: %s", testID)
		}
		return nil, fmt.Errorf("查询A/B测试失败: %w", err)
	}
	return &test, nil
}

// StartTest 启动测试并记录开始时间，仅 draft 和 paused 状态可启动
func (s *ABTestService) StartTest(testID string) (*models.ABTest, error) {
	test, err := s.GetTest(testID)
	if err != nil {
		return nil, err
	}
	if test.Status != models.ABTestStatusDraft && test.Status != models.ABTestStatusPaused {
		return nil, fmt.Errorf("状态 %s 的测试不可启动", test.Status)
	}

	now := time.Now()
	updates := map[string]interface{}{"status": models.ABTestStatusRunning}
	if test.StartDate == nil {
		updates["start_date"] = &now
	}
	if err := s.db.Model(test).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("启动A/B测试失败: %w", err)
	}
	return test, nil
}

// PauseTest 暂停运行中的测试
func (s *ABTestService) PauseTest(testID string) (*models.ABTest, error) {
	test, err := s.GetTest(testID)
	if err != nil {
		return nil, err
	}
	if test.Status != models.ABTestStatusRunning {
		return nil, fmt.Errorf("状态 %s 的测试不可暂停", test.Status)
	}
	if err := s.db.Model(test).Update("status", models.ABTestStatusPaused).Error; err != nil {
		return nil, fmt.Errorf("暂停A/B测试失败: %w", err)
	}
	return test, nil
}

// CompleteTest 完成测试并记录胜出模型，completed/cancelled 为终态不可再变更
func (s *ABTestService) CompleteTest(testID, winnerModelID, winnerReason string) (*models.ABTest, error) {
	test, err := s.GetTest(testID)
	if err != nil {
		return nil, err
	}
	if test.Status == models.ABTestStatusCompleted || test.Status == models.ABTestStatusCancelled {
		return nil, fmt.Errorf("状态 %s 的测试不可完成", test.Status)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":   models.ABTestStatusCompleted,
		"end_date": &now,
	}
	if winnerModelID != "" {
		updates["winner_model_id"] = winnerModelID
	}
	if winnerReason != "" {
		updates["winner_reason"] = winnerReason
	}
	if err := s.db.Model(test).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("完成A/B测试失败: %w", err)
	}
	slog.Info("A/B测试已完成", "test_id", testID, "winner_model_id", winnerModelID)
	return test, nil
}

// CancelTest 取消测试
func (s *ABTestService) CancelTest(testID string) (*models.ABTest, error) {
	test, err := s.GetTest(testID)
	if err != nil {
		return nil, err
	}
	if test.Status == models.ABTestStatusCompleted || test.Status == models.ABTestStatusCancelled {
		return nil, fmt.Errorf("状态 %s 的测试不可取消", test.Status)
	}

	now := time.Now()
	if err := s.db.Model(test).Updates(map[string]interface{}{
		"status":   models.ABTestStatusCancelled,
		"end_date": &now,
	}).Error; err != nil {
		return nil, fmt.Errorf("取消A/B测试失败: %w", err)
	}
	return test, nil
}

// TestListOptions 测试列表查询条件
type TestListOptions struct {
	Status string
	Limit  int
	Offset int
}

// ListTests 分页查询测试
func (s *ABTestService) ListTests(options *TestListOptions) ([]models.ABTest, int64, error) {
	query := s.db.Model(&models.ABTest{})
	if options.Status != "" {
		query = query.Where("status = ?", options.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计A/B测试数量失败: %w", err)
	}

	limit := options.Limit
	if limit <= 0 {
		limit = 50
	}
	var tests []models.ABTest
	err := query.Order("created_at DESC").Limit(limit).Offset(options.Offset).Find(&tests).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询A/B测试列表失败: %w", err)
	}
	return tests, total, nil
}

// GetRunningTests 获取运行中的测试
func (s *ABTestService) GetRunningTests() ([]models.ABTest, error) {
	return models.GetRunningABTests(s.db)
}

// ModelSelection 流量分配结果
type ModelSelection struct {
	ModelID string `json:"model_id"`
	Variant string `json:"variant"`
}

// SelectModelForPrediction 按流量分配比例随机选择变体
func (s *ABTestService) SelectModelForPrediction(test *models.ABTest) ModelSelection {
	if rand.Float64()*100 < float64(test.TrafficSplitA) {
		return ModelSelection{ModelID: test.ModelAID, Variant: "A"}
	}
	return ModelSelection{ModelID: test.ModelBID, Variant: "B"}
}

// RecordResultInput 结果记录入参
type RecordResultInput struct {
	TestID         string   `json:"test_id"`
	Variant        string   `json:"variant"`
	PredictionID   string   `json:"prediction_id,omitempty"`
	PredictedValue *float64 `json:"predicted_value,omitempty"`
	ActualValue    *float64 `json:"actual_value,omitempty"`
	IsCorrect      *bool    `json:"is_correct,omitempty"`
	ResponseTimeMs int      `json:"response_time_ms,omitempty"`
}

// RecordResult 追加一条预测结果
func (s *ABTestService) RecordResult(input *RecordResultInput) (*models.ABTestResult, error) {
	if input.Variant != "A" && input.Variant != "B" {
		return nil, fmt.Errorf("非法的变体标识: %s", input.Variant)
	}
	test, err := s.GetTest(input.TestID)
	if err != nil {
		return nil, err
	}

	modelID := test.ModelAID
	if input.Variant == "B" {
		modelID = test.ModelBID
	}
	result := &models.ABTestResult{
		TestID:         input.TestID,
		Variant:        input.Variant,
		ModelID:        modelID,
		PredictionID:   input.PredictionID,
		IsCorrect:      input.IsCorrect,
		ResponseTimeMs: input.ResponseTimeMs,
	}
	if input.PredictedValue != nil {
		result.PredictedValue = models.DecimalPtr(*input.PredictedValue)
	}
	if input.ActualValue != nil {
		result.ActualValue = models.DecimalPtr(*input.ActualValue)
	}

	if err := s.db.Create(result).Error; err != nil {
		return nil, fmt.Errorf("记录测试结果失败: %w", err)
	}
	return result, nil
}

// VariantStats 单个变体的聚合统计
type VariantStats struct {
	Variant            string  `json:"variant"`
	TotalPredictions   int     `json:"total_predictions"`
	CorrectPredictions int     `json:"correct_predictions"`
	Accuracy           float64 `json:"accuracy"`
	MeanError          float64 `json:"mean_error"`
	MAE                float64 `json:"mae"`
	RMSE               float64 `json:"rmse"`
	AvgResponseTimeMs  float64 `json:"avg_response_time_ms"`
}

// GetTestStats 计算测试两个变体的聚合统计
func (s *ABTestService) GetTestStats(testID string) (*VariantStats, *VariantStats, error) {
	if _, err := s.GetTest(testID); err != nil {
		return nil, nil, err
	}
	statsA, err := s.calculateVariantStats(testID, "A")
	if err != nil {
		return nil, nil, err
	}
	statsB, err := s.calculateVariantStats(testID, "B")
	if err != nil {
		return nil, nil, err
	}
	return statsA, statsB, nil
}

func (s *ABTestService) calculateVariantStats(testID, variant string) (*VariantStats, error) {
	var results []models.ABTestResult
	err := s.db.Where("test_id = ? AND variant = ?", testID, variant).Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("查询测试结果失败: %w", err)
	}

	stats := &VariantStats{Variant: variant, TotalPredictions: len(results)}
	var sumError, sumAbsError, sumSquaredError, sumResponseTime float64
	errorCount, responseTimeCount := 0, 0

	for _, r := range results {
		if r.IsCorrect != nil && *r.IsCorrect {
			stats.CorrectPredictions++
		}
		if r.ActualValue != nil && r.PredictedValue != nil {
			diff := models.DecimalValue(r.ActualValue) - models.DecimalValue(r.PredictedValue)
			sumError += diff
			sumAbsError += math.Abs(diff)
			sumSquaredError += diff * diff
			errorCount++
		}
		if r.ResponseTimeMs > 0 {
			sumResponseTime += float64(r.ResponseTimeMs)
			responseTimeCount++
		}
	}

	if stats.TotalPredictions > 0 {
		stats.Accuracy = float64(stats.CorrectPredictions) / float64(stats.TotalPredictions)
	}
	if errorCount > 0 {
		stats.MeanError = sumError / float64(errorCount)
		stats.MAE = sumAbsError / float64(errorCount)
		stats.RMSE = math.Sqrt(sumSquaredError / float64(errorCount))
	}
	if responseTimeCount > 0 {
		stats.AvgResponseTimeMs = sumResponseTime / float64(responseTimeCount)
	}
	return stats, nil
}

// ConfidenceInterval 准确率差值的置信区间
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// WinnerResult 显著性判定结果，Winner 取值 A/B/tie/空（样本不足）
type WinnerResult struct {
	Winner             string             `json:"winner"`
	IsSignificant      bool               `json:"is_significant"`
	PValue             float64            `json:"p_value"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
}

// DetermineWinner 两比例 z 检验：任一侧样本量不足 30 不判定；
// 合并标准误为零视为平局；p = 2(1-Φ(|z|))，p < 1-置信水平判定显著
func DetermineWinner(statsA, statsB *VariantStats, confidenceLevel float64) WinnerResult {
	nA, nB := statsA.TotalPredictions, statsB.TotalPredictions
	if nA < minSamplesForSignificance || nB < minSamplesForSignificance {
		return WinnerResult{PValue: 1, ConfidenceInterval: ConfidenceInterval{Lower: -1, Upper: 1}}
	}

	pA, pB := statsA.Accuracy, statsB.Accuracy
	diff := pA - pB

	pooledSE := math.Sqrt(pA*(1-pA)/float64(nA) + pB*(1-pB)/float64(nB))
	if pooledSE == 0 {
		return WinnerResult{Winner: "tie", PValue: 1}
	}

	zScore := diff / pooledSE
	pValue := 2 * (1 - normalCDF(math.Abs(zScore)))

	margin := zCritical(confidenceLevel) * pooledSE
	result := WinnerResult{
		PValue:             pValue,
		IsSignificant:      pValue < 1-confidenceLevel,
		ConfidenceInterval: ConfidenceInterval{Lower: diff - margin, Upper: diff + margin},
	}
	if result.IsSignificant {
		switch {
		case diff > 0:
			result.Winner = "A"
		case diff < 0:
			result.Winner = "B"
		default:
			result.Winner = "tie"
		}
	}
	return result
}

// normalCDF 标准正态分布累积函数，Abramowitz-Stegun 误差函数近似
func normalCDF(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2
	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)
	return 0.5 * (1.0 + sign*y)
}

// zCritical 常用置信水平对应的 z 临界值，未知水平回退到 1.96
func zCritical(confidenceLevel float64) float64 {
	switch confidenceLevel {
	case 0.90:
		return 1.645
	case 0.95:
		return 1.96
	case 0.99:
		return 2.576
	default:
		return 1.96
	}
}

// Comparison 模型对比结果
type Comparison struct {
	TestID            string        `json:"test_id"`
	TestName          string        `json:"test_name"`
	Status            string        `json:"status"`
	StatsA            *VariantStats `json:"stats_a"`
	StatsB            *VariantStats `json:"stats_b"`
	WinnerResult      WinnerResult  `json:"winner_result"`
	SampleSizeReached bool          `json:"sample_size_reached"`
	Recommendation    string        `json:"recommendation"`
}

// CompareModels 对比两个变体并给出部署建议
func (s *ABTestService) CompareModels(testID string) (*Comparison, error) {
	test, err := s.GetTest(testID)
	if err != nil {
		return nil, err
	}
	statsA, statsB, err := s.GetTestStats(testID)
	if err != nil {
		return nil, err
	}

	winnerResult := DetermineWinner(statsA, statsB, test.ConfidenceLevel)
	sampleSizeReached := statsA.TotalPredictions >= test.MinSampleSize &&
		statsB.TotalPredictions >= test.MinSampleSize

	var recommendation string
	switch {
	case !sampleSizeReached:
		needA := test.MinSampleSize - statsA.TotalPredictions
		if needA < 0 {
			needA = 0
		}
		needB := test.MinSampleSize - statsB.TotalPredictions
		if needB < 0 {
			needB = 0
		}
		recommendation = fmt.Sprintf("样本量未达标，A组还需 %d 条、B组还需 %d 条预测结果", needA, needB)
	case !winnerResult.IsSignificant:
		recommendation = "两个模型尚无统计显著差异，建议继续收集数据或调整流量分配"
	case winnerResult.Winner == "A":
		recommendation = fmt.Sprintf("A组模型表现更优，准确率 %.2f%%，建议部署A组模型", statsA.Accuracy*100)
	case winnerResult.Winner == "B":
		recommendation = fmt.Sprintf("B组模型表现更优，准确率 %.2f%%，建议部署B组模型", statsB.Accuracy*100)
	default:
		recommendation = "两个模型表现相当，可任选其一"
	}

	return &Comparison{
		TestID:            testID,
		TestName:          test.Name,
		Status:            test.Status,
		StatsA:            statsA,
		StatsB:            statsB,
		WinnerResult:      winnerResult,
		SampleSizeReached: sampleSizeReached,
		Recommendation:    recommendation,
	}, nil
}

// UpdateStats 重建测试的聚合统计行并回写检验结论
func (s *ABTestService) UpdateStats(testID string) error {
	comparison, err := s.CompareModels(testID)
	if err != nil {
		return err
	}
	test, err := s.GetTest(testID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("test_id = ?", testID).Delete(&models.ABTestStat{}).Error; err != nil {
			return fmt.Errorf("清理旧统计失败: %w", err)
		}
		for _, stats := range []*VariantStats{comparison.StatsA, comparison.StatsB} {
			row := &models.ABTestStat{
				TestID:            testID,
				Variant:           stats.Variant,
				TotalPredictions:  stats.TotalPredictions,
				CorrectCount:      stats.CorrectPredictions,
				Accuracy:          models.DecimalPtr(stats.Accuracy),
				MeanError:         models.DecimalPtr(stats.MeanError),
				MAE:               models.DecimalPtr(stats.MAE),
				RMSE:              models.DecimalPtr(stats.RMSE),
				AvgResponseTimeMs: models.DecimalPtr(stats.AvgResponseTimeMs),
			}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("写入聚合统计失败: %w", err)
			}
		}

		updates := map[string]interface{}{
			"p_value":        models.DecimalPtr(comparison.WinnerResult.PValue),
			"is_significant": comparison.WinnerResult.IsSignificant,
		}
		switch comparison.WinnerResult.Winner {
		case "A":
			updates["winner_model_id"] = test.ModelAID
		case "B":
			updates["winner_model_id"] = test.ModelBID
		}
		if err := tx.Model(test).Updates(updates).Error; err != nil {
			return fmt.Errorf("回写检验结论失败: %w", err)
		}
		return nil
	})
}

// AutoCompleteIfReady 满足完成条件时自动结束测试：
// 样本量达标且显著时立即完成；计划结束时间已过时按当前领先方完成
func (s *ABTestService) AutoCompleteIfReady(testID string) (bool, error) {
	test, err := s.GetTest(testID)
	if err != nil {
		return false, err
	}
	if test.Status != models.ABTestStatusRunning {
		return false, nil
	}

	comparison, err := s.CompareModels(testID)
	if err != nil {
		return false, err
	}

	winnerID := ""
	switch comparison.WinnerResult.Winner {
	case "A":
		winnerID = test.ModelAID
	case "B":
		winnerID = test.ModelBID
	}

	if comparison.SampleSizeReached && comparison.WinnerResult.IsSignificant {
		if err := s.UpdateStats(testID); err != nil {
			return false, err
		}
		if _, err := s.CompleteTest(testID, winnerID, comparison.Recommendation); err != nil {
			return false, err
		}
		return true, nil
	}

	if test.EndDate != nil && test.EndDate.Before(time.Now()) {
		// 到期未显著时按当前准确率领先方收尾，持平则不记录胜者
		if winnerID == "" {
			switch {
			case comparison.StatsA.Accuracy > comparison.StatsB.Accuracy:
				winnerID = test.ModelAID
			case comparison.StatsB.Accuracy > comparison.StatsA.Accuracy:
				winnerID = test.ModelBID
			}
		}
		if err := s.UpdateStats(testID); err != nil {
			return false, err
		}
		if _, err := s.CompleteTest(testID, winnerID, "测试到达计划结束时间"); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
