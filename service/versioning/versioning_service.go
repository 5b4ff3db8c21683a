/*
 * @module service/versioning/versioning_service
 * @description 模型版本管理服务，负责版本创建、部署、回滚、退役与版本对比
 * @architecture 分层架构 - 业务逻辑层
 * @stateFlow 版本创建（未激活） -> 部署激活 -> 回滚/退役/恢复
 * @rules 激活切换在事务内完成保证至多一个激活版本；回滚记录先落库再执行，失败时标记 failed
 * @dependencies gorm.io/gorm
 * @refs service/models/ml_model.go, service/monitoring/check_service.go
 */

package versioning

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gorm.io/gorm"

	"modelops-service/service/models"
)

// metricEpsilon 指标对比的相等容差
const metricEpsilon = 0.0001

// VersioningService 模型版本管理服务
type VersioningService struct {
	db *gorm.DB
}

// NewVersioningService 创建版本管理服务实例
func NewVersioningService(db *gorm.DB) *VersioningService {
	return &VersioningService{db: db}
}

// VersionInput 版本创建入参
type VersionInput struct {
	ModelID           string             `json:"model_id"`
	Accuracy          *float64           `json:"accuracy,omitempty"`
	Precision         *float64           `json:"precision,omitempty"`
	Recall            *float64           `json:"recall,omitempty"`
	F1Score           *float64           `json:"f1_score,omitempty"`
	MAE               *float64           `json:"mae,omitempty"`
	RMSE              *float64           `json:"rmse,omitempty"`
	Hyperparameters   models.JSONB       `json:"hyperparameters,omitempty"`
	FeatureImportance models.JSONB       `json:"feature_importance,omitempty"`
	ChangeLog         string             `json:"change_log,omitempty"`
	CreatedBy         string             `json:"created_by,omitempty"`
}

// formatVersion 由内部版本号生成语义化版本串：major=n/100, minor=(n%100)/10, patch=n%10
func formatVersion(n int) string {
	return fmt.Sprintf("%d.%d.%d", n/100, (n%100)/10, n%10)
}

// CreateVersion 创建新版本，版本号在该模型下单调递增，初始为未激活可回滚状态
func (s *VersioningService) CreateVersion(input *VersionInput) (*models.ModelVersion, error) {
	if input.ModelID == "" {
		return nil, errors.New("模型ID不能为空")
	}

	var version *models.ModelVersion
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var maxNumber int
		row := tx.Model(&models.ModelVersion{}).
			Where("model_id = ?", input.ModelID).
			Select("COALESCE(MAX(version_number), 0)").Row()
		if err := row.Scan(&maxNumber); err != nil {
			return fmt.Errorf("查询最大版本号失败: %w", err)
		}

		next := maxNumber + 1
		version = &models.ModelVersion{
			ModelID:           input.ModelID,
			Version:           formatVersion(next),
			VersionNumber:     next,
			Hyperparameters:   input.Hyperparameters,
			FeatureImportance: input.FeatureImportance,
			IsActive:          false,
			IsRollbackTarget:  true,
			ChangeLog:         input.ChangeLog,
			CreatedBy:         input.CreatedBy,
		}
		if version.CreatedBy == "" {
			version.CreatedBy = "system"
		}
		if input.Accuracy != nil {
			version.Accuracy = models.DecimalPtr(*input.Accuracy)
		}
		if input.Precision != nil {
			version.Precision = models.DecimalPtr(*input.Precision)
		}
		if input.Recall != nil {
			version.Recall = models.DecimalPtr(*input.Recall)
		}
		if input.F1Score != nil {
			version.F1Score = models.DecimalPtr(*input.F1Score)
		}
		if input.MAE != nil {
			version.MAE = models.DecimalPtr(*input.MAE)
		}
		if input.RMSE != nil {
			version.RMSE = models.DecimalPtr(*input.RMSE)
		}

		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("创建模型版本失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// GetVersion 按ID获取版本
func (s *VersioningService) GetVersion(versionID string) (*models.ModelVersion, error) {
	var version models.ModelVersion
	if err := s.db.First(&version, "id = ?", versionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("模型版本不存在: %s", versionID)
		}
		return nil, fmt.Errorf("查询模型版本失败: %w", err)
	}
	return &version, nil
}

// GetActiveVersion 获取模型当前激活版本，不存在时返回 nil
func (s *VersioningService) GetActiveVersion(modelID string) (*models.ModelVersion, error) {
	version, err := models.GetActiveVersion(s.db, modelID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询激活版本失败: %w", err)
	}
	return version, nil
}

// ListVersions 按版本号倒序列出模型版本，默认不含已退役版本
func (s *VersioningService) ListVersions(modelID string, includeRetired bool) ([]models.ModelVersion, error) {
	query := s.db.Where("model_id = ?", modelID)
	if !includeRetired {
		query = query.Where("retired_at IS NULL")
	}
	var versions []models.ModelVersion
	if err := query.Order("version_number DESC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("查询版本列表失败: %w", err)
	}
	return versions, nil
}

// DeployVersion 部署版本：事务内取消当前激活版本并激活目标版本
func (s *VersioningService) DeployVersion(versionID string) (*models.ModelVersion, error) {
	version, err := s.GetVersion(versionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ModelVersion{}).
			Where("model_id = ? AND is_active = ?", version.ModelID, true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("取消旧激活版本失败: %w", err)
		}
		if err := tx.Model(version).Updates(map[string]interface{}{
			"is_active":   true,
			"deployed_at": &now,
		}).Error; err != nil {
			return fmt.Errorf("激活目标版本失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("模型版本已部署", "model_id", version.ModelID, "version", version.Version)
	return version, nil
}

// Rollback 回滚到指定版本：先落库回滚记录，切换失败时记录标记为 failed 并返回错误
func (s *VersioningService) Rollback(modelID, toVersionID, reason, rollbackType, triggeredBy string) (*models.RollbackRecord, error) {
	target, err := s.GetVersion(toVersionID)
	if err != nil {
		return nil, err
	}
	if target.ModelID != modelID {
		return nil, fmt.Errorf("目标版本不属于该模型: %s", toVersionID)
	}
	if !target.IsRollbackTarget {
		return nil, fmt.Errorf("版本 %s 不可作为回滚目标", target.Version)
	}

	current, err := s.GetActiveVersion(modelID)
	if err != nil {
		return nil, err
	}

	if triggeredBy == "" {
		triggeredBy = "system"
	}
	record := &models.RollbackRecord{
		ModelID:      modelID,
		ToVersionID:  toVersionID,
		Reason:       reason,
		RollbackType: rollbackType,
		TriggeredBy:  triggeredBy,
		Status:       "in_progress",
	}
	if current != nil {
		record.FromVersionID = &current.ID
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("创建回滚记录失败: %w", err)
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ModelVersion{}).
			Where("model_id = ? AND is_active = ?", modelID, true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("取消当前激活版本失败: %w", err)
		}
		if err := tx.Model(target).Updates(map[string]interface{}{
			"is_active":   true,
			"deployed_at": &now,
		}).Error; err != nil {
			return fmt.Errorf("激活回滚目标版本失败: %w", err)
		}
		return nil
	})
	if err != nil {
		s.db.Model(record).Updates(map[string]interface{}{
			"status":        "failed",
			"error_message": err.Error(),
		})
		return nil, fmt.Errorf("模型回滚失败: %w", err)
	}

	if err := s.db.Model(record).Updates(map[string]interface{}{
		"status":       "completed",
		"completed_at": &now,
	}).Error; err != nil {
		return nil, fmt.Errorf("更新回滚记录失败: %w", err)
	}
	slog.Info("模型已回滚", "model_id", modelID, "to_version", target.Version, "type", rollbackType)
	return record, nil
}

// AutoRollbackResult 自动回滚结果
type AutoRollbackResult struct {
	Rolled    bool                 `json:"rolled"`
	ToVersion *models.ModelVersion `json:"to_version,omitempty"`
}

// AutoRollbackIfNeeded 当前准确率相对激活版本基线下降超过阈值时自动回滚到最近可回滚版本。
// 无激活版本、基线为零或无可回滚目标时不执行
func (s *VersioningService) AutoRollbackIfNeeded(modelID string, currentAccuracy, threshold float64) (*AutoRollbackResult, error) {
	active, err := s.GetActiveVersion(modelID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return &AutoRollbackResult{Rolled: false}, nil
	}
	baseline := models.DecimalValue(active.Accuracy)
	if baseline <= 0 {
		return &AutoRollbackResult{Rolled: false}, nil
	}

	drop := (baseline - currentAccuracy) / baseline
	if drop <= threshold {
		return &AutoRollbackResult{Rolled: false}, nil
	}

	target, err := models.GetLatestRollbackTarget(s.db, modelID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Warn("准确率下降超过阈值但无可回滚版本", "model_id", modelID, "drop", drop)
		return &AutoRollbackResult{Rolled: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询回滚目标失败: %w", err)
	}

	reason := fmt.Sprintf("准确率下降 %.2f%% 超过自动回滚阈值 %.2f%%", drop*100, threshold*100)
	if _, err := s.Rollback(modelID, target.ID, reason, "automatic", "system"); err != nil {
		return nil, err
	}
	return &AutoRollbackResult{Rolled: true, ToVersion: target}, nil
}

// RetireVersion 退役版本，激活中的版本不可退役
func (s *VersioningService) RetireVersion(versionID string) (*models.ModelVersion, error) {
	version, err := s.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	if version.IsActive {
		return nil, errors.New("激活中的版本不可退役")
	}

	now := time.Now()
	if err := s.db.Model(version).Updates(map[string]interface{}{
		"is_rollback_target": false,
		"retired_at":         &now,
	}).Error; err != nil {
		return nil, fmt.Errorf("退役版本失败: %w", err)
	}
	return version, nil
}

// RestoreVersion 恢复已退役版本为可回滚状态
func (s *VersioningService) RestoreVersion(versionID string) (*models.ModelVersion, error) {
	version, err := s.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(version).Updates(map[string]interface{}{
		"is_rollback_target": true,
		"retired_at":         nil,
	}).Error; err != nil {
		return nil, fmt.Errorf("恢复版本失败: %w", err)
	}
	version.RetiredAt = nil
	return version, nil
}

// MetricComparison 单项指标对比
type MetricComparison struct {
	Metric string  `json:"metric"`
	ValueA float64 `json:"value_a"`
	ValueB float64 `json:"value_b"`
	Winner string  `json:"winner"` // a, b, tie
}

// VersionComparison 版本对比结果
type VersionComparison struct {
	VersionA *models.ModelVersion `json:"version_a"`
	VersionB *models.ModelVersion `json:"version_b"`
	Metrics  []MetricComparison   `json:"metrics"`
	Overall  string               `json:"overall"` // a, b, tie
}

// CompareVersions 对比两个版本的全部指标，准确率类越高越好，误差类越低越好
func (s *VersioningService) CompareVersions(versionAID, versionBID string) (*VersionComparison, error) {
	versionA, err := s.GetVersion(versionAID)
	if err != nil {
		return nil, err
	}
	versionB, err := s.GetVersion(versionBID)
	if err != nil {
		return nil, err
	}

	type metricDef struct {
		name         string
		a, b         *string
		higherBetter bool
	}
	defs := []metricDef{
		{"accuracy", versionA.Accuracy, versionB.Accuracy, true},
		{"precision", versionA.Precision, versionB.Precision, true},
		{"recall", versionA.Recall, versionB.Recall, true},
		{"f1_score", versionA.F1Score, versionB.F1Score, true},
		{"mae", versionA.MAE, versionB.MAE, false},
		{"rmse", versionA.RMSE, versionB.RMSE, false},
	}

	comparison := &VersionComparison{VersionA: versionA, VersionB: versionB}
	winsA, winsB := 0, 0
	for _, def := range defs {
		if def.a == nil || def.b == nil {
			continue // 任一侧缺失的指标不参与对比
		}
		valueA := models.DecimalValue(def.a)
		valueB := models.DecimalValue(def.b)

		winner := "tie"
		if math.Abs(valueA-valueB) > metricEpsilon {
			better := valueA > valueB
			if !def.higherBetter {
				better = !better
			}
			if better {
				winner = "a"
				winsA++
			} else {
				winner = "b"
				winsB++
			}
		}
		comparison.Metrics = append(comparison.Metrics, MetricComparison{
			Metric: def.name,
			ValueA: valueA,
			ValueB: valueB,
			Winner: winner,
		})
	}

	comparison.Overall = "tie"
	if winsA > winsB {
		comparison.Overall = "a"
	} else if winsB > winsA {
		comparison.Overall = "b"
	}
	return comparison, nil
}

// GetRollbackHistory 按时间倒序查询模型回滚历史
func (s *VersioningService) GetRollbackHistory(modelID string) ([]models.RollbackRecord, error) {
	var records []models.RollbackRecord
	err := s.db.Where("model_id = ?", modelID).Order("created_at DESC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询回滚历史失败: %w", err)
	}
	return records, nil
}

// TrendPoint 性能趋势数据点
type TrendPoint struct {
	Version       string     `json:"version"`
	VersionNumber int        `json:"version_number"`
	Value         *float64   `json:"value"`
	DeployedAt    *time.Time `json:"deployed_at,omitempty"`
}

// GetPerformanceTrend 查询模型各版本某项指标的变化趋势，按版本号升序
func (s *VersioningService) GetPerformanceTrend(modelID, metric string) ([]TrendPoint, error) {
	versions, err := s.ListVersions(modelID, true)
	if err != nil {
		return nil, err
	}

	points := make([]TrendPoint, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		var raw *string
		switch metric {
		case "accuracy":
			raw = v.Accuracy
		case "precision":
			raw = v.Precision
		case "recall":
			raw = v.Recall
		case "f1_score":
			raw = v.F1Score
		case "mae":
			raw = v.MAE
		case "rmse":
			raw = v.RMSE
		default:
			return nil, fmt.Errorf("不支持的指标: %s", metric)
		}

		point := TrendPoint{Version: v.Version, VersionNumber: v.VersionNumber, DeployedAt: v.DeployedAt}
		if raw != nil {
			value := models.DecimalValue(raw)
			point.Value = &value
		}
		points = append(points, point)
	}
	return points, nil
}
