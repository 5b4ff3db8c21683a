/*
 * @module service/models/jsonb
 * @description JSONB 自定义类型定义，包含通用映射类型与漂移监控领域的结构化 JSONB 类型
 * @architecture 分层架构 - 数据模型层
 * @documentReference ai_docs/model_monitoring_impl.md
 * @stateFlow 数据库 JSONB 列 <-> Go 结构体序列化
 * @rules 所有 JSONB 类型必须实现 sql.Scanner 与 driver.Valuer 接口
 * @dependencies database/sql/driver, encoding/json
 * @refs service/models/drift_models.go
 */

package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// 通用 JSON 类型
type JSONB map[string]interface{}

// JSONBStringArray 用于存储字符串数组的 JSONB 类型
type JSONBStringArray []string

// HistogramBins 特征直方图，键为分桶中心值的字符串表示，值为落入该桶的样本数
type HistogramBins map[string]int

// DriftDetail 单项漂移明细，记录指标的基线值、当前值与变化幅度
type DriftDetail struct {
	Metric        string  `json:"metric"`
	BaselineValue float64 `json:"baseline_value"`
	CurrentValue  float64 `json:"current_value"`
	ChangePercent float64 `json:"change_percent"`
	Threshold     float64 `json:"threshold"`
}

// DriftDetailList 漂移明细列表，存储于告警记录的 JSONB 列
type DriftDetailList []DriftDetail

// CalculatedThresholds 自适应阈值计算结果，持久化于阈值配置的 JSONB 列
type CalculatedThresholds struct {
	AccuracyDropThreshold    float64   `json:"accuracy_drop_threshold"`
	FeatureDriftThreshold    float64   `json:"feature_drift_threshold"`
	PredictionDriftThreshold float64   `json:"prediction_drift_threshold"`
	Confidence               float64   `json:"confidence"`
	SampleCount              int       `json:"sample_count"`
	Algorithm                string    `json:"algorithm"`
	CalculatedAt             time.Time `json:"calculated_at"`
}

func scanJSONB(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("类型断言失败: 不是 []byte 或 string")
	}
	return json.Unmarshal(bytes, dest)
}

// 实现 Scanner 接口
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	return scanJSONB(value, j)
}

// 实现 Valuer 接口
func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// JSONBStringArray 的 Scanner 接口实现
func (j *JSONBStringArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	return scanJSONB(value, j)
}

// JSONBStringArray 的 Valuer 接口实现
func (j JSONBStringArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// HistogramBins 的 Scanner 接口实现
func (h *HistogramBins) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	return scanJSONB(value, h)
}

// HistogramBins 的 Valuer 接口实现
func (h HistogramBins) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

// DriftDetailList 的 Scanner 接口实现
func (d *DriftDetailList) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	return scanJSONB(value, d)
}

// DriftDetailList 的 Valuer 接口实现
func (d DriftDetailList) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// CalculatedThresholds 的 Scanner 接口实现
func (c *CalculatedThresholds) Scan(value interface{}) error {
	if value == nil {
		*c = CalculatedThresholds{}
		return nil
	}
	return scanJSONB(value, c)
}

// CalculatedThresholds 的 Valuer 接口实现
func (c CalculatedThresholds) Value() (driver.Value, error) {
	return json.Marshal(c)
}
