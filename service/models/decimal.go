/*
 * @module service/models/decimal
 * @description decimal 列与 float64 之间的转换辅助，模型指标以字符串形式持久化避免浮点精度漂移
 * @architecture 分层架构 - 数据模型层
 * @documentReference ai_docs/model_monitoring_impl.md
 * @stateFlow 数据库 decimal 列 -> *string 字段 -> 计算层 float64
 * @rules 仅在计算边界做数值转换，存储层始终保持字符串形式
 * @dependencies github.com/spf13/cast
 * @refs service/versioning, service/abtest
 */

package models

import (
	"strconv"

	"github.com/spf13/cast"
)

// DecimalValue 将可空的 decimal 字符串字段转换为 float64，空指针或非法值返回 0
func DecimalValue(s *string) float64 {
	if s == nil {
		return 0
	}
	return cast.ToFloat64(*s)
}

// DecimalPtr 将 float64 转换为 decimal 字符串指针，用于写入可空指标列
func DecimalPtr(f float64) *string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return &s
}
