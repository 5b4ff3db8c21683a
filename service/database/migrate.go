/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新模型监控相关表结构
 * @architecture 数据访问层 - 迁移管理
 * @stateFlow 应用启动时执行数据库迁移
 * @rules 确保数据库结构与模型定义保持一致
 * @dependencies modelops-service/service/models, gorm.io/gorm
 * @refs service/init.go
 */

package database

import (
	"log"

	"gorm.io/gorm"

	"modelops-service/service/models"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	log.Println("开始数据库迁移...")

	// 模型与版本管理相关表
	err := db.AutoMigrate(
		&models.MLModel{},
		&models.ModelVersion{},
		&models.RollbackRecord{},
	)
	if err != nil {
		return err
	}

	// 漂移监控相关表
	err = db.AutoMigrate(
		&models.DriftConfig{},
		&models.DriftAlert{},
		&models.MetricsSample{},
		&models.FeatureStatistics{},
		&models.DriftCheckRun{},
	)
	if err != nil {
		return err
	}

	// A/B 测试相关表
	err = db.AutoMigrate(
		&models.ABTest{},
		&models.ABTestResult{},
		&models.ABTestStat{},
	)
	if err != nil {
		return err
	}

	// 阈值与通知配置表
	err = db.AutoMigrate(
		&models.ThresholdConfig{},
		&models.NotificationConfig{},
	)
	if err != nil {
		return err
	}

	log.Println("数据库迁移完成")
	return nil
}
