/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、表迁移与各业务服务装配
 * @architecture 分层架构 - 服务层
 * @stateFlow 应用启动时执行初始化流程
 * @rules 确保所有依赖服务正常启动后才提供API服务；Redis 不可用时降级为无锁单实例模式
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres
 * @refs service/database/migrate.go, service/monitoring/check_scheduler.go
 */

package service

import (
	"fmt"
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"modelops-service/logger"
	"modelops-service/service/abtest"
	"modelops-service/service/database"
	"modelops-service/service/distributed_lock"
	"modelops-service/service/drift"
	"modelops-service/service/monitoring"
	"modelops-service/service/threshold"
	"modelops-service/service/versioning"
)

var (
	DB                        *gorm.DB
	GlobalDriftService        *drift.DriftService
	GlobalVersioningService   *versioning.VersioningService
	GlobalABTestService       *abtest.ABTestService
	GlobalThresholdService    *threshold.ThresholdService
	GlobalNotificationService *monitoring.NotificationService
	GlobalCheckService        *monitoring.CheckService
	GlobalCheckScheduler      *monitoring.CheckScheduler
)

func init() {
	logger.InitLogger()
	initDatabase()
	runMigrations()
	initServices()
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var dsn string

	// 优先使用DATABASE_URL环境变量
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		// 使用分离的环境变量构建连接字符串
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "things2024")
		dbname := getEnvWithDefault("DB_NAME", "postgres")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=Asia/Shanghai",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	log.Println("数据库连接成功")
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移
func runMigrations() {
	if err := database.AutoMigrate(DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库表结构迁移完成")
}

// initServices 初始化服务
func initServices() {
	GlobalDriftService = drift.NewDriftService(DB)
	GlobalVersioningService = versioning.NewVersioningService(DB)
	GlobalABTestService = abtest.NewABTestService(DB)
	GlobalThresholdService = threshold.NewThresholdService(DB)
	GlobalNotificationService = monitoring.NewNotificationService(DB)

	// 多实例部署时启用Redis分布式锁，Redis不可用则降级为无锁模式
	var lock distributed_lock.DistributedLock
	if os.Getenv("REDIS_HOST") != "" {
		redisLock, err := distributed_lock.NewRedisLock()
		if err != nil {
			log.Printf("Redis分布式锁初始化失败，降级为无锁模式: %v", err)
		} else {
			lock = redisLock
		}
	}

	GlobalCheckService = monitoring.NewCheckService(DB, GlobalDriftService,
		GlobalVersioningService, GlobalNotificationService, lock)
	GlobalCheckScheduler = monitoring.NewCheckScheduler(GlobalCheckService,
		GlobalThresholdService, GlobalABTestService, lock)

	if err := GlobalCheckScheduler.Start(); err != nil {
		log.Printf("启动监控调度器失败: %v", err)
	}
	log.Println("服务初始化完成")
}
