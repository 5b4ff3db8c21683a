/*
 * @module service/monitoring/check_scheduler
 * @description 监控定时调度器，驱动漂移巡检、自适应阈值重算与 A/B 测试自动收尾
 * @architecture 分层架构 - 调度层
 * @stateFlow 启动注册 cron 任务 -> 周期触发 -> 分布式锁防重 -> 执行业务
 * @rules 调度任务失败只记录日志，下个周期继续；多实例部署时同名任务经分布式锁串行
 * @dependencies github.com/robfig/cron/v3
 * @refs service/monitoring/check_service.go, service/threshold/threshold_service.go
 */

package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"modelops-service/service/abtest"
	"modelops-service/service/distributed_lock"
	"modelops-service/service/models"
	"modelops-service/service/threshold"
)

// CheckScheduler 监控定时调度器
type CheckScheduler struct {
	cron         *cron.Cron
	checkSvc     *CheckService
	thresholdSvc *threshold.ThresholdService
	abTestSvc    *abtest.ABTestService
	executor     *distributed_lock.LockExecutor // 可选
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewCheckScheduler 创建调度器实例，lock 传 nil 表示单实例部署
func NewCheckScheduler(checkSvc *CheckService, thresholdSvc *threshold.ThresholdService,
	abTestSvc *abtest.ABTestService, lock distributed_lock.DistributedLock) *CheckScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := &CheckScheduler{
		cron:         cron.New(cron.WithSeconds()),
		checkSvc:     checkSvc,
		thresholdSvc: thresholdSvc,
		abTestSvc:    abTestSvc,
		ctx:          ctx,
		cancel:       cancel,
	}
	if lock != nil {
		scheduler.executor = distributed_lock.NewLockExecutor(lock)
	}
	return scheduler
}

// Start 注册全部定时任务并启动调度
func (s *CheckScheduler) Start() error {
	// 每小时整点执行漂移巡检
	if _, err := s.cron.AddFunc("0 0 * * * *", func() {
		s.runLocked("scheduled_drift_check", 30*time.Minute, s.runDriftCheck)
	}); err != nil {
		return err
	}

	// 每小时第 10 分钟重算 hourly 频率的阈值配置
	if _, err := s.cron.AddFunc("0 10 * * * *", func() {
		s.runLocked("threshold_recalc_hourly", 10*time.Minute, func() error {
			return s.recalculateThresholds("hourly")
		})
	}); err != nil {
		return err
	}

	// 每天凌晨 2 点重算 daily 频率的阈值配置
	if _, err := s.cron.AddFunc("0 0 2 * * *", func() {
		s.runLocked("threshold_recalc_daily", 30*time.Minute, func() error {
			return s.recalculateThresholds("daily")
		})
	}); err != nil {
		return err
	}

	// 每周日凌晨 3 点重算 weekly 频率的阈值配置
	if _, err := s.cron.AddFunc("0 0 3 * * 0", func() {
		s.runLocked("threshold_recalc_weekly", 30*time.Minute, func() error {
			return s.recalculateThresholds("weekly")
		})
	}); err != nil {
		return err
	}

	// 每 30 分钟检查运行中的 A/B 测试是否满足自动收尾条件
	if _, err := s.cron.AddFunc("0 */30 * * * *", func() {
		s.runLocked("ab_test_auto_complete", 10*time.Minute, s.autoCompleteTests)
	}); err != nil {
		return err
	}

	s.cron.Start()
	slog.Info("监控调度器已启动")
	return nil
}

// Stop 停止调度并等待运行中的任务结束
func (s *CheckScheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	slog.Info("监控调度器已停止")
}

// runLocked 经分布式锁执行任务，未配置锁时直接执行
func (s *CheckScheduler) runLocked(name string, ttl time.Duration, fn func() error) {
	run := func() {
		if err := fn(); err != nil {
			slog.Error("定时任务执行失败", "task", name, "error", err)
		}
	}

	if s.executor == nil {
		run()
		return
	}
	if err := s.executor.ExecuteWithLock(s.ctx, name, ttl, func() error {
		run()
		return nil
	}); err != nil {
		slog.Error("定时任务加锁执行失败", "task", name, "error", err)
	}
}

func (s *CheckScheduler) runDriftCheck() error {
	_, err := s.checkSvc.RunScheduledCheck(s.ctx)
	return err
}

// recalculateThresholds 重算指定更新频率的全部启用配置
func (s *CheckScheduler) recalculateThresholds(frequency string) error {
	var modelIDs []string
	err := s.checkSvc.db.Model(&models.ThresholdConfig{}).
		Where("is_enabled = ? AND update_frequency = ?", true, frequency).
		Pluck("model_id", &modelIDs).Error
	if err != nil {
		return err
	}

	for _, modelID := range modelIDs {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}
		if _, err := s.thresholdSvc.CalculateThresholds(modelID); err != nil {
			slog.Error("阈值重算失败", "model_id", modelID, "error", err)
		}
	}
	slog.Info("阈值重算完成", "frequency", frequency, "models", len(modelIDs))
	return nil
}

func (s *CheckScheduler) autoCompleteTests() error {
	tests, err := s.abTestSvc.GetRunningTests()
	if err != nil {
		return err
	}
	for _, test := range tests {
		completed, err := s.abTestSvc.AutoCompleteIfReady(test.ID)
		if err != nil {
			slog.Error("A/B测试自动收尾失败", "test_id", test.ID, "error", err)
			continue
		}
		if completed {
			slog.Info("A/B测试已自动完成", "test_id", test.ID, "name", test.Name)
			if updated, err := s.abTestSvc.GetTest(test.ID); err == nil {
				s.checkSvc.notifySvc.NotifyABTestCompletion(updated)
			}
		}
	}
	return nil
}
