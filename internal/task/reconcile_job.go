package task

import (
	"context"
	"time"

	"github.com/blues/stream/internal/logger"
	"github.com/blues/stream/internal/logic"
	"github.com/go-co-op/gocron/v2"
)

// Sweeper PENDING 记录对账, *logic.ReconcileLogic 满足
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (logic.ReconcileReport, error)
}

// ReconcileJob 周期性对账任务
type ReconcileJob struct {
	sweeper  Sweeper
	interval time.Duration
}

// NewReconcileJob 创建对账任务
func NewReconcileJob(sweeper Sweeper, interval time.Duration) *ReconcileJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReconcileJob{
		sweeper:  sweeper,
		interval: interval,
	}
}

// GetName 获取任务名称
func (j *ReconcileJob) GetName() string {
	return "pending_tx_reconciler"
}

// GetSchedule 获取调度配置
func (j *ReconcileJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务, 单轮不超过一个周期
func (j *ReconcileJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	report, err := j.sweeper.Sweep(ctx, time.Now())
	if err != nil {
		logger.Error("Pending tx reconciliation failed: %v", err)
		return
	}
	if report.Errors > 0 {
		logger.Warn("Pending tx reconciliation finished with %d errors", report.Errors)
	}
}
