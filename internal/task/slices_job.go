package task

import (
	"context"
	"errors"
	"time"

	"github.com/blues/stream/internal/logger"
	"github.com/blues/stream/internal/logic"
	"github.com/blues/stream/internal/model"
	"github.com/go-co-op/gocron/v2"
)

// SliceDistributor 每日奖励分发, *logic.SliceLogic 满足
type SliceDistributor interface {
	DistributeSlices(ctx context.Context, now time.Time) ([]*model.TxModel, error)
}

// SlicesJob 每日奖励分发任务
type SlicesJob struct {
	slices SliceDistributor
	hour   uint
	minute uint
	now    func() time.Time
}

// NewSlicesJob 每天 UTC hour:minute 执行
func NewSlicesJob(slices SliceDistributor, hour, minute uint) *SlicesJob {
	return &SlicesJob{
		slices: slices,
		hour:   hour,
		minute: minute,
		now:    time.Now,
	}
}

// GetName 获取任务名称
func (j *SlicesJob) GetName() string {
	return "daily_slices"
}

// GetSchedule 获取调度配置
func (j *SlicesJob) GetSchedule() gocron.JobDefinition {
	return gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(j.hour, j.minute, 0)))
}

// Execute 执行任务
func (j *SlicesJob) Execute() {
	now := j.now()
	logger.Info("Starting daily slices task for %s", now.UTC().Format("2006-01-02"))

	records, err := j.slices.DistributeSlices(context.Background(), now)
	if errors.Is(err, logic.ErrSlicesAlreadyRun) {
		logger.Info("Daily slices skipped: %v", err)
		return
	}
	if err != nil {
		logger.Error("Daily slices task failed: %v", err)
		return
	}

	logger.Info("Daily slices task finished, %d transfers", len(records))
}
