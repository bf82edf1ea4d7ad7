package task

import (
	"fmt"
	"time"

	"github.com/blues/stream/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// Job 定时任务
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

// Manager 任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	jobs      []Job
}

// NewManager 创建任务管理器, 调度统一使用 UTC
func NewManager(jobs ...Job) (*Manager, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Manager{
		scheduler: s,
		jobs:      jobs,
	}, nil
}

// Start 注册所有任务并启动调度器
func (m *Manager) Start() error {
	if err := m.RegisterJobs(); err != nil {
		return err
	}

	m.scheduler.Start()

	logger.Info("Task manager started with %d jobs", len(m.jobs))
	return nil
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() error {
	for _, job := range m.jobs {
		if err := m.register(job); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) register(job Job) error {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
		return fmt.Errorf("register job %s: %w", job.GetName(), err)
	}
	logger.Info("Registered job %s", job.GetName())
	return nil
}

// Jobs 已注册任务的名称
func (m *Manager) Jobs() []string {
	jobs := m.scheduler.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

// Stop 停止任务管理器, 等待执行中的任务结束
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
