package worker

import (
	"context"
	"errors"
	"time"

	"github.com/practicecoach-next/internal/config"
	"github.com/practicecoach-next/internal/logger"
	"github.com/practicecoach-next/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 异步队列服务
type Service struct {
	name          string
	server        *asynq.Server
	mux           *asynq.ServeMux
	consumer      *Consumer
	sweepInterval time.Duration
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer, sweepInterval time.Duration) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:          "worker",
		server:        server,
		mux:           mux,
		consumer:      consumer,
		sweepInterval: sweepInterval,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.sweepInterval > 0 {
		go RunApproveSweep(ctx, s.consumer, s.sweepInterval)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// RunApproveSweep 周期性确认冻结期已过的佣金，直到 ctx 结束
//
// 队列关闭时由 HTTP 进程直接运行。
func RunApproveSweep(ctx context.Context, consumer *Consumer, interval time.Duration) {
	if consumer == nil || consumer.CommissionService == nil || interval <= 0 {
		return
	}
	runOnce := func() {
		approved, err := consumer.CommissionService.ApproveDueCommissions(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnw("worker_commission_approve_due_failed", "approved", approved, "error", err)
			return
		}
		if approved > 0 {
			logger.Infow("worker_commission_approve_due_done", "approved", approved)
		}
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
