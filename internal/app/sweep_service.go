package app

import (
	"context"
	"errors"
	"time"

	"github.com/practicecoach-next/internal/worker"
)

// SweepService 无队列部署下的佣金确认扫描
type SweepService struct {
	consumer *worker.Consumer
	interval time.Duration
}

// NewSweepService 创建扫描服务
func NewSweepService(consumer *worker.Consumer, interval time.Duration) *SweepService {
	return &SweepService{consumer: consumer, interval: interval}
}

// Name 服务名称
func (s *SweepService) Name() string {
	return "commission_sweep"
}

// Start 阻塞运行直到 ctx 结束
func (s *SweepService) Start(ctx context.Context) error {
	if s == nil || s.consumer == nil {
		return errors.New("sweep not initialized")
	}
	worker.RunApproveSweep(ctx, s.consumer, s.interval)
	return nil
}

// Stop 扫描循环随 Runner 的 ctx 退出
func (s *SweepService) Stop(ctx context.Context) error {
	_ = ctx
	return nil
}
