package app

import (
	"errors"
	"fmt"

	"github.com/practicecoach-next/internal/cache"
	"github.com/practicecoach-next/internal/config"
	"github.com/practicecoach-next/internal/logger"
	"github.com/practicecoach-next/internal/models"
	"github.com/practicecoach-next/internal/provider"
	"github.com/practicecoach-next/internal/router"
	"github.com/practicecoach-next/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	container := provider.NewContainer(cfg)
	runner, err := buildRunnerWithContainer(cfg, mode, container)
	if err != nil {
		return nil, err
	}
	runner.AddCloser("database", models.CloseDB)
	runner.AddCloser("redis", cache.Close)
	runner.AddCloser("queue_client", container.QueueClient.Close)
	return runner, nil
}

func buildRunnerWithContainer(cfg *config.Config, mode string, container *provider.Container) (*Runner, error) {
	var services []Service
	sweepInterval := cfg.Commission.ApproveSweepInterval()

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		httpService := NewHTTPService(addr, engine, cfg.Server.ReadHeaderTimeout())
		services = append(services, httpService)
	}

	// 初始化 Worker 服务
	if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		if cfg.Queue.Enabled && container.QueueClient.Enabled() {
			workerService, err := worker.NewService(&cfg.Queue, consumer, sweepInterval)
			if err != nil {
				return nil, err
			}
			services = append(services, workerService)
		} else if sweepInterval > 0 {
			// 队列不可用时仅运行佣金确认扫描
			logger.Warnw("app_queue_disabled_sweep_only", "interval", sweepInterval.String())
			services = append(services, NewSweepService(consumer, sweepInterval))
		}
	}

	if len(services) == 0 {
		return nil, fmt.Errorf("no services initialized for mode %q", mode)
	}

	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
