package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/practicecoach-next/internal/config"
	"github.com/practicecoach-next/internal/models"
	"github.com/practicecoach-next/internal/provider"

	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

type stubService struct {
	name     string
	startErr error
	block    bool
	stopped  atomic.Bool
	order    *stopOrder
}

type stopOrder struct {
	mu    sync.Mutex
	names []string
}

func (o *stopOrder) add(name string) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
}

func (s *stubService) Name() string { return s.name }

func (s *stubService) Start(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return nil
	}
	return s.startErr
}

func (s *stubService) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	s.order.add(s.name)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.Decode(v)
	if err != nil {
		t.Fatalf("decode config failed: %v", err)
	}
	return cfg
}

func TestRunnerStopsAllServicesOnFailure(t *testing.T) {
	failing := &stubService{name: "failing", startErr: errors.New("boom")}
	blocking := &stubService{name: "blocking", block: true}
	runner := NewRunner(failing, blocking)

	err := runner.Run(context.Background(), time.Second, nil)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
	if !failing.stopped.Load() || !blocking.stopped.Load() {
		t.Fatalf("all services should be stopped")
	}
}

func TestRunnerStopsInReverseOrderThenCloses(t *testing.T) {
	order := &stopOrder{}
	api := &stubService{name: "api", block: true, order: order}
	sweep := &stubService{name: "commission_sweep", block: true, order: order}
	runner := NewRunner(api, sweep)
	runner.AddCloser("database", func() error {
		order.add("database")
		return nil
	})
	runner.AddCloser("redis", func() error {
		order.add("redis")
		return errors.New("already closed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runner.Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("cancelled run should return nil, got %v", err)
	}

	got := strings.Join(order.names, ",")
	if got != "commission_sweep,api,redis,database" {
		t.Fatalf("unexpected shutdown order: %s", got)
	}
}

func TestRunnerReturnsNilOnCancel(t *testing.T) {
	blocking := &stubService{name: "blocking", block: true}
	runner := NewRunner(blocking)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runner.Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("cancelled run should return nil, got %v", err)
	}
}

func TestNormalizeOptionsDefaults(t *testing.T) {
	opts := normalizeOptions(Options{})
	if opts.Mode != ModeAll {
		t.Fatalf("mode want %s got %s", ModeAll, opts.Mode)
	}
	if opts.ShutdownTimeout != defaultStopTimeout {
		t.Fatalf("shutdown timeout want %s got %s", defaultStopTimeout, opts.ShutdownTimeout)
	}
	if opts.Logger == nil {
		t.Fatalf("logger should default")
	}

	opts = normalizeOptions(Options{Config: testConfig(t)})
	if opts.ShutdownTimeout != 15*time.Second {
		t.Fatalf("shutdown timeout from config want 15s got %s", opts.ShutdownTimeout)
	}
}

func TestBuildRunnerWorkerModeWithoutQueueRunsSweep(t *testing.T) {
	cfg := testConfig(t)
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	container := provider.NewContainerWithDB(cfg, db, nil)

	runner, err := buildRunnerWithContainer(cfg, ModeWorker, container)
	if err != nil {
		t.Fatalf("build runner failed: %v", err)
	}
	if len(runner.services) != 1 || runner.services[0].Name() != "commission_sweep" {
		t.Fatalf("worker mode without queue should only run the sweep, got %d services", len(runner.services))
	}

	if _, err := buildRunnerWithContainer(cfg, "bogus", container); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}
