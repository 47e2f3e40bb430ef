//go:build integration
// +build integration

package service

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/practicecoach-next/internal/commission"
	"github.com/practicecoach-next/internal/models"
	"github.com/practicecoach-next/internal/repository"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupPostgresServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}
	cleanupModels := []interface{}{&models.AffiliateEvent{}, &models.Setting{}}
	_ = db.Migrator().DropTable(cleanupModels...)
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestPostgresConcurrentRefundsStayWithinApproved(t *testing.T) {
	db := setupPostgresServiceDB(t)
	clock := &fakeClock{now: testPaymentAt}
	policies := NewCommissionPolicyService(repository.NewSettingRepository(db), testDefaultPolicy(), time.Minute)
	svc := NewCommissionService(repository.NewAffiliateEventRepository(db), policies, CommissionServiceOptions{
		Sink: &memorySink{},
		Now:  clock.Now,
	})
	ctx := context.Background()

	if _, err := svc.HandlePaymentSucceeded(ctx, testPayment("pg_race")); err != nil {
		t.Fatalf("handle payment failed: %v", err)
	}
	clock.now = testPaymentAt.AddDate(0, 0, 14)
	if _, err := svc.ApprovePendingCommission(ctx, "pg_race"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	refundAt := testPaymentAt.AddDate(0, 0, 30)
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, refundID := range []string{"re_a", "re_b"} {
		wg.Add(1)
		go func(refundID string) {
			defer wg.Done()
			// 每笔退款 60%，两笔合计超过已确认佣金
			if _, err := svc.HandleRefund(ctx, testRefund("pg_race", refundID, 3000, refundAt)); err != nil {
				errs <- err
			}
		}(refundID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent refund failed: %v", err)
	}

	ledger, err := svc.Ledger("pg_race")
	if err != nil {
		t.Fatalf("ledger failed: %v", err)
	}
	var reversed int64
	for _, row := range ledger.Events {
		if row.EventType == string(commission.EventReversed) {
			reversed += row.CommissionCents
		}
	}
	if reversed != -1500 || ledger.NetCents != 0 {
		t.Fatalf("reversals want -1500 net 0, got reversed=%d net=%d", reversed, ledger.NetCents)
	}
}
