//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/practicecoach-next/internal/commission"
	"github.com/practicecoach-next/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.AffiliateEvent{},
		&models.AffiliateReferral{},
		&models.Setting{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresLedgerDuePendingAndSummary(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewAffiliateEventRepository(db)

	old := ledgerPendingEvent("pg_old", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fresh := ledgerPendingEvent("pg_fresh", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	for _, event := range []commission.Event{old, fresh} {
		if _, err := repo.Append(models.AffiliateEventFromCommission(event, "")); err != nil {
			t.Fatalf("append pending failed: %v", err)
		}
	}

	due, err := repo.ListDuePending(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), 10)
	if err != nil {
		t.Fatalf("list due pending failed: %v", err)
	}
	if len(due) != 1 || due[0].IdempotencyKey != "pg_old" {
		t.Fatalf("due pending want [pg_old] got %+v", due)
	}

	approved, err := commission.BuildApprovedEvent(old, *old.HoldUntil)
	if err != nil {
		t.Fatalf("build approved failed: %v", err)
	}
	if _, err := repo.Append(models.AffiliateEventFromCommission(approved, "")); err != nil {
		t.Fatalf("append approved failed: %v", err)
	}
	due, err = repo.ListDuePending(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), 10)
	if err != nil {
		t.Fatalf("list due pending failed: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("settled pending should not be due, got %d", len(due))
	}

	rows, err := repo.SummarizeByAffiliate("jane")
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	totals := map[string]int64{}
	for _, row := range rows {
		totals[row.EventType] = row.CommissionCents
	}
	if totals[string(commission.EventPending)] != 1500 || totals[string(commission.EventApproved)] != 1500 {
		t.Fatalf("unexpected summary: %+v", rows)
	}
}

func TestPostgresReferralSearchUsesILike(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewAffiliateReferralRepository(db)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, visitor := range []string{"v1", "v2"} {
		referral := &models.AffiliateReferral{
			Code:         "jane",
			VisitorKey:   visitor,
			Channel:      "affiliate",
			UTMCampaign:  []string{"Spring-Launch", "winter"}[i],
			FirstTouchAt: now,
			LastTouchAt:  now.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Upsert(referral); err != nil {
			t.Fatalf("upsert referral failed: %v", err)
		}
	}

	rows, total, err := repo.ListByCode(AffiliateReferralListFilter{Code: "jane", Search: "spring", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list referrals failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].VisitorKey != "v1" {
		t.Fatalf("case-insensitive search want v1 got total=%d rows=%+v", total, rows)
	}
}
