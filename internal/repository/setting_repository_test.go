package repository

import (
	"testing"

	"github.com/practicecoach-next/internal/models"
)

func TestSettingRepositoryUpsertAndGet(t *testing.T) {
	repo := NewSettingRepository(setupLedgerTestDB(t))

	missing, err := repo.GetByKey("commission_policy")
	if err != nil {
		t.Fatalf("get missing setting failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing setting should be nil")
	}

	if _, err := repo.Upsert("commission_policy", models.JSON{"hold_days": 14}); err != nil {
		t.Fatalf("insert setting failed: %v", err)
	}
	if _, err := repo.Upsert("commission_policy", models.JSON{"hold_days": 30}); err != nil {
		t.Fatalf("update setting failed: %v", err)
	}

	setting, err := repo.GetByKey("commission_policy")
	if err != nil {
		t.Fatalf("get setting failed: %v", err)
	}
	if setting == nil {
		t.Fatalf("setting should exist")
	}
	if got, ok := setting.ValueJSON["hold_days"].(float64); !ok || got != 30 {
		t.Fatalf("hold_days want 30 got %v", setting.ValueJSON["hold_days"])
	}
}
