package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/practicecoach-next/internal/commission"
	"github.com/practicecoach-next/internal/config"
)

func TestDisabledClientSkipsEnqueue(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("client should be disabled")
	}
	if err := client.EnqueuePaymentSucceeded(PaymentSucceededPayload{ProviderEventID: "evt_1"}); err != nil {
		t.Fatalf("disabled enqueue should be noop: %v", err)
	}
	if err := client.EnqueueApprove(ApprovePayload{IdempotencyKey: "evt_1"}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("disabled approve enqueue should be noop: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close disabled client failed: %v", err)
	}
}

func TestPaymentSucceededTaskPayload(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	payment := commission.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		UserID:          "user-1",
		AmountCents:     5000,
		Currency:        "USD",
		Status:          "succeeded",
		CreatedAt:       createdAt,
		AffiliateCode:   "jane",
		IsFirstPaid:     true,
	}
	task, err := NewPaymentSucceededTask(NewPaymentSucceededPayload(payment))
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != TaskCommissionPaymentSucceeded {
		t.Fatalf("unexpected task type: %s", task.Type())
	}
	var decoded PaymentSucceededPayload
	if err := json.Unmarshal(task.Payload(), &decoded); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	got := decoded.ToPaymentEvent()
	if got.ProviderEventID != "evt_1" || got.AffiliateCode != "jane" || !got.CreatedAt.Equal(createdAt) || !got.IsFirstPaid {
		t.Fatalf("unexpected payment event: %+v", got)
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(nil)
	if opt.Addr != "127.0.0.1:6379" {
		t.Fatalf("unexpected redis addr: %s", opt.Addr)
	}
	if cfg.Concurrency != 10 {
		t.Fatalf("concurrency want 10 got %d", cfg.Concurrency)
	}
	if cfg.Queues[CriticalQueue] != 2 || cfg.Queues[DefaultQueue] != 1 {
		t.Fatalf("unexpected queues: %+v", cfg.Queues)
	}
}

func TestTaskIDTrimsParts(t *testing.T) {
	if got := taskID(TaskCommissionRefund, " stripe ", "re_1"); got != "commission:refund:stripe:re_1" {
		t.Fatalf("unexpected task id: %s", got)
	}
}
