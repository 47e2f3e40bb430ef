package commission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldVoidPendingCommissionBoundary(t *testing.T) {
	policy := defaultPolicy()
	holdUntil := HoldUntil(paymentAt, policy)

	assert.True(t, ShouldVoidPendingCommission(paymentAt, paymentAt.AddDate(0, 0, 5), policy))
	assert.True(t, ShouldVoidPendingCommission(paymentAt, holdUntil.Add(-time.Nanosecond), policy))
	assert.False(t, ShouldVoidPendingCommission(paymentAt, holdUntil, policy), "boundary is not earlier")
	assert.False(t, ShouldVoidPendingCommission(paymentAt, holdUntil.Add(time.Second), policy))
}

func TestIsWithinClawbackBoundary(t *testing.T) {
	policy := defaultPolicy()
	clawbackUntil := paymentAt.AddDate(0, 0, 60)

	assert.True(t, IsWithinClawback(paymentAt, paymentAt.AddDate(0, 0, 30), policy))
	assert.True(t, IsWithinClawback(paymentAt, clawbackUntil, policy), "boundary is inclusive")
	assert.False(t, IsWithinClawback(paymentAt, clawbackUntil.Add(time.Nanosecond), policy))
}

func TestScenarioRefundBeforeHoldVoids(t *testing.T) {
	policy := defaultPolicy()
	pending := BuildPendingEvent(samplePayment(), ComputeCommission(samplePayment(), policy))
	refundAt := paymentAt.AddDate(0, 0, 5)

	require.True(t, ShouldVoidPendingCommission(paymentAt, refundAt, policy))
	voided, err := BuildVoidedEvent(pending, "refund_before_hold")
	require.NoError(t, err)

	assert.Equal(t, EventVoided, voided.EventType)
	assert.Equal(t, int64(0), voided.CommissionCents)
}

func TestDecideRefund(t *testing.T) {
	policy := defaultPolicy()

	tests := []struct {
		name    string
		current EventType
		after   time.Duration
		want    RefundAction
	}{
		{name: "pending inside hold", current: EventPending, after: 5 * 24 * time.Hour, want: RefundActionVoid},
		{name: "pending after hold", current: EventPending, after: 20 * 24 * time.Hour, want: RefundActionApproveAndReverse},
		{name: "pending after clawback", current: EventPending, after: 61 * 24 * time.Hour, want: RefundActionIgnore},
		{name: "approved inside clawback", current: EventApproved, after: 30 * 24 * time.Hour, want: RefundActionReverse},
		{name: "partially reversed inside clawback", current: EventReversed, after: 30 * 24 * time.Hour, want: RefundActionReverse},
		{name: "approved after clawback", current: EventApproved, after: 61 * 24 * time.Hour, want: RefundActionIgnore},
		{name: "voided", current: EventVoided, after: time.Hour, want: RefundActionIgnore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideRefund(tt.current, paymentAt, nil, paymentAt.Add(tt.after), policy))
		})
	}
}

func TestDecideRefundUsesStoredHoldUntil(t *testing.T) {
	policy := defaultPolicy()
	policy.HoldDays = 3
	stored := paymentAt.AddDate(0, 0, 14)

	refundAt := paymentAt.AddDate(0, 0, 10)
	assert.Equal(t, RefundActionApproveAndReverse, DecideRefund(EventPending, paymentAt, nil, refundAt, policy))
	assert.Equal(t, RefundActionVoid, DecideRefund(EventPending, paymentAt, &stored, refundAt, policy))
	assert.Equal(t, RefundActionApproveAndReverse, DecideRefund(EventPending, paymentAt, &stored, stored, policy), "stored boundary is not earlier")
}

func TestRefundEventNote(t *testing.T) {
	assert.Equal(t, "refund", RefundEvent{}.Note())
	assert.Equal(t, "chargeback", RefundEvent{Chargeback: true}.Note())
	assert.Equal(t, "duplicate charge", RefundEvent{Reason: " duplicate charge "}.Note())
}
