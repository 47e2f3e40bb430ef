package commission

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingEvent(t *testing.T) Event {
	t.Helper()
	payment := samplePayment()
	payment.AffiliateCode = "jane"
	payment.CouponCode = " SPRING "
	return BuildPendingEvent(payment, ComputeCommission(payment, defaultPolicy()))
}

func TestBuildPendingEvent(t *testing.T) {
	event := pendingEvent(t)

	assert.Equal(t, EventPending, event.EventType)
	assert.Equal(t, "jane", event.AffiliateCode)
	assert.Equal(t, "SPRING", event.CouponCode)
	assert.Equal(t, "evt_001", event.IdempotencyKey)
	assert.Equal(t, int64(5000), event.AmountCents)
	assert.Equal(t, int64(1500), event.CommissionCents)
	assert.Equal(t, RateSourceDefault, event.RateSource)
	require.NotNil(t, event.HoldUntil)
	assert.Equal(t, paymentAt.AddDate(0, 0, 14), *event.HoldUntil)
	assert.Nil(t, event.ApprovedAt)
}

func TestBuildApprovedEventPreservesFields(t *testing.T) {
	pending := pendingEvent(t)
	approvedAt := paymentAt.AddDate(0, 0, 15)

	approved, err := BuildApprovedEvent(pending, approvedAt)
	require.NoError(t, err)

	assert.Equal(t, EventApproved, approved.EventType)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, approvedAt, *approved.ApprovedAt)
	approved.EventType = EventPending
	approved.ApprovedAt = nil
	assert.Equal(t, pending, approved)
}

func TestBuildApprovedEventDefaultsToNow(t *testing.T) {
	before := time.Now().UTC()
	approved, err := BuildApprovedEvent(pendingEvent(t), time.Time{})
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedAt)
	assert.False(t, approved.ApprovedAt.Before(before))
}

func TestBuildVoidedEvent(t *testing.T) {
	voided, err := BuildVoidedEvent(pendingEvent(t), "refund_before_hold")
	require.NoError(t, err)

	assert.Equal(t, EventVoided, voided.EventType)
	assert.Equal(t, int64(0), voided.CommissionCents)
	assert.Equal(t, "refund_before_hold", voided.Note)
}

func TestBuildReversalEventBounds(t *testing.T) {
	approved, err := BuildApprovedEvent(pendingEvent(t), paymentAt.AddDate(0, 0, 14))
	require.NoError(t, err)

	tests := []struct {
		name   string
		refund int64
		want   int64
	}{
		{name: "zero refund", refund: 0, want: 0},
		{name: "negative refund clamps to zero", refund: -100, want: 0},
		{name: "full refund", refund: 5000, want: -1500},
		{name: "over refund clamps to full", refund: 9000, want: -1500},
		{name: "half refund", refund: 2500, want: -750},
		{name: "proportion floors", refund: 1, want: 0},
		{name: "odd refund floors", refund: 3333, want: -999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reversed, err := BuildReversalEvent(approved, tt.refund, "refund")
			require.NoError(t, err)
			assert.Equal(t, EventReversed, reversed.EventType)
			assert.Equal(t, tt.want, reversed.CommissionCents)
			assert.LessOrEqual(t, -reversed.CommissionCents, approved.CommissionCents)
			assert.Equal(t, "refund", reversed.Note)
			assert.Equal(t, approved.ApprovedAt, reversed.ApprovedAt)
		})
	}
}

func TestBuildReversalEventZeroAmountPayment(t *testing.T) {
	approved := Event{EventType: EventApproved, AmountCents: 0, CommissionCents: 10}

	reversed, err := BuildReversalEvent(approved, 1, "")
	require.NoError(t, err)
	assert.Equal(t, int64(-10), reversed.CommissionCents)
}

func TestTransitionRejectsIllegalPairs(t *testing.T) {
	pending := pendingEvent(t)
	approved, err := BuildApprovedEvent(pending, paymentAt)
	require.NoError(t, err)
	voided, err := BuildVoidedEvent(pending, "refund_before_hold")
	require.NoError(t, err)
	reversed, err := BuildReversalEvent(approved, 100, "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		current Event
		trigger Trigger
		from    EventType
		to      EventType
	}{
		{name: "approve approved", current: approved, trigger: Approve{}, from: EventApproved, to: EventApproved},
		{name: "void approved", current: approved, trigger: Void{Reason: "x"}, from: EventApproved, to: EventVoided},
		{name: "reverse pending", current: pending, trigger: Reverse{RefundCents: 1}, from: EventPending, to: EventReversed},
		{name: "approve voided", current: voided, trigger: Approve{}, from: EventVoided, to: EventApproved},
		{name: "reverse voided", current: voided, trigger: Reverse{}, from: EventVoided, to: EventReversed},
		{name: "reverse reversed", current: reversed, trigger: Reverse{}, from: EventReversed, to: EventReversed},
		{name: "approve reversed", current: reversed, trigger: Approve{}, from: EventReversed, to: EventApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Transition(tt.current, tt.trigger)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrIllegalTransition))
			var illegalErr *IllegalTransitionError
			require.ErrorAs(t, err, &illegalErr)
			assert.Equal(t, tt.from, illegalErr.From)
			assert.Equal(t, tt.to, illegalErr.To)
			assert.Equal(t, Event{}, next)
		})
	}

	_, err = Transition(pending, nil)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCapReversal(t *testing.T) {
	assert.Equal(t, int64(-500), CapReversal(1500, 0, -500))
	assert.Equal(t, int64(-500), CapReversal(1500, -1000, -750))
	assert.Equal(t, int64(0), CapReversal(1500, -1500, -750))
	assert.Equal(t, int64(0), CapReversal(0, 0, -750))
}

func TestEventTypeHelpers(t *testing.T) {
	assert.True(t, EventVoided.IsTerminal())
	assert.True(t, EventReversed.IsTerminal())
	assert.False(t, EventPending.IsTerminal())
	assert.False(t, EventApproved.IsTerminal())
	assert.True(t, EventApproved.Valid())
	assert.False(t, EventType("commission_paid").Valid())
}
