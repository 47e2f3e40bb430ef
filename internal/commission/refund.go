package commission

import (
	"strings"
	"time"
)

// RefundEvent 退款或拒付事件
type RefundEvent struct {
	Provider       string
	RefundEventID  string
	PaymentEventID string
	RefundCents    int64
	CreatedAt      time.Time
	Chargeback     bool
	Reason         string
}

// Note 写入冲正事件的备注
func (r RefundEvent) Note() string {
	if reason := strings.TrimSpace(r.Reason); reason != "" {
		return reason
	}
	if r.Chargeback {
		return "chargeback"
	}
	return "refund"
}

// RefundAction 退款到达时对佣金的处理方式
type RefundAction string

const (
	RefundActionVoid              RefundAction = "void"
	RefundActionReverse           RefundAction = "reverse"
	RefundActionApproveAndReverse RefundAction = "approve_and_reverse"
	RefundActionIgnore            RefundAction = "ignore"
)

// ShouldVoidPendingCommission 退款时间早于冻结截止时间时作废
func ShouldVoidPendingCommission(paymentCreatedAt, refundCreatedAt time.Time, policy Policy) bool {
	return refundCreatedAt.Before(HoldUntil(paymentCreatedAt, policy))
}

// IsWithinClawback 退款时间不晚于追回截止时间
func IsWithinClawback(paymentCreatedAt, refundCreatedAt time.Time, policy Policy) bool {
	return !refundCreatedAt.After(ClawbackUntil(paymentCreatedAt, policy))
}

// DecideRefund 根据当前事件状态与两个时间谓词决定处理方式
//
// holdUntil 为待确认事件写入时记录的冻结截止时间，为空时按策略重新计算。
// 冻结期已过但尚未被调度器确认的待确认佣金，先确认再冲正。
func DecideRefund(current EventType, paymentCreatedAt time.Time, holdUntil *time.Time, refundCreatedAt time.Time, policy Policy) RefundAction {
	switch current {
	case EventPending:
		if refundBeforeHold(paymentCreatedAt, holdUntil, refundCreatedAt, policy) {
			return RefundActionVoid
		}
		if IsWithinClawback(paymentCreatedAt, refundCreatedAt, policy) {
			return RefundActionApproveAndReverse
		}
	case EventApproved, EventReversed:
		if IsWithinClawback(paymentCreatedAt, refundCreatedAt, policy) {
			return RefundActionReverse
		}
	}
	return RefundActionIgnore
}

func refundBeforeHold(paymentCreatedAt time.Time, holdUntil *time.Time, refundCreatedAt time.Time, policy Policy) bool {
	if holdUntil == nil || holdUntil.IsZero() {
		return ShouldVoidPendingCommission(paymentCreatedAt, refundCreatedAt, policy)
	}
	return refundCreatedAt.Before(holdUntil.UTC())
}
