package commission

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventType 佣金事件类型
type EventType string

const (
	EventPending  EventType = "commission_pending"
	EventApproved EventType = "commission_approved"
	EventVoided   EventType = "commission_voided"
	EventReversed EventType = "commission_reversed"
)

// IsTerminal 是否为终态
func (t EventType) IsTerminal() bool {
	return t == EventVoided || t == EventReversed
}

// Valid 是否为已知事件类型
func (t EventType) Valid() bool {
	switch t {
	case EventPending, EventApproved, EventVoided, EventReversed:
		return true
	}
	return false
}

// ErrIllegalTransition 非法状态迁移
var ErrIllegalTransition = errors.New("illegal commission transition")

// IllegalTransitionError 记录非法迁移的起止状态
type IllegalTransitionError struct {
	From EventType
	To   EventType
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrIllegalTransition.Error(), e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// Event 佣金账本事件
type Event struct {
	EventType       EventType  `json:"event_type"`
	AffiliateCode   string     `json:"affiliate_code,omitempty"`
	CouponCode      string     `json:"coupon_code,omitempty"`
	UserID          string     `json:"user_id"`
	Provider        string     `json:"provider"`
	ProviderEventID string     `json:"provider_event_id"`
	IdempotencyKey  string     `json:"idempotency_key"`
	Currency        string     `json:"currency"`
	AmountCents     int64      `json:"amount_cents"`
	CommissionCents int64      `json:"commission_cents"`
	RateBps         int        `json:"rate_bps"`
	RateSource      RateSource `json:"rate_source"`
	PlanKey         string     `json:"plan_key,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	HoldUntil       *time.Time `json:"hold_until,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RefundCents     int64      `json:"refund_cents,omitempty"`
	Note            string     `json:"note,omitempty"`
}

// Trigger 状态迁移触发器，仅限 Approve / Void / Reverse
type Trigger interface {
	target() EventType
}

// Approve 冻结期结束后确认佣金
type Approve struct {
	At time.Time
}

// Void 冻结期内退款作废佣金
type Void struct {
	Reason string
}

// Reverse 追回窗口内退款/拒付冲正佣金
type Reverse struct {
	RefundCents int64
	Note        string
}

func (Approve) target() EventType { return EventApproved }
func (Void) target() EventType    { return EventVoided }
func (Reverse) target() EventType { return EventReversed }

// BuildPendingEvent 由支付事件和计算结果生成初始待确认事件
func BuildPendingEvent(payment PaymentEvent, result Result) Event {
	holdUntil := result.HoldUntil.UTC()
	key := result.IdempotencyKey
	if key == "" {
		key = IdempotencyKey(payment)
	}
	currency := result.Currency
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(payment.Currency))
	}
	return Event{
		EventType:       EventPending,
		AffiliateCode:   strings.TrimSpace(payment.AffiliateCode),
		CouponCode:      strings.TrimSpace(payment.CouponCode),
		UserID:          payment.UserID,
		Provider:        payment.Provider,
		ProviderEventID: payment.ProviderEventID,
		IdempotencyKey:  key,
		Currency:        currency,
		AmountCents:     payment.AmountCents,
		CommissionCents: result.CommissionCents,
		RateBps:         result.RateBps,
		RateSource:      result.RateSource,
		PlanKey:         payment.PlanKey,
		CreatedAt:       payment.CreatedAt.UTC(),
		HoldUntil:       &holdUntil,
	}
}

// Transition 对当前事件施加触发器，返回后继事件
func Transition(current Event, trigger Trigger) (Event, error) {
	if trigger == nil {
		return Event{}, fmt.Errorf("%w: nil trigger", ErrIllegalTransition)
	}
	if current.EventType.IsTerminal() {
		return Event{}, illegal(current.EventType, trigger.target())
	}
	switch tr := trigger.(type) {
	case Approve:
		if current.EventType != EventPending {
			return Event{}, illegal(current.EventType, EventApproved)
		}
		next := current
		next.EventType = EventApproved
		at := tr.At
		if at.IsZero() {
			at = time.Now()
		}
		at = at.UTC()
		next.ApprovedAt = &at
		return next, nil
	case Void:
		if current.EventType != EventPending {
			return Event{}, illegal(current.EventType, EventVoided)
		}
		next := current
		next.EventType = EventVoided
		next.CommissionCents = 0
		next.Note = tr.Reason
		return next, nil
	case Reverse:
		if current.EventType != EventApproved {
			return Event{}, illegal(current.EventType, EventReversed)
		}
		next := current
		next.EventType = EventReversed
		next.CommissionCents = -reversalMagnitude(current.CommissionCents, tr.RefundCents, current.AmountCents)
		next.RefundCents = tr.RefundCents
		next.Note = tr.Note
		return next, nil
	default:
		return Event{}, illegal(current.EventType, trigger.target())
	}
}

// BuildApprovedEvent 待确认 -> 已确认；approvedAt 为零值时取当前时间
func BuildApprovedEvent(pending Event, approvedAt time.Time) (Event, error) {
	return Transition(pending, Approve{At: approvedAt})
}

// BuildVoidedEvent 待确认 -> 已作废
func BuildVoidedEvent(pending Event, reason string) (Event, error) {
	return Transition(pending, Void{Reason: reason})
}

// BuildReversalEvent 已确认 -> 已冲正，按退款比例计算负向佣金
func BuildReversalEvent(approved Event, refundCents int64, note string) (Event, error) {
	return Transition(approved, Reverse{RefundCents: refundCents, Note: note})
}

// CapReversal 将冲正金额限制在剩余可追回额度内，返回非正数
func CapReversal(approvedCommission, alreadyReversed, reversal int64) int64 {
	remaining := approvedCommission - abs64(alreadyReversed)
	if remaining <= 0 {
		return 0
	}
	magnitude := abs64(reversal)
	if magnitude > remaining {
		magnitude = remaining
	}
	return -magnitude
}

// reversalMagnitude floor(commission * clamp(refund / max(1, amount), 0, 1))
func reversalMagnitude(commissionCents, refundCents, amountCents int64) int64 {
	if commissionCents <= 0 || refundCents <= 0 {
		return 0
	}
	denominator := amountCents
	if denominator < 1 {
		denominator = 1
	}
	if refundCents >= denominator {
		return commissionCents
	}
	product := decimal.NewFromInt(commissionCents).Mul(decimal.NewFromInt(refundCents))
	quotient, _ := product.QuoRem(decimal.NewFromInt(denominator), 0)
	return quotient.IntPart()
}

func illegal(from, to EventType) error {
	return &IllegalTransitionError{From: from, To: to}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
