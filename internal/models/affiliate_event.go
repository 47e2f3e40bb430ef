package models

import (
	"time"

	"github.com/practicecoach-next/internal/commission"
)

// AffiliateEvent 佣金账本事件（只追加）
type AffiliateEvent struct {
	ID              uint       `gorm:"primarykey" json:"id"`                                            // 主键
	EventType       string     `gorm:"type:varchar(32);not null;index" json:"event_type"`               // 事件类型
	TransitionKey   string     `gorm:"type:varchar(320);not null;uniqueIndex" json:"-"`                 // 迁移幂等键
	IdempotencyKey  string     `gorm:"type:varchar(255);not null;index" json:"idempotency_key"`         // 支付幂等键
	AffiliateCode   string     `gorm:"type:varchar(64);index" json:"affiliate_code,omitempty"`          // 推广码
	CouponCode      string     `gorm:"type:varchar(64)" json:"coupon_code,omitempty"`                   // 优惠码
	UserID          string     `gorm:"type:varchar(128);index" json:"user_id"`                          // 付款用户
	Provider        string     `gorm:"type:varchar(32);not null" json:"provider"`                       // 支付渠道
	ProviderEventID string     `gorm:"type:varchar(255);not null" json:"provider_event_id"`             // 支付渠道事件ID
	Currency        string     `gorm:"type:varchar(8);not null" json:"currency"`                        // 币种
	AmountCents     int64      `gorm:"not null;default:0" json:"amount_cents"`                          // 支付金额（分）
	CommissionCents int64      `gorm:"not null;default:0" json:"commission_cents"`                      // 佣金金额（分），冲正为负
	RateBps         int        `gorm:"not null;default:0" json:"rate_bps"`                              // 费率（基点）
	RateSource      string     `gorm:"type:varchar(16);not null" json:"rate_source"`                    // 费率来源
	PlanKey         string     `gorm:"type:varchar(128)" json:"plan_key,omitempty"`                     // 套餐
	RefundCents     int64      `gorm:"not null;default:0" json:"refund_cents,omitempty"`                // 退款金额（分）
	RefundEventID   string     `gorm:"type:varchar(255)" json:"refund_event_id,omitempty"`              // 退款事件ID
	Note            string     `gorm:"type:varchar(255)" json:"note,omitempty"`                         // 备注
	CreatedAt       time.Time  `gorm:"not null;index" json:"created_at"`                                // 支付发生时间
	HoldUntil       *time.Time `gorm:"index" json:"hold_until,omitempty"`                               // 冻结截止时间
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`                                           // 确认时间
	RecordedAt      time.Time  `gorm:"autoCreateTime;index" json:"recorded_at"`                         // 写入时间
}

// TableName 指定表名
func (AffiliateEvent) TableName() string {
	return "affiliate_events"
}

// AffiliateEventFromCommission 由佣金事件构造账本行
func AffiliateEventFromCommission(event commission.Event, refundEventID string) *AffiliateEvent {
	return &AffiliateEvent{
		EventType:       string(event.EventType),
		TransitionKey:   TransitionKey(event.EventType, event.IdempotencyKey, refundEventID),
		IdempotencyKey:  event.IdempotencyKey,
		AffiliateCode:   event.AffiliateCode,
		CouponCode:      event.CouponCode,
		UserID:          event.UserID,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		Currency:        event.Currency,
		AmountCents:     event.AmountCents,
		CommissionCents: event.CommissionCents,
		RateBps:         event.RateBps,
		RateSource:      string(event.RateSource),
		PlanKey:         event.PlanKey,
		RefundCents:     event.RefundCents,
		RefundEventID:   refundEventID,
		Note:            event.Note,
		CreatedAt:       event.CreatedAt,
		HoldUntil:       event.HoldUntil,
		ApprovedAt:      event.ApprovedAt,
	}
}

// ToCommissionEvent 转换为佣金事件
func (e AffiliateEvent) ToCommissionEvent() commission.Event {
	return commission.Event{
		EventType:       commission.EventType(e.EventType),
		AffiliateCode:   e.AffiliateCode,
		CouponCode:      e.CouponCode,
		UserID:          e.UserID,
		Provider:        e.Provider,
		ProviderEventID: e.ProviderEventID,
		IdempotencyKey:  e.IdempotencyKey,
		Currency:        e.Currency,
		AmountCents:     e.AmountCents,
		CommissionCents: e.CommissionCents,
		RateBps:         e.RateBps,
		RateSource:      commission.RateSource(e.RateSource),
		PlanKey:         e.PlanKey,
		CreatedAt:       e.CreatedAt.UTC(),
		HoldUntil:       utcPtr(e.HoldUntil),
		ApprovedAt:      utcPtr(e.ApprovedAt),
		RefundCents:     e.RefundCents,
		Note:            e.Note,
	}
}

// TransitionKey 迁移幂等键：待确认唯一，确认/作废共享一个结算位，冲正按退款事件唯一
func TransitionKey(eventType commission.EventType, idempotencyKey, refundEventID string) string {
	switch eventType {
	case commission.EventApproved, commission.EventVoided:
		return idempotencyKey + ":settled"
	case commission.EventReversed:
		return idempotencyKey + ":reversed:" + refundEventID
	default:
		return idempotencyKey + ":" + string(eventType)
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
