// Package commission 佣金计算与佣金事件状态机，所有函数均为纯函数
package commission

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var bpsDenominator = decimal.NewFromInt(maxBps)

// PaymentEvent 一次成功扣款
type PaymentEvent struct {
	Provider        string    `json:"provider"`
	ProviderEventID string    `json:"provider_event_id"`
	UserID          string    `json:"user_id"`
	PlanKey         string    `json:"plan_key"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	CouponCode      string    `json:"coupon_code,omitempty"`
	AffiliateCode   string    `json:"affiliate_code,omitempty"`
	IsFirstPaid     bool      `json:"is_first_paid"`
}

// Result 佣金计算结果
type Result struct {
	CommissionCents int64      `json:"commission_cents"`
	RateBps         int        `json:"rate_bps"`
	RateSource      RateSource `json:"rate_source"`
	Currency        string     `json:"currency"`
	HoldUntil       time.Time  `json:"hold_until"`
	IdempotencyKey  string     `json:"idempotency_key"`
}

// ComputeCommission 计算佣金金额与冻结截止时间
func ComputeCommission(payment PaymentEvent, policy Policy) Result {
	bps, source := ResolveRate(payment, policy)
	return Result{
		CommissionCents: ApplyBps(payment.AmountCents, bps),
		RateBps:         bps,
		RateSource:      source,
		Currency:        strings.ToUpper(strings.TrimSpace(payment.Currency)),
		HoldUntil:       HoldUntil(payment.CreatedAt, policy),
		IdempotencyKey:  IdempotencyKey(payment),
	}
}

// ApplyBps floor(amount * bps / 10000)，结果不小于 0
func ApplyBps(amountCents int64, bps int) int64 {
	if amountCents <= 0 || bps <= 0 {
		return 0
	}
	product := decimal.NewFromInt(amountCents).Mul(decimal.NewFromInt(int64(bps)))
	quotient, _ := product.QuoRem(bpsDenominator, 0)
	return quotient.IntPart()
}

// IdempotencyKey 佣金幂等键，默认取支付渠道事件 ID
func IdempotencyKey(payment PaymentEvent) string {
	return strings.TrimSpace(payment.ProviderEventID)
}

// HoldUntil 支付时间 + 冻结天数（UTC 日历日）
func HoldUntil(paymentCreatedAt time.Time, policy Policy) time.Time {
	return paymentCreatedAt.UTC().AddDate(0, 0, policy.HoldDays)
}

// ClawbackUntil 支付时间 + 追回窗口天数（UTC 日历日）
func ClawbackUntil(paymentCreatedAt time.Time, policy Policy) time.Time {
	return paymentCreatedAt.UTC().AddDate(0, 0, policy.ClawbackDays)
}
