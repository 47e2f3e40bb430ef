package commission

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxBps  = 10000
	maxDays = 3650
)

// ErrPolicyInvalid 佣金策略不合法
var ErrPolicyInvalid = errors.New("commission policy invalid")

// RateSource 费率来源
type RateSource string

const (
	RateSourceCoupon    RateSource = "coupon"
	RateSourceAffiliate RateSource = "affiliate"
	RateSourcePlan      RateSource = "plan"
	RateSourceDefault   RateSource = "default"
)

// RateOverride 首购/续费费率覆盖，未设置的字段回退到默认费率
type RateOverride struct {
	FirstBps     *int `json:"first_bps,omitempty" mapstructure:"first_bps"`
	RecurringBps *int `json:"recurring_bps,omitempty" mapstructure:"recurring_bps"`
}

// Policy 佣金策略
type Policy struct {
	DefaultFirstBps     int                     `json:"default_first_bps"`
	DefaultRecurringBps int                     `json:"default_recurring_bps"`
	PlanOverrides       map[string]RateOverride `json:"plan_overrides,omitempty"`
	CouponOverrides     map[string]int          `json:"coupon_overrides,omitempty"`
	AffiliateOverrides  map[string]RateOverride `json:"affiliate_overrides,omitempty"`
	HoldDays            int                     `json:"hold_days"`
	ClawbackDays        int                     `json:"clawback_days"`
}

// Bps 构造费率指针，便于声明覆盖项
func Bps(value int) *int {
	return &value
}

// Normalize 归一化策略：去除空键，优惠码统一小写
func (p Policy) Normalize() Policy {
	p.PlanOverrides = normalizeOverrides(p.PlanOverrides)
	p.AffiliateOverrides = normalizeOverrides(p.AffiliateOverrides)
	if len(p.CouponOverrides) > 0 {
		coupons := make(map[string]int, len(p.CouponOverrides))
		for code, bps := range p.CouponOverrides {
			key := strings.ToLower(strings.TrimSpace(code))
			if key == "" {
				continue
			}
			coupons[key] = bps
		}
		p.CouponOverrides = coupons
	}
	return p
}

// Validate 校验费率与天数范围
func (p Policy) Validate() error {
	if !validBps(p.DefaultFirstBps) || !validBps(p.DefaultRecurringBps) {
		return fmt.Errorf("%w: default bps must be within 0-%d", ErrPolicyInvalid, maxBps)
	}
	if p.HoldDays < 0 || p.HoldDays > maxDays {
		return fmt.Errorf("%w: hold_days must be within 0-%d", ErrPolicyInvalid, maxDays)
	}
	if p.ClawbackDays < 0 || p.ClawbackDays > maxDays {
		return fmt.Errorf("%w: clawback_days must be within 0-%d", ErrPolicyInvalid, maxDays)
	}
	for plan, override := range p.PlanOverrides {
		if err := validateOverride(override); err != nil {
			return fmt.Errorf("%w: plan %q", err, plan)
		}
	}
	for code, override := range p.AffiliateOverrides {
		if err := validateOverride(override); err != nil {
			return fmt.Errorf("%w: affiliate %q", err, code)
		}
	}
	for code, bps := range p.CouponOverrides {
		if !validBps(bps) {
			return fmt.Errorf("%w: coupon %q bps must be within 0-%d", ErrPolicyInvalid, code, maxBps)
		}
	}
	return nil
}

// ResolveRate 按 优惠码 > 推广者 > 套餐 > 默认 的顺序确定费率
func ResolveRate(payment PaymentEvent, policy Policy) (int, RateSource) {
	if bps, ok := lookupCoupon(policy.CouponOverrides, payment.CouponCode); ok {
		return bps, RateSourceCoupon
	}
	if code := strings.TrimSpace(payment.AffiliateCode); code != "" {
		if override, ok := policy.AffiliateOverrides[code]; ok {
			return override.pick(payment.IsFirstPaid, policy), RateSourceAffiliate
		}
	}
	if plan := strings.TrimSpace(payment.PlanKey); plan != "" {
		if override, ok := policy.PlanOverrides[plan]; ok {
			return override.pick(payment.IsFirstPaid, policy), RateSourcePlan
		}
	}
	return policy.defaultBps(payment.IsFirstPaid), RateSourceDefault
}

func (o RateOverride) pick(isFirstPaid bool, policy Policy) int {
	if isFirstPaid {
		if o.FirstBps != nil {
			return *o.FirstBps
		}
		return policy.DefaultFirstBps
	}
	if o.RecurringBps != nil {
		return *o.RecurringBps
	}
	return policy.DefaultRecurringBps
}

func (p Policy) defaultBps(isFirstPaid bool) int {
	if isFirstPaid {
		return p.DefaultFirstBps
	}
	return p.DefaultRecurringBps
}

func lookupCoupon(overrides map[string]int, rawCode string) (int, bool) {
	code := strings.TrimSpace(rawCode)
	if code == "" || len(overrides) == 0 {
		return 0, false
	}
	if bps, ok := overrides[code]; ok {
		return bps, true
	}
	bps, ok := overrides[strings.ToLower(code)]
	return bps, ok
}

func normalizeOverrides(overrides map[string]RateOverride) map[string]RateOverride {
	if len(overrides) == 0 {
		return overrides
	}
	result := make(map[string]RateOverride, len(overrides))
	for key, override := range overrides {
		normalized := strings.TrimSpace(key)
		if normalized == "" {
			continue
		}
		result[normalized] = override
	}
	return result
}

func validateOverride(o RateOverride) error {
	if o.FirstBps != nil && !validBps(*o.FirstBps) {
		return fmt.Errorf("%w: first_bps must be within 0-%d", ErrPolicyInvalid, maxBps)
	}
	if o.RecurringBps != nil && !validBps(*o.RecurringBps) {
		return fmt.Errorf("%w: recurring_bps must be within 0-%d", ErrPolicyInvalid, maxBps)
	}
	return nil
}

func validBps(value int) bool {
	return value >= 0 && value <= maxBps
}
