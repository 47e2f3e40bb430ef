package queue

import (
	"encoding/json"
	"time"

	"github.com/practicecoach-next/internal/commission"
	"github.com/practicecoach-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskCommissionPaymentSucceeded 支付成功入账任务
	TaskCommissionPaymentSucceeded = constants.TaskCommissionPaymentSucceeded
	// TaskCommissionRefund 退款/拒付处理任务
	TaskCommissionRefund = constants.TaskCommissionRefund
	// TaskCommissionApprove 冻结期结束确认任务
	TaskCommissionApprove = constants.TaskCommissionApprove
)

// PaymentSucceededPayload 支付成功任务载荷
type PaymentSucceededPayload struct {
	Provider        string    `json:"provider"`
	ProviderEventID string    `json:"provider_event_id"`
	UserID          string    `json:"user_id"`
	PlanKey         string    `json:"plan_key,omitempty"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	CouponCode      string    `json:"coupon_code,omitempty"`
	AffiliateCode   string    `json:"affiliate_code,omitempty"`
	IsFirstPaid     bool      `json:"is_first_paid"`
}

// NewPaymentSucceededPayload 由支付事件构造载荷
func NewPaymentSucceededPayload(payment commission.PaymentEvent) PaymentSucceededPayload {
	return PaymentSucceededPayload{
		Provider:        payment.Provider,
		ProviderEventID: payment.ProviderEventID,
		UserID:          payment.UserID,
		PlanKey:         payment.PlanKey,
		AmountCents:     payment.AmountCents,
		Currency:        payment.Currency,
		Status:          payment.Status,
		CreatedAt:       payment.CreatedAt,
		CouponCode:      payment.CouponCode,
		AffiliateCode:   payment.AffiliateCode,
		IsFirstPaid:     payment.IsFirstPaid,
	}
}

// ToPaymentEvent 转换为支付事件
func (p PaymentSucceededPayload) ToPaymentEvent() commission.PaymentEvent {
	return commission.PaymentEvent{
		Provider:        p.Provider,
		ProviderEventID: p.ProviderEventID,
		UserID:          p.UserID,
		PlanKey:         p.PlanKey,
		AmountCents:     p.AmountCents,
		Currency:        p.Currency,
		Status:          p.Status,
		CreatedAt:       p.CreatedAt,
		CouponCode:      p.CouponCode,
		AffiliateCode:   p.AffiliateCode,
		IsFirstPaid:     p.IsFirstPaid,
	}
}

// RefundPayload 退款任务载荷
type RefundPayload struct {
	Provider       string    `json:"provider"`
	RefundEventID  string    `json:"refund_event_id"`
	PaymentEventID string    `json:"payment_event_id"`
	RefundCents    int64     `json:"refund_cents"`
	CreatedAt      time.Time `json:"created_at"`
	Chargeback     bool      `json:"chargeback,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// NewRefundPayload 由退款事件构造载荷
func NewRefundPayload(refund commission.RefundEvent) RefundPayload {
	return RefundPayload{
		Provider:       refund.Provider,
		RefundEventID:  refund.RefundEventID,
		PaymentEventID: refund.PaymentEventID,
		RefundCents:    refund.RefundCents,
		CreatedAt:      refund.CreatedAt,
		Chargeback:     refund.Chargeback,
		Reason:         refund.Reason,
	}
}

// ToRefundEvent 转换为退款事件
func (p RefundPayload) ToRefundEvent() commission.RefundEvent {
	return commission.RefundEvent{
		Provider:       p.Provider,
		RefundEventID:  p.RefundEventID,
		PaymentEventID: p.PaymentEventID,
		RefundCents:    p.RefundCents,
		CreatedAt:      p.CreatedAt,
		Chargeback:     p.Chargeback,
		Reason:         p.Reason,
	}
}

// ApprovePayload 确认任务载荷
type ApprovePayload struct {
	IdempotencyKey string `json:"idempotency_key"`
}

// NewPaymentSucceededTask 创建支付成功任务
func NewPaymentSucceededTask(payload PaymentSucceededPayload) (*asynq.Task, error) {
	return newJSONTask(TaskCommissionPaymentSucceeded, payload)
}

// NewRefundTask 创建退款任务
func NewRefundTask(payload RefundPayload) (*asynq.Task, error) {
	return newJSONTask(TaskCommissionRefund, payload)
}

// NewApproveTask 创建确认任务
func NewApproveTask(payload ApprovePayload) (*asynq.Task, error) {
	return newJSONTask(TaskCommissionApprove, payload)
}

func newJSONTask(taskType string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body), nil
}
