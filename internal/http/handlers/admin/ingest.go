package admin

import (
	"strings"
	"time"

	"github.com/practicecoach-next/internal/commission"
	"github.com/practicecoach-next/internal/http/response"
	"github.com/practicecoach-next/internal/queue"

	"github.com/gin-gonic/gin"
)

// PaymentSucceededRequest 计费系统回传的已验证支付成功事件
type PaymentSucceededRequest struct {
	Provider        string    `json:"provider"`
	ProviderEventID string    `json:"provider_event_id" binding:"required"`
	UserID          string    `json:"user_id"`
	PlanKey         string    `json:"plan_key"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency" binding:"required"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at" binding:"required"`
	CouponCode      string    `json:"coupon_code"`
	AffiliateCode   string    `json:"affiliate_code"`
	IsFirstPaid     bool      `json:"is_first_paid"`
}

// ToPaymentEvent 转换为支付事件
func (r PaymentSucceededRequest) ToPaymentEvent() commission.PaymentEvent {
	return commission.PaymentEvent{
		Provider:        strings.TrimSpace(r.Provider),
		ProviderEventID: strings.TrimSpace(r.ProviderEventID),
		UserID:          strings.TrimSpace(r.UserID),
		PlanKey:         strings.TrimSpace(r.PlanKey),
		AmountCents:     r.AmountCents,
		Currency:        strings.TrimSpace(r.Currency),
		Status:          strings.TrimSpace(r.Status),
		CreatedAt:       r.CreatedAt,
		CouponCode:      strings.TrimSpace(r.CouponCode),
		AffiliateCode:   strings.TrimSpace(r.AffiliateCode),
		IsFirstPaid:     r.IsFirstPaid,
	}
}

// RefundRequest 计费系统回传的退款/拒付事件
type RefundRequest struct {
	Provider       string    `json:"provider"`
	RefundEventID  string    `json:"refund_event_id" binding:"required"`
	PaymentEventID string    `json:"payment_event_id" binding:"required"`
	RefundCents    int64     `json:"refund_cents"`
	CreatedAt      time.Time `json:"created_at" binding:"required"`
	Chargeback     bool      `json:"chargeback"`
	Reason         string    `json:"reason"`
}

// ToRefundEvent 转换为退款事件
func (r RefundRequest) ToRefundEvent() commission.RefundEvent {
	return commission.RefundEvent{
		Provider:       strings.TrimSpace(r.Provider),
		RefundEventID:  strings.TrimSpace(r.RefundEventID),
		PaymentEventID: strings.TrimSpace(r.PaymentEventID),
		RefundCents:    r.RefundCents,
		CreatedAt:      r.CreatedAt,
		Chargeback:     r.Chargeback,
		Reason:         strings.TrimSpace(r.Reason),
	}
}

// IngestPaymentSucceeded 接收支付成功事件：队列可用时异步入账，否则同步处理
func (h *Handler) IngestPaymentSucceeded(c *gin.Context) {
	var req PaymentSucceededRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	payment := req.ToPaymentEvent()

	if h.QueueClient.Enabled() {
		err := h.QueueClient.EnqueuePaymentSucceeded(queue.NewPaymentSucceededPayload(payment))
		if err == nil {
			response.Success(c, gin.H{"queued": true})
			return
		}
		requestLog(c).Warnw("ingest_payment_enqueue_failed_fallback_sync",
			"provider_event_id", payment.ProviderEventID,
			"error", err,
		)
	}

	result, err := h.CommissionService.HandlePaymentSucceeded(c.Request.Context(), payment)
	if err != nil {
		respondWithMappedError(c, err, "commission record failed")
		return
	}
	response.Success(c, gin.H{"queued": false, "result": result})
}

// IngestRefund 接收退款/拒付事件
func (h *Handler) IngestRefund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	refund := req.ToRefundEvent()

	if h.QueueClient.Enabled() {
		err := h.QueueClient.EnqueueRefund(queue.NewRefundPayload(refund))
		if err == nil {
			response.Success(c, gin.H{"queued": true})
			return
		}
		requestLog(c).Warnw("ingest_refund_enqueue_failed_fallback_sync",
			"refund_event_id", refund.RefundEventID,
			"error", err,
		)
	}

	result, err := h.CommissionService.HandleRefund(c.Request.Context(), refund)
	if err != nil {
		respondWithMappedError(c, err, "refund handling failed")
		return
	}
	response.Success(c, gin.H{"queued": false, "result": result})
}
