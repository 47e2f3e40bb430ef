package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/practicecoach-next/internal/logger"
	"github.com/practicecoach-next/internal/provider"
	"github.com/practicecoach-next/internal/queue"
	"github.com/practicecoach-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskCommissionPaymentSucceeded, c.handlePaymentSucceeded)
	mux.HandleFunc(queue.TaskCommissionRefund, c.handleRefund)
	mux.HandleFunc(queue.TaskCommissionApprove, c.handleApprove)
}

func (c *Consumer) handlePaymentSucceeded(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.CommissionService == nil {
		logger.Debugw("worker_payment_succeeded_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentSucceededPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_succeeded_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	result, err := c.CommissionService.HandlePaymentSucceeded(ctx, payload.ToPaymentEvent())
	if err != nil {
		if isPermanentCommissionError(err) {
			logger.Warnw("worker_payment_succeeded_skip_invalid_payload",
				"provider", payload.Provider,
				"provider_event_id", payload.ProviderEventID,
				"error", err,
			)
			return nil
		}
		logger.Warnw("worker_payment_succeeded_failed",
			"provider", payload.Provider,
			"provider_event_id", payload.ProviderEventID,
			"error", err,
		)
		return err
	}
	logger.Debugw("worker_payment_succeeded_done",
		"provider", payload.Provider,
		"provider_event_id", payload.ProviderEventID,
		"created", result.Created,
		"skipped", result.Skipped,
	)
	return nil
}

func (c *Consumer) handleRefund(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.CommissionService == nil {
		logger.Debugw("worker_refund_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.RefundPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_refund_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	result, err := c.CommissionService.HandleRefund(ctx, payload.ToRefundEvent())
	if err != nil {
		if isPermanentCommissionError(err) {
			logger.Warnw("worker_refund_skip_invalid_payload",
				"refund_event_id", payload.RefundEventID,
				"payment_event_id", payload.PaymentEventID,
				"error", err,
			)
			return nil
		}
		logger.Warnw("worker_refund_failed",
			"refund_event_id", payload.RefundEventID,
			"payment_event_id", payload.PaymentEventID,
			"error", err,
		)
		return err
	}
	logger.Debugw("worker_refund_done",
		"refund_event_id", payload.RefundEventID,
		"action", string(result.Action),
		"events", len(result.Events),
	)
	return nil
}

func (c *Consumer) handleApprove(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.CommissionService == nil {
		logger.Debugw("worker_approve_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ApprovePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_approve_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	key := strings.TrimSpace(payload.IdempotencyKey)
	if key == "" {
		logger.Debugw("worker_approve_skip_invalid_payload")
		return nil
	}
	if _, err := c.CommissionService.ApprovePendingCommission(ctx, key); err != nil {
		switch {
		case errors.Is(err, service.ErrCommissionNotDue):
			// 冻结期未到由扫描任务兜底
			logger.Debugw("worker_approve_not_due", "idempotency_key", key)
			return nil
		case errors.Is(err, service.ErrCommissionEventNotFound):
			logger.Debugw("worker_approve_skip_not_found", "idempotency_key", key)
			return nil
		}
		logger.Warnw("worker_approve_failed", "idempotency_key", key, "error", err)
		return err
	}
	return nil
}

func isPermanentCommissionError(err error) bool {
	return errors.Is(err, service.ErrCommissionPaymentInvalid) ||
		errors.Is(err, service.ErrCommissionRefundInvalid)
}
