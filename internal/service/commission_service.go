package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/practicecoach-next/internal/attribution"
	"github.com/practicecoach-next/internal/commission"
	"github.com/practicecoach-next/internal/constants"
	"github.com/practicecoach-next/internal/logger"
	"github.com/practicecoach-next/internal/models"
	"github.com/practicecoach-next/internal/queue"
	"github.com/practicecoach-next/internal/repository"

	"gorm.io/gorm"
)

const commissionApproveBatchDefault = 100

// CommissionService 佣金账本业务服务
type CommissionService struct {
	repo        repository.AffiliateEventRepository
	policies    *CommissionPolicyService
	queueClient *queue.Client
	sink        AnalyticsSink
	batchSize   int
	now         func() time.Time
}

// CommissionServiceOptions 佣金服务可选参数
type CommissionServiceOptions struct {
	QueueClient *queue.Client
	Sink        AnalyticsSink
	BatchSize   int
	Now         func() time.Time
}

// NewCommissionService 创建佣金账本服务
func NewCommissionService(
	repo repository.AffiliateEventRepository,
	policies *CommissionPolicyService,
	opts CommissionServiceOptions,
) *CommissionService {
	s := &CommissionService{
		repo:        repo,
		policies:    policies,
		queueClient: opts.QueueClient,
		sink:        opts.Sink,
		batchSize:   opts.BatchSize,
		now:         opts.Now,
	}
	if s.sink == nil {
		s.sink = LogSink{}
	}
	if s.batchSize <= 0 {
		s.batchSize = commissionApproveBatchDefault
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CommissionRecordResult 支付入账结果
type CommissionRecordResult struct {
	Event   *models.AffiliateEvent `json:"event,omitempty"`
	Created bool                   `json:"created"`
	Skipped bool                   `json:"skipped"`
}

// HandlePaymentSucceeded 计算佣金并幂等写入待确认事件，随后安排冻结期结束时确认
func (s *CommissionService) HandlePaymentSucceeded(ctx context.Context, payment commission.PaymentEvent) (*CommissionRecordResult, error) {
	if err := validatePaymentEvent(payment); err != nil {
		return nil, err
	}
	payment.AffiliateCode = strings.TrimSpace(payment.AffiliateCode)
	payment.CouponCode = strings.TrimSpace(payment.CouponCode)
	if payment.AffiliateCode == "" && payment.CouponCode == "" {
		logger.Ctx(ctx).Debugw("commission_payment_unattributed",
			"provider", payment.Provider,
			"provider_event_id", payment.ProviderEventID,
		)
		return &CommissionRecordResult{Skipped: true}, nil
	}

	policy, err := s.policies.Get(ctx)
	if err != nil {
		return nil, err
	}
	result := commission.ComputeCommission(payment, policy)
	pending := commission.BuildPendingEvent(payment, result)
	row := models.AffiliateEventFromCommission(pending, "")

	created, err := s.repo.Append(row)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommissionLedgerWrite, err)
	}
	if !created {
		existing, err := s.repo.GetByIdempotencyKeyAndType(pending.IdempotencyKey, commission.EventPending)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCommissionLedgerFetch, err)
		}
		logger.Ctx(ctx).Debugw("commission_pending_duplicate", "idempotency_key", pending.IdempotencyKey)
		return &CommissionRecordResult{Event: existing}, nil
	}

	logger.Ctx(ctx).Infow("commission_pending_created",
		"idempotency_key", row.IdempotencyKey,
		"affiliate_code", row.AffiliateCode,
		"coupon_code", row.CouponCode,
		"commission_cents", row.CommissionCents,
		"rate_bps", row.RateBps,
		"rate_source", row.RateSource,
		"hold_until", row.HoldUntil,
	)
	if err := s.queueClient.EnqueueApprove(queue.ApprovePayload{IdempotencyKey: row.IdempotencyKey}, result.HoldUntil); err != nil {
		// 扫描任务兜底确认
		logger.Ctx(ctx).Warnw("commission_approve_enqueue_failed", "idempotency_key", row.IdempotencyKey, "error", err)
	}
	s.publish(ctx, row)
	return &CommissionRecordResult{Event: row, Created: true}, nil
}

// ApprovePendingCommission 冻结期结束后确认单笔佣金
//
// 已确认或已作废时幂等返回；冻结期未到返回 ErrCommissionNotDue。
func (s *CommissionService) ApprovePendingCommission(ctx context.Context, idempotencyKey string) (*models.AffiliateEvent, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return nil, ErrCommissionEventNotFound
	}
	now := s.now().UTC()
	var approved *models.AffiliateEvent
	var created bool
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		pending, err := repoTx.GetByIdempotencyKeyAndType(key, commission.EventPending)
		if err != nil {
			return err
		}
		if pending == nil {
			return ErrCommissionEventNotFound
		}
		if pending.HoldUntil != nil && now.Before(pending.HoldUntil.UTC()) {
			return ErrCommissionNotDue
		}
		row, ok, err := s.approveTx(repoTx, pending, now)
		approved = row
		created = ok
		return err
	})
	if err != nil {
		if errors.Is(err, ErrCommissionNotDue) || errors.Is(err, ErrCommissionEventNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCommissionLedgerWrite, err)
	}
	if created {
		s.afterApproved(ctx, approved)
	}
	return approved, nil
}

// ApproveDueCommissions 批量确认冻结期已过的佣金，返回确认数量
func (s *CommissionService) ApproveDueCommissions(ctx context.Context) (int, error) {
	now := s.now().UTC()
	total := 0
	for {
		rows, err := s.repo.ListDuePending(now, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrCommissionLedgerFetch, err)
		}
		approvedInBatch := 0
		for i := range rows {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			pending := rows[i]
			var approved *models.AffiliateEvent
			var created bool
			err := s.repo.Transaction(func(tx *gorm.DB) error {
				row, ok, err := s.approveTx(s.repo.WithTx(tx), &pending, now)
				approved = row
				created = ok
				return err
			})
			if err != nil {
				logger.Ctx(ctx).Errorw("commission_approve_failed", "idempotency_key", pending.IdempotencyKey, "error", err)
				continue
			}
			if created {
				approvedInBatch++
				s.afterApproved(ctx, approved)
			}
		}
		total += approvedInBatch
		if len(rows) < s.batchSize || approvedInBatch == 0 {
			return total, nil
		}
	}
}

// approveTx 写入确认事件，结算位已被占用时返回已有确认事件
func (s *CommissionService) approveTx(repoTx repository.AffiliateEventRepository, pending *models.AffiliateEvent, at time.Time) (*models.AffiliateEvent, bool, error) {
	next, err := commission.BuildApprovedEvent(pending.ToCommissionEvent(), at)
	if err != nil {
		return nil, false, err
	}
	row := models.AffiliateEventFromCommission(next, "")
	created, err := repoTx.Append(row)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := repoTx.GetByIdempotencyKeyAndType(pending.IdempotencyKey, commission.EventApproved)
		return existing, false, err
	}
	return row, true, nil
}

func (s *CommissionService) afterApproved(ctx context.Context, row *models.AffiliateEvent) {
	logger.Ctx(ctx).Infow("commission_approved",
		"idempotency_key", row.IdempotencyKey,
		"affiliate_code", row.AffiliateCode,
		"commission_cents", row.CommissionCents,
	)
	s.publish(ctx, row)
}

// RefundResult 退款处理结果
type RefundResult struct {
	Action commission.RefundAction `json:"action"`
	Events []models.AffiliateEvent `json:"events"`
}

// HandleRefund 处理退款/拒付：冻结期内作废，冻结期后追回窗口内按比例冲正
func (s *CommissionService) HandleRefund(ctx context.Context, refund commission.RefundEvent) (*RefundResult, error) {
	if err := validateRefundEvent(refund); err != nil {
		return nil, err
	}
	policy, err := s.policies.Get(ctx)
	if err != nil {
		return nil, err
	}
	paymentKey := strings.TrimSpace(refund.PaymentEventID)
	refundAt := refund.CreatedAt.UTC()
	result := &RefundResult{Action: commission.RefundActionIgnore, Events: []models.AffiliateEvent{}}

	err = s.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		// 锁定该支付的账本行，并发退款按顺序累计冲正额度
		rows, err := repoTx.ListByIdempotencyKeyForUpdate(paymentKey)
		if err != nil {
			return err
		}
		pending, state := ledgerState(rows)
		if pending == nil {
			return nil
		}
		action := commission.DecideRefund(state, pending.CreatedAt, pending.HoldUntil, refundAt, policy)
		result.Action = action

		switch action {
		case commission.RefundActionVoid:
			next, err := commission.BuildVoidedEvent(pending.ToCommissionEvent(), constants.CommissionNoteRefundBeforeHold)
			if err != nil {
				return err
			}
			row := models.AffiliateEventFromCommission(next, refund.RefundEventID)
			created, err := repoTx.Append(row)
			if err != nil {
				return err
			}
			if created {
				result.Events = append(result.Events, *row)
			}
		case commission.RefundActionApproveAndReverse:
			approvedAt := refundAt
			if pending.HoldUntil != nil {
				approvedAt = pending.HoldUntil.UTC()
			}
			approved, created, err := s.approveTx(repoTx, pending, approvedAt)
			if err != nil {
				return err
			}
			if created && approved != nil {
				result.Events = append(result.Events, *approved)
			}
			if approved == nil {
				return nil
			}
			reversal, err := s.reverseTx(repoTx, approved, refund)
			if err != nil {
				return err
			}
			if reversal != nil {
				result.Events = append(result.Events, *reversal)
			}
		case commission.RefundActionReverse:
			approved, err := repoTx.GetByIdempotencyKeyAndType(paymentKey, commission.EventApproved)
			if err != nil {
				return err
			}
			if approved == nil {
				return nil
			}
			reversal, err := s.reverseTx(repoTx, approved, refund)
			if err != nil {
				return err
			}
			if reversal != nil {
				result.Events = append(result.Events, *reversal)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommissionLedgerWrite, err)
	}

	logger.Ctx(ctx).Infow("commission_refund_handled",
		"idempotency_key", paymentKey,
		"refund_event_id", refund.RefundEventID,
		"refund_cents", refund.RefundCents,
		"action", string(result.Action),
		"events", len(result.Events),
	)
	for i := range result.Events {
		s.publish(ctx, &result.Events[i])
	}
	return result, nil
}

// reverseTx 写入冲正事件，累计冲正不超过已确认佣金；同一退款事件重放时不重复写入
func (s *CommissionService) reverseTx(repoTx repository.AffiliateEventRepository, approved *models.AffiliateEvent, refund commission.RefundEvent) (*models.AffiliateEvent, error) {
	next, err := commission.BuildReversalEvent(approved.ToCommissionEvent(), refund.RefundCents, refund.Note())
	if err != nil {
		return nil, err
	}
	already, err := repoTx.SumReversedCents(approved.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	next.CommissionCents = commission.CapReversal(approved.CommissionCents, already, next.CommissionCents)
	row := models.AffiliateEventFromCommission(next, strings.TrimSpace(refund.RefundEventID))
	created, err := repoTx.Append(row)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}
	return row, nil
}

// CommissionLedger 单笔支付的佣金账本
type CommissionLedger struct {
	IdempotencyKey string                  `json:"idempotency_key"`
	State          commission.EventType    `json:"state"`
	NetCents       int64                   `json:"net_cents"`
	Events         []models.AffiliateEvent `json:"events"`
}

// Ledger 查询单笔支付的账本事件与当前状态
func (s *CommissionService) Ledger(idempotencyKey string) (*CommissionLedger, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return nil, ErrCommissionEventNotFound
	}
	rows, err := s.repo.ListByIdempotencyKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommissionLedgerFetch, err)
	}
	pending, state := ledgerState(rows)
	if pending == nil {
		return nil, ErrCommissionEventNotFound
	}
	return &CommissionLedger{
		IdempotencyKey: key,
		State:          state,
		NetCents:       ledgerNetCents(rows),
		Events:         rows,
	}, nil
}

// CommissionCurrencyTotal 按币种汇总
type CommissionCurrencyTotal struct {
	Currency      string       `json:"currency"`
	PendingCount  int64        `json:"pending_count"`
	PendingCents  int64        `json:"pending_cents"`
	ApprovedCents int64        `json:"approved_cents"`
	ReversedCents int64        `json:"reversed_cents"`
	VoidedCount   int64        `json:"voided_count"`
	PayableCents  int64        `json:"payable_cents"`
	PayableAmount models.Money `json:"payable_amount"`
}

// CommissionSummary 推广码佣金汇总
type CommissionSummary struct {
	AffiliateCode string                    `json:"affiliate_code"`
	Totals        []CommissionCurrencyTotal `json:"totals"`
}

// Summary 推广码佣金汇总：可结算 = 已确认 + 冲正
func (s *CommissionService) Summary(affiliateCode string) (*CommissionSummary, error) {
	code, ok := attribution.NormalizeAffiliateCode(affiliateCode)
	if !ok {
		return nil, ErrAffiliateCodeInvalid
	}
	rows, err := s.repo.SummarizeByAffiliate(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommissionLedgerFetch, err)
	}
	index := make(map[string]int)
	totals := make([]CommissionCurrencyTotal, 0)
	for _, row := range rows {
		pos, ok := index[row.Currency]
		if !ok {
			pos = len(totals)
			index[row.Currency] = pos
			totals = append(totals, CommissionCurrencyTotal{Currency: row.Currency})
		}
		total := &totals[pos]
		switch commission.EventType(row.EventType) {
		case commission.EventPending:
			total.PendingCount = row.EventCount
			total.PendingCents = row.CommissionCents
		case commission.EventApproved:
			total.ApprovedCents = row.CommissionCents
		case commission.EventReversed:
			total.ReversedCents = row.CommissionCents
		case commission.EventVoided:
			total.VoidedCount = row.EventCount
		}
	}
	for i := range totals {
		totals[i].PayableCents = totals[i].ApprovedCents + totals[i].ReversedCents
		totals[i].PayableAmount = models.MoneyFromCents(totals[i].PayableCents)
	}
	return &CommissionSummary{AffiliateCode: code, Totals: totals}, nil
}

func (s *CommissionService) publish(ctx context.Context, row *models.AffiliateEvent) {
	if row == nil {
		return
	}
	event := attribution.AnalyticsEvent{
		Name: constants.AnalyticsEventCommission,
		TS:   s.now().UTC(),
		Props: map[string]interface{}{
			"event_type":       row.EventType,
			"idempotency_key":  row.IdempotencyKey,
			"affiliate_code":   row.AffiliateCode,
			"coupon_code":      row.CouponCode,
			"currency":         row.Currency,
			"commission_cents": row.CommissionCents,
			"rate_source":      row.RateSource,
		},
	}
	if err := s.sink.Publish(ctx, event); err != nil {
		logger.Ctx(ctx).Warnw("commission_analytics_publish_failed", "idempotency_key", row.IdempotencyKey, "error", err)
	}
}

// ledgerState 返回待确认事件与当前状态；作废优先，其次冲正、确认
func ledgerState(rows []models.AffiliateEvent) (*models.AffiliateEvent, commission.EventType) {
	var pending *models.AffiliateEvent
	state := commission.EventPending
	rank := map[commission.EventType]int{
		commission.EventPending:  0,
		commission.EventApproved: 1,
		commission.EventReversed: 2,
		commission.EventVoided:   3,
	}
	for i := range rows {
		eventType := commission.EventType(rows[i].EventType)
		if !eventType.Valid() {
			continue
		}
		if eventType == commission.EventPending && pending == nil {
			pending = &rows[i]
		}
		if rank[eventType] > rank[state] {
			state = eventType
		}
	}
	return pending, state
}

func ledgerNetCents(rows []models.AffiliateEvent) int64 {
	var net int64
	for _, row := range rows {
		switch commission.EventType(row.EventType) {
		case commission.EventApproved, commission.EventReversed:
			net += row.CommissionCents
		}
	}
	return net
}

func validatePaymentEvent(payment commission.PaymentEvent) error {
	if strings.TrimSpace(payment.ProviderEventID) == "" {
		return fmt.Errorf("%w: provider_event_id is required", ErrCommissionPaymentInvalid)
	}
	if strings.TrimSpace(payment.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrCommissionPaymentInvalid)
	}
	if payment.AmountCents < 0 {
		return fmt.Errorf("%w: amount_cents must not be negative", ErrCommissionPaymentInvalid)
	}
	if payment.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at is required", ErrCommissionPaymentInvalid)
	}
	status := strings.TrimSpace(payment.Status)
	if status != "" && !strings.EqualFold(status, constants.PaymentEventStatusSucceeded) {
		return fmt.Errorf("%w: status %s", ErrCommissionPaymentInvalid, status)
	}
	return nil
}

func validateRefundEvent(refund commission.RefundEvent) error {
	if strings.TrimSpace(refund.RefundEventID) == "" {
		return fmt.Errorf("%w: refund_event_id is required", ErrCommissionRefundInvalid)
	}
	if strings.TrimSpace(refund.PaymentEventID) == "" {
		return fmt.Errorf("%w: payment_event_id is required", ErrCommissionRefundInvalid)
	}
	if refund.RefundCents < 0 {
		return fmt.Errorf("%w: refund_cents must not be negative", ErrCommissionRefundInvalid)
	}
	if refund.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at is required", ErrCommissionRefundInvalid)
	}
	return nil
}
