package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/practicecoach-next/internal/commission"
	"github.com/practicecoach-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AffiliateEventRepository 佣金账本数据访问接口
type AffiliateEventRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateEventRepository

	Append(event *models.AffiliateEvent) (bool, error)
	ListByIdempotencyKey(key string) ([]models.AffiliateEvent, error)
	ListByIdempotencyKeyForUpdate(key string) ([]models.AffiliateEvent, error)
	GetByIdempotencyKeyAndType(key string, eventType commission.EventType) (*models.AffiliateEvent, error)
	SumReversedCents(key string) (int64, error)
	ListDuePending(before time.Time, limit int) ([]models.AffiliateEvent, error)
	SummarizeByAffiliate(code string) ([]AffiliateEventSummaryRow, error)
}

// settledSlotSubquery 同一支付已写入确认或作废事件
const settledSlotSubquery = "SELECT 1 FROM affiliate_events AS settled WHERE settled.idempotency_key = affiliate_events.idempotency_key AND settled.event_type IN ?"

func settledEventTypes() []string {
	return []string{string(commission.EventApproved), string(commission.EventVoided)}
}

// GormAffiliateEventRepository GORM 佣金账本仓储
type GormAffiliateEventRepository struct {
	db *gorm.DB
}

// NewAffiliateEventRepository 创建佣金账本仓储
func NewAffiliateEventRepository(db *gorm.DB) *GormAffiliateEventRepository {
	return &GormAffiliateEventRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAffiliateEventRepository) WithTx(tx *gorm.DB) AffiliateEventRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateEventRepository{db: tx}
}

// Transaction 执行事务
func (r *GormAffiliateEventRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Append 追加账本事件，迁移幂等键冲突时不写入并返回 false
func (r *GormAffiliateEventRepository) Append(event *models.AffiliateEvent) (bool, error) {
	if event == nil {
		return false, nil
	}
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transition_key"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByIdempotencyKey 按写入顺序列出一笔支付的全部账本事件
func (r *GormAffiliateEventRepository) ListByIdempotencyKey(key string) ([]models.AffiliateEvent, error) {
	var rows []models.AffiliateEvent
	if err := r.db.Where("idempotency_key = ?", strings.TrimSpace(key)).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByIdempotencyKeyForUpdate 加锁列出一笔支付的账本事件，同一支付的结算写入串行执行
func (r *GormAffiliateEventRepository) ListByIdempotencyKeyForUpdate(key string) ([]models.AffiliateEvent, error) {
	var rows []models.AffiliateEvent
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("idempotency_key = ?", strings.TrimSpace(key)).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetByIdempotencyKeyAndType 获取指定类型的第一条事件
func (r *GormAffiliateEventRepository) GetByIdempotencyKeyAndType(key string, eventType commission.EventType) (*models.AffiliateEvent, error) {
	var row models.AffiliateEvent
	err := r.db.Where("idempotency_key = ? AND event_type = ?", strings.TrimSpace(key), string(eventType)).
		Order("id ASC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// SumReversedCents 已冲正佣金合计（非正数）
func (r *GormAffiliateEventRepository) SumReversedCents(key string) (int64, error) {
	var total int64
	err := r.db.Model(&models.AffiliateEvent{}).
		Select("COALESCE(SUM(commission_cents), 0)").
		Where("idempotency_key = ? AND event_type = ?", strings.TrimSpace(key), string(commission.EventReversed)).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ListDuePending 冻结期已过且尚未结算的待确认事件
func (r *GormAffiliateEventRepository) ListDuePending(before time.Time, limit int) ([]models.AffiliateEvent, error) {
	before = before.UTC()
	query := r.db.Model(&models.AffiliateEvent{}).
		Where("event_type = ? AND hold_until IS NOT NULL AND hold_until <= ?", string(commission.EventPending), before).
		Where("NOT EXISTS ("+settledSlotSubquery+")", settledEventTypes()).
		Order("hold_until ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.AffiliateEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SummarizeByAffiliate 推广码按事件类型与币种汇总佣金
//
// 待确认只统计尚未确认或作废的事件。
func (r *GormAffiliateEventRepository) SummarizeByAffiliate(code string) ([]AffiliateEventSummaryRow, error) {
	var rows []AffiliateEventSummaryRow
	err := r.db.Model(&models.AffiliateEvent{}).
		Select("event_type, currency, COUNT(*) AS event_count, COALESCE(SUM(commission_cents), 0) AS commission_cents").
		Where("affiliate_code = ?", strings.TrimSpace(code)).
		Where("(event_type <> ? OR NOT EXISTS ("+settledSlotSubquery+"))", string(commission.EventPending), settledEventTypes()).
		Group("event_type, currency").
		Order("event_type ASC, currency ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
