package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/practicecoach-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AffiliateReferralRepository 推广归因数据访问接口
type AffiliateReferralRepository interface {
	Upsert(referral *models.AffiliateReferral) error
	GetByCodeAndVisitor(code, visitorKey string) (*models.AffiliateReferral, error)
	ListByCode(filter AffiliateReferralListFilter) ([]models.AffiliateReferral, int64, error)
}

// GormAffiliateReferralRepository GORM 推广归因仓储
type GormAffiliateReferralRepository struct {
	db *gorm.DB
}

// NewAffiliateReferralRepository 创建推广归因仓储
func NewAffiliateReferralRepository(db *gorm.DB) *GormAffiliateReferralRepository {
	return &GormAffiliateReferralRepository{db: db}
}

// Upsert 按 推广码 + 访客 写入归因，已存在时刷新最近触点并累计次数，首次触点时间保持不变
func (r *GormAffiliateReferralRepository) Upsert(referral *models.AffiliateReferral) error {
	if referral == nil || strings.TrimSpace(referral.Code) == "" || strings.TrimSpace(referral.VisitorKey) == "" {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}, {Name: "visitor_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"channel":       referral.Channel,
			"utm_source":    referral.UTMSource,
			"utm_medium":    referral.UTMMedium,
			"utm_campaign":  referral.UTMCampaign,
			"utm_term":      referral.UTMTerm,
			"utm_content":   referral.UTMContent,
			"gclid":         referral.GCLID,
			"msclkid":       referral.MSCLKID,
			"fbclid":        referral.FBCLID,
			"twclid":        referral.TWCLID,
			"ttclid":        referral.TTCLID,
			"clid":          referral.CLID,
			"referrer":      referral.Referrer,
			"landing_url":   referral.LandingURL,
			"country":       referral.Country,
			"user_agent":    referral.UserAgent,
			"ip_hash":       referral.IPHash,
			"last_touch_at": referral.LastTouchAt,
			"touch_count":   gorm.Expr("affiliate_referrals.touch_count + 1"),
			"updated_at":    time.Now(),
		}),
	}).Create(referral).Error
}

// GetByCodeAndVisitor 获取单条归因
func (r *GormAffiliateReferralRepository) GetByCodeAndVisitor(code, visitorKey string) (*models.AffiliateReferral, error) {
	var referral models.AffiliateReferral
	err := r.db.Where("code = ? AND visitor_key = ?", strings.TrimSpace(code), strings.TrimSpace(visitorKey)).
		First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// ListByCode 分页查询推广码下的归因记录，按最近触点倒序
func (r *GormAffiliateReferralRepository) ListByCode(filter AffiliateReferralListFilter) ([]models.AffiliateReferral, int64, error) {
	query := r.db.Model(&models.AffiliateReferral{}).Where("code = ?", strings.TrimSpace(filter.Code))
	if channel := strings.TrimSpace(filter.Channel); channel != "" {
		query = query.Where("channel = ?", channel)
	}
	if condition, args := searchCondition(dbDialectName(r.db), []string{"utm_source", "utm_campaign", "landing_url"}, filter.Search); condition != "" {
		query = query.Where(condition, args...)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.AffiliateReferral
	if err := applyPagination(query.Order("last_touch_at DESC, id DESC"), filter.Page, filter.PageSize).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
