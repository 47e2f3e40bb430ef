package models

import (
	"time"

	"github.com/practicecoach-next/internal/attribution"
)

// AffiliateReferral 推广归因记录，每个推广码 + 访客唯一
type AffiliateReferral struct {
	ID           uint      `gorm:"primarykey" json:"id"`                                                                          // 主键
	Code         string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_affiliate_referral_visitor,priority:1" json:"code"`   // 推广码
	VisitorKey   string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_affiliate_referral_visitor,priority:2" json:"-"`     // 访客标识
	Channel      string    `gorm:"type:varchar(32);not null;index" json:"channel"`                                                // 最近一次触点渠道
	UTMSource    string    `gorm:"type:varchar(512)" json:"utm_source,omitempty"`                                                 // utm_source
	UTMMedium    string    `gorm:"type:varchar(512)" json:"utm_medium,omitempty"`                                                 // utm_medium
	UTMCampaign  string    `gorm:"type:varchar(512)" json:"utm_campaign,omitempty"`                                               // utm_campaign
	UTMTerm      string    `gorm:"type:varchar(512)" json:"utm_term,omitempty"`                                                   // utm_term
	UTMContent   string    `gorm:"type:varchar(512)" json:"utm_content,omitempty"`                                                // utm_content
	GCLID        string    `gorm:"column:gclid;type:varchar(512)" json:"gclid,omitempty"`                                         // Google 点击标识
	MSCLKID      string    `gorm:"column:msclkid;type:varchar(512)" json:"msclkid,omitempty"`                                     // Microsoft 点击标识
	FBCLID       string    `gorm:"column:fbclid;type:varchar(512)" json:"fbclid,omitempty"`                                       // Meta 点击标识
	TWCLID       string    `gorm:"column:twclid;type:varchar(512)" json:"twclid,omitempty"`                                       // X 点击标识
	TTCLID       string    `gorm:"column:ttclid;type:varchar(512)" json:"ttclid,omitempty"`                                       // TikTok 点击标识
	CLID         string    `gorm:"column:clid;type:varchar(512)" json:"clid,omitempty"`                                           // 通用点击标识
	Referrer     string    `gorm:"type:text" json:"referrer,omitempty"`                                                           // 来源地址
	LandingURL   string    `gorm:"type:text" json:"landing_url,omitempty"`                                                        // 落地页
	Country      string    `gorm:"type:varchar(8)" json:"country,omitempty"`                                                      // 国家代码
	UserAgent    string    `gorm:"type:text" json:"user_agent,omitempty"`                                                         // 客户端UA
	IPHash       string    `gorm:"type:varchar(64)" json:"-"`                                                                     // IP 哈希
	TouchCount   int       `gorm:"not null;default:1" json:"touch_count"`                                                         // 触点次数
	FirstTouchAt time.Time `gorm:"not null;index" json:"first_touch_at"`                                                          // 首次触点时间
	LastTouchAt  time.Time `gorm:"not null;index" json:"last_touch_at"`                                                           // 最近触点时间
	CreatedAt    time.Time `json:"created_at"`                                                                                    // 创建时间
	UpdatedAt    time.Time `json:"updated_at"`                                                                                    // 更新时间
}

// TableName 指定表名
func (AffiliateReferral) TableName() string {
	return "affiliate_referrals"
}

// NewAffiliateReferral 由 upsert 记录构造归因行
func NewAffiliateReferral(row attribution.ReferralUpsertRow, visitorKey, ipHash string) *AffiliateReferral {
	return &AffiliateReferral{
		Code:         row.Code,
		VisitorKey:   visitorKey,
		Channel:      string(row.Channel),
		UTMSource:    row.UTMSource,
		UTMMedium:    row.UTMMedium,
		UTMCampaign:  row.UTMCampaign,
		UTMTerm:      row.UTMTerm,
		UTMContent:   row.UTMContent,
		GCLID:        row.GCLID,
		MSCLKID:      row.MSCLKID,
		FBCLID:       row.FBCLID,
		TWCLID:       row.TWCLID,
		TTCLID:       row.TTCLID,
		CLID:         row.CLID,
		Referrer:     row.Referrer,
		LandingURL:   row.LandingURL,
		Country:      row.Country,
		UserAgent:    row.UserAgent,
		IPHash:       ipHash,
		TouchCount:   1,
		FirstTouchAt: row.FirstTouchAt,
		LastTouchAt:  row.LastTouchAt,
	}
}
