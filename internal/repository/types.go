package repository

// AffiliateReferralListFilter 查询推广归因列表的过滤条件
type AffiliateReferralListFilter struct {
	Code     string
	Channel  string
	Search   string
	Page     int
	PageSize int
}

// AffiliateEventSummaryRow 推广码按事件类型、币种汇总
type AffiliateEventSummaryRow struct {
	EventType       string `json:"event_type"`
	Currency        string `json:"currency"`
	EventCount      int64  `json:"event_count"`
	CommissionCents int64  `json:"commission_cents"`
}
