package attribution

import (
	"time"
)

// ReferralUpsertRow 推广归因表的 upsert 记录
type ReferralUpsertRow struct {
	Code         string    `json:"code"`
	Channel      Channel   `json:"channel"`
	UTMSource    string    `json:"utm_source,omitempty"`
	UTMMedium    string    `json:"utm_medium,omitempty"`
	UTMCampaign  string    `json:"utm_campaign,omitempty"`
	UTMTerm      string    `json:"utm_term,omitempty"`
	UTMContent   string    `json:"utm_content,omitempty"`
	GCLID        string    `json:"gclid,omitempty"`
	MSCLKID      string    `json:"msclkid,omitempty"`
	FBCLID       string    `json:"fbclid,omitempty"`
	TWCLID       string    `json:"twclid,omitempty"`
	TTCLID       string    `json:"ttclid,omitempty"`
	CLID         string    `json:"clid,omitempty"`
	Referrer     string    `json:"referrer,omitempty"`
	LandingURL   string    `json:"landing_url,omitempty"`
	Country      string    `json:"country,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	FirstTouchAt time.Time `json:"first_touch_at"`
	LastTouchAt  time.Time `json:"last_touch_at"`
}

// AnalyticsEvent 发送给埋点系统的事件
type AnalyticsEvent struct {
	Name  string                 `json:"name"`
	TS    time.Time              `json:"ts"`
	Props map[string]interface{} `json:"props"`
}

// BuildAffiliateReferralUpsert 构造推广归因 upsert 记录
func BuildAffiliateReferralUpsert(signal TouchSignal, history TouchHistory) ReferralUpsertRow {
	code, _ := NormalizeAffiliateCode(signal.AffiliateCode)
	row := ReferralUpsertRow{
		Code:         code,
		Channel:      signal.Channel,
		UTMSource:    signal.UTM.Source,
		UTMMedium:    signal.UTM.Medium,
		UTMCampaign:  signal.UTM.Campaign,
		UTMTerm:      signal.UTM.Term,
		UTMContent:   signal.UTM.Content,
		GCLID:        signal.ClickIDs.GCLID,
		MSCLKID:      signal.ClickIDs.MSCLKID,
		FBCLID:       signal.ClickIDs.FBCLID,
		TWCLID:       signal.ClickIDs.TWCLID,
		TTCLID:       signal.ClickIDs.TTCLID,
		CLID:         signal.ClickIDs.CLID,
		Referrer:     signal.Referrer,
		LandingURL:   signal.LandingURL,
		Country:      signal.Country,
		UserAgent:    signal.UserAgent,
		FirstTouchAt: signal.Timestamp.UTC(),
		LastTouchAt:  signal.Timestamp.UTC(),
	}
	if history.FirstTouch != nil {
		if ts, ok := history.FirstTouch.Time(); ok {
			row.FirstTouchAt = ts
		}
	}
	return row
}

// ToAnalyticsEvent 将触点信号展开为埋点事件，extra 覆盖同名字段
func ToAnalyticsEvent(signal TouchSignal, name string, extra map[string]interface{}) AnalyticsEvent {
	props := make(map[string]interface{}, 24+len(extra))
	put := func(key, value string) {
		if value != "" {
			props[key] = value
		}
	}
	put("request_id", signal.RequestID)
	put("channel", string(signal.Channel))
	put("affiliate_code", signal.AffiliateCode)
	put("utm_source", signal.UTM.Source)
	put("utm_medium", signal.UTM.Medium)
	put("utm_campaign", signal.UTM.Campaign)
	put("utm_term", signal.UTM.Term)
	put("utm_content", signal.UTM.Content)
	put("gclid", signal.ClickIDs.GCLID)
	put("msclkid", signal.ClickIDs.MSCLKID)
	put("fbclid", signal.ClickIDs.FBCLID)
	put("twclid", signal.ClickIDs.TWCLID)
	put("ttclid", signal.ClickIDs.TTCLID)
	put("clid", signal.ClickIDs.CLID)
	put("referrer", signal.Referrer)
	put("landing_url", signal.LandingURL)
	put("country", signal.Country)
	put("user_agent", signal.UserAgent)
	put("ip_hash", signal.IPHash)
	put("site_domain", signal.SiteDomain)
	for key, value := range extra {
		props[key] = value
	}
	return AnalyticsEvent{
		Name:  name,
		TS:    signal.Timestamp.UTC(),
		Props: props,
	}
}
