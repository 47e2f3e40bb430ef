package attribution

import (
	"net/url"
	"strings"
)

// Channel 访客来源渠道
type Channel string

const (
	ChannelAffiliate     Channel = "affiliate"
	ChannelPaidSearch    Channel = "paid_search"
	ChannelPaidSocial    Channel = "paid_social"
	ChannelSocial        Channel = "social"
	ChannelEmail         Channel = "email"
	ChannelOrganicSearch Channel = "organic_search"
	ChannelReferral      Channel = "referral"
	ChannelDirect        Channel = "direct"
	ChannelUnknown       Channel = "unknown"
)

// IsPaid 是否付费渠道
func (c Channel) IsPaid() bool {
	return c == ChannelPaidSearch || c == ChannelPaidSocial
}

var paidSearchMediums = map[string]struct{}{
	"cpc":  {},
	"ppc":  {},
	"paid": {},
	"sem":  {},
}

var paidSocialMediums = map[string]struct{}{
	"paid_social": {},
	"social_paid": {},
}

var searchEngineLabels = map[string]struct{}{
	"google":     {},
	"bing":       {},
	"yahoo":      {},
	"duckduckgo": {},
	"yandex":     {},
	"baidu":      {},
	"ecosia":     {},
}

// ChannelInput 渠道识别输入
type ChannelInput struct {
	UTM           UTM
	ClickIDs      ClickIDs
	Referrer      string
	AffiliateCode string
	SiteHost      string
}

// InferChannel 按固定优先级识别渠道，命中即返回
// 推广码优先于付费搜索点击标识。
func InferChannel(in ChannelInput) Channel {
	medium := strings.ToLower(strings.TrimSpace(in.UTM.Medium))
	source := strings.ToLower(strings.TrimSpace(in.UTM.Source))
	hasUTM := medium != "" || source != ""
	referrerHost := referrerHostname(in.Referrer)

	if strings.TrimSpace(in.AffiliateCode) != "" {
		return ChannelAffiliate
	}
	if strings.TrimSpace(in.ClickIDs.GCLID) != "" || strings.TrimSpace(in.ClickIDs.MSCLKID) != "" {
		return ChannelPaidSearch
	}
	if _, ok := paidSearchMediums[medium]; ok {
		return ChannelPaidSearch
	}
	if _, ok := paidSocialMediums[medium]; ok {
		return ChannelPaidSocial
	}
	if medium == "social" {
		return ChannelSocial
	}
	if medium == "email" || source == "email" {
		return ChannelEmail
	}
	if referrerHost != "" && !hasUTM && isSearchEngineHost(referrerHost) {
		return ChannelOrganicSearch
	}
	if referrerHost != "" && referrerHost != normalizeHost(in.SiteHost) {
		return ChannelReferral
	}
	if referrerHost == "" && !hasUTM {
		return ChannelDirect
	}
	return ChannelUnknown
}

func referrerHostname(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	return normalizeHost(parsed.Hostname())
}

// 按域名标签匹配，兼容 google.co.uk、search.yahoo.com 等形式。
func isSearchEngineHost(host string) bool {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels[:len(labels)-1] {
		if _, ok := searchEngineLabels[label]; ok {
			return true
		}
	}
	return false
}
