package attribution

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const maxParamLength = 512

var affiliateCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{2,64}$`)

// 推广码候选参数，按顺序取第一个合法值
var affiliateParamKeys = []string{"aff", "affiliate", "ref", "ref_code", "r"}

var countryHeaderKeys = []string{"CF-IPCountry", "X-Vercel-IP-Country", "CloudFront-Viewer-Country", "X-Country-Code"}

var clientIPHeaderKeys = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// UTM 营销参数
type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

// ClickIDs 广告平台点击标识
type ClickIDs struct {
	GCLID   string `json:"gclid,omitempty"`
	MSCLKID string `json:"msclkid,omitempty"`
	FBCLID  string `json:"fbclid,omitempty"`
	TWCLID  string `json:"twclid,omitempty"`
	TTCLID  string `json:"ttclid,omitempty"`
	CLID    string `json:"clid,omitempty"`
}

// TouchSignal 单次请求的触点信号
type TouchSignal struct {
	Timestamp     time.Time `json:"ts"`
	RequestID     string    `json:"request_id"`
	LandingURL    string    `json:"landing_url,omitempty"`
	Referrer      string    `json:"referrer,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Country       string    `json:"country,omitempty"`
	IPHash        string    `json:"ip_hash,omitempty"`
	UTM           UTM       `json:"utm"`
	ClickIDs      ClickIDs  `json:"click_ids"`
	AffiliateCode string    `json:"affiliate_code,omitempty"`
	Channel       Channel   `json:"channel"`
	SiteDomain    string    `json:"site_domain,omitempty"`
}

// NormalizeAffiliateCode 去除首尾空白后校验推广码，不合法时返回 false
//
// 用于管理接口与账本输入；URL 中的推广码不做修剪。
func NormalizeAffiliateCode(raw string) (string, bool) {
	code := strings.TrimSpace(raw)
	if !affiliateCodePattern.MatchString(code) {
		return "", false
	}
	return code, true
}

// ExtractSignal 从请求中提取触点信号，任何异常输入都降级为空字段
func (e *Engine) ExtractSignal(req Request) TouchSignal {
	signal := TouchSignal{
		Timestamp: e.now().UTC(),
		UserAgent: clipParam(req.Header.Get("User-Agent")),
		Country:   extractCountry(req),
		IPHash:    e.hashIP(extractClientIP(req)),
		Referrer:  clipParam(req.Header.Get("Referer")),
	}
	if signal.Referrer == "" {
		signal.Referrer = clipParam(req.Header.Get("Referrer"))
	}
	signal.RequestID = strings.TrimSpace(req.Header.Get("X-Request-ID"))
	if signal.RequestID == "" {
		signal.RequestID = e.newRequestID()
	}

	var query url.Values
	landing, err := url.Parse(strings.TrimSpace(req.URL))
	if err == nil && req.URL != "" {
		signal.LandingURL = clipParam(landing.String())
		query = landing.Query()
		signal.SiteDomain = normalizeHost(landing.Hostname())
	}
	if e.siteHost != "" {
		signal.SiteDomain = e.siteHost
	}

	signal.UTM = UTM{
		Source:   clipParam(query.Get("utm_source")),
		Medium:   clipParam(query.Get("utm_medium")),
		Campaign: clipParam(query.Get("utm_campaign")),
		Term:     clipParam(query.Get("utm_term")),
		Content:  clipParam(query.Get("utm_content")),
	}
	signal.ClickIDs = ClickIDs{
		GCLID:   clipParam(query.Get("gclid")),
		MSCLKID: clipParam(query.Get("msclkid")),
		FBCLID:  clipParam(query.Get("fbclid")),
		TWCLID:  clipParam(query.Get("twclid")),
		TTCLID:  clipParam(query.Get("ttclid")),
		CLID:    clipParam(query.Get("clid")),
	}
	for _, key := range affiliateParamKeys {
		// URL 参数按原值校验，带空白的推广码直接丢弃
		if code := query.Get(key); affiliateCodePattern.MatchString(code) {
			signal.AffiliateCode = code
			break
		}
	}

	signal.Channel = InferChannel(ChannelInput{
		UTM:           signal.UTM,
		ClickIDs:      signal.ClickIDs,
		Referrer:      signal.Referrer,
		AffiliateCode: signal.AffiliateCode,
		SiteHost:      signal.SiteDomain,
	})
	return signal
}

func (e *Engine) hashIP(ip string) string {
	if ip == "" || len(e.ipKey) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, e.ipKey)
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}

func extractClientIP(req Request) string {
	candidates := []string{req.IP}
	for _, key := range clientIPHeaderKeys {
		candidates = append(candidates, firstHeaderValue(req.Header.Get(key)))
	}
	for _, candidate := range candidates {
		addr, err := netip.ParseAddr(strings.TrimSpace(candidate))
		if err != nil {
			continue
		}
		return addr.Unmap().String()
	}
	return ""
}

func extractCountry(req Request) string {
	for _, key := range countryHeaderKeys {
		value := strings.ToUpper(strings.TrimSpace(req.Header.Get(key)))
		if len(value) == 2 && isASCIILetters(value) {
			return value
		}
	}
	return ""
}

func isASCIILetters(value string) bool {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func clipParam(raw string) string {
	value := strings.TrimSpace(raw)
	if len(value) > maxParamLength {
		value = strings.ToValidUTF8(value[:maxParamLength], "")
	}
	return value
}
