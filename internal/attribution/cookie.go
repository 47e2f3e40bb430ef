package attribution

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/practicecoach-next/internal/constants"
)

// TouchKind 触点类型
type TouchKind string

const (
	TouchKindFirst TouchKind = "first"
	TouchKindLast  TouchKind = "last"
)

// CookiePayload 签名 Cookie 中保存的触点快照
type CookiePayload struct {
	TS            string    `json:"ts"`
	Channel       Channel   `json:"channel"`
	UTM           UTM       `json:"utm"`
	ClickIDs      ClickIDs  `json:"click_ids"`
	AffiliateCode string    `json:"affiliate_code,omitempty"`
	Referrer      string    `json:"referrer,omitempty"`
	LandingURL    string    `json:"landing_url,omitempty"`
	Kind          TouchKind `json:"kind"`
}

// Time 解析触点时间
func (p CookiePayload) Time() (time.Time, bool) {
	parsed, err := time.Parse(time.RFC3339Nano, p.TS)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// PayloadFromSignal 由触点信号构造 Cookie 快照
func PayloadFromSignal(signal TouchSignal, kind TouchKind) CookiePayload {
	return CookiePayload{
		TS:            signal.Timestamp.UTC().Format(time.RFC3339Nano),
		Channel:       signal.Channel,
		UTM:           signal.UTM,
		ClickIDs:      signal.ClickIDs,
		AffiliateCode: signal.AffiliateCode,
		Referrer:      signal.Referrer,
		LandingURL:    signal.LandingURL,
		Kind:          kind,
	}
}

// CookieJar 入站 Cookie 头的只读快照
type CookieJar struct {
	values map[string]string
}

// ParseCookieJar 解析 Cookie 请求头，非法片段直接忽略
func ParseCookieJar(header string) CookieJar {
	req := &http.Request{Header: http.Header{"Cookie": []string{header}}}
	return cookieJarFrom(req.Cookies())
}

// CookieJarFromRequest 从请求中读取 Cookie 快照
func CookieJarFromRequest(r *http.Request) CookieJar {
	if r == nil {
		return CookieJar{}
	}
	return cookieJarFrom(r.Cookies())
}

func cookieJarFrom(cookies []*http.Cookie) CookieJar {
	values := make(map[string]string, len(cookies))
	for _, cookie := range cookies {
		if cookie == nil {
			continue
		}
		// 同名 Cookie 以第一个为准（路径更具体的优先）
		if _, ok := values[cookie.Name]; ok {
			continue
		}
		values[cookie.Name] = cookie.Value
	}
	return CookieJar{values: values}
}

// Get 读取 Cookie 值
func (j CookieJar) Get(name string) (string, bool) {
	value, ok := j.values[name]
	return value, ok
}

// TouchHistory 已验证的首次/最近触点
type TouchHistory struct {
	FirstTouch *CookiePayload `json:"first_touch,omitempty"`
	LastTouch  *CookiePayload `json:"last_touch,omitempty"`
}

// CookieUpdate 本次请求需要下发的 Cookie 及更新后的触点
type CookieUpdate struct {
	FirstTouch string
	LastTouch  string
	History    TouchHistory
}

// SetCookieHeaders 返回需要写入的 Set-Cookie 头
func (u CookieUpdate) SetCookieHeaders() []string {
	headers := make([]string, 0, 2)
	if u.FirstTouch != "" {
		headers = append(headers, u.FirstTouch)
	}
	if u.LastTouch != "" {
		headers = append(headers, u.LastTouch)
	}
	return headers
}

// ReadHistory 校验并读取已有的触点 Cookie
func (e *Engine) ReadHistory(jar CookieJar) TouchHistory {
	var history TouchHistory
	if raw, ok := jar.Get(constants.AttributionCookieFirstTouch); ok {
		if payload, ok := e.VerifyCookieValue(raw); ok {
			history.FirstTouch = &payload
		}
	}
	if raw, ok := jar.Get(constants.AttributionCookieLastTouch); ok {
		if payload, ok := e.VerifyCookieValue(raw); ok {
			history.LastTouch = &payload
		}
	}
	return history
}

// BuildAttributionCookies 根据本次触点决定是否刷新首次/最近触点 Cookie
func (e *Engine) BuildAttributionCookies(signal TouchSignal, jar CookieJar) CookieUpdate {
	now := signal.Timestamp
	if now.IsZero() {
		now = e.now().UTC()
		signal.Timestamp = now
	}
	history := e.ReadHistory(jar)
	update := CookieUpdate{History: history}
	secure := e.cookieSecure(signal)

	if history.FirstTouch == nil || e.expired(history.FirstTouch, now, e.firstTouchWindow) {
		payload := PayloadFromSignal(signal, TouchKindFirst)
		update.FirstTouch = e.SetCookieHeader(constants.AttributionCookieFirstTouch, e.EncodeCookieValue(payload), e.firstTouchWindow, secure)
		update.History.FirstTouch = &payload
	}

	if history.LastTouch == nil ||
		e.expired(history.LastTouch, now, e.lastTouchWindow) ||
		shouldRefreshLastTouch(*history.LastTouch, signal) {
		payload := PayloadFromSignal(signal, TouchKindLast)
		update.LastTouch = e.SetCookieHeader(constants.AttributionCookieLastTouch, e.EncodeCookieValue(payload), e.lastTouchWindow, secure)
		update.History.LastTouch = &payload
	}
	return update
}

// 付费渠道切入、推广码变化、活动变化时提前刷新最近触点。
func shouldRefreshLastTouch(prev CookiePayload, signal TouchSignal) bool {
	if signal.Channel.IsPaid() && prev.Channel != signal.Channel {
		return true
	}
	if signal.AffiliateCode != "" && signal.AffiliateCode != prev.AffiliateCode {
		return true
	}
	if signal.UTM.Campaign != "" && signal.UTM.Campaign != prev.UTM.Campaign {
		return true
	}
	return false
}

func (e *Engine) expired(payload *CookiePayload, now time.Time, window time.Duration) bool {
	ts, ok := payload.Time()
	if !ok {
		return true
	}
	return now.Sub(ts) >= window
}

func (e *Engine) cookieSecure(signal TouchSignal) bool {
	host := e.siteHost
	if host == "" {
		host = signal.SiteDomain
	}
	return host != "localhost"
}

// EncodeCookieValue 编码并签名 Cookie 值：base64url(JSON) + "." + base64url(HMAC)
func (e *Engine) EncodeCookieValue(payload CookiePayload) string {
	body, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	encoded := base64.RawURLEncoding.EncodeToString(body)
	return encoded + "." + e.sign(encoded)
}

// VerifyCookieValue 校验签名并解码，任何异常都视为不存在
func (e *Engine) VerifyCookieValue(raw string) (CookiePayload, bool) {
	encoded, signature, found := strings.Cut(strings.TrimSpace(raw), ".")
	if !found || encoded == "" || signature == "" {
		return CookiePayload{}, false
	}
	// 比较编码后的签名串，避免 base64 尾部填充位被忽略
	if !hmac.Equal([]byte(signature), []byte(e.sign(encoded))) {
		return CookiePayload{}, false
	}
	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return CookiePayload{}, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return CookiePayload{}, false
	}
	var ts string
	if rawTS, ok := probe["ts"]; !ok || json.Unmarshal(rawTS, &ts) != nil || ts == "" {
		return CookiePayload{}, false
	}
	var payload CookiePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return CookiePayload{}, false
	}
	if _, ok := payload.Time(); !ok {
		return CookiePayload{}, false
	}
	return payload, true
}

// SetCookieHeader 生成 Set-Cookie 头
func (e *Engine) SetCookieHeader(name, value string, maxAge time.Duration, secure bool) string {
	header := fmt.Sprintf("%s=%s; Path=/; HttpOnly; SameSite=Lax; Max-Age=%d", name, value, int64(maxAge/time.Second))
	if secure {
		header += "; Secure"
	}
	return header
}

func (e *Engine) sign(encoded string) string {
	return base64.RawURLEncoding.EncodeToString(e.mac(encoded))
}

func (e *Engine) mac(encoded string) []byte {
	mac := hmac.New(sha256.New, e.secret)
	mac.Write([]byte(encoded))
	return mac.Sum(nil)
}
