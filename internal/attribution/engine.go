package attribution

import (
	"crypto/sha256"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	defaultFirstTouchWindow = 90 * 24 * time.Hour
	defaultLastTouchWindow  = 7 * 24 * time.Hour
	ipHashKeyInfo           = "pc-attribution-ip-hash"
)

// Options 归因引擎配置（进程启动时构造一次，之后只读）
type Options struct {
	SigningSecret    string
	IPHashSalt       string
	SiteBaseURL      string
	FirstTouchWindow time.Duration
	LastTouchWindow  time.Duration
	Now              func() time.Time
	NewRequestID     func() string
}

// Engine 归因引擎：信号提取、渠道识别、触点 Cookie 编解码
type Engine struct {
	secret           []byte
	ipKey            []byte
	siteHost         string
	firstTouchWindow time.Duration
	lastTouchWindow  time.Duration
	now              func() time.Time
	newRequestID     func() string
}

// NewEngine 创建归因引擎
func NewEngine(opts Options) *Engine {
	e := &Engine{
		secret:           []byte(opts.SigningSecret),
		ipKey:            deriveIPHashKey(opts.IPHashSalt, opts.SigningSecret),
		siteHost:         hostFromBaseURL(opts.SiteBaseURL),
		firstTouchWindow: opts.FirstTouchWindow,
		lastTouchWindow:  opts.LastTouchWindow,
		now:              opts.Now,
		newRequestID:     opts.NewRequestID,
	}
	if e.firstTouchWindow <= 0 {
		e.firstTouchWindow = defaultFirstTouchWindow
	}
	if e.lastTouchWindow <= 0 {
		e.lastTouchWindow = defaultLastTouchWindow
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newRequestID == nil {
		e.newRequestID = uuid.NewString
	}
	return e
}

// 未配置独立盐值时从签名密钥派生，两者都为空则不输出 IP 哈希。
func deriveIPHashKey(salt, secret string) []byte {
	if strings.TrimSpace(salt) != "" {
		return []byte(salt)
	}
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	key := make([]byte, sha256.Size)
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(ipHashKeyInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil
	}
	return key
}

func hostFromBaseURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	return normalizeHost(parsed.Hostname())
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
