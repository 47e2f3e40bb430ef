package attribution

import (
	"net/http"
	"strings"
)

// Request 归因所需的请求视图（URL、请求头、可选客户端 IP）
type Request struct {
	URL    string
	Header http.Header
	IP     string
}

// RequestFromHTTP 从 net/http 请求构造归因请求视图
func RequestFromHTTP(r *http.Request, clientIP string) Request {
	if r == nil {
		return Request{IP: strings.TrimSpace(clientIP)}
	}
	return Request{
		URL:    absoluteRequestURL(r),
		Header: r.Header,
		IP:     strings.TrimSpace(clientIP),
	}
}

// HeaderFromMap 将普通字符串映射转换为请求头（键名大小写不敏感）
func HeaderFromMap(values map[string]string) http.Header {
	header := make(http.Header, len(values))
	for key, value := range values {
		header.Set(key, value)
	}
	return header
}

func absoluteRequestURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	host := strings.TrimSpace(r.Host)
	if host == "" {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = strings.ToLower(proto)
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func firstHeaderValue(raw string) string {
	if raw == "" {
		return ""
	}
	if idx := strings.IndexByte(raw, ','); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}
