package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/practicecoach-next/internal/http/response"
	"github.com/practicecoach-next/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// 读取限流字段时最多缓冲的请求体大小
const rateLimitBodyPeekLimit = 64 << 10

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	BlockSeconds  int
	Message       string
}

func (r RateLimitRule) enabled() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

// 超限且配置了封禁时长时写入封禁键，封禁期间直接返回 -1
var rateLimitScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return {-1, redis.call("TTL", KEYS[2])}
end
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local block = tonumber(ARGV[3])
if block > 0 and current > tonumber(ARGV[2]) then
	redis.call("SET", KEYS[2], "1", "EX", block)
	return {current, block}
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// rateLimitDecision 单次限流脚本结果
type rateLimitDecision struct {
	count int64
	ttl   int64
}

func (d rateLimitDecision) limited(max int) bool {
	return d.count < 0 || d.count > int64(max)
}

func (d rateLimitDecision) retryAfter(window int) int {
	wait := int(d.ttl)
	if wait < 1 {
		wait = window
	}
	if wait < 1 {
		wait = 1
	}
	return wait
}

// RateLimitMiddleware Redis 固定窗口限流
//
// Redis 不可用时放行：入账接口丢请求的代价高于短暂失去限流。
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || !rule.enabled() {
			c.Next()
			return
		}

		key := ""
		if keyFunc != nil {
			key = strings.TrimSpace(keyFunc(c))
		}
		if key == "" {
			key = c.ClientIP()
		}
		if rule.Prefix != "" {
			key = rule.Prefix + ":" + key
		}

		result, err := rateLimitScript.Run(c.Request.Context(), client, []string{key, key + ":block"}, rule.WindowSeconds, rule.MaxRequests, rule.BlockSeconds).Result()
		if err != nil {
			logger.Ctx(c.Request.Context()).Warnw("rate_limit_fail_open", "key", key, "error", err)
			c.Next()
			return
		}
		decision, ok := parseRateLimitResult(result)
		if !ok {
			logger.Ctx(c.Request.Context()).Warnw("rate_limit_result_invalid", "key", key, "result", result)
			c.Next()
			return
		}
		if decision.limited(rule.MaxRequests) {
			wait := decision.retryAfter(rule.WindowSeconds)
			msg := strings.TrimSpace(rule.Message)
			if msg == "" {
				msg = "too many requests"
			}
			logger.Ctx(c.Request.Context()).Infow("rate_limited", "key", key, "retry_after", wait)
			c.Header("Retry-After", strconv.Itoa(wait))
			response.Error(c, response.CodeTooManyRequests, fmt.Sprintf("%s, retry in %ds", msg, wait))
			c.Abort()
			return
		}

		c.Next()
	}
}

func parseRateLimitResult(result interface{}) (rateLimitDecision, bool) {
	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return rateLimitDecision{}, false
	}
	count, ok := toInt64(values[0])
	if !ok {
		return rateLimitDecision{}, false
	}
	ttl, _ := toInt64(values[1])
	return rateLimitDecision{count: count, ttl: ttl}, true
}

// KeyByIP 使用 IP 作为限流 key
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByIPAndJSONField 使用 JSON 字段（如支付渠道）+ IP 作为限流 key
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(strings.TrimSpace(readJSONField(c, field)))
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}

// readJSONField 读取请求体中的字符串字段，读取后还原请求体；超过上限的请求体不解析
func readJSONField(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, rateLimitBodyPeekLimit+1))
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), c.Request.Body))
	if len(body) == 0 || len(body) > rateLimitBodyPeekLimit {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	text, _ := payload[field].(string)
	return strings.TrimSpace(text)
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
