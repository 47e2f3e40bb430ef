package router

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/practicecoach-next/internal/attribution"
	"github.com/practicecoach-next/internal/config"
	"github.com/practicecoach-next/internal/constants"
	"github.com/practicecoach-next/internal/http/response"
	"github.com/practicecoach-next/internal/logger"
	"github.com/practicecoach-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = constants.ContextKeyRequestID
const requestIDHeader = "X-Request-ID"

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Cache-Control",
			"X-Requested-With",
			"X-CSRF-Token",
		}
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials)
		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	if len(allowedOrigins) == 0 {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Request.Header.Set(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 结构化请求日志中间件
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}
	sugar := logger.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := sugar.With(
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if len(c.Errors) > 0 {
			log.Errorw("request", "errors", c.Errors.String())
			return
		}
		log.Infow("request")
	}
}

func getRequestID(c *gin.Context) string {
	value, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	if requestID, ok := value.(string); ok {
		return requestID
	}
	return ""
}

// IngestTokenMiddleware 内部接口令牌校验
func IngestTokenMiddleware(token string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(token))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			logger.Errorw("ingest_token_not_configured", "path", c.Request.URL.Path)
			response.Unauthorized(c, "ingest token not configured")
			c.Abort()
			return
		}
		provided := strings.TrimSpace(c.GetHeader(constants.HeaderIngestToken))
		if provided == "" {
			if parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
				provided = strings.TrimSpace(parts[1])
			}
		}
		if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			logger.Warnw("ingest_token_rejected",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			if provided == "" {
				response.Unauthorized(c, "missing ingest token")
			} else {
				response.Forbidden(c, "invalid ingest token")
			}
			c.Abort()
			return
		}
		c.Next()
	}
}

// AttributionMiddleware 归因中间件：下发首次/最近触点 Cookie，带推广码时落库并发布埋点
func AttributionMiddleware(svc *service.AttributionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil || c.Request.Method == "OPTIONS" {
			c.Next()
			return
		}
		jar := attribution.CookieJarFromRequest(c.Request)
		result := svc.Process(attribution.RequestFromHTTP(c.Request, c.ClientIP()), jar)
		for _, header := range result.Update.SetCookieHeaders() {
			c.Writer.Header().Add("Set-Cookie", header)
		}
		c.Set(constants.ContextKeyTouchSignal, result.Signal)
		c.Set(constants.ContextKeyTouchHistory, result.Update.History)

		if result.Signal.AffiliateCode != "" {
			err := svc.RecordTouch(c.Request.Context(), service.TouchRecordInput{
				Result:     result,
				VisitorKey: c.GetHeader(constants.HeaderVisitorKey),
			})
			if err != nil {
				logger.Ctx(c.Request.Context()).Warnw("attribution_record_touch_failed",
					"affiliate_code", result.Signal.AffiliateCode,
					"error", err,
				)
			}
		}
		c.Next()
	}
}
