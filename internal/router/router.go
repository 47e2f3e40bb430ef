package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/practicecoach-next/internal/cache"
	"github.com/practicecoach-next/internal/config"
	"github.com/practicecoach-next/internal/constants"
	adminhandlers "github.com/practicecoach-next/internal/http/handlers/admin"
	publichandlers "github.com/practicecoach-next/internal/http/handlers/public"
	"github.com/practicecoach-next/internal/logger"
	"github.com/practicecoach-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按访客/内部分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = constants.RedisPrefixDefault
	}
	redisClient := cache.Client()
	ingestRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:ingest", redisPrefix),
		WindowSeconds: cfg.Security.IngestRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.IngestRateLimit.MaxRequests,
		BlockSeconds:  cfg.Security.IngestRateLimit.BlockSeconds,
		Message:       "ingest rate limited",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "redis": cache.Enabled(), "queue": c.QueueClient.Enabled()})
	})

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 访客接口：每次请求都经过归因中间件
		visitor := apiV1.Group("")
		visitor.Use(AttributionMiddleware(c.AttributionService))
		{
			visitor.GET("/attribution", publicHandler.GetAttribution)
		}

		// 内部接口（计费系统回传 + 运营查询）
		internal := apiV1.Group("/internal")
		internal.Use(IngestTokenMiddleware(cfg.Ingest.Token))
		{
			ingestLimit := RateLimitMiddleware(redisClient, ingestRule, KeyByIPAndJSONField("provider"))
			internal.POST("/payments/succeeded", ingestLimit, adminHandler.IngestPaymentSucceeded)
			internal.POST("/refunds", ingestLimit, adminHandler.IngestRefund)

			internal.GET("/commissions/:key", adminHandler.GetCommissionLedger)
			internal.POST("/commissions/:key/approve", adminHandler.ApproveCommission)
			internal.GET("/affiliates/:code/summary", adminHandler.GetAffiliateSummary)
			internal.GET("/affiliates/:code/referrals", adminHandler.ListAffiliateReferrals)

			internal.GET("/commission-policy", adminHandler.GetCommissionPolicy)
			internal.PUT("/commission-policy", adminHandler.UpdateCommissionPolicy)
		}
	}

	return r
}
