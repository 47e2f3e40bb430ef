package provider

import (
	"time"

	"github.com/practicecoach-next/internal/attribution"
	"github.com/practicecoach-next/internal/cache"
	"github.com/practicecoach-next/internal/config"
	"github.com/practicecoach-next/internal/logger"
	"github.com/practicecoach-next/internal/models"
	"github.com/practicecoach-next/internal/queue"
	"github.com/practicecoach-next/internal/repository"
	"github.com/practicecoach-next/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	SettingRepo           repository.SettingRepository
	AffiliateReferralRepo repository.AffiliateReferralRepository
	AffiliateEventRepo    repository.AffiliateEventRepository

	// Engines
	AttributionEngine *attribution.Engine
	AnalyticsSink     service.AnalyticsSink

	// Services
	CommissionPolicyService *service.CommissionPolicyService
	AttributionService      *service.AttributionService
	CommissionService       *service.CommissionService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	return NewContainerWithDB(cfg, models.DB, queueClient)
}

// NewContainerWithDB 使用指定数据库构建容器，测试中直接传入内存库
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, queueClient *queue.Client) *Container {
	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.SettingRepo = repository.NewSettingRepository(db)
	c.AffiliateReferralRepo = repository.NewAffiliateReferralRepository(db)
	c.AffiliateEventRepo = repository.NewAffiliateEventRepository(db)
}

func (c *Container) initServices() {
	attrCfg := c.Config.Attribution
	commCfg := c.Config.Commission

	c.AttributionEngine = attribution.NewEngine(attrCfg.ToEngineOptions())
	c.AnalyticsSink = service.NewAnalyticsSink(attrCfg.AnalyticsStream)

	c.CommissionPolicyService = service.NewCommissionPolicyService(
		c.SettingRepo,
		commCfg.ToPolicy(),
		time.Duration(commCfg.PolicyCacheSeconds)*time.Second,
	)
	c.AttributionService = service.NewAttributionService(
		c.AttributionEngine,
		c.AffiliateReferralRepo,
		c.AnalyticsSink,
		service.AttributionServiceOptions{
			DedupeWindow:     time.Duration(attrCfg.TouchDedupeSeconds) * time.Second,
			PersistReferrals: attrCfg.PersistReferrals,
			PublishAnalytics: attrCfg.PublishAnalytics,
		},
	)
	c.CommissionService = service.NewCommissionService(
		c.AffiliateEventRepo,
		c.CommissionPolicyService,
		service.CommissionServiceOptions{
			QueueClient: c.QueueClient,
			Sink:        c.AnalyticsSink,
			BatchSize:   commCfg.ApproveBatchSize,
		},
	)
}
