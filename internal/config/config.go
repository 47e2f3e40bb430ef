package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/practicecoach-next/internal/attribution"
	"github.com/practicecoach-next/internal/commission"
	"github.com/practicecoach-next/internal/constants"
	"github.com/practicecoach-next/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Queue       QueueConfig       `mapstructure:"queue"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Security    SecurityConfig    `mapstructure:"security"`
	Attribution AttributionConfig `mapstructure:"attribution"`
	Commission  CommissionConfig  `mapstructure:"commission"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host                     string `mapstructure:"host"`
	Port                     string `mapstructure:"port"`
	Mode                     string `mapstructure:"mode"` // debug / release
	ReadHeaderTimeoutSeconds int    `mapstructure:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int    `mapstructure:"shutdown_timeout_seconds"`
}

// ReadHeaderTimeout 请求头读取超时
func (c ServerConfig) ReadHeaderTimeout() time.Duration {
	if c.ReadHeaderTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.ReadHeaderTimeoutSeconds) * time.Second
}

// ShutdownTimeout 优雅停机超时
func (c ServerConfig) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	IngestRateLimit RateLimitConfig `mapstructure:"ingest_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// AttributionConfig 归因配置
type AttributionConfig struct {
	SigningSecret      string `mapstructure:"signing_secret"`
	IPHashSalt         string `mapstructure:"ip_hash_salt"`
	SiteBaseURL        string `mapstructure:"site_base_url"`
	FirstTouchDays     int    `mapstructure:"first_touch_days"`
	LastTouchDays      int    `mapstructure:"last_touch_days"`
	AnalyticsStream    string `mapstructure:"analytics_stream"`
	TouchDedupeSeconds int    `mapstructure:"touch_dedupe_seconds"`
	PersistReferrals   bool   `mapstructure:"persist_referrals"`
	PublishAnalytics   bool   `mapstructure:"publish_analytics"`
}

// ToEngineOptions 转换为归因引擎配置
func (c AttributionConfig) ToEngineOptions() attribution.Options {
	return attribution.Options{
		SigningSecret:    c.SigningSecret,
		IPHashSalt:       c.IPHashSalt,
		SiteBaseURL:      c.SiteBaseURL,
		FirstTouchWindow: time.Duration(c.FirstTouchDays) * 24 * time.Hour,
		LastTouchWindow:  time.Duration(c.LastTouchDays) * 24 * time.Hour,
	}
}

// CommissionConfig 佣金配置
type CommissionConfig struct {
	DefaultFirstBps     int                                `mapstructure:"default_first_bps"`
	DefaultRecurringBps int                                `mapstructure:"default_recurring_bps"`
	HoldDays            int                                `mapstructure:"hold_days"`
	ClawbackDays        int                                `mapstructure:"clawback_days"`
	ApproveSweepSeconds int                                `mapstructure:"approve_sweep_seconds"`
	ApproveBatchSize    int                                `mapstructure:"approve_batch_size"`
	PolicyCacheSeconds  int                                `mapstructure:"policy_cache_seconds"`
	PlanOverrides       map[string]commission.RateOverride `mapstructure:"plan_overrides"`
	CouponOverrides     map[string]int                     `mapstructure:"coupon_overrides"`
	AffiliateOverrides  map[string]commission.RateOverride `mapstructure:"affiliate_overrides"`
}

// ToPolicy 转换为佣金策略（已规范化）
func (c CommissionConfig) ToPolicy() commission.Policy {
	return commission.Policy{
		DefaultFirstBps:     c.DefaultFirstBps,
		DefaultRecurringBps: c.DefaultRecurringBps,
		PlanOverrides:       c.PlanOverrides,
		CouponOverrides:     c.CouponOverrides,
		AffiliateOverrides:  c.AffiliateOverrides,
		HoldDays:            c.HoldDays,
		ClawbackDays:        c.ClawbackDays,
	}.Normalize()
}

// ApproveSweepInterval 待确认佣金扫描间隔
func (c CommissionConfig) ApproveSweepInterval() time.Duration {
	if c.ApproveSweepSeconds <= 0 {
		return 0
	}
	return time.Duration(c.ApproveSweepSeconds) * time.Second
}

// IngestConfig 支付事件接入配置
type IngestConfig struct {
	Token string `mapstructure:"token"`
}

// SetDefaults 写入默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_header_timeout_seconds", 10)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/practicecoach.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", constants.RedisPrefixDefault)
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		constants.QueueDefault:  10,
		constants.QueueCritical: 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		constants.HeaderVisitorKey,
		constants.HeaderIngestToken,
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.ingest_rate_limit.window_seconds", 60)
	v.SetDefault("security.ingest_rate_limit.max_requests", 600)
	v.SetDefault("security.ingest_rate_limit.block_seconds", 60)
	v.SetDefault("attribution.signing_secret", "change-me-in-production")
	v.SetDefault("attribution.ip_hash_salt", "")
	v.SetDefault("attribution.site_base_url", "http://localhost:8080")
	v.SetDefault("attribution.first_touch_days", constants.AttributionFirstTouchDaysDefault)
	v.SetDefault("attribution.last_touch_days", constants.AttributionLastTouchDaysDefault)
	v.SetDefault("attribution.analytics_stream", constants.AnalyticsStreamDefault)
	v.SetDefault("attribution.touch_dedupe_seconds", 600)
	v.SetDefault("attribution.persist_referrals", true)
	v.SetDefault("attribution.publish_analytics", true)
	v.SetDefault("commission.default_first_bps", constants.CommissionDefaultFirstBps)
	v.SetDefault("commission.default_recurring_bps", constants.CommissionDefaultRecurringBps)
	v.SetDefault("commission.hold_days", constants.CommissionHoldDaysDefault)
	v.SetDefault("commission.clawback_days", constants.CommissionClawbackDaysDefault)
	v.SetDefault("commission.approve_sweep_seconds", 60)
	v.SetDefault("commission.approve_batch_size", 100)
	v.SetDefault("commission.policy_cache_seconds", 300)
	v.SetDefault("ingest.token", "")
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	SetDefaults(v)

	// 环境变量支持
	v.AutomaticEnv()                                   // 自动读取环境变量
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := Decode(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(err)
	}
	return cfg
}

// Decode 将 viper 实例解析为配置
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("配置解析失败: %w", err)
	}
	return &cfg, nil
}
