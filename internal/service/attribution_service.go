package service

import (
	"context"
	"strings"
	"time"

	"github.com/practicecoach-next/internal/attribution"
	"github.com/practicecoach-next/internal/cache"
	"github.com/practicecoach-next/internal/constants"
	"github.com/practicecoach-next/internal/logger"
	"github.com/practicecoach-next/internal/models"
	"github.com/practicecoach-next/internal/repository"
)

// AttributionService 归因触点处理：Cookie 下发、推广归因落库、埋点发布
type AttributionService struct {
	engine  *attribution.Engine
	repo    repository.AffiliateReferralRepository
	sink    AnalyticsSink
	dedupe  time.Duration
	persist bool
	publish bool
}

// AttributionServiceOptions 归因服务开关
type AttributionServiceOptions struct {
	DedupeWindow     time.Duration
	PersistReferrals bool
	PublishAnalytics bool
}

// NewAttributionService 创建归因服务
func NewAttributionService(
	engine *attribution.Engine,
	repo repository.AffiliateReferralRepository,
	sink AnalyticsSink,
	opts AttributionServiceOptions,
) *AttributionService {
	if sink == nil {
		sink = LogSink{}
	}
	dedupe := opts.DedupeWindow
	if dedupe < 0 {
		dedupe = 0
	}
	return &AttributionService{
		engine:  engine,
		repo:    repo,
		sink:    sink,
		dedupe:  dedupe,
		persist: opts.PersistReferrals,
		publish: opts.PublishAnalytics,
	}
}

// TouchResult 单次请求的触点处理结果
type TouchResult struct {
	Signal attribution.TouchSignal
	Update attribution.CookieUpdate
}

// Process 提取信号并计算需要下发的 Cookie（纯计算，不落库）
func (s *AttributionService) Process(req attribution.Request, jar attribution.CookieJar) TouchResult {
	signal := s.engine.ExtractSignal(req)
	return TouchResult{
		Signal: signal,
		Update: s.engine.BuildAttributionCookies(signal, jar),
	}
}

// Snapshot 读取已校验的首次/最近触点
func (s *AttributionService) Snapshot(jar attribution.CookieJar) attribution.TouchHistory {
	return s.engine.ReadHistory(jar)
}

// TouchRecordInput 触点落库输入
type TouchRecordInput struct {
	Result     TouchResult
	VisitorKey string
}

// RecordTouch 带推广码的触点写入归因表，并发布埋点事件
//
// 同一推广码 + 访客在去重窗口内只处理一次。
func (s *AttributionService) RecordTouch(ctx context.Context, input TouchRecordInput) error {
	signal := input.Result.Signal
	code, ok := attribution.NormalizeAffiliateCode(signal.AffiliateCode)
	if !ok {
		return nil
	}
	visitorKey := ResolveVisitorKey(input.VisitorKey, signal)
	if visitorKey == "" {
		return nil
	}

	if s.dedupe > 0 {
		acquired, err := cache.AcquireOnce(ctx, touchDedupeKey(code, visitorKey), s.dedupe)
		if err != nil {
			logger.Ctx(ctx).Warnw("attribution_touch_dedupe_failed", "affiliate_code", code, "error", err)
		} else if !acquired {
			return nil
		}
	}

	if s.persist && s.repo != nil {
		row := attribution.BuildAffiliateReferralUpsert(signal, input.Result.Update.History)
		if err := s.repo.Upsert(models.NewAffiliateReferral(row, visitorKey, signal.IPHash)); err != nil {
			logger.Ctx(ctx).Errorw("attribution_referral_upsert_failed",
				"affiliate_code", code,
				"channel", string(signal.Channel),
				"error", err,
			)
			return ErrAttributionReferralPersist
		}
	}

	if s.publish {
		event := attribution.ToAnalyticsEvent(signal, constants.AnalyticsEventAttributionTouch, map[string]interface{}{
			"first_touch_issued": input.Result.Update.FirstTouch != "",
			"last_touch_issued":  input.Result.Update.LastTouch != "",
		})
		if err := s.sink.Publish(ctx, event); err != nil {
			logger.Ctx(ctx).Warnw("attribution_analytics_publish_failed", "affiliate_code", code, "error", err)
		}
	}
	return nil
}

// ListReferrals 分页查询推广码归因记录
func (s *AttributionService) ListReferrals(filter repository.AffiliateReferralListFilter) ([]models.AffiliateReferral, int64, error) {
	code, ok := attribution.NormalizeAffiliateCode(filter.Code)
	if !ok {
		return nil, 0, ErrAffiliateCodeInvalid
	}
	filter.Code = code
	if s.repo == nil {
		return []models.AffiliateReferral{}, 0, nil
	}
	return s.repo.ListByCode(filter)
}

// ResolveVisitorKey 访客标识：请求头 > IP 哈希 > 请求ID
func ResolveVisitorKey(header string, signal attribution.TouchSignal) string {
	if key := strings.TrimSpace(header); key != "" {
		if len(key) > 128 {
			key = key[:128]
		}
		return key
	}
	if signal.IPHash != "" {
		return "ip:" + signal.IPHash
	}
	if signal.RequestID != "" {
		return "req:" + signal.RequestID
	}
	return ""
}

func touchDedupeKey(code, visitorKey string) string {
	return "attribution:touch:" + code + ":" + visitorKey
}
