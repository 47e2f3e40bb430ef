package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/practicecoach-next/internal/cache"
	"github.com/practicecoach-next/internal/commission"
	"github.com/practicecoach-next/internal/constants"
	"github.com/practicecoach-next/internal/logger"
	"github.com/practicecoach-next/internal/models"
	"github.com/practicecoach-next/internal/repository"
)

const commissionPolicyCacheTTLDefault = 5 * time.Minute

// CommissionPolicyService 佣金策略：配置默认值 + 设置表覆盖，带 Redis 缓存
type CommissionPolicyService struct {
	repo     repository.SettingRepository
	defaults commission.Policy
	cacheTTL time.Duration
}

// NewCommissionPolicyService 创建佣金策略服务
func NewCommissionPolicyService(repo repository.SettingRepository, defaults commission.Policy, cacheTTL time.Duration) *CommissionPolicyService {
	if cacheTTL <= 0 {
		cacheTTL = commissionPolicyCacheTTLDefault
	}
	return &CommissionPolicyService{
		repo:     repo,
		defaults: defaults.Normalize(),
		cacheTTL: cacheTTL,
	}
}

// Get 获取当前生效策略；设置表中的策略非法时回退到默认策略
func (s *CommissionPolicyService) Get(ctx context.Context) (commission.Policy, error) {
	var cached commission.Policy
	hit, err := cache.GetJSON(ctx, constants.CacheKeyCommissionPolicy, &cached)
	if err != nil {
		logger.Warnw("commission_policy_cache_get_failed", "error", err)
	}
	if hit {
		return cached, nil
	}

	policy, err := s.load()
	if err != nil {
		return s.defaults, err
	}
	if err := cache.SetJSON(ctx, constants.CacheKeyCommissionPolicy, policy, s.cacheTTL); err != nil {
		logger.Warnw("commission_policy_cache_set_failed", "error", err)
	}
	return policy, nil
}

// Update 校验并保存策略，成功后清除缓存
func (s *CommissionPolicyService) Update(ctx context.Context, policy commission.Policy) (commission.Policy, error) {
	policy = policy.Normalize()
	if err := policy.Validate(); err != nil {
		return commission.Policy{}, fmt.Errorf("%w: %v", ErrCommissionPolicyInvalid, err)
	}
	value, err := models.JSONFromValue(policy)
	if err != nil {
		return commission.Policy{}, err
	}
	if _, err := s.repo.Upsert(constants.SettingKeyCommissionPolicy, value); err != nil {
		return commission.Policy{}, err
	}
	if err := cache.Del(ctx, constants.CacheKeyCommissionPolicy); err != nil {
		logger.Warnw("commission_policy_cache_del_failed", "error", err)
	}
	logger.Infow("commission_policy_updated",
		"default_first_bps", policy.DefaultFirstBps,
		"default_recurring_bps", policy.DefaultRecurringBps,
		"hold_days", policy.HoldDays,
		"clawback_days", policy.ClawbackDays,
	)
	return policy, nil
}

func (s *CommissionPolicyService) load() (commission.Policy, error) {
	if s.repo == nil {
		return s.defaults, nil
	}
	setting, err := s.repo.GetByKey(constants.SettingKeyCommissionPolicy)
	if err != nil {
		return s.defaults, err
	}
	if setting == nil || len(setting.ValueJSON) == 0 {
		return s.defaults, nil
	}
	policy, err := mergeCommissionPolicy(s.defaults, setting.ValueJSON)
	if err != nil {
		logger.Warnw("commission_policy_setting_invalid", "error", err)
		return s.defaults, nil
	}
	return policy, nil
}

// mergeCommissionPolicy 以默认策略为基础叠加设置表中的字段
func mergeCommissionPolicy(defaults commission.Policy, value models.JSON) (commission.Policy, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return defaults, err
	}
	merged := defaults
	merged.PlanOverrides = nil
	merged.CouponOverrides = nil
	merged.AffiliateOverrides = nil
	if err := json.Unmarshal(body, &merged); err != nil {
		return defaults, err
	}
	if _, ok := value["plan_overrides"]; !ok {
		merged.PlanOverrides = defaults.PlanOverrides
	}
	if _, ok := value["coupon_overrides"]; !ok {
		merged.CouponOverrides = defaults.CouponOverrides
	}
	if _, ok := value["affiliate_overrides"]; !ok {
		merged.AffiliateOverrides = defaults.AffiliateOverrides
	}
	merged = merged.Normalize()
	if err := merged.Validate(); err != nil {
		if errors.Is(err, commission.ErrPolicyInvalid) {
			return defaults, fmt.Errorf("%w: %v", ErrCommissionPolicyInvalid, err)
		}
		return defaults, err
	}
	return merged, nil
}
