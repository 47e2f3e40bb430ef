package config

import (
	"errors"
	"fmt"
	"strings"
)

// minSigningSecretLen 签名密钥最小长度
const minSigningSecretLen = 32

var weakSecretMarkers = []string{"change-me", "change-in-production", "your-secret-key"}

// IsWeakSecret 判断签名密钥是否过短或仍为示例值
func IsWeakSecret(secret string) bool {
	if len(secret) < minSigningSecretLen {
		return true
	}
	normalized := strings.ToLower(secret)
	for _, marker := range weakSecretMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// IsRelease 是否生产模式
func (c *Config) IsRelease() bool {
	return c != nil && c.Server.Mode == "release"
}

// Validate 校验启动必需项；返回的 warnings 只需记录，err 非空时拒绝启动
//
// 佣金默认策略在任何模式下都必须合法。生产模式下弱签名密钥或缺失接入令牌视为错误，其他模式降级为告警。
func (c *Config) Validate() (warnings []string, err error) {
	if c == nil {
		return nil, errors.New("config is nil")
	}
	var problems []string
	if policyErr := c.Commission.ToPolicy().Validate(); policyErr != nil {
		problems = append(problems, fmt.Sprintf("commission defaults: %v", policyErr))
	}
	if c.Attribution.FirstTouchDays <= 0 || c.Attribution.LastTouchDays <= 0 {
		problems = append(problems, "attribution touch windows must be positive")
	}

	release := c.IsRelease()
	check := func(failed bool, msg string) {
		if !failed {
			return
		}
		if release {
			problems = append(problems, msg)
			return
		}
		warnings = append(warnings, msg)
	}
	check(IsWeakSecret(c.Attribution.SigningSecret), "attribution.signing_secret is weak or a placeholder")
	check(strings.TrimSpace(c.Ingest.Token) == "", "ingest.token is empty, internal api will reject every request")

	if len(problems) > 0 {
		return warnings, errors.New(strings.Join(problems, "; "))
	}
	return warnings, nil
}
