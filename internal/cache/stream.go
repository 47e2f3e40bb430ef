package cache

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/practicecoach-next/internal/constants"

	"github.com/redis/go-redis/v9"
)

// AppendStream 以 JSON 负载追加一条流消息，返回消息 ID；缓存未启用时跳过
func AppendStream(ctx context.Context, stream, name string, payload interface{}) (string, error) {
	if !Enabled() {
		return "", nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: buildKey(strings.TrimSpace(stream)),
		MaxLen: constants.AnalyticsStreamMaxLenApprox,
		Approx: true,
		Values: map[string]interface{}{
			"name":    name,
			"payload": string(body),
		},
	}).Result()
}
