package service

import (
	"context"
	"strings"

	"github.com/practicecoach-next/internal/attribution"
	"github.com/practicecoach-next/internal/cache"
	"github.com/practicecoach-next/internal/logger"
)

// AnalyticsSink 埋点事件发布
type AnalyticsSink interface {
	Publish(ctx context.Context, event attribution.AnalyticsEvent) error
}

// NewAnalyticsSink Redis 可用时写入 Stream，否则仅记录日志
func NewAnalyticsSink(stream string) AnalyticsSink {
	if cache.Enabled() && strings.TrimSpace(stream) != "" {
		return &RedisStreamSink{stream: strings.TrimSpace(stream)}
	}
	return LogSink{}
}

// RedisStreamSink 写入 Redis Stream
type RedisStreamSink struct {
	stream string
}

// Publish 追加到 Stream
func (s *RedisStreamSink) Publish(ctx context.Context, event attribution.AnalyticsEvent) error {
	id, err := cache.AppendStream(ctx, s.stream, event.Name, event)
	if err != nil {
		return err
	}
	logger.Debugw("analytics_event_published", "name", event.Name, "stream", s.stream, "id", id)
	return nil
}

// LogSink 以 debug 日志输出事件
type LogSink struct{}

// Publish 写日志
func (LogSink) Publish(ctx context.Context, event attribution.AnalyticsEvent) error {
	logger.Ctx(ctx).Debugw("analytics_event", "name", event.Name, "ts", event.TS, "props", event.Props)
	return nil
}
