package public

import "github.com/practicecoach-next/internal/provider"

// Handler 公开接口处理器入口
// 说明：该处理器仅用于访客侧 API（归因快照等）。
type Handler struct {
	*provider.Container
}

// New 创建公开接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
