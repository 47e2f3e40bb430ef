package admin

import "github.com/practicecoach-next/internal/provider"

// Handler 内部运营接口处理器入口
// 说明：该处理器仅用于计费系统回传与运营查询，由 ingest token 保护。
type Handler struct {
	*provider.Container
}

// New 创建内部接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
