package public

import (
	"github.com/practicecoach-next/internal/attribution"
	"github.com/practicecoach-next/internal/constants"
	"github.com/practicecoach-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// AttributionSnapshotResponse 归因快照
type AttributionSnapshotResponse struct {
	FirstTouch *attribution.CookiePayload `json:"first_touch"`
	LastTouch  *attribution.CookiePayload `json:"last_touch"`
	Channel    attribution.Channel        `json:"channel"`
	RequestID  string                     `json:"request_id,omitempty"`
}

// GetAttribution 返回调用方已验证的首次/最近触点
//
// 归因中间件已处理本次请求时，返回写入 Cookie 之后的触点。
func (h *Handler) GetAttribution(c *gin.Context) {
	if h.AttributionService == nil {
		respondError(c, response.CodeUnavailable, "attribution unavailable", nil)
		return
	}
	history, ok := touchHistoryFromContext(c)
	if !ok {
		history = h.AttributionService.Snapshot(attribution.CookieJarFromRequest(c.Request))
	}
	resp := AttributionSnapshotResponse{
		FirstTouch: history.FirstTouch,
		LastTouch:  history.LastTouch,
		Channel:    attribution.ChannelDirect,
	}
	if signal, ok := touchSignalFromContext(c); ok {
		resp.Channel = signal.Channel
		resp.RequestID = signal.RequestID
	} else if history.LastTouch != nil {
		resp.Channel = history.LastTouch.Channel
	}
	response.Success(c, resp)
}

func touchHistoryFromContext(c *gin.Context) (attribution.TouchHistory, bool) {
	value, ok := c.Get(constants.ContextKeyTouchHistory)
	if !ok {
		return attribution.TouchHistory{}, false
	}
	history, ok := value.(attribution.TouchHistory)
	return history, ok
}

func touchSignalFromContext(c *gin.Context) (attribution.TouchSignal, bool) {
	value, ok := c.Get(constants.ContextKeyTouchSignal)
	if !ok {
		return attribution.TouchSignal{}, false
	}
	signal, ok := value.(attribution.TouchSignal)
	return signal, ok
}
