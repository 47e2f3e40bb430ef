package shared

import (
	"github.com/practicecoach-next/internal/http/response"
	"github.com/practicecoach-next/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 带 request_id 的日志，request_id 由 RequestIDMiddleware 写入请求 ctx
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil || c.Request == nil {
		return logger.S()
	}
	return logger.Ctx(c.Request.Context())
}

// RespondError 输出错误响应；err 非空时按 code 分级记日志
func RespondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		log := RequestLog(c).With("code", code, "path", c.FullPath())
		if code >= response.CodeInternal {
			log.Errorw("handler_error", "error", appErr)
		} else {
			log.Warnw("handler_rejected", "error", appErr)
		}
	}
	response.Fail(c, appErr)
}
