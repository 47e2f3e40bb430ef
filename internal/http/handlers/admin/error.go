package admin

import (
	"errors"

	handlershared "github.com/practicecoach-next/internal/http/handlers/shared"
	"github.com/practicecoach-next/internal/http/response"
	"github.com/practicecoach-next/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

var commissionErrorRules = []mappedHandlerError{
	{target: service.ErrCommissionPaymentInvalid, code: response.CodeBadRequest, msg: "payment event invalid"},
	{target: service.ErrCommissionRefundInvalid, code: response.CodeBadRequest, msg: "refund event invalid"},
	{target: service.ErrCommissionPolicyInvalid, code: response.CodeBadRequest, msg: "commission policy invalid"},
	{target: service.ErrAffiliateCodeInvalid, code: response.CodeBadRequest, msg: "affiliate code invalid"},
	{target: service.ErrCommissionEventNotFound, code: response.CodeNotFound, msg: "commission not found"},
	{target: service.ErrCommissionNotDue, code: response.CodeConflict, msg: "commission hold period not elapsed"},
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondWithMappedError(c *gin.Context, err error, fallbackMsg string) {
	for _, rule := range commissionErrorRules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, response.CodeInternal, fallbackMsg, err)
}
