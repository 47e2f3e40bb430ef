package admin

import (
	"github.com/practicecoach-next/internal/commission"
	"github.com/practicecoach-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetCommissionPolicy 获取当前生效的佣金策略
func (h *Handler) GetCommissionPolicy(c *gin.Context) {
	policy, err := h.CommissionPolicyService.Get(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "commission policy fetch failed", err)
		return
	}
	response.Success(c, policy)
}

// UpdateCommissionPolicy 替换佣金策略
func (h *Handler) UpdateCommissionPolicy(c *gin.Context) {
	var req commission.Policy
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	policy, err := h.CommissionPolicyService.Update(c.Request.Context(), req)
	if err != nil {
		respondWithMappedError(c, err, "commission policy save failed")
		return
	}
	response.Success(c, policy)
}
