package admin

import (
	"github.com/practicecoach-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetCommissionLedger 查询单笔支付的佣金账本
func (h *Handler) GetCommissionLedger(c *gin.Context) {
	ledger, err := h.CommissionService.Ledger(c.Param("key"))
	if err != nil {
		respondWithMappedError(c, err, "commission ledger fetch failed")
		return
	}
	response.Success(c, ledger)
}

// ApproveCommission 手动确认冻结期已过的佣金
func (h *Handler) ApproveCommission(c *gin.Context) {
	event, err := h.CommissionService.ApprovePendingCommission(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondWithMappedError(c, err, "commission approve failed")
		return
	}
	response.Success(c, gin.H{"approved": event != nil, "event": event})
}

// GetAffiliateSummary 推广码佣金汇总
func (h *Handler) GetAffiliateSummary(c *gin.Context) {
	summary, err := h.CommissionService.Summary(c.Param("code"))
	if err != nil {
		respondWithMappedError(c, err, "commission summary fetch failed")
		return
	}
	response.Success(c, summary)
}
