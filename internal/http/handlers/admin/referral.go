package admin

import (
	"strings"

	handlershared "github.com/practicecoach-next/internal/http/handlers/shared"
	"github.com/practicecoach-next/internal/http/response"
	"github.com/practicecoach-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListAffiliateReferrals 分页查询推广码归因访客
func (h *Handler) ListAffiliateReferrals(c *gin.Context) {
	page, pageSize := handlershared.ReadPagination(c)
	rows, total, err := h.AttributionService.ListReferrals(repository.AffiliateReferralListFilter{
		Code:     c.Param("code"),
		Channel:  strings.TrimSpace(c.Query("channel")),
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondWithMappedError(c, err, "referral list fetch failed")
		return
	}
	response.SuccessWithPage(c, rows, response.NewPagination(page, pageSize, total))
}
