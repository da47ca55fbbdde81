// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"yuanfen-go/internal/middleware"
	"yuanfen-go/internal/service"
)

// ModerationHandler 处理管理员审核匹配相关的 API 请求。
type ModerationHandler struct {
	moderationService service.ModerationService
}

// NewModerationHandler 创建一个新的 ModerationHandler 实例。
func NewModerationHandler(moderationService service.ModerationService) *ModerationHandler {
	return &ModerationHandler{moderationService: moderationService}
}

// RejectRequest 定义了拒绝匹配 API 的请求体结构。
type RejectRequest struct {
	Reason string `json:"reason"`
}

// BatchApproveRequest 定义了批量通过 API 的请求体结构。
type BatchApproveRequest struct {
	MatchIDs []uint `json:"matchIds" binding:"required"`
}

// PendingMatches 处理获取待审核队列的请求。
func (h *ModerationHandler) PendingMatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, err := h.moderationService.PendingMatches(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, items)
}

// ApproveMatch 处理通过一条待审核匹配的请求。
func (h *ModerationHandler) ApproveMatch(c *gin.Context) {
	matchID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的匹配 ID"})
		return
	}

	result, err := h.moderationService.ApproveMatch(c.Request.Context(), uint(matchID), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// RejectMatch 处理拒绝一条待审核匹配的请求。
func (h *ModerationHandler) RejectMatch(c *gin.Context) {
	matchID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的匹配 ID"})
		return
	}

	var req RejectRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.moderationService.RejectMatch(c.Request.Context(), uint(matchID), middleware.CurrentUserID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// BatchApprove 处理批量通过待审核匹配的请求。
func (h *ModerationHandler) BatchApprove(c *gin.Context) {
	var req BatchApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：matchIds 不能为空"})
		return
	}

	approved, err := h.moderationService.BatchApprove(c.Request.Context(), req.MatchIDs, middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"requested": len(req.MatchIDs),
		"approved":  approved,
	})
}
