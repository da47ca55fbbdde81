// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"yuanfen-go/internal/middleware"
	"yuanfen-go/internal/model"
	"yuanfen-go/internal/service"
)

// MatchHandler 处理匹配生成、列表与用户决定相关的 API 请求。
type MatchHandler struct {
	matchService service.MatchService
}

// NewMatchHandler 创建一个新的 MatchHandler 实例。
func NewMatchHandler(matchService service.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

// GenerateMatchesRequest 定义了生成匹配 API 的请求体结构。
type GenerateMatchesRequest struct {
	Limit int `json:"limit"`
}

// ActionRequest 定义了记录用户决定 API 的请求体结构。
type ActionRequest struct {
	Action string `json:"action" binding:"required"`
}

// GenerateMatches 处理为当前用户生成新匹配的请求。
func (h *MatchHandler) GenerateMatches(c *gin.Context) {
	var req GenerateMatchesRequest
	// 空请求体表示使用服务端默认上限
	_ = c.ShouldBindJSON(&req)

	matches, err := h.matchService.GenerateMatches(c.Request.Context(), middleware.CurrentUserID(c), req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, matches)
}

// ListMatches 处理获取当前用户可见匹配列表的请求。
func (h *MatchHandler) ListMatches(c *gin.Context) {
	matches, err := h.matchService.ListVisibleMatches(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, matches)
}

// RecordAction 处理用户对一条匹配做出决定的请求。
func (h *MatchHandler) RecordAction(c *gin.Context) {
	matchID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的匹配 ID"})
		return
	}

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：action 不能为空"})
		return
	}

	match, err := h.matchService.RecordAction(c.Request.Context(), middleware.CurrentUserID(c), uint(matchID), model.Decision(req.Action))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, match)
}
