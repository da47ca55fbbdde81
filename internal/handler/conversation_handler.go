// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"yuanfen-go/internal/middleware"
	"yuanfen-go/internal/service"
	"yuanfen-go/pkg/log"
)

// ConversationHandler 处理与会话和消息相关的 API 请求。
type ConversationHandler struct {
	chatService service.ChatService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(chatService service.ChatService) *ConversationHandler {
	return &ConversationHandler{chatService: chatService}
}

// SendMessageRequest 定义了发送消息 API 的请求体结构。
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ListConversations 处理获取当前用户会话列表的请求。
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	convs, err := h.chatService.ListConversations(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, convs)
}

// ListMessages 处理分页获取会话消息的请求。
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	convID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	userID := middleware.CurrentUserID(c)
	msgs, err := h.chatService.ListMessages(c.Request.Context(), convID, userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	// 打开会话即视为已读，清零失败不影响消息返回
	if err := h.chatService.MarkRead(c.Request.Context(), convID, userID); err != nil {
		log.Warnf("[ConversationHandler] 清零未读失败: convId=%d, userId=%d, err=%v", convID, userID, err)
	}
	respondOK(c, msgs)
}

// SendMessage 处理在会话内发送消息的请求。
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	convID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：content 不能为空"})
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), convID, middleware.CurrentUserID(c), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, msg)
}

// MarkRead 处理把会话标记为已读的请求。
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	convID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	if err := h.chatService.MarkRead(c.Request.Context(), convID, middleware.CurrentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// BlockConversation 处理屏蔽会话的请求。
func (h *ConversationHandler) BlockConversation(c *gin.Context) {
	convID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	if err := h.chatService.BlockConversation(c.Request.Context(), convID, middleware.CurrentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// ReportMessage 处理举报一条消息的请求。
func (h *ConversationHandler) ReportMessage(c *gin.Context) {
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	if err := h.chatService.ReportMessage(c.Request.Context(), messageID, middleware.CurrentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// parseIDParam 解析路径参数中的数字 ID，失败时直接写出 400 响应。
func parseIDParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 " + name + " 参数"})
		return 0, err
	}
	return uint(id), nil
}
