package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"yuanfen-go/internal/filter"
	"yuanfen-go/internal/model"
	"yuanfen-go/internal/repository"
	apperrors "yuanfen-go/pkg/errors"
	"yuanfen-go/pkg/kafka"
	"yuanfen-go/pkg/log"
)

// previewRunes 会话列表里最新消息预览的最大长度（按字符数）。
const previewRunes = 60

// maxMessageRunes 单条消息的长度上限。
const maxMessageRunes = 2000

// ChatService 接口定义了会话的创建与消息收发操作。
//
// EnsureChat 是幂等的：唯一索引 match_id 保证并发调用只有一方插入成功，
// 失败方读回既有会话。它只负责转移规范方向行的状态，镜像行由调用方跟进。
type ChatService interface {
	EnsureChat(ctx context.Context, matchID uint) (*model.Conversation, error)
	SendMessage(ctx context.Context, convID, senderID uint, content string) (*model.Message, error)
	MarkRead(ctx context.Context, convID, readerID uint) error
	ReportMessage(ctx context.Context, messageID, reporterID uint) error
	// BlockConversation 把会话转为发起方专属的屏蔽状态，对双方都停止收发。
	BlockConversation(ctx context.Context, convID, blockerID uint) error
	ListConversations(ctx context.Context, userID uint) ([]model.Conversation, error)
	ListMessages(ctx context.Context, convID, userID uint, limit, offset int) ([]model.Message, error)
}

type chatService struct {
	convRepo  repository.ConversationRepository
	matchRepo repository.MatchRepository
	notifier  Notifier
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(convRepo repository.ConversationRepository, matchRepo repository.MatchRepository, notifier Notifier) ChatService {
	return &chatService{
		convRepo:  convRepo,
		matchRepo: matchRepo,
		notifier:  notifier,
	}
}

// EnsureChat 为规范方向行创建（或取回）会话。
// 参与者 A 固定为行的发起方、B 为对方，保证无论哪个方向先触发，
// blocked_by_a / blocked_by_b 的含义都稳定。
func (s *chatService) EnsureChat(ctx context.Context, matchID uint) (*model.Conversation, error) {
	match, err := s.matchRepo.FindByID(matchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("匹配不存在")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "加载匹配记录失败", err)
	}

	conv := &model.Conversation{
		MatchID:      matchID,
		ParticipantA: match.InitiatorID,
		ParticipantB: match.CounterpartID,
		Status:       model.ConversationStatusActive,
	}
	if err := s.convRepo.Create(conv); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// 另一次调用已经建好，拿既有会话即可。
			// 状态转移同样要补做：建会话的那次调用可能在转移前就被打断了
			existing, ferr := s.convRepo.FindByMatchID(matchID)
			if ferr != nil {
				return nil, apperrors.Wrap(apperrors.CodeInternal, "读取既有会话失败", ferr)
			}
			s.advanceToChatStarted(matchID)
			return existing, nil
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "创建会话失败", err)
	}

	s.advanceToChatStarted(matchID)
	log.Infof("[ChatService] 会话已创建: convId=%d, matchId=%d", conv.ID, matchID)
	return conv, nil
}

// advanceToChatStarted 把规范行跟进到 chat_started。
// 已经在该状态时条件更新自然落空，失败只记日志。
func (s *chatService) advanceToChatStarted(matchID uint) {
	if _, err := s.matchRepo.TransitionStatus(matchID, []model.MatchStatus{model.MatchStatusMutualLike}, model.MatchStatusChatStarted); err != nil {
		log.Errorf("[ChatService] 匹配状态转移失败: matchId=%d, err=%v", matchID, err)
	}
}

// SendMessage 在会话内发送一条消息。
// 出站内容先经过联系方式过滤器，接收方永远只看到过滤后的文本。
func (s *chatService) SendMessage(ctx context.Context, convID, senderID uint, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.InvalidArg("消息内容不能为空")
	}
	if utf8.RuneCountInString(content) > maxMessageRunes {
		return nil, apperrors.InvalidArg("消息内容过长")
	}

	conv, err := s.loadForParticipant(convID, senderID)
	if err != nil {
		return nil, err
	}
	if !conv.Active() {
		return nil, apperrors.ConversationInactive("会话已不可用，无法发送消息")
	}

	result := filter.Apply(content)
	msg := &model.Message{
		ConversationID: convID,
		SenderID:       senderID,
		DisplayContent: result.DisplayContent,
		Filtered:       result.Filtered,
		Status:         model.MessageStatusSent,
	}
	if result.Filtered {
		// 原文仅为审核回查保留
		msg.RawContent = content
		msg.FilterReason = result.Reason
		log.Infof("[ChatService] 消息触发内容过滤: convId=%d, senderId=%d, reason=%s", convID, senderID, result.Reason)
	}

	recipientID := conv.OtherParticipant(senderID)
	if err := s.convRepo.AppendMessage(msg, recipientID, truncatePreview(result.DisplayContent)); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "保存消息失败", err)
	}
	return msg, nil
}

// MarkRead 把会话中对方发来的未读消息标记为已读。
func (s *chatService) MarkRead(ctx context.Context, convID, readerID uint) error {
	if _, err := s.loadForParticipant(convID, readerID); err != nil {
		return err
	}
	if err := s.convRepo.MarkRead(convID, readerID, time.Now()); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "标记已读失败", err)
	}
	return nil
}

// ReportMessage 由接收方举报一条消息。
// 仅接收方可举报；重复举报是幂等的。
func (s *chatService) ReportMessage(ctx context.Context, messageID, reporterID uint) error {
	msg, err := s.convRepo.FindMessageByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("消息不存在")
		}
		return apperrors.Wrap(apperrors.CodeInternal, "加载消息失败", err)
	}
	conv, err := s.loadForParticipant(msg.ConversationID, reporterID)
	if err != nil {
		return err
	}
	if msg.SenderID == reporterID {
		return apperrors.InvalidArg("不能举报自己发送的消息")
	}
	if msg.FlaggedByRecipient {
		return nil
	}
	if err := s.convRepo.FlagMessage(messageID); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "举报消息失败", err)
	}
	log.Infof("[ChatService] 消息已被举报: messageId=%d, convId=%d, reporterId=%d", messageID, conv.ID, reporterID)
	s.notifier.Notify(kafka.NotificationEvent{
		Type:           "message_reported",
		UserID:         msg.SenderID,
		PeerID:         reporterID,
		ConversationID: conv.ID,
		MessageID:      messageID,
		OccurredAt:     time.Now(),
	})
	return nil
}

// BlockConversation 屏蔽会话。状态记录了是哪一方发起的屏蔽，
// 解除时据此校验只有屏蔽方可以恢复。
func (s *chatService) BlockConversation(ctx context.Context, convID, blockerID uint) error {
	conv, err := s.loadForParticipant(convID, blockerID)
	if err != nil {
		return err
	}
	target := model.ConversationStatusBlockedByA
	if conv.ParticipantB == blockerID {
		target = model.ConversationStatusBlockedByB
	}
	rows, err := s.convRepo.UpdateStatusIf(convID, model.ConversationStatusActive, target)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "屏蔽会话失败", err)
	}
	if rows == 0 {
		return apperrors.ConversationInactive("会话已不处于可屏蔽状态")
	}
	log.Infof("[ChatService] 会话已被屏蔽: convId=%d, blockerId=%d", convID, blockerID)
	return nil
}

// ListConversations 返回用户参与的全部会话。
func (s *chatService) ListConversations(ctx context.Context, userID uint) ([]model.Conversation, error) {
	convs, err := s.convRepo.FindByParticipant(userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "查询会话列表失败", err)
	}
	return convs, nil
}

// ListMessages 分页返回会话内的消息。
func (s *chatService) ListMessages(ctx context.Context, convID, userID uint, limit, offset int) ([]model.Message, error) {
	if _, err := s.loadForParticipant(convID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	msgs, err := s.convRepo.ListMessages(convID, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "查询消息失败", err)
	}
	return msgs, nil
}

// loadForParticipant 加载会话并校验访问者是参与者。
// 非参与者与不存在的会话返回同样的 NOT_FOUND，避免泄露会话是否存在。
func (s *chatService) loadForParticipant(convID, userID uint) (*model.Conversation, error) {
	conv, err := s.convRepo.FindByID(convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("会话不存在")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "加载会话失败", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.NotFound("会话不存在")
	}
	return conv, nil
}

// truncatePreview 截断消息文本作为会话列表的预览。
func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes]) + "…"
}
