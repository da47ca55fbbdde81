// Package repository 提供了数据访问层的实现。
package repository

import (
	"time"

	"gorm.io/gorm"

	"yuanfen-go/internal/model"
)

// ConversationRepository 定义了会话与消息的持久化操作。
type ConversationRepository interface {
	// Create 插入新会话；match_id 唯一索引冲突时返回 gorm.ErrDuplicatedKey。
	Create(conv *model.Conversation) error
	FindByID(convID uint) (*model.Conversation, error)
	FindByMatchID(matchID uint) (*model.Conversation, error)
	FindByParticipant(userID uint) ([]model.Conversation, error)

	// AppendMessage 在同一事务内插入消息并更新会话计数器与最新消息预览。
	AppendMessage(msg *model.Message, recipientID uint, preview string) error
	// MarkRead 清零读者的未读计数并为对方发出的未读消息盖上已读时间。
	MarkRead(convID, readerID uint, at time.Time) error
	// ListMessages 分页返回会话消息（新的在前）。
	ListMessages(convID uint, limit, offset int) ([]model.Message, error)
	FindMessageByID(messageID uint) (*model.Message, error)
	// FlagMessage 设置接收方举报标记，供审核后续跟进。
	FlagMessage(messageID uint) error
	// UpdateStatusIf 仅当会话处于 from 状态时转移到 to。
	UpdateStatusIf(convID uint, from, to model.ConversationStatus) (int64, error)
}

// conversationRepository 是 ConversationRepository 接口的 GORM 实现。
type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Create 插入新会话。唯一索引 match_id 是去重的权威保证，
// 并发创建时失败方拿到 gorm.ErrDuplicatedKey 后改为读取既有会话。
func (r *conversationRepository) Create(conv *model.Conversation) error {
	return r.db.Create(conv).Error
}

// FindByID 按主键查找会话。
func (r *conversationRepository) FindByID(convID uint) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.First(&conv, convID).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByMatchID 按匹配 ID 查找会话。
func (r *conversationRepository) FindByMatchID(matchID uint) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.Where("match_id = ?", matchID).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByParticipant 返回用户参与的全部会话（最近活跃的在前）。
func (r *conversationRepository) FindByParticipant(userID uint) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&convs).Error
	return convs, err
}

// AppendMessage 插入消息并在同一事务内更新会话的聚合字段。
// 计数器跟随触发写入原子更新，而不是事后重算，避免并发发送时漂移。
func (r *conversationRepository) AppendMessage(msg *model.Message, recipientID uint, preview string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		unreadColumn := "unread_a"
		var conv model.Conversation
		if err := tx.First(&conv, msg.ConversationID).Error; err != nil {
			return err
		}
		if conv.ParticipantB == recipientID {
			unreadColumn = "unread_b"
		}

		return tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"total_messages":       gorm.Expr("total_messages + 1"),
				unreadColumn:           gorm.Expr(unreadColumn + " + 1"),
				"last_message_preview": preview,
				"last_message_sender":  msg.SenderID,
				"last_message_at":      msg.CreatedAt,
			}).Error
	})
}

// MarkRead 清零读者的未读计数，并为对方发出的未读消息盖上已读时间。
func (r *conversationRepository) MarkRead(convID, readerID uint, at time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var conv model.Conversation
		if err := tx.First(&conv, convID).Error; err != nil {
			return err
		}

		unreadColumn := "unread_a"
		if conv.ParticipantB == readerID {
			unreadColumn = "unread_b"
		}

		if err := tx.Model(&model.Conversation{}).
			Where("id = ?", convID).
			Update(unreadColumn, 0).Error; err != nil {
			return err
		}

		// 只更新对方发出且尚未读的消息
		return tx.Model(&model.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", convID, readerID).
			Updates(map[string]interface{}{
				"status":  model.MessageStatusRead,
				"read_at": at,
			}).Error
	})
}

// ListMessages 分页返回会话消息。
func (r *conversationRepository) ListMessages(convID uint, limit, offset int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.
		Where("conversation_id = ?", convID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	return messages, err
}

// FindMessageByID 按主键查找消息。
func (r *conversationRepository) FindMessageByID(messageID uint) (*model.Message, error) {
	var msg model.Message
	err := r.db.First(&msg, messageID).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FlagMessage 设置接收方举报标记。
func (r *conversationRepository) FlagMessage(messageID uint) error {
	return r.db.Model(&model.Message{}).
		Where("id = ?", messageID).
		Update("flagged_by_recipient", true).Error
}

// UpdateStatusIf 条件状态转移，返回影响行数。
func (r *conversationRepository) UpdateStatusIf(convID uint, from, to model.ConversationStatus) (int64, error) {
	result := r.db.Model(&model.Conversation{}).
		Where("id = ? AND status = ?", convID, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}
