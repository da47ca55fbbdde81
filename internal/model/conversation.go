package model

import "time"

// ConversationStatus 表示会话的状态。
type ConversationStatus string

const (
	ConversationStatusActive         ConversationStatus = "active"
	ConversationStatusArchived       ConversationStatus = "archived"
	ConversationStatusBlockedByA     ConversationStatus = "blocked_by_a"
	ConversationStatusBlockedByB     ConversationStatus = "blocked_by_b"
	ConversationStatusBlockedByAdmin ConversationStatus = "blocked_by_admin"
)

// Conversation 对应于数据库中的 'conversations' 表。
// match_id 上的唯一索引是"一个匹配至多一个会话"的权威保证，
// 应用层的先查后建只是优化。
type Conversation struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	MatchID      uint               `gorm:"uniqueIndex;not null" json:"matchId"`
	ParticipantA uint               `gorm:"not null;index" json:"participantA"`
	ParticipantB uint               `gorm:"not null;index" json:"participantB"`
	Status       ConversationStatus `gorm:"type:varchar(24);not null;default:active" json:"status"`

	// 计数器与插入消息在同一事务内更新，避免并发发送时漂移
	TotalMessages int `gorm:"not null;default:0" json:"totalMessages"`
	UnreadA       int `gorm:"not null;default:0" json:"unreadA"`
	UnreadB       int `gorm:"not null;default:0" json:"unreadB"`

	LastMessagePreview string     `gorm:"type:varchar(128)" json:"lastMessagePreview"`
	LastMessageSender  uint       `json:"lastMessageSender"`
	LastMessageAt      *time.Time `json:"lastMessageAt"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Active 判断会话是否仍可收发消息。
func (c *Conversation) Active() bool {
	return c.Status == ConversationStatusActive
}

// HasParticipant 判断用户是否为会话的参与者。
func (c *Conversation) HasParticipant(userID uint) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// OtherParticipant 返回会话中另一位参与者的用户 ID。
func (c *Conversation) OtherParticipant(userID uint) uint {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// MessageStatus 表示消息的投递状态。
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusDeleted   MessageStatus = "deleted"
)

// Message 对应于数据库中的 'messages' 表。
// 送达后除状态与举报标记外不可变；RawContent 仅在过滤器改写了
// 原文时保留，用于审核回查，永远不会展示给接收方。
type Message struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ConversationID uint   `gorm:"not null;index" json:"conversationId"`
	SenderID       uint   `gorm:"not null" json:"senderId"`
	DisplayContent string `gorm:"type:text;not null" json:"displayContent"`
	RawContent     string `gorm:"type:text" json:"-"`
	Filtered       bool   `gorm:"not null;default:false" json:"filtered"`
	// FilterReason 逗号连接的命中类别列表，如 "email detected, phone detected"
	FilterReason       string        `gorm:"type:varchar(128)" json:"filterReason,omitempty"`
	Status             MessageStatus `gorm:"type:varchar(16);not null;default:sent" json:"status"`
	FlaggedByRecipient bool          `gorm:"not null;default:false" json:"flaggedByRecipient"`
	ReadAt             *time.Time    `json:"readAt"`
	CreatedAt          time.Time     `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}
