package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// MatchStatus 表示匹配记录的生命周期状态。
type MatchStatus string

const (
	MatchStatusPendingApproval MatchStatus = "pending_approval"
	MatchStatusApproved        MatchStatus = "approved"
	MatchStatusRejected        MatchStatus = "rejected"
	MatchStatusExpired         MatchStatus = "expired"
	MatchStatusMutualLike      MatchStatus = "mutual_like"
	MatchStatusChatStarted     MatchStatus = "chat_started"
)

// Decision 表示用户对一条可见匹配的决定。
type Decision string

const (
	DecisionNone      Decision = ""
	DecisionLike      Decision = "like"
	DecisionPass      Decision = "pass"
	DecisionSuperLike Decision = "super_like"
)

// Positive 判断该决定是否为正向决定（喜欢或超级喜欢）。
func (d Decision) Positive() bool {
	return d == DecisionLike || d == DecisionSuperLike
}

// Valid 判断是否为调用方可提交的合法决定。
func (d Decision) Valid() bool {
	return d == DecisionLike || d == DecisionPass || d == DecisionSuperLike
}

// ScoreSource 标记评分结果的来源。
const (
	ScoreSourceModel    = "model"
	ScoreSourceFallback = "fallback"
)

// ScoreBreakdown 是六个命名子分数，整体以 JSON 存储。
type ScoreBreakdown struct {
	ValuesAlignment    int `json:"valuesAlignment"`
	LifestyleFit       int `json:"lifestyleFit"`
	CommunicationStyle int `json:"communicationStyle"`
	SharedInterests    int `json:"sharedInterests"`
	EmotionalMaturity  int `json:"emotionalMaturity"`
	LongTermPotential  int `json:"longTermPotential"`
}

// Value 实现 driver.Valuer，使 GORM 以 JSON 字符串写入。
func (b ScoreBreakdown) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Scan 实现 sql.Scanner。
func (b *ScoreBreakdown) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("unsupported type for ScoreBreakdown")
		}
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, b)
}

// Narrative 是评分服务生成的文字解读，整体以 JSON 存储。
type Narrative struct {
	Summary              string   `json:"summary"`
	Strengths            []string `json:"strengths"`
	Challenges           []string `json:"challenges"`
	Advice               string   `json:"advice"`
	ConversationStarters []string `json:"conversationStarters"`
}

// Value 实现 driver.Valuer。
func (n Narrative) Value() (driver.Value, error) {
	return json.Marshal(n)
}

// Scan 实现 sql.Scanner。
func (n *Narrative) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("unsupported type for Narrative")
		}
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, n)
}

// Match 对应于数据库中的 'matches' 表。
// 它是有向的：同一对用户存在两条方向相反的记录，各自独立审核、
// 独立表态；互相喜欢的判定需要同时查看反向记录。
// (initiator_id, counterpart_id) 上的唯一索引保证每个有序对至多一条。
type Match struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	InitiatorID   uint `gorm:"not null;uniqueIndex:uk_pair,priority:1" json:"initiatorId"`
	CounterpartID uint `gorm:"not null;uniqueIndex:uk_pair,priority:2" json:"counterpartId"`
	// CompatibilityScore 综合匹配分（0-100）
	CompatibilityScore int            `gorm:"not null" json:"compatibilityScore"`
	ScoreBreakdown     ScoreBreakdown `gorm:"type:json" json:"scoreBreakdown"`
	Narrative          Narrative      `gorm:"type:json" json:"narrative"`
	// ScoreSource 为 fallback 时表示评分来自降级兜底，等待重评
	ScoreSource string      `gorm:"type:varchar(16);not null;default:model" json:"scoreSource"`
	Status      MatchStatus `gorm:"type:varchar(24);not null;index" json:"status"`
	// Source 记录匹配的产生方式，目前均为 algorithmic
	Source string `gorm:"type:varchar(24);not null;default:algorithmic" json:"source"`
	// Priority 由分数推导：floor(score / 20)
	Priority int `gorm:"not null" json:"priority"`

	InitiatorDecision     Decision   `gorm:"type:varchar(16);not null;default:''" json:"initiatorDecision"`
	InitiatorDecidedAt    *time.Time `json:"initiatorDecidedAt"`
	CounterpartDecision   Decision   `gorm:"type:varchar(16);not null;default:''" json:"counterpartDecision"`
	CounterpartDecidedAt  *time.Time `json:"counterpartDecidedAt"`

	ExpiresAt       time.Time  `gorm:"not null;index" json:"expiresAt"`
	ModeratedBy     *uint      `json:"moderatedBy"`
	ModeratedAt     *time.Time `json:"moderatedAt"`
	RejectionReason string     `gorm:"type:varchar(255)" json:"rejectionReason,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Match) TableName() string {
	return "matches"
}

// PriorityFromScore 由综合分推导投放优先级。
func PriorityFromScore(score int) int {
	return score / 20
}
