// Package repository 提供了数据访问层的实现。
package repository

import (
	"time"

	"gorm.io/gorm"

	"yuanfen-go/internal/model"
)

// MatchRepository 定义了匹配记录的持久化操作。
// 所有状态变更都是带当前状态前置条件的条件更新（compare-and-swap），
// 返回实际影响的行数由调用方解释；仓库层从不做先读后写。
type MatchRepository interface {
	Create(match *model.Match) error
	FindByID(matchID uint) (*model.Match, error)
	// FindOwnedByID 加载以 actorID 为方向发起者的匹配记录
	FindOwnedByID(actorID, matchID uint) (*model.Match, error)
	// FindByPair 按有序对 (initiatorID, counterpartID) 查找记录
	FindByPair(initiatorID, counterpartID uint) (*model.Match, error)
	// CounterpartIDs 返回 actorID 名下所有已存在匹配记录的对方用户 ID
	CounterpartIDs(initiatorID uint) ([]uint, error)
	// FindVisibleByInitiator 返回用户可见的匹配：已通过审核且未过期
	FindVisibleByInitiator(initiatorID uint, now time.Time) ([]model.Match, error)
	// FindPendingOldestFirst 返回最早进入待审核状态的记录（FIFO）
	FindPendingOldestFirst(limit int) ([]model.Match, error)

	// Moderate 仅当 status = pending_approval 时转移到 to 并记录审核人。
	// 返回影响行数：0 表示已被其他审核员处理过。
	Moderate(matchID, adminID uint, to model.MatchStatus, reason string, at time.Time) (int64, error)
	// BatchModerate 对一批记录做与 Moderate 同语义的集合式条件更新。
	BatchModerate(matchIDs []uint, adminID uint, to model.MatchStatus, at time.Time) (int64, error)

	// ApplyDecision 将发起方决定写入记录，仅当当前状态在 allowedFrom 中时生效。
	// to 非空时同时转移状态；为空时只写决定，不碰状态字段。
	ApplyDecision(matchID, actorID uint, decision model.Decision, at time.Time, to model.MatchStatus, allowedFrom []model.MatchStatus) (int64, error)
	// MirrorCounterpartDecision 将对方的决定镜像到反向记录的对方槽位。
	MirrorCounterpartDecision(initiatorID, counterpartID uint, decision model.Decision, at time.Time) error
	// TransitionStatus 通用的条件状态转移。
	TransitionStatus(matchID uint, from []model.MatchStatus, to model.MatchStatus) (int64, error)
	// UpdateScore 重写评分字段，仅当记录仍为兜底评分且未被拒绝时生效。
	UpdateScore(matchID uint, score int, breakdown model.ScoreBreakdown, narrative model.Narrative) (int64, error)
}

// matchRepository 是 MatchRepository 接口的 GORM 实现。
type matchRepository struct {
	db *gorm.DB
}

// NewMatchRepository 创建一个新的 MatchRepository 实例。
func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepository{db: db}
}

// Create 插入一条新的匹配记录。
// (initiator_id, counterpart_id) 唯一索引冲突时返回 gorm.ErrDuplicatedKey，
// 调用方将其视为"该有序对已评估过"。
func (r *matchRepository) Create(match *model.Match) error {
	return r.db.Create(match).Error
}

// FindByID 按主键查找匹配记录。
func (r *matchRepository) FindByID(matchID uint) (*model.Match, error) {
	var match model.Match
	err := r.db.First(&match, matchID).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// FindOwnedByID 加载以 actorID 为方向发起者的匹配记录。
// 他人的记录在这里等同于不存在。
func (r *matchRepository) FindOwnedByID(actorID, matchID uint) (*model.Match, error) {
	var match model.Match
	err := r.db.Where("id = ? AND initiator_id = ?", matchID, actorID).First(&match).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// FindByPair 按有序对查找记录，用于互相喜欢判定时的反向查询。
func (r *matchRepository) FindByPair(initiatorID, counterpartID uint) (*model.Match, error) {
	var match model.Match
	err := r.db.Where("initiator_id = ? AND counterpart_id = ?", initiatorID, counterpartID).First(&match).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// CounterpartIDs 返回 actorID 名下所有匹配记录的对方用户 ID（去重由唯一索引保证）。
func (r *matchRepository) CounterpartIDs(initiatorID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&model.Match{}).
		Where("initiator_id = ?", initiatorID).
		Pluck("counterpart_id", &ids).Error
	return ids, err
}

// FindVisibleByInitiator 返回用户可见的匹配记录。
// 待审核与被拒绝的记录从构造上对终端用户不可见；过期记录惰性排除。
func (r *matchRepository) FindVisibleByInitiator(initiatorID uint, now time.Time) ([]model.Match, error) {
	var matches []model.Match
	err := r.db.
		Where("initiator_id = ?", initiatorID).
		Where("status IN ?", []model.MatchStatus{
			model.MatchStatusApproved,
			model.MatchStatusMutualLike,
			model.MatchStatusChatStarted,
		}).
		Where("expires_at > ?", now).
		Order("priority DESC, compatibility_score DESC").
		Find(&matches).Error
	return matches, err
}

// FindPendingOldestFirst 返回待审核队列（最早创建的在前）。
func (r *matchRepository) FindPendingOldestFirst(limit int) ([]model.Match, error) {
	var matches []model.Match
	err := r.db.
		Where("status = ?", model.MatchStatusPendingApproval).
		Order("created_at ASC").
		Limit(limit).
		Find(&matches).Error
	return matches, err
}

// Moderate 以 status = pending_approval 为前置条件做状态转移。
// 两个审核员（或重试的请求）竞争同一条记录时只有一方成功。
func (r *matchRepository) Moderate(matchID, adminID uint, to model.MatchStatus, reason string, at time.Time) (int64, error) {
	updates := map[string]interface{}{
		"status":       to,
		"moderated_by": adminID,
		"moderated_at": at,
	}
	if to == model.MatchStatusRejected {
		updates["rejection_reason"] = reason
	}
	result := r.db.Model(&model.Match{}).
		Where("id = ? AND status = ?", matchID, model.MatchStatusPendingApproval).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// BatchModerate 集合式条件更新，返回实际转移的行数。
// 已被处理过的记录被静默跳过，不算错误。
func (r *matchRepository) BatchModerate(matchIDs []uint, adminID uint, to model.MatchStatus, at time.Time) (int64, error) {
	result := r.db.Model(&model.Match{}).
		Where("id IN ? AND status = ?", matchIDs, model.MatchStatusPendingApproval).
		Updates(map[string]interface{}{
			"status":       to,
			"moderated_by": adminID,
			"moderated_at": at,
		})
	return result.RowsAffected, result.Error
}

// ApplyDecision 写入发起方决定，带当前状态守卫。
// to 为空时不更新状态，避免把并发转移后的状态写回旧值。
func (r *matchRepository) ApplyDecision(matchID, actorID uint, decision model.Decision, at time.Time, to model.MatchStatus, allowedFrom []model.MatchStatus) (int64, error) {
	updates := map[string]interface{}{
		"initiator_decision":   decision,
		"initiator_decided_at": at,
	}
	if to != "" {
		updates["status"] = to
	}
	result := r.db.Model(&model.Match{}).
		Where("id = ? AND initiator_id = ? AND status IN ?", matchID, actorID, allowedFrom).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// MirrorCounterpartDecision 把用户在自己记录上的决定镜像到反向记录，
// 便于按单条记录读取双方决定。反向记录不存在时视为无事发生。
func (r *matchRepository) MirrorCounterpartDecision(initiatorID, counterpartID uint, decision model.Decision, at time.Time) error {
	return r.db.Model(&model.Match{}).
		Where("initiator_id = ? AND counterpart_id = ?", initiatorID, counterpartID).
		Updates(map[string]interface{}{
			"counterpart_decision":   decision,
			"counterpart_decided_at": at,
		}).Error
}

// TransitionStatus 通用的条件状态转移。
func (r *matchRepository) TransitionStatus(matchID uint, from []model.MatchStatus, to model.MatchStatus) (int64, error) {
	result := r.db.Model(&model.Match{}).
		Where("id = ? AND status IN ?", matchID, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}

// UpdateScore 重评成功后覆盖评分字段。
// 仅当记录仍为兜底评分且未被拒绝/过期时生效，避免覆盖人工处理结果。
func (r *matchRepository) UpdateScore(matchID uint, score int, breakdown model.ScoreBreakdown, narrative model.Narrative) (int64, error) {
	result := r.db.Model(&model.Match{}).
		Where("id = ? AND score_source = ? AND status IN ?", matchID, model.ScoreSourceFallback, []model.MatchStatus{
			model.MatchStatusPendingApproval,
			model.MatchStatusApproved,
		}).
		Updates(map[string]interface{}{
			"compatibility_score": score,
			"score_breakdown":     breakdown,
			"narrative":           narrative,
			"score_source":        model.ScoreSourceModel,
			"priority":            model.PriorityFromScore(score),
		})
	return result.RowsAffected, result.Error
}
