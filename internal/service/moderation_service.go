// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"yuanfen-go/internal/config"
	"yuanfen-go/internal/model"
	"yuanfen-go/internal/repository"
	apperrors "yuanfen-go/pkg/errors"
	"yuanfen-go/pkg/kafka"
	"yuanfen-go/pkg/log"
	"yuanfen-go/pkg/storage"
)

// defaultRejectionReason 审核员未填写理由时的占位理由。
const defaultRejectionReason = "未通过人工审核"

// photoURLExpiry 审核卡片上照片预签名 URL 的有效期。
const photoURLExpiry = 30 * time.Minute

// PendingMatchItem 是审核队列中的一项：待审核匹配 + 双方画像。
type PendingMatchItem struct {
	Match       model.Match   `json:"match"`
	Initiator   model.Dossier `json:"initiator"`
	Counterpart model.Dossier `json:"counterpart"`
}

// ModerationResult 是一次审核操作的结果。
type ModerationResult struct {
	Match *model.Match `json:"match"`
	// AlreadyModerated 为 true 表示该记录早已被处理，本次调用未做任何变更。
	// 对重试的调用方这是良性信号，不作为错误返回。
	AlreadyModerated bool `json:"alreadyModerated"`
}

// ModerationService 接口定义了管理员审核匹配的操作。
// 所有状态转移都以 status = pending_approval 为前置条件，
// 两个审核员（或重试的请求）竞争同一条记录时只有一方生效。
type ModerationService interface {
	ApproveMatch(ctx context.Context, matchID, adminID uint) (*ModerationResult, error)
	RejectMatch(ctx context.Context, matchID, adminID uint, reason string) (*ModerationResult, error)
	// BatchApprove 返回实际转移的行数；已被处理的记录被静默跳过。
	BatchApprove(ctx context.Context, matchIDs []uint, adminID uint) (int64, error)
	// PendingMatches 返回最旧优先的待审核队列，附带双方画像与照片链接。
	PendingMatches(ctx context.Context, limit int) ([]PendingMatchItem, error)
}

type moderationService struct {
	matchRepo repository.MatchRepository
	userRepo  repository.UserRepository
	notifier  Notifier
	minioCfg  config.MinIOConfig
}

// NewModerationService 创建一个新的 ModerationService 实例。
func NewModerationService(matchRepo repository.MatchRepository, userRepo repository.UserRepository, notifier Notifier, minioCfg config.MinIOConfig) ModerationService {
	return &moderationService{
		matchRepo: matchRepo,
		userRepo:  userRepo,
		notifier:  notifier,
		minioCfg:  minioCfg,
	}
}

// ApproveMatch 把待审核匹配转移到 approved。
func (s *moderationService) ApproveMatch(ctx context.Context, matchID, adminID uint) (*ModerationResult, error) {
	rows, err := s.matchRepo.Moderate(matchID, adminID, model.MatchStatusApproved, "", time.Now())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "审核操作失败", err)
	}
	result, err := s.afterModeration(matchID, rows)
	if err != nil {
		return nil, err
	}

	if !result.AlreadyModerated {
		log.Infof("[ModerationService] 匹配已通过审核: matchId=%d, adminId=%d", matchID, adminID)
		// 通知匹配的发起方有新的可见匹配
		s.notifier.Notify(kafka.NotificationEvent{
			Type:       "match_approved",
			UserID:     result.Match.InitiatorID,
			MatchID:    matchID,
			OccurredAt: time.Now(),
		})
	}
	return result, nil
}

// RejectMatch 把待审核匹配转移到 rejected，并记录理由。
func (s *moderationService) RejectMatch(ctx context.Context, matchID, adminID uint, reason string) (*ModerationResult, error) {
	if reason == "" {
		reason = defaultRejectionReason
	}
	rows, err := s.matchRepo.Moderate(matchID, adminID, model.MatchStatusRejected, reason, time.Now())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "审核操作失败", err)
	}
	result, err := s.afterModeration(matchID, rows)
	if err != nil {
		return nil, err
	}
	if !result.AlreadyModerated {
		log.Infof("[ModerationService] 匹配已被拒绝: matchId=%d, adminId=%d, reason=%s", matchID, adminID, reason)
	}
	return result, nil
}

// afterModeration 解释条件更新的影响行数。
// rows == 0 说明该记录不处于待审核状态：要么不存在，要么已被处理。
// 对已处理的记录返回当前状态即可——重试的调用方不应收到错误。
func (s *moderationService) afterModeration(matchID uint, rows int64) (*ModerationResult, error) {
	match, err := s.matchRepo.FindByID(matchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("匹配不存在")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "加载匹配记录失败", err)
	}
	return &ModerationResult{
		Match:            match,
		AlreadyModerated: rows == 0,
	}, nil
}

// BatchApprove 对一批匹配做集合式条件更新。
func (s *moderationService) BatchApprove(ctx context.Context, matchIDs []uint, adminID uint) (int64, error) {
	if len(matchIDs) == 0 {
		return 0, nil
	}
	rows, err := s.matchRepo.BatchModerate(matchIDs, adminID, model.MatchStatusApproved, time.Now())
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "批量审核失败", err)
	}
	log.Infof("[ModerationService] 批量审核完成: 请求 %d 条, 实际转移 %d 条, adminId=%d", len(matchIDs), rows, adminID)
	return rows, nil
}

// PendingMatches 返回待审核队列（FIFO），并为每项拼装双方画像。
func (s *moderationService) PendingMatches(ctx context.Context, limit int) ([]PendingMatchItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	matches, err := s.matchRepo.FindPendingOldestFirst(limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "查询待审核队列失败", err)
	}
	if len(matches) == 0 {
		return []PendingMatchItem{}, nil
	}

	// 批量加载涉及的用户与资料
	userIDSet := make(map[uint]struct{}, len(matches)*2)
	for _, m := range matches {
		userIDSet[m.InitiatorID] = struct{}{}
		userIDSet[m.CounterpartID] = struct{}{}
	}
	userIDs := make([]uint, 0, len(userIDSet))
	for id := range userIDSet {
		userIDs = append(userIDs, id)
	}

	users, err := s.userRepo.FindByIDs(userIDs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "批量加载用户失败", err)
	}
	profiles, err := s.userRepo.FindProfilesByUserIDs(userIDs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "批量加载资料失败", err)
	}

	userByID := make(map[uint]*model.User, len(users))
	for i := range users {
		userByID[users[i].ID] = &users[i]
	}
	profileByUserID := make(map[uint]*model.Profile, len(profiles))
	for i := range profiles {
		profileByUserID[profiles[i].UserID] = &profiles[i]
	}

	items := make([]PendingMatchItem, 0, len(matches))
	for _, m := range matches {
		items = append(items, PendingMatchItem{
			Match:       m,
			Initiator:   s.dossierFor(m.InitiatorID, userByID, profileByUserID),
			Counterpart: s.dossierFor(m.CounterpartID, userByID, profileByUserID),
		})
	}
	return items, nil
}

// dossierFor 组装一位用户的画像，照片以预签名 URL 形式附带。
// 用户或资料意外缺失时返回只含 ID 的空画像，不让整个队列失败。
func (s *moderationService) dossierFor(userID uint, users map[uint]*model.User, profiles map[uint]*model.Profile) model.Dossier {
	user, uok := users[userID]
	profile, pok := profiles[userID]
	if !uok || !pok {
		log.Warnf("[ModerationService] 审核队列缺少用户画像: userId=%d", userID)
		return model.Dossier{UserID: userID}
	}
	dossier := model.BuildDossier(user, profile)
	dossier.PhotoURLs = storage.PresignPhotoURLs(s.minioCfg.BucketName, profile.PhotoKeyList(), photoURLExpiry)
	return dossier
}
