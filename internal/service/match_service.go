// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"yuanfen-go/internal/config"
	"yuanfen-go/internal/model"
	"yuanfen-go/internal/repository"
	apperrors "yuanfen-go/pkg/errors"
	"yuanfen-go/pkg/kafka"
	"yuanfen-go/pkg/log"
)

// MatchService 接口定义了匹配生命周期的业务操作。
type MatchService interface {
	// GenerateMatches 为 actor 生成新的待审核匹配，并返回其当前可见的匹配列表。
	// 新生成的记录处于待审核状态，从构造上对终端用户不可见。
	GenerateMatches(ctx context.Context, actorID uint, limit int) ([]model.Match, error)
	// ListVisibleMatches 返回 actor 可见的匹配（已审核通过且未过期）。
	ListVisibleMatches(ctx context.Context, actorID uint) ([]model.Match, error)
	// RecordAction 记录用户对一条可见匹配的决定，并在双方互相喜欢时开通会话。
	RecordAction(ctx context.Context, actorID, matchID uint, action model.Decision) (*model.Match, error)
	// Process 实现 kafka.RescoreProcessor：对兜底评分的匹配执行重评。
	Process(ctx context.Context, task kafka.RescoreTask) error
}

type matchService struct {
	userRepo     repository.UserRepository
	matchRepo    repository.MatchRepository
	candidateSvc CandidateService
	scorer       Scorer
	chatSvc      ChatService
	notifier     Notifier
	matchCfg     config.MatchConfig
	scoreTimeout time.Duration
}

// NewMatchService 创建一个新的 MatchService 实例。
func NewMatchService(
	userRepo repository.UserRepository,
	matchRepo repository.MatchRepository,
	candidateSvc CandidateService,
	scorer Scorer,
	chatSvc ChatService,
	notifier Notifier,
	matchCfg config.MatchConfig,
	scoreTimeout time.Duration,
) MatchService {
	return &matchService{
		userRepo:     userRepo,
		matchRepo:    matchRepo,
		candidateSvc: candidateSvc,
		scorer:       scorer,
		chatSvc:      chatSvc,
		notifier:     notifier,
		matchCfg:     matchCfg,
		scoreTimeout: scoreTimeout,
	}
}

// scoredCandidate 是一次评分调用的结果。
type scoredCandidate struct {
	dossier model.Dossier
	result  *ScoreResult
	err     error
}

// GenerateMatches 驱动候选人筛选与评分，把成功的结果写成待审核匹配。
// 单个候选人的评分失败只跳过该候选人（下一轮生成会重试），
// 全部失败时才作为 SCORER_UNAVAILABLE 向上抛出。
func (s *matchService) GenerateMatches(ctx context.Context, actorID uint, limit int) ([]model.Match, error) {
	// 1. 候选人筛选（内部校验资料与问卷完成度，并排除已评估的有序对）
	candidates, err := s.candidateSvc.SelectCandidates(ctx, actorID, limit)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = len(candidates)
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	if len(candidates) == 0 {
		// 空候选池是空结果，不是错误
		log.Infof("[MatchService] 无新候选人: actorId=%d", actorID)
		return s.ListVisibleMatches(ctx, actorID)
	}

	// 2. 组装 actor 画像
	actor, err := s.userRepo.FindByID(actorID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "加载用户失败", err)
	}
	actorProfile, err := s.userRepo.FindProfileByUserID(actorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.IncompleteProfile("资料未完善，无法生成匹配")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "加载用户资料失败", err)
	}
	actorDossier := model.BuildDossier(actor, actorProfile)

	// 3. 有界并发地为每个候选人评分。
	// 评分是唯一的长延迟操作：每个候选人独立超时、独立失败，
	// 评分调用期间不持有任何锁。
	scored := s.scoreCandidates(ctx, actorDossier, candidates)

	// 4. 持久化成功的结果
	now := time.Now()
	expiresAt := now.Add(time.Duration(s.matchCfg.ExpireDays) * 24 * time.Hour)
	created := 0
	failed := 0
	for _, sc := range scored {
		if sc.err != nil {
			failed++
			log.Warnf("[MatchService] 候选人评分失败（下轮重试）: actorId=%d, candidateId=%d, err=%v", actorID, sc.dossier.UserID, sc.err)
			continue
		}

		scoreSource := model.ScoreSourceModel
		if sc.result.Fallback {
			scoreSource = model.ScoreSourceFallback
		}

		match := &model.Match{
			InitiatorID:        actorID,
			CounterpartID:      sc.dossier.UserID,
			CompatibilityScore: sc.result.Overall,
			ScoreBreakdown:     sc.result.Breakdown,
			Narrative:          sc.result.Narrative,
			ScoreSource:        scoreSource,
			Status:             model.MatchStatusPendingApproval,
			Source:             "algorithmic",
			Priority:           model.PriorityFromScore(sc.result.Overall),
			ExpiresAt:          expiresAt,
		}
		if err := s.matchRepo.Create(match); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// 该有序对已评估过：并发生成或候选集滞后，静默跳过
				continue
			}
			return nil, apperrors.Wrap(apperrors.CodeInternal, "写入匹配记录失败", err)
		}
		created++

		// 兜底评分的记录排进重评队列，避免中性分长期污染排序
		if sc.result.Fallback {
			if err := s.notifier.EnqueueRescore(kafka.RescoreTask{MatchID: match.ID}); err != nil {
				log.Errorf("[MatchService] 投递重评任务失败: matchId=%d, err=%v", match.ID, err)
			}
		}
	}

	if created == 0 && failed == len(scored) && failed > 0 {
		return nil, apperrors.ScorerUnavailable("评分服务暂时不可用，请稍后再试")
	}

	log.Infof("[MatchService] 匹配生成完成: actorId=%d, 新建 %d 条, 失败 %d 条", actorID, created, failed)

	// 5. 只返回已审核可见的匹配，绝不返回刚生成的待审核记录
	return s.ListVisibleMatches(ctx, actorID)
}

// scoreCandidates 以有界并发对候选人逐个评分。
func (s *matchService) scoreCandidates(ctx context.Context, actor model.Dossier, candidates []model.Dossier) []scoredCandidate {
	concurrency := s.matchCfg.ScorerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	results := make([]scoredCandidate, len(candidates))
	var wg sync.WaitGroup
	for i, candidate := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, cand model.Dossier) {
			defer wg.Done()
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, s.scoreTimeout)
			defer cancel()

			result, err := s.scorer.Score(callCtx, actor, cand)
			results[idx] = scoredCandidate{dossier: cand, result: result, err: err}
		}(i, candidate)
	}
	wg.Wait()

	return results
}

// ListVisibleMatches 返回 actor 可见的匹配列表。
func (s *matchService) ListVisibleMatches(ctx context.Context, actorID uint) ([]model.Match, error) {
	matches, err := s.matchRepo.FindVisibleByInitiator(actorID, time.Now())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "查询匹配列表失败", err)
	}
	return matches, nil
}

// actionableStates 是可以记录用户决定的状态集合。
var actionableStates = []model.MatchStatus{
	model.MatchStatusApproved,
	model.MatchStatusMutualLike,
}

// RecordAction 记录用户决定并做互相喜欢判定。
// 互相喜欢的判定必须查询反向有序对 (counterpart, initiator) 的记录：
// 一对用户是两条方向相反的行，不存在共享的单行。
func (s *matchService) RecordAction(ctx context.Context, actorID, matchID uint, action model.Decision) (*model.Match, error) {
	if !action.Valid() {
		return nil, apperrors.InvalidArg(fmt.Sprintf("无效的操作: %s", action))
	}

	// 以 actor 为方向发起者加载记录；他人的记录不泄露存在性
	match, err := s.matchRepo.FindOwnedByID(actorID, matchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("匹配不存在")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "加载匹配记录失败", err)
	}

	now := time.Now()

	if action == model.DecisionPass {
		rows, err := s.matchRepo.ApplyDecision(matchID, actorID, action, now, model.MatchStatusExpired, actionableStates)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, "记录决定失败", err)
		}
		if rows == 0 {
			// 状态守卫未命中：已过期或已表态，重读后原样返回（幂等）
			return s.reload(actorID, matchID)
		}
		// 把决定镜像到反向记录的对方槽位（反向记录不存在时为空操作）
		if err := s.matchRepo.MirrorCounterpartDecision(match.CounterpartID, actorID, action, now); err != nil {
			log.Warnf("[MatchService] 镜像决定失败: matchId=%d, err=%v", matchID, err)
		}
		return s.reload(actorID, matchID)
	}

	// like / super_like：只写决定，不碰状态。
	// 写回读到的旧状态会在对方并发完成 approved → mutual_like 时把行退回 approved。
	rows, err := s.matchRepo.ApplyDecision(matchID, actorID, action, now, "", actionableStates)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "记录决定失败", err)
	}
	if rows == 0 {
		return s.reload(actorID, matchID)
	}
	if err := s.matchRepo.MirrorCounterpartDecision(match.CounterpartID, actorID, action, now); err != nil {
		log.Warnf("[MatchService] 镜像决定失败: matchId=%d, err=%v", matchID, err)
	}

	// 互相喜欢判定：查询反向有序对的记录并检查对方决定
	reverse, err := s.matchRepo.FindByPair(match.CounterpartID, actorID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "查询反向匹配失败", err)
	}

	if reverse != nil && reverse.InitiatorDecision.Positive() {
		if err := s.onMutualLike(ctx, match, reverse); err != nil {
			return nil, err
		}
	}

	return s.reload(actorID, matchID)
}

// onMutualLike 处理双方互相喜欢：状态转移、开通会话、发出通知。
// 会话以两条方向行中发起者 ID 较小的一条为规范键，保证一对用户
// 无论哪个方向先完成互相喜欢，都只会开通一个会话。
func (s *matchService) onMutualLike(ctx context.Context, match, reverse *model.Match) error {
	// 两条方向行都转移到 mutual_like（条件更新，竞争方各自只成功一次）
	if _, err := s.matchRepo.TransitionStatus(match.ID, []model.MatchStatus{model.MatchStatusApproved}, model.MatchStatusMutualLike); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "状态转移失败", err)
	}
	if _, err := s.matchRepo.TransitionStatus(reverse.ID, []model.MatchStatus{model.MatchStatusApproved}, model.MatchStatusMutualLike); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "状态转移失败", err)
	}

	canonical := match
	mirror := reverse
	if reverse.InitiatorID < match.InitiatorID {
		canonical, mirror = reverse, match
	}

	if _, err := s.chatSvc.EnsureChat(ctx, canonical.ID); err != nil {
		return err
	}
	// EnsureChat 只转移规范行，镜像行在这里跟进
	if _, err := s.matchRepo.TransitionStatus(mirror.ID, []model.MatchStatus{model.MatchStatusMutualLike}, model.MatchStatusChatStarted); err != nil {
		log.Warnf("[MatchService] 镜像行状态转移失败: matchId=%d, err=%v", mirror.ID, err)
	}

	// 即发即忘地通知双方
	now := time.Now()
	s.notifier.Notify(kafka.NotificationEvent{
		Type:       "mutual_match",
		UserID:     match.InitiatorID,
		PeerID:     match.CounterpartID,
		MatchID:    match.ID,
		OccurredAt: now,
	})
	s.notifier.Notify(kafka.NotificationEvent{
		Type:       "mutual_match",
		UserID:     match.CounterpartID,
		PeerID:     match.InitiatorID,
		MatchID:    reverse.ID,
		OccurredAt: now,
	})

	log.Infof("[MatchService] 互相喜欢: %d <-> %d", match.InitiatorID, match.CounterpartID)
	return nil
}

func (s *matchService) reload(actorID, matchID uint) (*model.Match, error) {
	match, err := s.matchRepo.FindOwnedByID(actorID, matchID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "重读匹配记录失败", err)
	}
	return match, nil
}

// Process 对一条兜底评分的匹配执行重评（由 Kafka 重评消费者调用）。
// 返回错误表示这次重评没有成功，消费者会按重试策略再次投递。
func (s *matchService) Process(ctx context.Context, task kafka.RescoreTask) error {
	match, err := s.matchRepo.FindByID(task.MatchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 记录已不存在，任务作废
			return nil
		}
		return err
	}
	if match.ScoreSource != model.ScoreSourceFallback {
		// 已被重评过，或本来就是正式评分
		return nil
	}

	initiator, err := s.userRepo.FindByID(match.InitiatorID)
	if err != nil {
		return err
	}
	initiatorProfile, err := s.userRepo.FindProfileByUserID(match.InitiatorID)
	if err != nil {
		return err
	}
	counterpart, err := s.userRepo.FindByID(match.CounterpartID)
	if err != nil {
		return err
	}
	counterpartProfile, err := s.userRepo.FindProfileByUserID(match.CounterpartID)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.scoreTimeout)
	defer cancel()

	result, err := s.scorer.Score(callCtx, model.BuildDossier(initiator, initiatorProfile), model.BuildDossier(counterpart, counterpartProfile))
	if err != nil {
		return err
	}
	if result.Fallback {
		return fmt.Errorf("重评仍然得到兜底结果: matchId=%d", task.MatchID)
	}

	rows, err := s.matchRepo.UpdateScore(task.MatchID, result.Overall, result.Breakdown, result.Narrative)
	if err != nil {
		return err
	}
	if rows == 0 {
		// 记录状态已不适合重评（被拒绝/过期/已被重评），视为完成
		log.Infof("[MatchService] 重评结果被跳过: matchId=%d", task.MatchID)
	}
	return nil
}
