package service

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"yuanfen-go/internal/model"
	"yuanfen-go/pkg/kafka"
)

// 本文件的内存版仓库实现与 GORM 版保持相同语义：
// 唯一索引冲突返回 gorm.ErrDuplicatedKey，条件更新返回影响行数，
// 未命中查询返回 gorm.ErrRecordNotFound。

type fakeUserRepo struct {
	mu         sync.Mutex
	users      map[uint]*model.User
	profiles   map[uint]*model.Profile
	nextID     uint
	profileErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:    make(map[uint]*model.User),
		profiles: make(map[uint]*model.Profile),
		nextID:   1,
	}
}

func (f *fakeUserRepo) seed(user model.User, profile *model.Profile) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == 0 {
		user.ID = f.nextID
		f.nextID++
	}
	u := user
	f.users[u.ID] = &u
	if profile != nil {
		p := *profile
		p.UserID = u.ID
		f.profiles[u.ID] = &p
	}
	return &u
}

func (f *fakeUserRepo) Create(user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username {
			return gorm.ErrDuplicatedKey
		}
	}
	user.ID = f.nextID
	f.nextID++
	u := *user
	f.users[u.ID] = &u
	return nil
}

func (f *fakeUserRepo) FindByUsername(username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) FindByID(userID uint) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) FindByIDs(userIDs []uint) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, id := range userIDs {
		if u, ok := f.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) UpsertProfile(profile *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := *profile
	f.profiles[p.UserID] = &p
	return nil
}

func (f *fakeUserRepo) FindProfileByUserID(userID uint) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeUserRepo) FindProfilesByUserIDs(userIDs []uint) ([]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Profile
	for _, id := range userIDs {
		if p, ok := f.profiles[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeMatchRepo struct {
	mu      sync.Mutex
	matches map[uint]*model.Match
	nextID  uint
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{
		matches: make(map[uint]*model.Match),
		nextID:  1,
	}
}

func (f *fakeMatchRepo) seed(match model.Match) *model.Match {
	f.mu.Lock()
	defer f.mu.Unlock()
	if match.ID == 0 {
		match.ID = f.nextID
		f.nextID++
	}
	if match.CreatedAt.IsZero() {
		match.CreatedAt = time.Now()
	}
	m := match
	f.matches[m.ID] = &m
	return &m
}

func (f *fakeMatchRepo) get(matchID uint) *model.Match {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.matches[matchID]; ok {
		copied := *m
		return &copied
	}
	return nil
}

func (f *fakeMatchRepo) Create(match *model.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.matches {
		if m.InitiatorID == match.InitiatorID && m.CounterpartID == match.CounterpartID {
			return gorm.ErrDuplicatedKey
		}
	}
	match.ID = f.nextID
	f.nextID++
	match.CreatedAt = time.Now()
	m := *match
	f.matches[m.ID] = &m
	return nil
}

func (f *fakeMatchRepo) FindByID(matchID uint) (*model.Match, error) {
	if m := f.get(matchID); m != nil {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeMatchRepo) FindOwnedByID(actorID, matchID uint) (*model.Match, error) {
	m := f.get(matchID)
	if m == nil || m.InitiatorID != actorID {
		return nil, gorm.ErrRecordNotFound
	}
	return m, nil
}

func (f *fakeMatchRepo) FindByPair(initiatorID, counterpartID uint) (*model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.matches {
		if m.InitiatorID == initiatorID && m.CounterpartID == counterpartID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeMatchRepo) CounterpartIDs(initiatorID uint) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint
	for _, m := range f.matches {
		if m.InitiatorID == initiatorID {
			ids = append(ids, m.CounterpartID)
		}
	}
	return ids, nil
}

func (f *fakeMatchRepo) FindVisibleByInitiator(initiatorID uint, now time.Time) ([]model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Match
	for _, m := range f.matches {
		if m.InitiatorID != initiatorID {
			continue
		}
		switch m.Status {
		case model.MatchStatusApproved, model.MatchStatusMutualLike, model.MatchStatusChatStarted:
		default:
			continue
		}
		if !m.ExpiresAt.After(now) {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeMatchRepo) FindPendingOldestFirst(limit int) ([]model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Match
	for _, m := range f.matches {
		if m.Status == model.MatchStatusPendingApproval {
			out = append(out, *m)
		}
	}
	// 简单插入排序：最早创建的在前
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMatchRepo) Moderate(matchID, adminID uint, to model.MatchStatus, reason string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[matchID]
	if !ok || m.Status != model.MatchStatusPendingApproval {
		return 0, nil
	}
	m.Status = to
	m.ModeratedBy = &adminID
	moderatedAt := at
	m.ModeratedAt = &moderatedAt
	if to == model.MatchStatusRejected {
		m.RejectionReason = reason
	}
	return 1, nil
}

func (f *fakeMatchRepo) BatchModerate(matchIDs []uint, adminID uint, to model.MatchStatus, at time.Time) (int64, error) {
	var affected int64
	for _, id := range matchIDs {
		rows, _ := f.Moderate(id, adminID, to, "", at)
		affected += rows
	}
	return affected, nil
}

func (f *fakeMatchRepo) ApplyDecision(matchID, actorID uint, decision model.Decision, at time.Time, to model.MatchStatus, allowedFrom []model.MatchStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[matchID]
	if !ok || m.InitiatorID != actorID {
		return 0, nil
	}
	allowed := false
	for _, s := range allowedFrom {
		if m.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return 0, nil
	}
	m.InitiatorDecision = decision
	decidedAt := at
	m.InitiatorDecidedAt = &decidedAt
	if to != "" {
		m.Status = to
	}
	return 1, nil
}

func (f *fakeMatchRepo) MirrorCounterpartDecision(initiatorID, counterpartID uint, decision model.Decision, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.matches {
		if m.InitiatorID == initiatorID && m.CounterpartID == counterpartID {
			m.CounterpartDecision = decision
			decidedAt := at
			m.CounterpartDecidedAt = &decidedAt
		}
	}
	return nil
}

func (f *fakeMatchRepo) TransitionStatus(matchID uint, from []model.MatchStatus, to model.MatchStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[matchID]
	if !ok {
		return 0, nil
	}
	for _, s := range from {
		if m.Status == s {
			m.Status = to
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeMatchRepo) UpdateScore(matchID uint, score int, breakdown model.ScoreBreakdown, narrative model.Narrative) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[matchID]
	if !ok || m.ScoreSource != model.ScoreSourceFallback {
		return 0, nil
	}
	if m.Status != model.MatchStatusPendingApproval && m.Status != model.MatchStatusApproved {
		return 0, nil
	}
	m.CompatibilityScore = score
	m.ScoreBreakdown = breakdown
	m.Narrative = narrative
	m.ScoreSource = model.ScoreSourceModel
	m.Priority = model.PriorityFromScore(score)
	return 1, nil
}

type fakeConvRepo struct {
	mu       sync.Mutex
	convs    map[uint]*model.Conversation
	messages map[uint]*model.Message
	nextConv uint
	nextMsg  uint
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		convs:    make(map[uint]*model.Conversation),
		messages: make(map[uint]*model.Message),
		nextConv: 1,
		nextMsg:  1,
	}
}

func (f *fakeConvRepo) Create(conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.MatchID == conv.MatchID {
			return gorm.ErrDuplicatedKey
		}
	}
	conv.ID = f.nextConv
	f.nextConv++
	conv.CreatedAt = time.Now()
	c := *conv
	f.convs[c.ID] = &c
	return nil
}

func (f *fakeConvRepo) FindByID(convID uint) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[convID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeConvRepo) FindByMatchID(matchID uint) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.MatchID == matchID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeConvRepo) FindByParticipant(userID uint) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, c := range f.convs {
		if c.ParticipantA == userID || c.ParticipantB == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConvRepo) AppendMessage(msg *model.Message, recipientID uint, preview string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[msg.ConversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	msg.ID = f.nextMsg
	f.nextMsg++
	msg.CreatedAt = time.Now()
	m := *msg
	f.messages[m.ID] = &m

	c.TotalMessages++
	if c.ParticipantB == recipientID {
		c.UnreadB++
	} else {
		c.UnreadA++
	}
	c.LastMessagePreview = preview
	c.LastMessageSender = msg.SenderID
	at := msg.CreatedAt
	c.LastMessageAt = &at
	return nil
}

func (f *fakeConvRepo) MarkRead(convID, readerID uint, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[convID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if c.ParticipantB == readerID {
		c.UnreadB = 0
	} else {
		c.UnreadA = 0
	}
	for _, m := range f.messages {
		if m.ConversationID == convID && m.SenderID != readerID && m.ReadAt == nil {
			readAt := at
			m.ReadAt = &readAt
			m.Status = model.MessageStatusRead
		}
	}
	return nil
}

func (f *fakeConvRepo) ListMessages(convID uint, limit, offset int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.messages {
		if m.ConversationID == convID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeConvRepo) FindMessageByID(messageID uint) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeConvRepo) FlagMessage(messageID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.FlaggedByRecipient = true
	return nil
}

func (f *fakeConvRepo) UpdateStatusIf(convID uint, from, to model.ConversationStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[convID]
	if !ok || c.Status != from {
		return 0, nil
	}
	c.Status = to
	return 1, nil
}

// fakeNotifier 记录所有发出的通知与重评任务。
type fakeNotifier struct {
	mu       sync.Mutex
	events   []kafka.NotificationEvent
	rescores []kafka.RescoreTask
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{}
}

func (f *fakeNotifier) Notify(event kafka.NotificationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeNotifier) EnqueueRescore(task kafka.RescoreTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescores = append(f.rescores, task)
	return nil
}

func (f *fakeNotifier) eventsOfType(eventType string) []kafka.NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kafka.NotificationEvent
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeCandidateService 返回预设的候选池。
type fakeCandidateService struct {
	candidates []model.Dossier
	err        error
}

func (f *fakeCandidateService) SelectCandidates(ctx context.Context, actorID uint, limit int) ([]model.Dossier, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.candidates) > limit {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

// fakeScorer 按候选人 ID 返回脚本化的评分结果。
type fakeScorer struct {
	mu      sync.Mutex
	results map[uint]*ScoreResult
	errs    map[uint]error
	// defaultResult 在 results 未命中时使用
	defaultResult *ScoreResult
	calls         int
}

func newFakeScorer() *fakeScorer {
	return &fakeScorer{
		results: make(map[uint]*ScoreResult),
		errs:    make(map[uint]error),
	}
}

func (f *fakeScorer) Score(ctx context.Context, a, b model.Dossier) (*ScoreResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[b.UserID]; ok {
		return nil, err
	}
	if r, ok := f.results[b.UserID]; ok {
		copied := *r
		return &copied, nil
	}
	if f.defaultResult != nil {
		copied := *f.defaultResult
		return &copied, nil
	}
	return &ScoreResult{Overall: 75, Breakdown: model.ScoreBreakdown{ValuesAlignment: 75}}, nil
}
