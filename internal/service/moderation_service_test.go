package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yuanfen-go/internal/config"
	"yuanfen-go/internal/model"
	apperrors "yuanfen-go/pkg/errors"
)

type moderationFixture struct {
	userRepo  *fakeUserRepo
	matchRepo *fakeMatchRepo
	notifier  *fakeNotifier
	svc       ModerationService
}

func newModerationFixture() *moderationFixture {
	f := &moderationFixture{
		userRepo:  newFakeUserRepo(),
		matchRepo: newFakeMatchRepo(),
		notifier:  newFakeNotifier(),
	}
	f.svc = NewModerationService(f.matchRepo, f.userRepo, f.notifier, config.MinIOConfig{BucketName: "photos"})
	return f
}

func (f *moderationFixture) seedPending(initiatorID, counterpartID uint) *model.Match {
	return f.matchRepo.seed(model.Match{
		InitiatorID:   initiatorID,
		CounterpartID: counterpartID,
		Status:        model.MatchStatusPendingApproval,
		ExpiresAt:     time.Now().Add(24 * time.Hour),
	})
}

func TestApproveMatchTransitionsAndNotifies(t *testing.T) {
	f := newModerationFixture()
	match := f.seedPending(1, 2)

	result, err := f.svc.ApproveMatch(context.Background(), match.ID, 99)

	require.NoError(t, err)
	assert.False(t, result.AlreadyModerated)
	assert.Equal(t, model.MatchStatusApproved, result.Match.Status)
	require.NotNil(t, result.Match.ModeratedBy)
	assert.Equal(t, uint(99), *result.Match.ModeratedBy)
	assert.NotNil(t, result.Match.ModeratedAt)

	events := f.notifier.eventsOfType("match_approved")
	require.Len(t, events, 1)
	assert.Equal(t, uint(1), events[0].UserID)
}

func TestApproveMatchTwiceSecondCallIsBenign(t *testing.T) {
	f := newModerationFixture()
	match := f.seedPending(1, 2)

	first, err := f.svc.ApproveMatch(context.Background(), match.ID, 99)
	require.NoError(t, err)
	second, err := f.svc.ApproveMatch(context.Background(), match.ID, 100)
	require.NoError(t, err)

	assert.False(t, first.AlreadyModerated)
	assert.True(t, second.AlreadyModerated)
	// 第一位审核员的记录保持不变
	assert.Equal(t, uint(99), *second.Match.ModeratedBy)
	// 只发出一次通知
	assert.Len(t, f.notifier.eventsOfType("match_approved"), 1)
}

func TestApproveMatchConcurrentAdminsSingleWinner(t *testing.T) {
	// 两位审核员同时审批：恰好记录一次决定，落败方不报错只拿到现状
	f := newModerationFixture()
	match := f.seedPending(1, 2)

	admins := []uint{99, 100}
	results := make([]*ModerationResult, len(admins))
	var wg sync.WaitGroup
	for i, adminID := range admins {
		wg.Add(1)
		go func(idx int, adminID uint) {
			defer wg.Done()
			result, err := f.svc.ApproveMatch(context.Background(), match.ID, adminID)
			if assert.NoError(t, err) {
				results[idx] = result
			}
		}(i, adminID)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	// 恰好一方胜出
	assert.NotEqual(t, results[0].AlreadyModerated, results[1].AlreadyModerated)

	final := f.matchRepo.get(match.ID)
	assert.Equal(t, model.MatchStatusApproved, final.Status)
	require.NotNil(t, final.ModeratedBy)
	assert.Contains(t, admins, *final.ModeratedBy)
	assert.Len(t, f.notifier.eventsOfType("match_approved"), 1)
}

func TestRejectMatchRecordsReason(t *testing.T) {
	f := newModerationFixture()
	match := f.seedPending(1, 2)

	result, err := f.svc.RejectMatch(context.Background(), match.ID, 99, "资料照片不符合规范")

	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusRejected, result.Match.Status)
	assert.Equal(t, "资料照片不符合规范", result.Match.RejectionReason)
}

func TestRejectMatchDefaultReason(t *testing.T) {
	f := newModerationFixture()
	match := f.seedPending(1, 2)

	result, err := f.svc.RejectMatch(context.Background(), match.ID, 99, "")

	require.NoError(t, err)
	assert.Equal(t, defaultRejectionReason, result.Match.RejectionReason)
}

func TestRejectAfterApproveDoesNotOverwrite(t *testing.T) {
	f := newModerationFixture()
	match := f.seedPending(1, 2)

	_, err := f.svc.ApproveMatch(context.Background(), match.ID, 99)
	require.NoError(t, err)
	result, err := f.svc.RejectMatch(context.Background(), match.ID, 100, "理由")
	require.NoError(t, err)

	assert.True(t, result.AlreadyModerated)
	assert.Equal(t, model.MatchStatusApproved, result.Match.Status)
	assert.Empty(t, result.Match.RejectionReason)
}

func TestModerateMissingMatchIsNotFound(t *testing.T) {
	f := newModerationFixture()

	_, err := f.svc.ApproveMatch(context.Background(), 999, 99)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestBatchApproveReturnsAffectedCount(t *testing.T) {
	f := newModerationFixture()
	m1 := f.seedPending(1, 2)
	m2 := f.seedPending(1, 3)
	// 已被处理过的记录应被静默跳过
	m3 := f.matchRepo.seed(model.Match{
		InitiatorID:   1,
		CounterpartID: 4,
		Status:        model.MatchStatusRejected,
		ExpiresAt:     time.Now().Add(24 * time.Hour),
	})

	approved, err := f.svc.BatchApprove(context.Background(), []uint{m1.ID, m2.ID, m3.ID, 999}, 99)

	require.NoError(t, err)
	assert.Equal(t, int64(2), approved)
	assert.Equal(t, model.MatchStatusApproved, f.matchRepo.get(m1.ID).Status)
	assert.Equal(t, model.MatchStatusRejected, f.matchRepo.get(m3.ID).Status)
}

func TestBatchApproveEmptyInput(t *testing.T) {
	f := newModerationFixture()

	approved, err := f.svc.BatchApprove(context.Background(), nil, 99)

	require.NoError(t, err)
	assert.Zero(t, approved)
}

func TestPendingMatchesFIFOWithDossiers(t *testing.T) {
	f := newModerationFixture()
	alice := f.userRepo.seed(model.User{Username: "alice"}, &model.Profile{Gender: "female", Orientation: "straight", City: "上海", QuestionnaireCompletion: 90})
	bob := f.userRepo.seed(model.User{Username: "bob"}, &model.Profile{Gender: "male", Orientation: "straight", City: "杭州", QuestionnaireCompletion: 85})
	carol := f.userRepo.seed(model.User{Username: "carol"}, &model.Profile{Gender: "female", Orientation: "lesbian", QuestionnaireCompletion: 88})

	older := f.matchRepo.seed(model.Match{
		InitiatorID:   alice.ID,
		CounterpartID: bob.ID,
		Status:        model.MatchStatusPendingApproval,
		CreatedAt:     time.Now().Add(-2 * time.Hour),
		ExpiresAt:     time.Now().Add(24 * time.Hour),
	})
	newer := f.matchRepo.seed(model.Match{
		InitiatorID:   alice.ID,
		CounterpartID: carol.ID,
		Status:        model.MatchStatusPendingApproval,
		CreatedAt:     time.Now().Add(-1 * time.Hour),
		ExpiresAt:     time.Now().Add(24 * time.Hour),
	})

	items, err := f.svc.PendingMatches(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, older.ID, items[0].Match.ID)
	assert.Equal(t, newer.ID, items[1].Match.ID)
	assert.Equal(t, "alice", items[0].Initiator.Username)
	assert.Equal(t, "bob", items[0].Counterpart.Username)
	assert.Equal(t, "carol", items[1].Counterpart.Username)
}

func TestPendingMatchesEmptyQueue(t *testing.T) {
	f := newModerationFixture()

	items, err := f.svc.PendingMatches(context.Background(), 10)

	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)
}
