package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yuanfen-go/internal/model"
	apperrors "yuanfen-go/pkg/errors"
)

type chatFixture struct {
	convRepo  *fakeConvRepo
	matchRepo *fakeMatchRepo
	notifier  *fakeNotifier
	svc       ChatService
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		convRepo:  newFakeConvRepo(),
		matchRepo: newFakeMatchRepo(),
		notifier:  newFakeNotifier(),
	}
	f.svc = NewChatService(f.convRepo, f.matchRepo, f.notifier)
	return f
}

func (f *chatFixture) seedMutualMatch(a, b uint) *model.Match {
	return f.matchRepo.seed(model.Match{
		InitiatorID:   a,
		CounterpartID: b,
		Status:        model.MatchStatusMutualLike,
		ExpiresAt:     time.Now().Add(24 * time.Hour),
	})
}

func (f *chatFixture) seedActiveConversation(a, b uint) *model.Conversation {
	match := f.seedMutualMatch(a, b)
	conv, err := f.svc.EnsureChat(context.Background(), match.ID)
	if err != nil {
		panic(err)
	}
	return conv
}

func TestEnsureChatCreatesConversationAndTransitionsMatch(t *testing.T) {
	f := newChatFixture()
	match := f.seedMutualMatch(1, 2)

	conv, err := f.svc.EnsureChat(context.Background(), match.ID)

	require.NoError(t, err)
	assert.Equal(t, match.ID, conv.MatchID)
	assert.Equal(t, uint(1), conv.ParticipantA)
	assert.Equal(t, uint(2), conv.ParticipantB)
	assert.Equal(t, model.ConversationStatusActive, conv.Status)
	assert.Equal(t, model.MatchStatusChatStarted, f.matchRepo.get(match.ID).Status)
}

func TestEnsureChatIsIdempotent(t *testing.T) {
	f := newChatFixture()
	match := f.seedMutualMatch(1, 2)

	first, err := f.svc.EnsureChat(context.Background(), match.ID)
	require.NoError(t, err)
	second, err := f.svc.EnsureChat(context.Background(), match.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.convRepo.convs, 1)
}

func TestEnsureChatExistingConversationStillAdvancesMatch(t *testing.T) {
	// 建好会话的那次调用可能在状态跟进前被打断，
	// 后续调用走"已存在"分支时要补上 chat_started 转移
	f := newChatFixture()
	match := f.seedMutualMatch(1, 2)
	require.NoError(t, f.convRepo.Create(&model.Conversation{
		MatchID:      match.ID,
		ParticipantA: 1,
		ParticipantB: 2,
		Status:       model.ConversationStatusActive,
	}))

	conv, err := f.svc.EnsureChat(context.Background(), match.ID)

	require.NoError(t, err)
	assert.Equal(t, match.ID, conv.MatchID)
	assert.Len(t, f.convRepo.convs, 1)
	assert.Equal(t, model.MatchStatusChatStarted, f.matchRepo.get(match.ID).Status)
}

func TestEnsureChatConcurrentCallsCreateSingleConversation(t *testing.T) {
	f := newChatFixture()
	match := f.seedMutualMatch(1, 2)

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]uint, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			conv, err := f.svc.EnsureChat(context.Background(), match.ID)
			if assert.NoError(t, err) {
				ids[idx] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.convRepo.convs, 1)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestEnsureChatMissingMatch(t *testing.T) {
	f := newChatFixture()

	_, err := f.svc.EnsureChat(context.Background(), 999)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestSendMessageCleanContent(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)

	msg, err := f.svc.SendMessage(context.Background(), conv.ID, 1, "今晚想一起吃饭吗？")

	require.NoError(t, err)
	assert.Equal(t, "今晚想一起吃饭吗？", msg.DisplayContent)
	assert.False(t, msg.Filtered)
	assert.Empty(t, msg.RawContent)

	updated, _ := f.convRepo.FindByID(conv.ID)
	assert.Equal(t, 1, updated.TotalMessages)
	assert.Equal(t, 1, updated.UnreadB)
	assert.Zero(t, updated.UnreadA)
	assert.Equal(t, "今晚想一起吃饭吗？", updated.LastMessagePreview)
}

func TestSendMessageFiltersContactInfo(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)

	msg, err := f.svc.SendMessage(context.Background(), conv.ID, 1, "call me at (11) 98765-4321")

	require.NoError(t, err)
	assert.True(t, msg.Filtered)
	assert.Contains(t, msg.DisplayContent, "[PHONE REMOVED]")
	assert.NotContains(t, msg.DisplayContent, "98765")
	// 原文为审核回查保留
	assert.Equal(t, "call me at (11) 98765-4321", msg.RawContent)
	assert.Contains(t, msg.FilterReason, "phone detected")
}

func TestSendMessageToInactiveConversation(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)
	_, err := f.convRepo.UpdateStatusIf(conv.ID, model.ConversationStatusActive, model.ConversationStatusBlockedByB)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(context.Background(), conv.ID, 1, "你好")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeConversationInactive))
}

func TestSendMessageNonParticipant(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)

	_, err := f.svc.SendMessage(context.Background(), conv.ID, 3, "你好")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestSendMessageEmptyContent(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)

	_, err := f.svc.SendMessage(context.Background(), conv.ID, 1, "   ")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
}

func TestSendMessageLongPreviewTruncated(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)
	long := strings.Repeat("很", 100)

	_, err := f.svc.SendMessage(context.Background(), conv.ID, 1, long)

	require.NoError(t, err)
	updated, _ := f.convRepo.FindByID(conv.ID)
	assert.Equal(t, previewRunes+1, len([]rune(updated.LastMessagePreview)))
	assert.True(t, strings.HasSuffix(updated.LastMessagePreview, "…"))
}

func TestMarkReadClearsUnreadAndStampsMessages(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)
	msg, err := f.svc.SendMessage(context.Background(), conv.ID, 1, "在吗？")
	require.NoError(t, err)

	err = f.svc.MarkRead(context.Background(), conv.ID, 2)

	require.NoError(t, err)
	updated, _ := f.convRepo.FindByID(conv.ID)
	assert.Zero(t, updated.UnreadB)
	stored, _ := f.convRepo.FindMessageByID(msg.ID)
	assert.NotNil(t, stored.ReadAt)
	assert.Equal(t, model.MessageStatusRead, stored.Status)
}

func TestReportMessageByRecipient(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)
	msg, err := f.svc.SendMessage(context.Background(), conv.ID, 1, "加我微信吧")
	require.NoError(t, err)

	err = f.svc.ReportMessage(context.Background(), msg.ID, 2)

	require.NoError(t, err)
	stored, _ := f.convRepo.FindMessageByID(msg.ID)
	assert.True(t, stored.FlaggedByRecipient)
	events := f.notifier.eventsOfType("message_reported")
	require.Len(t, events, 1)
	assert.Equal(t, msg.ID, events[0].MessageID)
}

func TestReportOwnMessageRejected(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)
	msg, err := f.svc.SendMessage(context.Background(), conv.ID, 1, "你好")
	require.NoError(t, err)

	err = f.svc.ReportMessage(context.Background(), msg.ID, 1)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
}

func TestReportMessageTwiceIsIdempotent(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)
	msg, err := f.svc.SendMessage(context.Background(), conv.ID, 1, "你好")
	require.NoError(t, err)

	require.NoError(t, f.svc.ReportMessage(context.Background(), msg.ID, 2))
	require.NoError(t, f.svc.ReportMessage(context.Background(), msg.ID, 2))

	assert.Len(t, f.notifier.eventsOfType("message_reported"), 1)
}

func TestBlockConversationRecordsBlocker(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)

	err := f.svc.BlockConversation(context.Background(), conv.ID, 2)

	require.NoError(t, err)
	updated, _ := f.convRepo.FindByID(conv.ID)
	assert.Equal(t, model.ConversationStatusBlockedByB, updated.Status)
}

func TestBlockConversationTwice(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)

	require.NoError(t, f.svc.BlockConversation(context.Background(), conv.ID, 1))
	err := f.svc.BlockConversation(context.Background(), conv.ID, 2)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeConversationInactive))
	updated, _ := f.convRepo.FindByID(conv.ID)
	assert.Equal(t, model.ConversationStatusBlockedByA, updated.Status)
}

func TestListMessagesNonParticipant(t *testing.T) {
	f := newChatFixture()
	conv := f.seedActiveConversation(1, 2)

	_, err := f.svc.ListMessages(context.Background(), conv.ID, 3, 10, 0)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestListConversationsForParticipant(t *testing.T) {
	f := newChatFixture()
	f.seedActiveConversation(1, 2)
	f.seedActiveConversation(3, 4)

	convs, err := f.svc.ListConversations(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, uint(2), convs[0].ParticipantB)
}
