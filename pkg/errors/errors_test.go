package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfAppError(t *testing.T) {
	err := IncompleteProfile("资料未完善")
	assert.Equal(t, CodeIncompleteProfile, CodeOf(err))
}

func TestCodeOfWrappedAppError(t *testing.T) {
	inner := ScorerUnavailable("评分服务不可用")
	wrapped := fmt.Errorf("生成匹配失败: %w", inner)

	assert.Equal(t, CodeScorerUnavailable, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeScorerUnavailable))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeUnknown, CodeOf(nil))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeScoringFailed, "评分调用失败", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "评分调用失败")
	assert.Contains(t, err.Error(), "connection refused")
}
