package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yuanfen-go/internal/config"
	"yuanfen-go/internal/model"
	apperrors "yuanfen-go/pkg/errors"
)

func TestComplementaryTargetsStraightMale(t *testing.T) {
	clauses := complementaryTargets("male", "straight")

	require.Len(t, clauses, 1)
	assert.Equal(t, "female", clauses[0].gender)
	assert.ElementsMatch(t, []string{"straight", "bisexual"}, clauses[0].orientations)
}

func TestComplementaryTargetsStraightFemale(t *testing.T) {
	clauses := complementaryTargets("female", "straight")

	require.Len(t, clauses, 1)
	assert.Equal(t, "male", clauses[0].gender)
	assert.ElementsMatch(t, []string{"straight", "bisexual"}, clauses[0].orientations)
}

func TestComplementaryTargetsGay(t *testing.T) {
	clauses := complementaryTargets("male", "gay")

	require.Len(t, clauses, 1)
	assert.Equal(t, "male", clauses[0].gender)
	assert.ElementsMatch(t, []string{"gay", "bisexual"}, clauses[0].orientations)
}

func TestComplementaryTargetsLesbian(t *testing.T) {
	clauses := complementaryTargets("female", "lesbian")

	require.Len(t, clauses, 1)
	assert.Equal(t, "female", clauses[0].gender)
	assert.ElementsMatch(t, []string{"lesbian", "bisexual"}, clauses[0].orientations)
}

func TestComplementaryTargetsBisexualFemale(t *testing.T) {
	clauses := complementaryTargets("female", "bisexual")

	require.Len(t, clauses, 2)
	assert.Equal(t, "male", clauses[0].gender)
	assert.ElementsMatch(t, []string{"straight", "bisexual"}, clauses[0].orientations)
	assert.Equal(t, "female", clauses[1].gender)
	assert.ElementsMatch(t, []string{"lesbian", "bisexual"}, clauses[1].orientations)
}

func TestComplementaryTargetsUnknownOrientation(t *testing.T) {
	assert.Nil(t, complementaryTargets("male", "unknown"))
}

func newCandidateFixture() (*fakeUserRepo, *fakeMatchRepo, CandidateService) {
	userRepo := newFakeUserRepo()
	matchRepo := newFakeMatchRepo()
	svc := NewCandidateService(userRepo, matchRepo, nil, config.ElasticsearchConfig{}, testMatchConfig())
	return userRepo, matchRepo, svc
}

func TestSelectCandidatesMissingProfileIsIncompleteProfile(t *testing.T) {
	userRepo, _, svc := newCandidateFixture()
	userRepo.seed(model.User{Username: "alice"}, nil)

	_, err := svc.SelectCandidates(context.Background(), 1, 10)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeIncompleteProfile))
}

func TestSelectCandidatesProfileStoreFailureIsInternal(t *testing.T) {
	// 瞬时数据库故障要按内部错误上报，不能当成资料不完整
	userRepo, _, svc := newCandidateFixture()
	userRepo.profileErr = errors.New("connection refused")

	_, err := svc.SelectCandidates(context.Background(), 1, 10)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
	assert.False(t, apperrors.Is(err, apperrors.CodeIncompleteProfile))
}
