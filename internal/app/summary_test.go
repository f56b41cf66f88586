package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/store"
)

func seedUsers(t *testing.T, st store.Store, users ...User) {
	t.Helper()
	for _, u := range users {
		require.NoError(t, store.PutJSON(context.Background(), st, userKey(u.ID), u))
	}
}

func TestSummary(t *testing.T) {
	st := store.NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedUsers(t, st,
		User{ID: "1", Name: "Ada", Email: "ada@example.com", CreatedAt: base},
		User{ID: "2", Name: "Grace", Email: "grace@Navy.mil", CreatedAt: base.Add(2 * time.Hour)},
		User{ID: "3", Name: "Linus", Email: "linus@example.com", CreatedAt: base.Add(time.Hour)},
	)
	// Non-user keys are ignored.
	require.NoError(t, st.Put(context.Background(), "email:ada@example.com", []byte(`"1"`)))

	s, err := NewSummary(testConfig(SummaryName, st))
	require.NoError(t, err)

	asOf := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	res := s.Execute(context.Background(), SummaryRequest{AsOf: asOf})
	require.True(t, res.Success, "error: %v", res.Error)

	sum := res.Data
	assert.Equal(t, 3, sum.Users)
	assert.Equal(t, map[string]int{"example.com": 2, "navy.mil": 1}, sum.Domains)
	require.NotNil(t, sum.Newest)
	assert.Equal(t, "2", sum.Newest.ID)
	assert.True(t, sum.ComputedAt.Equal(asOf))
	assert.Empty(t, res.Errors)

	saved, err := LoadSummary(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Users)
	assert.True(t, saved.ComputedAt.Equal(asOf))
}

func TestSummary_Empty(t *testing.T) {
	s, err := NewSummary(testConfig(SummaryName, store.NewMemoryStore()))
	require.NoError(t, err)

	res := s.Execute(context.Background(), SummaryRequest{})
	require.True(t, res.Success)
	assert.Zero(t, res.Data.Users)
	assert.Nil(t, res.Data.Newest)
	assert.False(t, res.Data.ComputedAt.IsZero())
}

func TestSummary_SaveFailureIsSoft(t *testing.T) {
	mem := store.NewMemoryStore()
	seedUsers(t, mem, User{ID: "1", Email: "ada@example.com"})

	s, err := NewSummary(testConfig(SummaryName, failingPuts{Store: mem, prefix: summaryKey}))
	require.NoError(t, err)

	res := s.Execute(context.Background(), SummaryRequest{})
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data.Users)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], errStoreDown)

	_, err = LoadSummary(context.Background(), mem)
	assert.True(t, gferrors.IsNotFound(err))
}

func TestSummary_LoadFailureIsCritical(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Close())

	s, err := NewSummary(testConfig(SummaryName, st))
	require.NoError(t, err)

	res := s.Execute(context.Background(), SummaryRequest{})
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Error, store.ErrClosed)
}

func TestNewSummary_RequiresStore(t *testing.T) {
	_, err := NewSummary(testConfig(SummaryName, nil))
	assert.True(t, gferrors.IsValidationError(err))
}
