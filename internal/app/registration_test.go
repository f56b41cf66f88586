package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/orchestrator"
	"github.com/vnykmshr/stagehand/pkg/store"
)

func newRegistrar(t *testing.T, st store.Store, deps RegistrationDeps) *Registrar {
	t.Helper()
	if deps.Notifier == nil {
		deps.Notifier = quietNotifier()
	}
	r, err := NewRegistration(testConfig(RegistrationName, st), deps)
	require.NoError(t, err)
	return r
}

func TestRegistration_Success(t *testing.T) {
	st := store.NewMemoryStore()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var notified atomic.Value
	r := newRegistrar(t, st, RegistrationDeps{
		Notifier: NotifierFunc(func(_ context.Context, u User) error {
			notified.Store(u.Email)
			return nil
		}),
		Now: func() time.Time { return created },
	})

	res := r.Execute(context.Background(), RegisterRequest{Name: "  Ada ", Email: "ada@example.com"})
	require.True(t, res.Success, "error: %v", res.Error)

	reg := res.Data
	assert.NotEmpty(t, reg.User.ID)
	assert.Equal(t, "Ada", reg.User.Name)
	assert.True(t, reg.User.CreatedAt.Equal(created))
	assert.True(t, reg.Notified)
	assert.Empty(t, reg.Warnings)
	assert.Equal(t, "ada@example.com", notified.Load())

	for _, stage := range []string{StageValidate, StagePersist, StageNotify} {
		assert.Contains(t, res.Metrics, stage)
	}

	stored, err := GetUser(context.Background(), st, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.User.Email, stored.Email)
}

func TestRegistration_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{"empty name", RegisterRequest{Name: " ", Email: "a@example.com"}, "name"},
		{"bad email", RegisterRequest{Name: "Ada", Email: "not-an-email"}, "email"},
		{"display name email", RegisterRequest{Name: "Ada", Email: "Ada <ada@example.com>"}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			r := newRegistrar(t, st, RegistrationDeps{})

			res := r.Execute(context.Background(), tt.req)

			require.False(t, res.Success)
			assert.True(t, gferrors.IsValidationError(res.Error))

			var verr *gferrors.ValidationError
			require.True(t, errors.As(res.Error, &verr))
			assert.Equal(t, tt.field, verr.Field)

			stage, ok := orchestrator.FailedStage(res.Error)
			require.True(t, ok)
			assert.Equal(t, StageValidate, stage)
			assert.Equal(t, 0, st.Len(), "nothing persisted")
		})
	}
}

func TestRegistration_DuplicateEmail(t *testing.T) {
	st := store.NewMemoryStore()
	r := newRegistrar(t, st, RegistrationDeps{})
	ctx := context.Background()

	first := r.Execute(ctx, RegisterRequest{Name: "Ada", Email: "ada@example.com"})
	require.True(t, first.Success)

	second := r.Execute(ctx, RegisterRequest{Name: "Ada L", Email: "ADA@example.com"})
	require.False(t, second.Success)
	assert.ErrorIs(t, second.Error, ErrEmailTaken)

	stage, _ := orchestrator.FailedStage(second.Error)
	assert.Equal(t, StagePersist, stage)

	keys, err := st.Keys(ctx, userKeyPrefix)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestRegistration_SaveFailureReleasesEmail(t *testing.T) {
	mem := store.NewMemoryStore()
	r := newRegistrar(t, failingPuts{Store: mem, prefix: userKeyPrefix}, RegistrationDeps{})
	ctx := context.Background()

	res := r.Execute(ctx, RegisterRequest{Name: "Ada", Email: "ada@example.com"})
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Error, errStoreDown)

	keys, err := mem.Keys(ctx, emailKeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRegistration_ReleaseFailureIsReported(t *testing.T) {
	mem := store.NewMemoryStore()
	st := failingDeletes{Store: failingPuts{Store: mem, prefix: userKeyPrefix}}
	r := newRegistrar(t, st, RegistrationDeps{})

	res := r.Execute(context.Background(), RegisterRequest{Name: "Ada", Email: "ada@example.com"})

	require.False(t, res.Success)
	assert.ErrorIs(t, res.Error, errStoreDown)
	assert.ErrorIs(t, res.Error, errReleaseFailed)
	assert.Contains(t, res.Error.Error(), "failed to release email ada@example.com")
}

func TestRegistration_NotifyFailureIsSoft(t *testing.T) {
	st := store.NewMemoryStore()
	r := newRegistrar(t, st, RegistrationDeps{
		Notifier: NotifierFunc(func(context.Context, User) error {
			return errors.New("smtp unavailable")
		}),
	})

	res := r.Execute(context.Background(), RegisterRequest{Name: "Ada", Email: "ada@example.com"})

	require.True(t, res.Success)
	assert.False(t, res.Data.Notified)
	require.Len(t, res.Data.Warnings, 1)
	assert.Contains(t, res.Data.Warnings[0], "smtp unavailable")
	assert.Contains(t, res.Metrics, StageNotify+orchestrator.ErrorSuffix)
	assert.Len(t, res.Errors, 1)
}

func TestRegistration_NotifyTimeout(t *testing.T) {
	st := store.NewMemoryStore()
	r := newRegistrar(t, st, RegistrationDeps{
		NotifyTimeout: 20 * time.Millisecond,
		Notifier: NotifierFunc(func(ctx context.Context, _ User) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	})

	res := r.Execute(context.Background(), RegisterRequest{Name: "Ada", Email: "ada@example.com"})

	require.True(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.True(t, gferrors.IsTimeout(res.Errors[0]))
	assert.Contains(t, res.Data.Warnings[0], "timed out")
}

func TestNewRegistration_RequiresStore(t *testing.T) {
	_, err := NewRegistration(testConfig(RegistrationName, nil), RegistrationDeps{})
	assert.True(t, gferrors.IsValidationError(err))
}

func TestGetUser_NotFound(t *testing.T) {
	_, err := GetUser(context.Background(), store.NewMemoryStore(), "missing")
	assert.True(t, gferrors.IsNotFound(err))
}
