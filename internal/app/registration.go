package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/orchestrator"
	"github.com/vnykmshr/stagehand/pkg/store"
)

// RegistrationName is the orchestrator name used in metrics and logs.
const RegistrationName = "registration"

// Stage names of the registration pipeline.
const (
	StageValidate = "validate"
	StagePersist  = "persist"
	StageNotify   = "notify"
)

const (
	resultRequest  = "request"
	resultUser     = "user"
	resultNotified = "notified"
)

// Registration is the response of a registration run.
type Registration struct {
	User     User     `json:"user"`
	Notified bool     `json:"notified"`
	Warnings []string `json:"warnings,omitempty"`
}

// Registrar runs user registrations.
type Registrar = orchestrator.Orchestrator[RegisterRequest, Registration]

// RegistrationDeps are the collaborators of the registration pipeline.
type RegistrationDeps struct {
	Notifier Notifier

	// NotifyTimeout bounds the notify stage. Zero leaves it bounded only
	// by the pipeline timeout.
	NotifyTimeout time.Duration

	// Now stamps CreatedAt. Defaults to time.Now.
	Now func() time.Time
}

// NewRegistration builds the registration orchestrator:
// validate (critical), persist (critical), notify (non-critical).
// config.Store must be set; every run persists through it.
func NewRegistration(config orchestrator.Config, deps RegistrationDeps) (*Registrar, error) {
	if config.Store == nil {
		return nil, gferrors.NewValidationError(RegistrationName, "store", nil, "cannot be nil")
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{Logger: config.Logger}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := &registration{deps: deps}
	return orchestrator.New(config, orchestrator.Hooks[RegisterRequest, Registration]{
		Pipeline:    r.pipeline,
		BuildResult: r.build,
	})
}

type registration struct {
	deps RegistrationDeps
}

func (r *registration) pipeline() []orchestrator.Stage[RegisterRequest] {
	return []orchestrator.Stage[RegisterRequest]{
		orchestrator.NewStage(StageValidate, r.validate),
		orchestrator.NewStage(StagePersist, r.persist),
		orchestrator.NewStage(StageNotify, r.notify,
			orchestrator.NonCritical(),
			orchestrator.WithTimeout(r.deps.NotifyTimeout)),
	}
}

func (r *registration) validate(_ context.Context, pc *orchestrator.PipelineContext[RegisterRequest]) (*orchestrator.PipelineContext[RegisterRequest], error) {
	req := RegisterRequest{
		Name:  strings.TrimSpace(pc.Input.Name),
		Email: strings.TrimSpace(pc.Input.Email),
	}

	if req.Name == "" {
		return nil, gferrors.NewValidationError(RegistrationName, "name", req.Name, "cannot be empty")
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return nil, gferrors.NewValidationError(RegistrationName, "email", req.Email, "not a valid address").
			WithHint("use a bare address such as ada@example.com")
	}

	pc.SetResult(resultRequest, req)
	return pc, nil
}

func (r *registration) persist(ctx context.Context, pc *orchestrator.PipelineContext[RegisterRequest]) (*orchestrator.PipelineContext[RegisterRequest], error) {
	req, ok := orchestrator.ResultAs[RegisterRequest](pc, resultRequest)
	if !ok {
		return nil, fmt.Errorf("no validated request in context")
	}

	user := User{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: r.deps.Now().UTC(),
	}

	created, err := store.CreateJSON(ctx, pc.Store, emailKey(user.Email), user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve email: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("%s: %w", user.Email, ErrEmailTaken)
	}

	if err := store.PutJSON(ctx, pc.Store, userKey(user.ID), user); err != nil {
		err = fmt.Errorf("failed to save user: %w", err)
		// Release the reservation so the address can be retried.
		if derr := pc.Store.Delete(context.WithoutCancel(ctx), emailKey(user.Email)); derr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release email %s: %w", user.Email, derr))
		}
		return nil, err
	}

	pc.SetResult(resultUser, user)
	return pc, nil
}

func (r *registration) notify(ctx context.Context, pc *orchestrator.PipelineContext[RegisterRequest]) (*orchestrator.PipelineContext[RegisterRequest], error) {
	user, ok := orchestrator.ResultAs[User](pc, resultUser)
	if !ok {
		return nil, fmt.Errorf("no persisted user in context")
	}
	if err := r.deps.Notifier.Notify(ctx, user); err != nil {
		return nil, err
	}
	pc.SetResult(resultNotified, true)
	return pc, nil
}

func (r *registration) build(pc *orchestrator.PipelineContext[RegisterRequest]) (Registration, error) {
	user, ok := orchestrator.ResultAs[User](pc, resultUser)
	if !ok {
		return Registration{}, fmt.Errorf("no persisted user in context")
	}
	notified, _ := orchestrator.ResultAs[bool](pc, resultNotified)

	reg := Registration{User: user, Notified: notified}
	for _, err := range pc.Errors() {
		reg.Warnings = append(reg.Warnings, err.Error())
	}
	return reg, nil
}
