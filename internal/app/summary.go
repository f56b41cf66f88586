package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/orchestrator"
	"github.com/vnykmshr/stagehand/pkg/store"
)

// SummaryName is the orchestrator name used in metrics and logs.
const SummaryName = "user_summary"

// Stage names of the summary pipeline.
const (
	StageLoad    = "load"
	StageCompute = "compute"
	StageSave    = "save"
)

const (
	resultUsers   = "users"
	resultSummary = "summary"
)

// Summary aggregates the registered users.
type Summary struct {
	Users      int            `json:"users"`
	Domains    map[string]int `json:"domains"`
	Newest     *User          `json:"newest,omitempty"`
	ComputedAt time.Time      `json:"computed_at"`
}

// SummaryRequest triggers a summary run. AsOf stamps the summary and
// defaults to the current time.
type SummaryRequest struct {
	AsOf time.Time
}

// Summarizer computes user summaries.
type Summarizer = orchestrator.Orchestrator[SummaryRequest, Summary]

// NewSummary builds the summary orchestrator: load (critical),
// compute (critical), save (non-critical). A failed save still returns
// the computed summary.
func NewSummary(config orchestrator.Config) (*Summarizer, error) {
	if config.Store == nil {
		return nil, gferrors.NewValidationError(SummaryName, "store", nil, "cannot be nil")
	}
	return orchestrator.New(config, orchestrator.Hooks[SummaryRequest, Summary]{
		Pipeline: func() []orchestrator.Stage[SummaryRequest] {
			return []orchestrator.Stage[SummaryRequest]{
				orchestrator.NewStage(StageLoad, loadUsers),
				orchestrator.NewStage(StageCompute, computeSummary),
				orchestrator.NewStage(StageSave, saveSummary, orchestrator.NonCritical()),
			}
		},
		BuildResult: func(pc *orchestrator.PipelineContext[SummaryRequest]) (Summary, error) {
			s, ok := orchestrator.ResultAs[Summary](pc, resultSummary)
			if !ok {
				return Summary{}, fmt.Errorf("no summary in context")
			}
			return s, nil
		},
	})
}

// LoadSummary returns the last saved summary.
func LoadSummary(ctx context.Context, s store.Store) (Summary, error) {
	var sum Summary
	if err := store.GetJSON(ctx, s, summaryKey, &sum); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func loadUsers(ctx context.Context, pc *orchestrator.PipelineContext[SummaryRequest]) (*orchestrator.PipelineContext[SummaryRequest], error) {
	keys, err := pc.Store.Keys(ctx, userKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	sort.Strings(keys)

	users := make([]User, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var u User
		if err := store.GetJSON(ctx, pc.Store, key, &u); err != nil {
			// Deleted between Keys and Get.
			if gferrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		users = append(users, u)
	}

	pc.SetResult(resultUsers, users)
	return pc, nil
}

func computeSummary(_ context.Context, pc *orchestrator.PipelineContext[SummaryRequest]) (*orchestrator.PipelineContext[SummaryRequest], error) {
	users, ok := orchestrator.ResultAs[[]User](pc, resultUsers)
	if !ok {
		return nil, fmt.Errorf("no users in context")
	}

	asOf := pc.Input.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	sum := Summary{
		Users:      len(users),
		Domains:    make(map[string]int),
		ComputedAt: asOf.UTC(),
	}
	for i := range users {
		u := users[i]
		if at := strings.LastIndexByte(u.Email, '@'); at >= 0 {
			sum.Domains[strings.ToLower(u.Email[at+1:])]++
		}
		if sum.Newest == nil || u.CreatedAt.After(sum.Newest.CreatedAt) {
			sum.Newest = &u
		}
	}

	pc.SetResult(resultSummary, sum)
	return pc, nil
}

func saveSummary(ctx context.Context, pc *orchestrator.PipelineContext[SummaryRequest]) (*orchestrator.PipelineContext[SummaryRequest], error) {
	sum, ok := orchestrator.ResultAs[Summary](pc, resultSummary)
	if !ok {
		return nil, fmt.Errorf("no summary in context")
	}
	if err := store.PutJSON(ctx, pc.Store, summaryKey, sum); err != nil {
		return nil, fmt.Errorf("failed to save summary: %w", err)
	}
	return pc, nil
}
