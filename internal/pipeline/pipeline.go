// Package pipeline runs the per-lead outreach sequence: research the
// business, draft and review a call script, place the call, classify the
// conversation, and act on the classification. Stages are strictly
// sequential within a lead; leads run concurrently across the session.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/internal/idempotency"
	"github.com/sells-group/leadflow/internal/ingest"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/calendar"
	"github.com/sells-group/leadflow/pkg/contentgen"
	"github.com/sells-group/leadflow/pkg/mailer"
	"github.com/sells-group/leadflow/pkg/telephony"
)

// Orchestrator drives the outreach pipeline over a session's leads.
type Orchestrator struct {
	cfg       *config.PipelineConfig
	store     store.Store
	retriever *ingest.Retriever
	verifier  *ingest.Verifier
	guard     *idempotency.Guard
	gen       contentgen.Client
	phone     telephony.Client
	cal       calendar.Client
	mail      mailer.Sender
}

// New creates an Orchestrator with all dependencies.
func New(
	cfg *config.PipelineConfig,
	st store.Store,
	retriever *ingest.Retriever,
	verifier *ingest.Verifier,
	gen contentgen.Client,
	phone telephony.Client,
	cal calendar.Client,
	mail mailer.Sender,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		retriever: retriever,
		verifier:  verifier,
		guard:     idempotency.NewGuard(st),
		gen:       gen,
		phone:     phone,
		cal:       cal,
		mail:      mail,
	}
}

// RunSessionOptions tunes a single RunSession invocation.
type RunSessionOptions struct {
	// EventID deduplicates externally triggered runs. Empty skips the
	// idempotency check.
	EventID string
	// VerifyWait bounds how long to wait for the session's writes to
	// become visible before giving up.
	VerifyWait time.Duration
	// MaxLeads caps how many leads are processed. Zero falls back to the
	// store's default page size of 100.
	MaxLeads int
}

// ErrDuplicateEvent is returned when an event id was already processed.
var ErrDuplicateEvent = eris.New("pipeline: event already processed")

// RunSession verifies the session's leads are readable, fetches them, and
// runs the outreach pipeline over each with bounded concurrency.
func (o *Orchestrator) RunSession(ctx context.Context, sessionID string, opts RunSessionOptions) (*model.SessionSummary, error) {
	log := zap.L().With(zap.String("session_id", sessionID))

	if opts.EventID != "" {
		duplicate, err := o.guard.Check(ctx, opts.EventID)
		if err != nil {
			return nil, err
		}
		if duplicate {
			log.Info("pipeline: duplicate trigger ignored", zap.String("event_id", opts.EventID))
			return nil, ErrDuplicateEvent
		}
	}

	ready, count := o.verifier.WaitForSessionReady(ctx, sessionID, opts.VerifyWait)
	if !ready {
		return nil, eris.Errorf("pipeline: session %s has no readable leads", sessionID)
	}
	log.Info("pipeline: session verified", zap.Int("lead_count", count))

	leads, err := o.retriever.FetchSessionLeads(ctx, sessionID, opts.MaxLeads)
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, eris.Errorf("pipeline: no leads retrievable for session %s", sessionID)
	}

	concurrency := o.cfg.MaxConcurrentLeads
	if concurrency <= 0 {
		concurrency = 4
	}

	summary := &model.SessionSummary{SessionID: sessionID}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range leads {
		lead := leads[i]
		g.Go(func() error {
			run := o.RunLead(gCtx, &lead)

			mu.Lock()
			defer mu.Unlock()
			summary.LeadsProcessed++
			if run.Error == "" {
				summary.Completed++
			} else {
				summary.Failed++
			}
			if run.CallOutcome == model.CallDone {
				summary.CallsPlaced++
			}
			if run.EmailSent {
				summary.EmailsSent++
			}
			if run.MeetingID != "" {
				summary.MeetingsBooked++
			}
			// Lead failures are recorded on the run, not propagated; one
			// bad lead never cancels its siblings.
			return nil
		})
	}
	_ = g.Wait()

	log.Info("pipeline: session complete",
		zap.Int("processed", summary.LeadsProcessed),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("calls_placed", summary.CallsPlaced),
		zap.Int("emails_sent", summary.EmailsSent),
		zap.Int("meetings_booked", summary.MeetingsBooked),
	)

	return summary, nil
}

// RunLead executes the full stage sequence for one lead. It always returns
// a finalized run record; errors and timeouts are captured on it rather
// than returned.
func (o *Orchestrator) RunLead(ctx context.Context, lead *model.Lead) *model.PipelineRun {
	log := zap.L().With(
		zap.String("lead_id", lead.ID),
		zap.String("lead_name", lead.Name),
		zap.String("session_id", lead.SessionID),
	)
	log.Info("pipeline: starting lead")

	leadTimeout := time.Duration(o.cfg.LeadTimeoutSecs) * time.Second
	if leadTimeout <= 0 {
		leadTimeout = 10 * time.Minute
	}
	leadCtx, cancel := context.WithTimeout(ctx, leadTimeout)
	defer cancel()

	run := &model.PipelineRun{
		ID:        uuid.NewString(),
		LeadID:    lead.ID,
		SessionID: lead.SessionID,
		StartedAt: time.Now().UTC(),
	}
	if err := o.store.CreatePipelineRun(ctx, run); err != nil {
		log.Warn("pipeline: failed to create run record", zap.Error(err))
	}

	// Stage tracking helper. Persists the run after every stage so the
	// audit trail survives a crash mid-lead.
	trackStage := func(name model.Stage, fn func(context.Context) error) bool {
		run.Stage = name
		run.StageStatus = model.StageStatusRunning

		start := time.Now()
		err := fn(leadCtx)
		duration := time.Since(start).Milliseconds()

		sr := model.StageResult{Name: name, Duration: duration}
		if err != nil {
			sr.Status = model.StageStatusFailed
			sr.Error = err.Error()
			run.StageStatus = model.StageStatusFailed
			if run.Error == "" {
				if leadCtx.Err() != nil {
					run.Error = "timeout"
				} else {
					run.Error = err.Error()
				}
			}
			log.Error("pipeline: stage failed",
				zap.String("stage", string(name)),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
		} else {
			sr.Status = model.StageStatusComplete
			run.StageStatus = model.StageStatusComplete
			log.Info("pipeline: stage complete",
				zap.String("stage", string(name)),
				zap.Int64("duration_ms", duration),
			)
		}
		run.Stages = append(run.Stages, sr)

		if saveErr := o.store.UpdatePipelineRun(ctx, run); saveErr != nil {
			log.Warn("pipeline: failed to save run", zap.Error(saveErr))
		}
		return err == nil
	}

	skipStage := func(name model.Stage) {
		run.Stages = append(run.Stages, model.StageResult{
			Name:   name,
			Status: model.StageStatusSkipped,
		})
	}

	var (
		research string
		script   string
		call     *telephony.CallResult
	)

	ok := trackStage(model.StageResearch, func(sctx context.Context) error {
		out, err := o.researchStage(sctx, lead)
		if err != nil {
			return err
		}
		research = out
		return nil
	})

	if ok {
		ok = trackStage(model.StageDraft, func(sctx context.Context) error {
			out, err := o.draftStage(sctx, lead, research)
			if err != nil {
				return err
			}
			script = out
			return nil
		})
	}

	if ok {
		ok = trackStage(model.StageReview, func(sctx context.Context) error {
			out, err := o.reviewStage(sctx, lead, script)
			if err != nil {
				return err
			}
			script = out
			return nil
		})
	}

	if ok {
		ok = trackStage(model.StageCall, func(sctx context.Context) error {
			result, err := o.callStage(sctx, lead, script)
			if err != nil {
				return err
			}
			call = result
			run.CallOutcome = result.Status
			run.CallID = result.CallID
			return nil
		})
	}

	// Classify runs over whatever the call produced, including the empty
	// transcript of a call nobody answered; an unanswered call is a normal
	// outcome that classifies as other, and branch on other takes no
	// action. Only a failed call stage skips the rest.
	if ok {
		ok = trackStage(model.StageClassify, func(sctx context.Context) error {
			cls, err := o.classifyStage(sctx, lead, call.Transcript)
			if err != nil {
				return err
			}
			run.BranchDecision = cls.Decision
			run.ProspectEmail = cls.ProspectEmail
			run.HotLead = cls.HotLead
			run.MeetingRequest = cls.MeetingRequest
			return nil
		})
	} else {
		skipStage(model.StageClassify)
	}

	if ok {
		trackStage(model.StageBranch, func(sctx context.Context) error {
			return o.branchStage(sctx, lead, run)
		})
	} else {
		skipStage(model.StageBranch)
	}

	// Finalize always runs, even after a stage failure or lead timeout.
	// The saved record is the audit trail; losing it loses the lead.
	finalCtx := context.WithoutCancel(ctx)
	trackStage(model.StageFinalize, func(context.Context) error {
		now := time.Now().UTC()
		run.CompletedAt = &now
		run.Stage = model.StageFinalize
		if leadCtx.Err() != nil && run.Error == "" {
			run.Error = "timeout"
		}
		return o.store.UpdatePipelineRun(finalCtx, run)
	})

	log.Info("pipeline: lead finished",
		zap.String("run_id", run.ID),
		zap.String("branch", string(run.BranchDecision)),
		zap.String("call_outcome", string(run.CallOutcome)),
		zap.Bool("email_sent", run.EmailSent),
		zap.String("meeting_id", run.MeetingID),
		zap.String("error", run.Error),
	)

	return run
}
