// internal/pipeline/orchestrator.go
package pipeline

import (
	"context"
	"fmt"
	"time"

	"scholarship-pipeline/internal/checkpoint"
	"scholarship-pipeline/internal/common/config"
	"scholarship-pipeline/internal/common/errors"
	"scholarship-pipeline/internal/common/logger"
	"scholarship-pipeline/internal/common/metrics"
	"scholarship-pipeline/internal/genai"
	"scholarship-pipeline/internal/interview"
	"scholarship-pipeline/internal/knowledge"
	"scholarship-pipeline/internal/match"

	"github.com/google/uuid"
)

// Notifier informs the student about workflow milestones. Delivery is
// best-effort: failures are logged and never change workflow state.
type Notifier interface {
	InterviewReady(ctx context.Context, workflowID, question string) error
	MaterialsReady(ctx context.Context, workflowID string) error
}

// stageFunc is the uniform stage contract. A stage receives the current
// state and returns the successor state; failures surface as a state in the
// error phase, never as a panic past the orchestrator.
type stageFunc func(ctx context.Context, st *WorkflowState) *WorkflowState

// Orchestrator sequences the application pipeline: strictly ordered phases,
// a checkpoint after every transition, and an unconditional suspension after
// matching so a human-in-the-loop interview can happen on its own clock.
type Orchestrator struct {
	checkpoints checkpoint.Store
	knowledge   knowledge.Store
	gate        *match.Gate
	machine     *interview.Machine
	sessions    *interview.Store
	gen         genai.Generator
	fetcher     SourceFetcher
	notifier    Notifier
	config      config.PipelineConfig
	logger      logger.Logger

	stages map[Phase]stageFunc
}

func NewOrchestrator(
	checkpoints checkpoint.Store,
	kb knowledge.Store,
	gate *match.Gate,
	machine *interview.Machine,
	gen genai.Generator,
	fetcher SourceFetcher,
	notifier Notifier,
	cfg config.PipelineConfig,
	log logger.Logger,
) *Orchestrator {
	o := &Orchestrator{
		checkpoints: checkpoints,
		knowledge:   kb,
		gate:        gate,
		machine:     machine,
		sessions:    interview.NewStore(checkpoints),
		gen:         gen,
		fetcher:     fetcher,
		notifier:    notifier,
		config:      cfg,
		logger:      log.WithFields(map[string]interface{}{"component": "orchestrator"}),
	}
	o.stages = map[Phase]stageFunc{
		PhaseStart:             o.stageStart,
		PhaseIngestScholarship: o.stageIngest,
		PhaseIngestResume:      o.stageIngest,
		PhaseAnalysis:          o.stageAnalysis,
		PhaseMatching:          o.stageMatching,
		PhaseGeneration:        o.stageGeneration,
	}
	return o
}

// Start creates a workflow and runs it up to the suspension point after
// matching. On return the checkpoint holds a state in the interview or
// generation phase (or a terminal phase on failure), and when an interview
// was triggered the session is initialized and persisted alongside it.
func (o *Orchestrator) Start(ctx context.Context, scholarshipRef, resumeRef, sessionID string) (*WorkflowState, error) {
	if scholarshipRef == "" || resumeRef == "" || sessionID == "" {
		return nil, fmt.Errorf("scholarship ref, resume ref and session id are all required")
	}

	state := NewWorkflowState(uuid.NewString(), sessionID, scholarshipRef, resumeRef)
	o.logger.Info("workflow started", map[string]interface{}{
		"workflowId": state.WorkflowID,
		"sessionId":  sessionID,
	})

	state, err := o.persist(ctx, state)
	if err != nil {
		return state, err
	}

	state = o.runUntilSuspend(ctx, state)
	if state.CurrentPhase == PhaseError {
		return state, nil
	}

	metrics.WorkflowsSuspended.Inc()

	if state.TriggerInterview {
		metrics.InterviewsTriggered.Inc()
		state = o.initInterview(ctx, state)
		if state.CurrentPhase == PhaseError {
			return state, nil
		}
	}

	o.logger.Info("workflow suspended awaiting external input", map[string]interface{}{
		"workflowId":       state.WorkflowID,
		"phase":            state.CurrentPhase,
		"matchScore":       state.MatchScore,
		"triggerInterview": state.TriggerInterview,
	})
	return state, nil
}

// Resume restores a suspended workflow from its checkpoint, applies the
// external input, and drives it to a terminal phase. A retried Resume on a
// workflow that already completed returns the checkpointed final state
// unchanged; a workflow in any other non-resumable phase is rejected with
// its state untouched.
func (o *Orchestrator) Resume(ctx context.Context, workflowID string, input ExternalInput) (*WorkflowState, error) {
	blob, err := o.checkpoints.Load(ctx, workflowID)
	if err != nil {
		if err == checkpoint.ErrNotFound {
			return nil, errors.NewWorkflowNotFoundError(workflowID)
		}
		return nil, errors.NewCheckpointReadFailedError(err)
	}

	state, err := UnmarshalState(blob)
	if err != nil {
		return nil, errors.NewCheckpointReadFailedError(err)
	}

	// A completed workflow serves its final state as-is, so a retried call
	// with the same input observes the same result.
	if state.CurrentPhase == PhaseComplete {
		o.logger.Info("resume retry on completed workflow, serving final state", map[string]interface{}{
			"workflowId": workflowID,
		})
		return state, nil
	}
	if state.CurrentPhase != PhaseInterview && state.CurrentPhase != PhaseGeneration {
		return nil, errors.NewResumeMismatchError(workflowID, string(state.CurrentPhase))
	}

	if state.CurrentPhase == PhaseInterview {
		state, err = o.applyInterviewOutcome(ctx, state, input)
		if err != nil {
			return nil, err
		}
		state, err = o.persist(ctx, state)
		if err != nil {
			return state, err
		}
	}

	metrics.WorkflowsResumed.Inc()
	state = o.runUntilSuspend(ctx, state)

	if state.CurrentPhase == PhaseComplete && o.notifier != nil {
		if nerr := o.notifier.MaterialsReady(ctx, state.WorkflowID); nerr != nil {
			o.logger.Warn("materials-ready notification failed", map[string]interface{}{
				"workflowId": state.WorkflowID,
				"error":      nerr.Error(),
			})
		}
	}

	o.logger.Info("workflow resumed to terminal phase", map[string]interface{}{
		"workflowId": state.WorkflowID,
		"phase":      state.CurrentPhase,
	})
	return state, nil
}

// SubmitInterviewAnswer processes one interview answer for a suspended
// workflow, persisting the session after every turn so the next answer can
// arrive from a fresh process.
func (o *Orchestrator) SubmitInterviewAnswer(ctx context.Context, workflowID, answer string) (*interview.TurnResult, error) {
	session, err := o.sessions.Load(ctx, workflowID)
	if err != nil {
		if err == checkpoint.ErrNotFound {
			return nil, errors.NewWorkflowNotFoundError(workflowID)
		}
		return nil, err
	}

	result, err := o.machine.SubmitAnswer(ctx, session, answer)
	if err != nil {
		return nil, err
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	if result.IsComplete {
		metrics.InterviewTurns.Observe(float64(session.TurnsTaken))
	}
	return result, nil
}

// runUntilSuspend executes stages in order, checkpointing after every
// transition, and stops at a terminal phase or at the suspension point
// after matching.
func (o *Orchestrator) runUntilSuspend(ctx context.Context, state *WorkflowState) *WorkflowState {
	for !state.CurrentPhase.IsTerminal() {
		phase := state.CurrentPhase

		state = o.runStage(ctx, state)

		var err error
		state, err = o.persist(ctx, state)
		if err != nil {
			return state
		}

		// Matching always suspends: its successor phase waits for
		// external input regardless of whether an interview triggered.
		if phase == PhaseMatching {
			break
		}
	}
	return state
}

// runStage dispatches one stage with a timeout, duration metrics and panic
// recovery. A panicking stage converts to the error phase like any other
// failure.
func (o *Orchestrator) runStage(ctx context.Context, state *WorkflowState) (out *WorkflowState) {
	phase := state.CurrentPhase
	stage, ok := o.stages[phase]
	if !ok {
		return state.FailWith(phase,
			errors.NewStageFailedError(string(phase), fmt.Errorf("no stage registered for phase %q", phase)))
	}

	stageCtx := ctx
	if o.config.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, o.config.StageTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("stage panicked", map[string]interface{}{
				"workflowId": state.WorkflowID,
				"phase":      phase,
				"panic":      fmt.Sprint(r),
			})
			out = state.FailWith(phase,
				errors.NewStageFailedError(string(phase), fmt.Errorf("panic: %v", r)))
		}
	}()

	start := time.Now()
	out = stage(stageCtx, state)
	metrics.StageDuration.WithLabelValues(string(phase)).Observe(time.Since(start).Seconds())

	if out.CurrentPhase == PhaseError {
		code := string(errors.ErrCodeStageFailed)
		if n := len(out.Errors); n > 0 {
			code = out.Errors[n-1].Code
		}
		o.logger.Error("stage failed", map[string]interface{}{
			"workflowId": state.WorkflowID,
			"phase":      phase,
			"code":       code,
			"category":   errors.GetErrorCategory(errors.ErrorCode(code)),
		})
		metrics.StagesFailed.WithLabelValues(string(phase), code).Inc()
	} else {
		metrics.StagesCompleted.WithLabelValues(string(phase)).Inc()
	}
	return out
}

// persist checkpoints the state. A failed checkpoint write is itself a
// workflow failure: continuing without durable state would make the recovery
// guarantee a lie. The error-phase state is then written best-effort.
func (o *Orchestrator) persist(ctx context.Context, state *WorkflowState) (*WorkflowState, error) {
	blob, err := state.Marshal()
	if err == nil {
		err = o.checkpoints.Save(ctx, state.WorkflowID, blob)
	}
	if err == nil {
		return state, nil
	}

	o.logger.Error("checkpoint write failed", map[string]interface{}{
		"workflowId": state.WorkflowID,
		"phase":      state.CurrentPhase,
		"error":      err.Error(),
	})

	failed := state.FailWith(state.CurrentPhase, errors.NewCheckpointWriteFailedError(err))
	if blob, merr := failed.Marshal(); merr == nil {
		_ = o.checkpoints.Save(ctx, failed.WorkflowID, blob)
	}
	return failed, errors.NewCheckpointWriteFailedError(err)
}

// initInterview builds the session from the gate's ordered gaps, persists it
// and sends the interview-ready notification. Failures here fail the
// workflow: suspending without a recoverable session would strand it.
func (o *Orchestrator) initInterview(ctx context.Context, state *WorkflowState) *WorkflowState {
	weights := make(map[string]float64, len(state.MatchDetails))
	for name, detail := range state.MatchDetails {
		weights[name] = detail.Weight
	}

	session, startResult, err := o.machine.StartSession(ctx, state.WorkflowID, state.Gaps, weights, state.ScholarshipIntel)
	if err != nil {
		failed := state.FailWith(PhaseInterview,
			errors.NewStageFailedError(string(PhaseInterview), fmt.Errorf("start interview session: %w", err)))
		failed, _ = o.persist(ctx, failed)
		return failed
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		failed := state.FailWith(PhaseInterview,
			errors.NewCheckpointWriteFailedError(fmt.Errorf("persist interview session: %w", err)))
		failed, _ = o.persist(ctx, failed)
		return failed
	}

	if o.notifier != nil {
		if nerr := o.notifier.InterviewReady(ctx, state.WorkflowID, startResult.Question); nerr != nil {
			o.logger.Warn("interview-ready notification failed", map[string]interface{}{
				"workflowId": state.WorkflowID,
				"error":      nerr.Error(),
			})
		}
	}
	return state
}

// applyInterviewOutcome resolves the interview phase from the external
// input: an explicit skip, a caller-supplied narrative, or the narrative
// synthesized from the persisted session.
func (o *Orchestrator) applyInterviewOutcome(ctx context.Context, state *WorkflowState, input ExternalInput) (*WorkflowState, error) {
	out := state.Clone()

	switch {
	case input.SkipInterview:
		o.logger.Info("interview skipped by external input", map[string]interface{}{
			"workflowId": state.WorkflowID,
		})
	case input.Narrative != "":
		out.InterviewNarrative = input.Narrative
	default:
		session, err := o.sessions.Load(ctx, state.WorkflowID)
		if err != nil {
			if err == checkpoint.ErrNotFound {
				return nil, errors.NewResumeMismatchError(state.WorkflowID, string(state.CurrentPhase))
			}
			return nil, err
		}
		if session.Status != interview.StatusComplete {
			return nil, errors.NewResumeMismatchError(state.WorkflowID, string(state.CurrentPhase))
		}
		narrative, err := o.machine.Complete(ctx, session)
		if err != nil {
			return nil, err
		}
		if err := o.sessions.Save(ctx, session); err != nil {
			return nil, err
		}
		out.InterviewNarrative = narrative
	}

	out.CurrentPhase = PhaseGeneration
	out.UpdatedAt = time.Now().UTC()
	return out, nil
}
