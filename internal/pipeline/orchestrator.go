package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	apperrors "segment-research/internal/common/errors"
	"segment-research/internal/common/logger"
	"segment-research/internal/models"
)

// ErrPipelineReset is returned when Reset was called while a stage was running.
var ErrPipelineReset = errors.New("PIPELINE_RESET")

// Orchestrator owns the state of one pipeline and advances it one stage at a
// time. State only changes when a stage completes successfully; failed,
// abandoned or reset-interrupted runs leave it exactly as it was.
type Orchestrator struct {
	mu         sync.Mutex
	state      State
	running    Stage
	generation uint64

	runner StageRunner
	logger logger.Logger
}

func NewOrchestrator(runner StageRunner, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		state:  NewState(),
		runner: runner,
		logger: log.With(map[string]interface{}{"component": "orchestrator"}),
	}
}

// Advance runs stage if it is the next one in order. Stage failures are
// reported through the result's Succeeded flag. The error return is reserved
// for calls that were rejected or whose result was discarded.
func (o *Orchestrator) Advance(ctx context.Context, stage Stage, in StageInput, selected *models.Segment) (StageResult, error) {
	o.mu.Lock()
	if o.running != "" {
		running := o.running
		o.mu.Unlock()
		return StageResult{Stage: stage}, apperrors.NewAdvanceInProgressError(
			fmt.Errorf("%w: %s is running", ErrAdvanceInProgress, running))
	}
	if !o.canEnter(stage) {
		from := o.state.CurrentStage
		o.mu.Unlock()
		return StageResult{Stage: stage}, apperrors.NewInvalidTransitionError(string(from), string(stage), ErrInvalidTransition)
	}

	resolved, chosen, err := o.resolveInput(stage, in, selected)
	if err != nil {
		o.mu.Unlock()
		return StageResult{Stage: stage}, err
	}

	o.running = stage
	gen := o.generation
	o.mu.Unlock()

	result := o.runner.RunStage(ctx, stage, resolved)

	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.generation {
		o.logger.Warn("discarding stage result after reset", map[string]interface{}{"stage": string(stage)})
		return result, apperrors.NewInvalidTransitionError("reset", string(stage), ErrPipelineReset)
	}
	o.running = ""

	if ctxErr := ctx.Err(); ctxErr != nil {
		o.logger.Warn("discarding abandoned stage result", map[string]interface{}{
			"stage": string(stage),
			"error": ctxErr,
		})
		if result.Succeeded {
			return result, apperrors.NewStageAbandonedError(string(stage), ctxErr)
		}
		return result, nil
	}

	if !result.Succeeded {
		return result, nil
	}

	o.state.StageOutputs[stage] = result.clone()
	o.state.CurrentStage = stage
	switch stage {
	case StageSegments:
		o.state.IndustryInput = resolved.Industry
	case StageDeepSegment:
		o.state.SelectedSegment = chosen
	}
	return result, nil
}

// canEnter reports whether stage may run now. Must hold o.mu.
func (o *Orchestrator) canEnter(stage Stage) bool {
	if !stage.Valid() || stage == StageIdle {
		return false
	}
	current := o.state.CurrentStage
	if current.Next() == stage {
		return true
	}
	// A Sales Navigator run that produced no segment list can be repeated,
	// otherwise the deep segment stage would be unreachable.
	if stage == StageSalesNav && current == StageSalesNav {
		out := o.state.StageOutputs[StageSalesNav]
		return len(out.Structured) == 0
	}
	return false
}

// resolveInput fills empty fields of in from earlier stage outputs. Must hold o.mu.
func (o *Orchestrator) resolveInput(stage Stage, in StageInput, selected *models.Segment) (StageInput, *models.Segment, error) {
	out := in
	switch stage {
	case StageEnhanced:
		if strings.TrimSpace(out.Segments) == "" {
			out.Segments = o.state.StageOutputs[StageSegments].Text
		}
		if strings.TrimSpace(out.Industry) == "" {
			out.Industry = o.state.IndustryInput
		}
	case StageSalesNav:
		if strings.TrimSpace(out.Enhanced) == "" {
			out.Enhanced = o.state.StageOutputs[StageEnhanced].Text
		}
	case StageDeepSegment:
		available := o.state.StageOutputs[StageSalesNav].Structured
		if len(available) == 0 {
			return out, nil, apperrors.NewSegmentNotSelectedError(
				"sales navigator stage produced no segments to choose from", ErrSegmentNotSelected)
		}
		if selected == nil {
			return out, nil, apperrors.NewSegmentNotSelectedError("a segment must be selected", ErrSegmentNotSelected)
		}
		idx := models.FindSegment(available, *selected)
		if idx < 0 {
			return out, nil, apperrors.NewSegmentNotSelectedError(
				fmt.Sprintf("segment %q is not one of the generated segments", selected.Name), ErrSegmentNotSelected)
		}
		chosen := available[idx]
		info := FromSegment(chosen)
		out.SegmentInfo = &info
		return out, &chosen, nil
	}
	return out, nil, nil
}

// Reset returns the pipeline to Idle. A stage still running keeps running,
// but its result is thrown away.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running != "" {
		o.logger.Info("reset while stage running", map[string]interface{}{"stage": string(o.running)})
	}
	o.state = NewState()
	o.running = ""
	o.generation++
}

// Restore replaces the state with a copy of state, typically one loaded from
// a shared session store. It refuses while a stage is running and reports
// whether the state was applied.
func (o *Orchestrator) Restore(state State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running != "" {
		return false
	}
	o.state = state.Clone()
	if !o.state.CurrentStage.Valid() {
		o.state.CurrentStage = StageIdle
	}
	return true
}

// Snapshot returns a deep copy of the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Running returns the stage currently in flight, if any.
func (o *Orchestrator) Running() (Stage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running, o.running != ""
}
