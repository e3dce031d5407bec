package pipeline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "segment-research/internal/common/errors"
	"segment-research/internal/common/logger"
	"segment-research/internal/models"
)

// scriptedRunner returns fixed results per stage and records the inputs it saw.
// When gate is set, RunStage signals started and waits for gate to close.
type scriptedRunner struct {
	mu      sync.Mutex
	results map[Stage]StageResult
	inputs  map[Stage]StageInput
	calls   int

	started chan struct{}
	gate    chan struct{}
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{
		results: map[Stage]StageResult{
			StageSegments: {Stage: StageSegments, Succeeded: true, Text: "1️⃣ Solo Practitioners"},
			StageEnhanced: {Stage: StageEnhanced, Succeeded: true, Text: "1️⃣ Solo Practitioners\nWhy This Segment?"},
			StageSalesNav: {Stage: StageSalesNav, Succeeded: true, Text: "formatted", Structured: []models.Segment{
				{Name: "1️⃣ Solo Practitioners", Content: "Why This Segment?"},
				{Name: "2️⃣ Litigation Boutiques", Content: "Key Challenges:"},
			}},
			StageDeepSegment: {Stage: StageDeepSegment, Succeeded: true, Text: "🔎 🔎 🔎 MARKET RESEARCH"},
		},
		inputs: map[Stage]StageInput{},
	}
}

func (r *scriptedRunner) RunStage(ctx context.Context, stage Stage, in StageInput) StageResult {
	r.mu.Lock()
	r.inputs[stage] = in
	r.calls++
	started, gate := r.started, r.gate
	result := r.results[stage].clone()
	r.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		<-gate
	}
	return result
}

func (r *scriptedRunner) input(stage Stage) StageInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputs[stage]
}

func (r *scriptedRunner) block() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = make(chan struct{}, 1)
	r.gate = make(chan struct{})
}

func advanceThrough(t *testing.T, o *Orchestrator, stages ...Stage) {
	t.Helper()
	for _, st := range stages {
		in := StageInput{}
		if st == StageSegments {
			in.Industry = "boutique law firms"
		}
		result, err := o.Advance(context.Background(), st, in, nil)
		require.NoError(t, err, string(st))
		require.True(t, result.Succeeded, string(st))
	}
}

func TestOrchestrator_HappyPath(t *testing.T) {
	runner := newScriptedRunner()
	o := NewOrchestrator(runner, logger.NewTestLogger(t))

	advanceThrough(t, o, StageSegments, StageEnhanced, StageSalesNav)

	selected := models.Segment{Name: "2️⃣ Litigation Boutiques", Content: "Key Challenges:"}
	result, err := o.Advance(context.Background(), StageDeepSegment, StageInput{}, &selected)
	require.NoError(t, err)
	assert.True(t, result.Succeeded)

	state := o.Snapshot()
	assert.Equal(t, StageDeepSegment, state.CurrentStage)
	assert.Equal(t, "boutique law firms", state.IndustryInput)
	require.NotNil(t, state.SelectedSegment)
	assert.Equal(t, selected, *state.SelectedSegment)
	assert.Len(t, state.StageOutputs, 4)

	_, err = o.Advance(context.Background(), StageDeepSegment, StageInput{}, &selected)
	assert.ErrorIs(t, err, ErrInvalidTransition, "deep segment is terminal until reset")
}

func TestOrchestrator_DerivesInputsFromEarlierStages(t *testing.T) {
	runner := newScriptedRunner()
	o := NewOrchestrator(runner, logger.NewTestLogger(t))

	advanceThrough(t, o, StageSegments, StageEnhanced, StageSalesNav)

	enhanced := runner.input(StageEnhanced)
	assert.Equal(t, "boutique law firms", enhanced.Industry)
	assert.Equal(t, "1️⃣ Solo Practitioners", enhanced.Segments)
	assert.Equal(t, "1️⃣ Solo Practitioners\nWhy This Segment?", runner.input(StageSalesNav).Enhanced)

	selected := models.Segment{Name: "1️⃣ Solo Practitioners", Content: "Why This Segment?"}
	_, err := o.Advance(context.Background(), StageDeepSegment, StageInput{}, &selected)
	require.NoError(t, err)

	info := runner.input(StageDeepSegment).SegmentInfo
	require.NotNil(t, info)
	assert.Equal(t, NamedSegmentKind, info.Kind)
	assert.Equal(t, "Solo Practitioners", info.DisplayName())
	assert.Equal(t, "Why This Segment?", info.Content)
}

func TestOrchestrator_RejectsOutOfOrder(t *testing.T) {
	runner := newScriptedRunner()
	o := NewOrchestrator(runner, logger.NewTestLogger(t))

	for _, stage := range []Stage{StageEnhanced, StageSalesNav, StageDeepSegment, StageIdle, Stage("bogus")} {
		_, err := o.Advance(context.Background(), stage, StageInput{Segments: "x", Enhanced: "x"}, nil)
		require.Error(t, err, string(stage))
		assert.ErrorIs(t, err, ErrInvalidTransition, string(stage))

		var stdErr *apperrors.StandardError
		require.True(t, errors.As(err, &stdErr))
		assert.Equal(t, apperrors.ErrCodeInvalidTransition, stdErr.Code)
	}

	assert.Equal(t, StageIdle, o.Snapshot().CurrentStage)
	assert.Zero(t, runner.calls)

	advanceThrough(t, o, StageSegments)
	_, err := o.Advance(context.Background(), StageSegments, StageInput{Industry: "again"}, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition, "completed stages cannot be re-run")
}

func TestOrchestrator_FailureLeavesStateUnchanged(t *testing.T) {
	runner := newScriptedRunner()
	runner.results[StageEnhanced] = StageResult{
		Stage:        StageEnhanced,
		ErrorMessage: "Completion provider error: 429",
		ErrorCode:    string(apperrors.ErrCodeProviderError),
	}
	o := NewOrchestrator(runner, logger.NewTestLogger(t))
	advanceThrough(t, o, StageSegments)

	before := o.Snapshot()
	result, err := o.Advance(context.Background(), StageEnhanced, StageInput{}, nil)
	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	assert.Contains(t, result.ErrorMessage, "429")
	assert.Equal(t, before, o.Snapshot())

	// The failed stage can be retried.
	runner.results[StageEnhanced] = StageResult{Stage: StageEnhanced, Succeeded: true, Text: "ok"}
	result, err = o.Advance(context.Background(), StageEnhanced, StageInput{}, nil)
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Equal(t, StageEnhanced, o.Snapshot().CurrentStage)
}

func TestOrchestrator_SalesNavRerunAfterFallback(t *testing.T) {
	runner := newScriptedRunner()
	runner.results[StageSalesNav] = StageResult{
		Stage:     StageSalesNav,
		Succeeded: true,
		Text:      "not json",
		Warnings:  []string{"Failed to parse LLM response as JSON. Returning raw content."},
	}
	o := NewOrchestrator(runner, logger.NewTestLogger(t))
	advanceThrough(t, o, StageSegments, StageEnhanced, StageSalesNav)

	_, err := o.Advance(context.Background(), StageDeepSegment, StageInput{}, &models.Segment{Name: "a", Content: "b"})
	assert.ErrorIs(t, err, ErrSegmentNotSelected)

	runner.results[StageSalesNav] = newScriptedRunner().results[StageSalesNav]
	advanceThrough(t, o, StageSalesNav)
	assert.Len(t, o.Snapshot().StageOutputs[StageSalesNav].Structured, 2)

	_, err = o.Advance(context.Background(), StageSalesNav, StageInput{}, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrchestrator_DeepSegmentSelection(t *testing.T) {
	runner := newScriptedRunner()
	o := NewOrchestrator(runner, logger.NewTestLogger(t))
	advanceThrough(t, o, StageSegments, StageEnhanced, StageSalesNav)

	tests := []struct {
		name     string
		selected *models.Segment
	}{
		{"missing", nil},
		{"unknown name", &models.Segment{Name: "3️⃣ Nobody", Content: "Why This Segment?"}},
		{"edited content", &models.Segment{Name: "1️⃣ Solo Practitioners", Content: "changed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Advance(context.Background(), StageDeepSegment, StageInput{}, tt.selected)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSegmentNotSelected)
			assert.Equal(t, StageSalesNav, o.Snapshot().CurrentStage)
		})
	}
	_, ran := runner.inputs[StageDeepSegment]
	assert.False(t, ran)
}

func TestOrchestrator_RejectsConcurrentAdvance(t *testing.T) {
	runner := newScriptedRunner()
	runner.block()
	o := NewOrchestrator(runner, logger.NewTestLogger(t))

	done := make(chan error, 1)
	go func() {
		_, err := o.Advance(context.Background(), StageSegments, StageInput{Industry: "law"}, nil)
		done <- err
	}()
	<-runner.started

	running, ok := o.Running()
	assert.True(t, ok)
	assert.Equal(t, StageSegments, running)

	_, err := o.Advance(context.Background(), StageSegments, StageInput{Industry: "law"}, nil)
	assert.ErrorIs(t, err, ErrAdvanceInProgress)
	_, err = o.Advance(context.Background(), StageEnhanced, StageInput{}, nil)
	assert.ErrorIs(t, err, ErrAdvanceInProgress)

	close(runner.gate)
	require.NoError(t, <-done)
	assert.Equal(t, StageSegments, o.Snapshot().CurrentStage)
	_, ok = o.Running()
	assert.False(t, ok)
}

func TestOrchestrator_ResetDiscardsInFlightResult(t *testing.T) {
	runner := newScriptedRunner()
	runner.block()
	o := NewOrchestrator(runner, logger.NewTestLogger(t))

	done := make(chan error, 1)
	go func() {
		_, err := o.Advance(context.Background(), StageSegments, StageInput{Industry: "law"}, nil)
		done <- err
	}()
	<-runner.started

	o.Reset()
	_, ok := o.Running()
	assert.False(t, ok)

	close(runner.gate)
	err := <-done
	assert.ErrorIs(t, err, ErrPipelineReset)

	state := o.Snapshot()
	assert.Equal(t, StageIdle, state.CurrentStage)
	assert.Empty(t, state.StageOutputs)
	assert.Empty(t, state.IndustryInput)
}

func TestOrchestrator_AbandonedContextDiscardsResult(t *testing.T) {
	runner := newScriptedRunner()
	runner.block()
	o := NewOrchestrator(runner, logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Advance(ctx, StageSegments, StageInput{Industry: "law"}, nil)
		done <- err
	}()
	<-runner.started
	cancel()
	close(runner.gate)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		var stdErr *apperrors.StandardError
		require.ErrorAs(t, err, &stdErr)
		assert.Equal(t, apperrors.ErrCodeStageAbandoned, stdErr.Code)
		assert.Equal(t, http.StatusRequestTimeout, apperrors.HTTPStatus(stdErr.Code))
	case <-time.After(2 * time.Second):
		t.Fatal("advance did not return")
	}
	assert.Equal(t, StageIdle, o.Snapshot().CurrentStage)
	_, ok := o.Running()
	assert.False(t, ok)
}

func TestOrchestrator_SnapshotIsIndependent(t *testing.T) {
	runner := newScriptedRunner()
	o := NewOrchestrator(runner, logger.NewTestLogger(t))
	advanceThrough(t, o, StageSegments, StageEnhanced, StageSalesNav)

	snap := o.Snapshot()
	out := snap.StageOutputs[StageSalesNav]
	out.Structured[0].Name = "mutated"
	snap.StageOutputs[StageSegments] = StageResult{}
	snap.CurrentStage = StageIdle

	fresh := o.Snapshot()
	assert.Equal(t, "1️⃣ Solo Practitioners", fresh.StageOutputs[StageSalesNav].Structured[0].Name)
	assert.True(t, fresh.StageOutputs[StageSegments].Succeeded)
	assert.Equal(t, StageSalesNav, fresh.CurrentStage)
}

func TestOrchestrator_Restore(t *testing.T) {
	source := NewOrchestrator(newScriptedRunner(), logger.NewTestLogger(t))
	advanceThrough(t, source, StageSegments, StageEnhanced, StageSalesNav)

	o := NewOrchestrator(newScriptedRunner(), logger.NewTestLogger(t))
	require.True(t, o.Restore(source.Snapshot()))
	assert.Equal(t, source.Snapshot(), o.Snapshot())

	seg := models.Segment{Name: "2️⃣ Litigation Boutiques", Content: "Key Challenges:"}
	_, err := o.Advance(context.Background(), StageDeepSegment, StageInput{}, &seg)
	require.NoError(t, err)
	assert.Equal(t, StageSalesNav, source.Snapshot().CurrentStage)

	assert.True(t, o.Restore(State{}))
	assert.Equal(t, StageIdle, o.Snapshot().CurrentStage)
}

func TestOrchestrator_RestoreRefusedWhileRunning(t *testing.T) {
	runner := newScriptedRunner()
	runner.block()
	o := NewOrchestrator(runner, logger.NewTestLogger(t))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.Advance(context.Background(), StageSegments, StageInput{Industry: "law"}, nil)
	}()
	<-runner.started

	assert.False(t, o.Restore(State{CurrentStage: StageEnhanced}))
	close(runner.gate)
	<-done
	assert.Equal(t, StageSegments, o.Snapshot().CurrentStage)
}

func TestOrchestrator_ResetReturnsToIdle(t *testing.T) {
	o := NewOrchestrator(newScriptedRunner(), logger.NewTestLogger(t))
	advanceThrough(t, o, StageSegments, StageEnhanced)

	o.Reset()
	assert.Equal(t, NewState(), o.Snapshot())
	advanceThrough(t, o, StageSegments)
}
