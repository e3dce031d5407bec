package pipeline

import (
	"time"

	"segment-research/internal/models"
)

// Stage identifies a pipeline step. Stages only ever move forward in the
// order listed here.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageSegments    Stage = "segments"
	StageEnhanced    Stage = "enhanced"
	StageSalesNav    Stage = "sales_nav"
	StageDeepSegment Stage = "deep_segment"
)

var stageOrder = []Stage{StageIdle, StageSegments, StageEnhanced, StageSalesNav, StageDeepSegment}

// RunnableStages are the stages that call the provider, in order.
func RunnableStages() []Stage {
	return []Stage{StageSegments, StageEnhanced, StageSalesNav, StageDeepSegment}
}

func (s Stage) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return s.index() >= 0 }

// Next returns the stage that follows s, or "" at the end of the pipeline.
func (s Stage) Next() Stage {
	i := s.index()
	if i < 0 || i+1 >= len(stageOrder) {
		return ""
	}
	return stageOrder[i+1]
}

func ParseStage(name string) (Stage, bool) {
	s := Stage(name)
	return s, s.Valid()
}

// StageResult is the uniform outcome of running one stage.
type StageResult struct {
	Stage        Stage            `json:"stage"`
	Succeeded    bool             `json:"succeeded"`
	Text         string           `json:"text,omitempty"`
	Structured   []models.Segment `json:"structured,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	ErrorCode    string           `json:"errorCode,omitempty"`
	ErrorDetails string           `json:"errorDetails,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
	Truncated    bool             `json:"truncated,omitempty"`
	Title        string           `json:"title,omitempty"`
	Duration     time.Duration    `json:"-"`
}

func (r StageResult) clone() StageResult {
	r.Structured = models.CloneSegments(r.Structured)
	if r.Warnings != nil {
		r.Warnings = append([]string(nil), r.Warnings...)
	}
	return r
}

// State is the pipeline state owned by an Orchestrator.
type State struct {
	CurrentStage    Stage                 `json:"currentStage"`
	IndustryInput   string                `json:"industryInput,omitempty"`
	StageOutputs    map[Stage]StageResult `json:"stageOutputs"`
	SelectedSegment *models.Segment       `json:"selectedSegment,omitempty"`
}

// NewState returns an idle pipeline state.
func NewState() State {
	return State{
		CurrentStage: StageIdle,
		StageOutputs: make(map[Stage]StageResult),
	}
}

// Clone returns a deep copy; mutating it never affects s.
func (s State) Clone() State {
	out := State{
		CurrentStage:  s.CurrentStage,
		IndustryInput: s.IndustryInput,
		StageOutputs:  make(map[Stage]StageResult, len(s.StageOutputs)),
	}
	for k, v := range s.StageOutputs {
		out.StageOutputs[k] = v.clone()
	}
	if s.SelectedSegment != nil {
		seg := *s.SelectedSegment
		out.SelectedSegment = &seg
	}
	return out
}

// Output returns the stored result of a completed stage.
func (s State) Output(stage Stage) (StageResult, bool) {
	r, ok := s.StageOutputs[stage]
	return r, ok
}
