package entity

import (
	"time"

	"github.com/google/uuid"
)

type RunState string

const (
	RunStateReceived         RunState = "RECEIVED"
	RunStateSampling         RunState = "SAMPLING"
	RunStateScoring          RunState = "SCORING"
	RunStateSelecting        RunState = "SELECTING"
	RunStateAssembling       RunState = "ASSEMBLING"
	RunStateDone             RunState = "DONE"
	RunStateFailed           RunState = "FAILED"
	RunStateAlreadyProcessed RunState = "ALREADY_PROCESSED"
)

// Terminal reports whether no further transition is possible from s.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateDone, RunStateFailed, RunStateAlreadyProcessed:
		return true
	}
	return false
}

// SummaryRun is one invocation of the summarize pipeline for a single input video.
type SummaryRun struct {
	ID             uuid.UUID
	Filename       string
	State          RunState
	SampledCount   int
	SelectedFrames []int
	OutputPath     string
	ManifestPath   string
	SummaryURL     string
	ErrorKind      ErrorKind
	ErrorMessage   string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

func NewSummaryRun(filename string) *SummaryRun {
	return &SummaryRun{
		ID:        uuid.New(),
		Filename:  filename,
		State:     RunStateReceived,
		StartedAt: time.Now().UTC(),
	}
}

func (r *SummaryRun) Transition(state RunState) {
	r.State = state
}

func (r *SummaryRun) MarkAlreadyProcessed(summaryURL string) {
	r.SummaryURL = summaryURL
	r.finish(RunStateAlreadyProcessed)
}

func (r *SummaryRun) MarkDone(summaryURL string) {
	r.SummaryURL = summaryURL
	r.finish(RunStateDone)
}

func (r *SummaryRun) MarkFailed(kind ErrorKind, msg string) {
	r.ErrorKind = kind
	r.ErrorMessage = msg
	r.finish(RunStateFailed)
}

func (r *SummaryRun) finish(state RunState) {
	now := time.Now().UTC()
	r.State = state
	r.FinishedAt = &now
}
