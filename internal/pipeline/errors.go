package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies why a job failed.
type Kind string

const (
	KindInvalidJob    Kind = "invalid_job"
	KindGroupNotFound Kind = "group_not_found"
	KindExtraction    Kind = "extraction"
	KindIndexing      Kind = "indexing"
	KindSynthesis     Kind = "synthesis"
	KindPersistence   Kind = "persistence"
)

// Stage names one step of a job.
type Stage string

const (
	StageValidate Stage = "validate"
	StageResolve  Stage = "resolve"
	StageExtract  Stage = "extract"
	StageIndex    Stage = "index"
	StageSummary  Stage = "summary"
	StageMindMap  Stage = "mindmap"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageValidate, StageResolve, StageExtract, StageIndex, StageSummary, StageMindMap}

// StageError is the error returned by Process.
type StageError struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, kind Kind, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

// KindOf returns the kind of a StageError anywhere in err's chain, or "".
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// StageOf returns the failed stage of a StageError anywhere in err's chain,
// or "".
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
