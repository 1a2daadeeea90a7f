package entity

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyProcessed = errors.New("video has already been processed")
	ErrMissingFrame     = errors.New("frame file missing")
	ErrInvalidScore     = errors.New("invalid frame score")
	ErrNoFrames         = errors.New("no frames")
)

type ErrorKind string

const (
	ErrorKindDecode   ErrorKind = "decode"
	ErrorKindModel    ErrorKind = "model"
	ErrorKindSelect   ErrorKind = "select"
	ErrorKindAssembly ErrorKind = "assembly"
	ErrorKindStore    ErrorKind = "store"
	ErrorKindPublish  ErrorKind = "publish"
	ErrorKindTimeout  ErrorKind = "timeout"
	ErrorKindInternal ErrorKind = "internal"

	// ErrorKindCancelled means the caller or the process stopped the run
	// before it finished. The request itself may be fine.
	ErrorKindCancelled ErrorKind = "cancelled"
)

// DecodeError means the source video could not be opened or yielded no frames.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ModelInvocationError means the detection model could not be invoked for a
// frame. Malformed model output is not reported this way.
type ModelInvocationError struct {
	FramePath string
	Err       error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("detect objects in %s: %v", e.FramePath, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// AssemblyError carries the diagnostic output of the external encoder.
type AssemblyError struct {
	Output string
	Err    error
}

func (e *AssemblyError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("assemble video: %v", e.Err)
	}
	return fmt.Sprintf("assemble video: %v, output: %s", e.Err, e.Output)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// RunError is the single failed-run outcome returned by the orchestrator.
type RunError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RunError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the run could plausibly succeed.
func (e *RunError) Retryable() bool {
	switch e.Kind {
	case ErrorKindDecode, ErrorKindSelect:
		return false
	}
	return true
}
