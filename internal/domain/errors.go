package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	ErrorKindSetup         ErrorKind = "setup"
	ErrorKindRasterization ErrorKind = "rasterization"
	ErrorKindCleanup       ErrorKind = "cleanup"
	ErrorKindEngineInit    ErrorKind = "engine-init"
	ErrorKindRecognition   ErrorKind = "recognition"
	ErrorKindIO            ErrorKind = "io"
	ErrorKindCancelled     ErrorKind = "cancelled"
)

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Kind       ErrorKind  `json:"kind"`
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats pipeline failures for logs and summaries.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Message)
	if e.CommandLog.Command != "" {
		msg = fmt.Sprintf("%s (cmd=%s exit=%d)", msg, e.CommandLog.Command, e.CommandLog.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a PipelineError of the given kind.
func NewError(kind ErrorKind, stage, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Message: message, Err: err}
}

// KindOf classifies err. Cancellation wins over any wrapping classification.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindCancelled
	}
	var pErr *PipelineError
	if errors.As(err, &pErr) && pErr.Kind != "" {
		return pErr.Kind
	}
	return ErrorKindIO
}
