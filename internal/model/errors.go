package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy. Retries happen only inside the client wrappers; everything
// above them sees a single classified error, optionally wrapped with the
// failing stage.
var (
	ErrInvalidQuery       = errors.New("invalid query")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrAlreadyIngesting   = errors.New("ingestion already in progress")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrLLMTimeout         = errors.New("llm timeout")
	ErrCanceled           = errors.New("canceled")
	ErrInternal           = errors.New("internal error")
)

// Pipeline stages attached to classified errors.
const (
	StageChunk  = "chunk"
	StageEmbed  = "embed"
	StageUpsert = "upsert"
	StageQuery  = "query"
	StageLLM    = "llm"
	StageCache  = "cache"
)

// StageError wraps a classified error with the stage it failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// WithStage attaches a pipeline stage to err. A nil err stays nil.
func WithStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// Stage extracts the failing stage from err, or "".
func Stage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Classify maps a context error to the taxonomy; other errors pass through.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	default:
		return err
	}
}

// HTTPStatus maps a classified error to its response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrAlreadyIngesting):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrLLMTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrCanceled):
		// Nginx convention for client-closed-request.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps a classified error to the CLI exit code contract.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidQuery):
		return 2
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrLLMTimeout):
		return 3
	case errors.Is(err, ErrNotFound):
		return 4
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrAlreadyIngesting):
		return 5
	default:
		return 1
	}
}
