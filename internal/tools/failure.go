// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/jeranaias/rigrun-agent/internal/executor"
	"github.com/jeranaias/rigrun-agent/internal/fetcher"
	"github.com/jeranaias/rigrun-agent/internal/index"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
	"github.com/jeranaias/rigrun-agent/internal/sandbox"
)

// =============================================================================
// KINDS
// =============================================================================

// Kind classifies a Failure.
type Kind string

const (
	KindAccessDenied     Kind = "access_denied"
	KindInvalidRequest   Kind = "invalid_request"
	KindNotFound         Kind = "not_found"
	KindExecutionFailure Kind = "execution_failure"
	KindUpstreamFailure  Kind = "upstream_failure"
	KindInternalFault    Kind = "internal_fault"
)

// =============================================================================
// FAILURE
// =============================================================================

// Failure is the only error type Dispatch returns.
type Failure struct {
	Kind   Kind
	Reason string

	// Status is the HTTP status for this failure. Zero means 400.
	Status int

	Cause error
}

func (f *Failure) Error() string {
	return f.Reason
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// HTTPStatus returns the status code a transport should answer with.
func (f *Failure) HTTPStatus() int {
	if f.Status != 0 {
		return f.Status
	}
	return http.StatusBadRequest
}

// Failf builds a Failure with a formatted reason.
func Failf(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// unknownTool is the one failure mapped to 404.
func unknownTool(name string) *Failure {
	return &Failure{
		Kind:   KindNotFound,
		Reason: "unknown tool: " + name,
		Status: http.StatusNotFound,
	}
}

// AsFailure classifies any error from a handler or one of its components.
// A nil error yields nil.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}

	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	kind := classify(err)
	return &Failure{Kind: kind, Reason: err.Error(), Cause: err}
}

func classify(err error) Kind {
	var status *fetcher.StatusError

	switch {
	case errors.Is(err, sandbox.ErrAccessDenied),
		errors.Is(err, fetcher.ErrBlockedAddress),
		errors.Is(err, fs.ErrPermission):
		return KindAccessDenied

	case errors.Is(err, fetcher.ErrInvalidURL),
		errors.Is(err, fetcher.ErrInvalidScheme),
		errors.Is(err, executor.ErrEmptyCommand),
		errors.Is(err, index.ErrInvalidName):
		return KindInvalidRequest

	case errors.Is(err, index.ErrIndexNotFound),
		errors.Is(err, index.ErrDocsNotFound),
		errors.Is(err, executor.ErrBadWorkDir),
		errors.Is(err, fs.ErrNotExist):
		return KindNotFound

	case errors.Is(err, executor.ErrTimeout),
		errors.Is(err, executor.ErrCanceled),
		errors.Is(err, executor.ErrNotFound),
		errors.Is(err, ollama.ErrCLINotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindExecutionFailure

	case errors.As(err, &status),
		errors.Is(err, fetcher.ErrTimeout),
		errors.Is(err, fetcher.ErrTooManyRedirects),
		errors.Is(err, fetcher.ErrBodyTooLarge):
		return KindUpstreamFailure
	}

	var clientErr *ollama.ClientError
	if errors.As(err, &clientErr) {
		if clientErr.Type == ollama.ErrTypeCommandFailed {
			return KindExecutionFailure
		}
		return KindUpstreamFailure
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindUpstreamFailure
	}
	return KindExecutionFailure
}
