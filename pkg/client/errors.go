package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// StatusSyntheticError is the status of responses synthesized for failures
// that have no upstream response to pass on. It is an internal signal, not a
// standard HTTP status.
const StatusSyntheticError = 555

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// UpstreamError represents a failed upstream fetch with additional context.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StatusError builds the error for a response whose status is not acceptable.
func StatusError(resp *http.Response) *UpstreamError {
	return &UpstreamError{
		StatusCode: resp.StatusCode,
		ErrorClass: classifyStatus(resp.StatusCode),
		Message:    resp.Status,
	}
}

// IsAbort reports whether err is the result of an intentional cancellation.
func IsAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrContextCancelled)
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	case ErrorClassClient, ErrorClassAborted:
		// 4xx will not change on retry; aborts are intentional
		return false
	default:
		return false
	}
}

// ErrorResponse synthesizes a plain-text StatusSyntheticError response
// describing err.
func ErrorResponse(err error) *http.Response {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	return &http.Response{
		Status:     fmt.Sprintf("%d %s", StatusSyntheticError, "Cache Proxy Error"),
		StatusCode: StatusSyntheticError,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header: http.Header{
			"Content-Type":   []string{"text/plain; charset=utf-8"},
			"Content-Length": []string{strconv.Itoa(len(msg))},
		},
		Body:          io.NopCloser(strings.NewReader(msg)),
		ContentLength: int64(len(msg)),
	}
}
