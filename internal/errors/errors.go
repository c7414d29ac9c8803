package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a clipflow error code.
type ErrorCode string

const (
	ErrEmptyInput            ErrorCode = "EMPTY_INPUT"             // 400
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"         // 400
	ErrNotFound              ErrorCode = "NOT_FOUND"               // 404
	ErrAlreadyProcessing     ErrorCode = "ALREADY_PROCESSING"      // 409
	ErrContentNotProcessable ErrorCode = "CONTENT_NOT_PROCESSABLE" // 415
	ErrPipelineCancelled     ErrorCode = "PIPELINE_CANCELLED"      // 499
	ErrPipelineEmpty         ErrorCode = "PIPELINE_EMPTY"          // 500
	ErrInternal              ErrorCode = "INTERNAL"                // 500
	ErrStageFailed           ErrorCode = "STAGE_FAILED"            // 502
	ErrPipelineTimeout       ErrorCode = "PIPELINE_TIMEOUT"        // 504

	// Remote stage failure modes. These never reach callers directly;
	// the pipeline wraps them in STAGE_FAILED.
	ErrRemoteAuth        ErrorCode = "REMOTE_AUTH"         // 401
	ErrRemoteRateLimited ErrorCode = "REMOTE_RATE_LIMITED" // 429
	ErrRemoteBadResponse ErrorCode = "REMOTE_BAD_RESPONSE" // 502
	ErrRemoteNetwork     ErrorCode = "REMOTE_NETWORK"      // 503
	ErrRemoteTimeout     ErrorCode = "REMOTE_TIMEOUT"      // 504
)

// retryable lists the codes a caller may re-trigger after.
var retryable = map[ErrorCode]bool{
	ErrAlreadyProcessing: true,
	ErrPipelineTimeout:   true,
	ErrRemoteRateLimited: true,
	ErrRemoteNetwork:     true,
	ErrRemoteTimeout:     true,
}

// ClipError represents a structured error with code, status, and details.
type ClipError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *ClipError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *ClipError) Unwrap() error {
	return e.Cause
}

// NewEmptyInput creates a 400 error for transformations handed empty text.
func NewEmptyInput() *ClipError {
	return &ClipError{
		Code:    ErrEmptyInput,
		Status:  400,
		Message: "input text is empty",
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ClipError {
	return &ClipError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a history record cannot be found.
func NewNotFound(identifier string) *ClipError {
	return &ClipError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("run not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewAlreadyProcessing creates a 409 error when a transformation is already in flight.
func NewAlreadyProcessing(currentID string) *ClipError {
	return &ClipError{
		Code:    ErrAlreadyProcessing,
		Status:  409,
		Message: "a transformation is already in progress; wait and retry",
		Details: map[string]any{"current_request_id": currentID},
	}
}

// NewContentNotProcessable creates a 415 error for binary or empty clipboard content.
func NewContentNotProcessable(kind, category string) *ClipError {
	msg := "clipboard is empty"
	if kind != "empty" {
		msg = fmt.Sprintf("clipboard holds %s content, only text can be transformed", category)
	}
	return &ClipError{
		Code:    ErrContentNotProcessable,
		Status:  415,
		Message: msg,
		Details: map[string]any{"kind": kind, "category": category},
	}
}

// NewPipelineEmpty creates a 500 error for a pipeline with no stages.
func NewPipelineEmpty() *ClipError {
	return &ClipError{
		Code:    ErrPipelineEmpty,
		Status:  500,
		Message: "pipeline has no stages configured",
	}
}

// NewPipelineTimeout creates a 504 error when a run exceeds its budget.
func NewPipelineTimeout(budgetMs int64) *ClipError {
	return &ClipError{
		Code:    ErrPipelineTimeout,
		Status:  504,
		Message: fmt.Sprintf("pipeline exceeded timeout of %dms", budgetMs),
		Details: map[string]any{"timeout_ms": budgetMs},
	}
}

// NewPipelineCancelled creates a 499 error for an externally cancelled run.
func NewPipelineCancelled() *ClipError {
	return &ClipError{
		Code:    ErrPipelineCancelled,
		Status:  499,
		Message: "pipeline was cancelled",
	}
}

// NewStageFailed wraps a stage error with the stage position and identity.
func NewStageFailed(index int, stageID string, completed int, cause error) *ClipError {
	return &ClipError{
		Code:    ErrStageFailed,
		Status:  502,
		Message: fmt.Sprintf("stage %d (%s) failed", index, stageID),
		Details: map[string]any{
			"stage_index":      index,
			"stage_id":         stageID,
			"completed_stages": completed,
		},
		Cause: cause,
	}
}

// NewRemote creates a remote stage failure with the given code.
func NewRemote(code ErrorCode, msg string, cause error) *ClipError {
	status := 502
	switch code {
	case ErrRemoteAuth:
		status = 401
	case ErrRemoteRateLimited:
		status = 429
	case ErrRemoteNetwork:
		status = 503
	case ErrRemoteTimeout:
		status = 504
	}
	return &ClipError{
		Code:    code,
		Status:  status,
		Message: msg,
		Cause:   cause,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ClipError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ClipError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// As returns the outermost ClipError in err's chain.
func As(err error) (*ClipError, bool) {
	var cErr *ClipError
	if stderrors.As(err, &cErr) {
		return cErr, true
	}
	return nil, false
}

// Is checks if an error is a ClipError with the given code.
// Only the outermost ClipError is compared, so a STAGE_FAILED wrapping a
// REMOTE_AUTH reports STAGE_FAILED.
func Is(err error, code ErrorCode) bool {
	if cErr, ok := As(err); ok {
		return cErr.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost ClipError, or INTERNAL.
func CodeOf(err error) ErrorCode {
	if cErr, ok := As(err); ok {
		return cErr.Code
	}
	return ErrInternal
}

// Retryable reports whether re-triggering could succeed.
// STAGE_FAILED is retryable when its cause is.
func Retryable(err error) bool {
	cErr, ok := As(err)
	if !ok {
		return false
	}
	if cErr.Code == ErrStageFailed {
		return Retryable(cErr.Cause)
	}
	return retryable[cErr.Code]
}
