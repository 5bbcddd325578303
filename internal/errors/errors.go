// Package errors defines the stitching pipeline's error taxonomy.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind categorizes a pipeline failure by the stage that raised it.
type Kind string

const (
	KindInput       Kind = "input"
	KindMatch       Kind = "match"
	KindGeometry    Kind = "geometry"
	KindCompositing Kind = "compositing"
)

// StageError is a terminal failure raised by one pipeline stage.
type StageError struct {
	Kind    Kind   `json:"kind"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error in %s: %s (caused by: %v)", e.Kind, e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error in %s: %s", e.Kind, e.Stage, e.Message)
}

// Unwrap returns the underlying error
func (e *StageError) Unwrap() error {
	return e.Cause
}

// NewInputError reports a missing, unreadable or empty source image.
func NewInputError(stage, message string, cause error) *StageError {
	return &StageError{Kind: KindInput, Stage: stage, Message: message, Cause: cause}
}

// NewMatchError reports that too few usable correspondences were found.
func NewMatchError(stage, message string, cause error) *StageError {
	return &StageError{Kind: KindMatch, Stage: stage, Message: message, Cause: cause}
}

// NewGeometryError reports that no non-degenerate consensus transform exists.
func NewGeometryError(stage, message string, cause error) *StageError {
	return &StageError{Kind: KindGeometry, Stage: stage, Message: message, Cause: cause}
}

// NewCompositingError reports an unusable output canvas.
func NewCompositingError(stage, message string, cause error) *StageError {
	return &StageError{Kind: KindCompositing, Stage: stage, Message: message, Cause: cause}
}

// KindOf returns the kind of the first StageError in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *StageError
	if stderrors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IsKind checks if the error chain carries a StageError of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// StatusCode maps an error to the HTTP status used by the web front end.
func StatusCode(err error) int {
	k, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch k {
	case KindInput:
		return http.StatusBadRequest
	case KindMatch, KindGeometry, KindCompositing:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
