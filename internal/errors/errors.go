// Package errors provides the categorized error type used across sitebuild
// to separate fatal failures (bad input, unwritable manifest) from recoverable
// ones (a failed processing batch) and to map them onto CLI exit codes.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Category classifies a BuildError.
type Category string

const (
	CategoryInput      Category = "input"
	CategoryProcessing Category = "processing"
	CategoryManifest   Category = "manifest"
	CategoryConfig     Category = "config"
	CategorySource     Category = "source"
	CategoryCanceled   Category = "canceled"
	CategoryInternal   Category = "internal"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // aborts the build
	SeverityWarning Severity = "warning" // build continues with degraded output
)

// Fields carries structured context for a BuildError.
type Fields map[string]any

// BuildError is a structured error with category, severity and context.
type BuildError struct {
	Category  Category `json:"category"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	Cause     error    `json:"-"`
	Retryable bool     `json:"retryable"`
	Context   Fields   `json:"context,omitempty"`
}

// Error implements the error interface. Context fields are appended in key
// order so the failing path is always part of the message.
func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s): %s", e.Category, e.Severity, e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Context[k])
		}
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *BuildError) WithContext(key string, value any) *BuildError {
	if e.Context == nil {
		e.Context = make(Fields)
	}
	e.Context[key] = value
	return e
}

// IsFatal reports whether the error aborts the build.
func (e *BuildError) IsFatal() bool {
	return e.Severity == SeverityFatal
}

// New creates a BuildError without a cause.
func New(category Category, severity Severity, message string) *BuildError {
	return &BuildError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a BuildError that wraps an existing error.
func Wrap(err error, category Category, severity Severity, message string) *BuildError {
	return &BuildError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// As returns the first BuildError in err's chain.
func As(err error) (*BuildError, bool) {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsCategory checks if an error (or anything it wraps) belongs to a category.
func IsCategory(err error, category Category) bool {
	be, ok := As(err)
	return ok && be.Category == category
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	be, ok := As(err)
	return ok && be.Retryable
}

// GetCategory extracts the category from an error, or CategoryInternal.
func GetCategory(err error) Category {
	if be, ok := As(err); ok {
		return be.Category
	}
	return CategoryInternal
}

// ExitCode maps an error to the process exit code. Warnings never fail the
// process; everything fatal (or uncategorized) exits 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if be, ok := As(err); ok && be.Severity == SeverityWarning {
		return 0
	}
	return 1
}
