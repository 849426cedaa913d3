package errors

// InputError reports a missing or unreadable input directory.
func InputError(path string, cause error) *BuildError {
	return Wrap(cause, CategoryInput, SeverityFatal, "input directory unavailable").
		WithContext("path", path)
}

// EmptyInputError reports that the sources produced no assets.
func EmptyInputError() *BuildError {
	return New(CategoryInput, SeverityFatal, "no input assets found")
}

// ProcessingError reports an external tool failure for a batch. It is
// retryable; after retries are exhausted it is degraded to a warning.
func ProcessingError(batch int, cause error) *BuildError {
	e := Wrap(cause, CategoryProcessing, SeverityWarning, "processing batch failed").
		WithContext("batch", batch)
	e.Retryable = true
	return e
}

// ManifestError reports a manifest that could not be read or written.
func ManifestError(path string, cause error) *BuildError {
	return Wrap(cause, CategoryManifest, SeverityFatal, "manifest unavailable").
		WithContext("path", path)
}

// ConfigError reports an invalid configuration value.
func ConfigError(field, reason string) *BuildError {
	return New(CategoryConfig, SeverityFatal, "invalid configuration").
		WithContext("field", field).
		WithContext("reason", reason)
}

// SourceError reports a source checkout failure.
func SourceError(name string, cause error) *BuildError {
	return Wrap(cause, CategorySource, SeverityFatal, "source checkout failed").
		WithContext("source", name)
}

// TotalFailureError reports a build in which every batch failed.
func TotalFailureError(failed int) *BuildError {
	return New(CategoryProcessing, SeverityFatal, "no inputs processed").
		WithContext("failed_batches", failed)
}

// CanceledError reports a build interrupted before all batches ran.
func CanceledError(cause error) *BuildError {
	return Wrap(cause, CategoryCanceled, SeverityFatal, "build canceled")
}

// InternalError wraps an unexpected failure.
func InternalError(message string, cause error) *BuildError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
