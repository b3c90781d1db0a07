package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *PipelineError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Run pipeline errors

func StepFailed(name string, index, exitCode int, cause error) *PipelineError {
	return Wrap(cause, CategoryStep, SeverityFatal, "step failed").
		WithContext("step", name).
		WithContext("step_index", index).
		WithContext("exit_code", exitCode)
}

func WorkspaceError(operation string, cause error) *PipelineError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

// Publish errors

// PublishPrecondition reports a publish attempt whose inputs were not
// publishable (missing or empty source directory, unfinished run).
func PublishPrecondition(reason string) *PipelineError {
	return New(CategoryPublish, SeverityFatal, "publish precondition failed").
		WithContext("reason", reason)
}

// PublishUnreachable reports a publish target that could not be reached or
// written. Retryable at the transport level; the owning run still fails.
func PublishUnreachable(target string, cause error) *PipelineError {
	return WrapRetryable(cause, CategoryPublish, SeverityFatal, "publish target unreachable").
		WithContext("target", target)
}

// Git errors

func GitCloneError(repo string, cause error) *PipelineError {
	return Wrap(cause, CategoryGit, SeverityFatal, "repository clone failed").
		WithContext("repository", repo)
}

func GitAuthError(repo string, cause error) *PipelineError {
	return Wrap(cause, CategoryAuth, SeverityFatal, "git authentication failed").
		WithContext("repository", repo)
}

func GitNetworkError(repo string, cause error) *PipelineError {
	return WrapRetryable(cause, CategoryGit, SeverityWarning, "git network error").
		WithContext("repository", repo)
}

// Storage errors

func StorageError(operation string, cause error) *PipelineError {
	return Wrap(cause, CategoryStorage, SeverityError, "storage operation failed").
		WithContext("operation", operation)
}

// Internal errors

func InternalError(message string, cause error) *PipelineError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
