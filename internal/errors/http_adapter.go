package errors

import "net/http"

// HTTPStatusFor maps an error to the status code the admin API answers
// with. Unclassified errors are internal server errors.
func HTTPStatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	pe, ok := err.(*PipelineError)
	if !ok {
		return http.StatusInternalServerError
	}

	switch pe.Category {
	case CategoryValidation, CategoryConfig:
		return http.StatusBadRequest
	case CategoryAuth:
		return http.StatusUnauthorized
	case CategoryNetwork, CategoryGit, CategoryPublish:
		return http.StatusBadGateway
	case CategoryDaemon:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
