package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	ErrCodeInvalidPayload      = "invalid_payload"
	ErrCodeValidation          = "validation_error"
	ErrCodeUnauthorized        = "unauthorized"
	ErrCodeTokenExpired        = "token_expired"
	ErrCodeForbidden           = "forbidden"
	ErrCodeInternal            = "internal_server_error"
	ErrCodeNotFound            = "not_found"
	ErrCodeDuplicateJob        = "duplicate_job"
	ErrCodeInvalidTransition   = "invalid_transition"
	ErrCodeNotAssignedToStaff  = "not_assigned_to_staff"
	ErrCodeStaleVersion        = "stale_version"
	ErrCodeAlreadyClaimed      = "already_claimed"
	ErrCodeJobNotClaimable     = "job_not_claimable"
	ErrCodeStoreUnavailable    = "store_unavailable"
	ErrCodeMissingCompletion   = "missing_completion_record"
	ErrCodeStreamingNotAllowed = "streaming_unsupported"
)

// ErrorResponse carries an optional Details field (e.g. the latest job on a conflict).
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// RespondErrorWithCode builds a JSON error response with a standard
// code and message. The optional `details` is included if non-nil.
func RespondErrorWithCode(
	w http.ResponseWriter,
	status int,
	errorCode string,
	publicMessage string,
	details any,
	devErrs ...error,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errBody := ErrorResponse{
		Code:    errorCode,
		Message: publicMessage,
	}
	if details != nil {
		errBody.Details = details
	}
	_ = json.NewEncoder(w).Encode(errBody)

	entry := Logger.WithFields(logrus.Fields{"status": status, "code": errorCode})
	if len(devErrs) > 0 && devErrs[0] != nil {
		entry = entry.WithError(devErrs[0])
	}
	if status >= http.StatusInternalServerError {
		entry.Error(publicMessage)
	} else {
		entry.Debug(publicMessage)
	}
}

// RespondWithJSON for successful cases
func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

/*
RespondLifecycleError maps the lifecycle error taxonomy onto HTTP statuses and
error codes. Conflicts include the latest job as details.
*/
func RespondLifecycleError(w http.ResponseWriter, err error, details func(*ConflictError) any) {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		var d any
		if details != nil && conflict.Current != nil {
			d = details(conflict)
		}
		code := ErrCodeStaleVersion
		msg := "The job has changed, please refresh"
		if errors.Is(err, ErrAlreadyClaimed) {
			code = ErrCodeAlreadyClaimed
			msg = "Another staff member claimed this job first"
		}
		RespondErrorWithCode(w, http.StatusConflict, code, msg, d, err)
	case errors.Is(err, ErrStaleVersion):
		RespondErrorWithCode(w, http.StatusConflict, ErrCodeStaleVersion, "The job has changed, please refresh", nil, err)
	case errors.Is(err, ErrAlreadyClaimed):
		RespondErrorWithCode(w, http.StatusConflict, ErrCodeAlreadyClaimed, "Another staff member claimed this job first", nil, err)
	case errors.Is(err, ErrInvalidTransition):
		RespondErrorWithCode(w, http.StatusConflict, ErrCodeInvalidTransition, "This action is not allowed for the job's current status", nil, err)
	case errors.Is(err, ErrNotAssignedToStaff):
		RespondErrorWithCode(w, http.StatusForbidden, ErrCodeNotAssignedToStaff, "This job is not assigned to you", nil, err)
	case errors.Is(err, ErrForbidden):
		RespondErrorWithCode(w, http.StatusForbidden, ErrCodeForbidden, "You are not allowed to perform this action", nil, err)
	case errors.Is(err, ErrJobNotClaimable):
		RespondErrorWithCode(w, http.StatusConflict, ErrCodeJobNotClaimable, "This job can no longer be claimed", nil, err)
	case errors.Is(err, ErrJobNotFound):
		RespondErrorWithCode(w, http.StatusNotFound, ErrCodeNotFound, "Job not found", nil, err)
	case errors.Is(err, ErrDuplicateJob):
		RespondErrorWithCode(w, http.StatusConflict, ErrCodeDuplicateJob, "A job with this id already exists", nil, err)
	case errors.Is(err, ErrMissingCompletion):
		RespondErrorWithCode(w, http.StatusBadRequest, ErrCodeMissingCompletion, "completion_record is required", nil, err)
	case errors.Is(err, ErrInvalidPayload):
		RespondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidPayload, err.Error(), nil, err)
	case errors.Is(err, ErrStoreUnavailable):
		w.Header().Set("Retry-After", "1")
		RespondErrorWithCode(w, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "Job store unavailable, retry shortly", nil, err)
	default:
		RespondErrorWithCode(w, http.StatusInternalServerError, ErrCodeInternal, "An unexpected error occurred", nil, err)
	}
}
