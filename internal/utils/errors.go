package utils

import (
	"errors"
	"fmt"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
)

/*
Sentinel errors for the job lifecycle.
Controllers and callers match them with errors.Is.
*/
var (
	ErrInvalidTransition  = errors.New("invalid_transition")
	ErrNotAssignedToStaff = errors.New("not_assigned_to_staff")
	ErrStaleVersion       = errors.New("stale_version")
	ErrAlreadyClaimed     = errors.New("already_claimed")
	ErrJobNotClaimable    = errors.New("job_not_claimable")
	ErrStoreUnavailable   = errors.New("store_unavailable")

	ErrJobNotFound       = errors.New("job_not_found")
	ErrDuplicateJob      = errors.New("duplicate_job")
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrMissingCompletion = fmt.Errorf("%w: completion_record is required", ErrInvalidPayload)
	ErrForbidden         = errors.New("forbidden")
)

/*
ConflictError is returned for optimistic-concurrency failures
(ErrStaleVersion / ErrAlreadyClaimed). It carries the latest job so the
caller can refresh without another round trip.
*/
type ConflictError struct {
	Kind    error
	Current *models.Job
}

func (e *ConflictError) Error() string {
	return e.Kind.Error()
}

func (e *ConflictError) Unwrap() error {
	return e.Kind
}

func NewStaleVersionError(current *models.Job) error {
	return &ConflictError{Kind: ErrStaleVersion, Current: current}
}

func NewAlreadyClaimedError(current *models.Job) error {
	return &ConflictError{Kind: ErrAlreadyClaimed, Current: current}
}

// StoreError wraps a transient infrastructure failure. It matches ErrStoreUnavailable.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable.Error(), e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// IsConflict reports whether err is a concurrency conflict worth a re-fetch.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStaleVersion) || errors.Is(err, ErrAlreadyClaimed)
}
