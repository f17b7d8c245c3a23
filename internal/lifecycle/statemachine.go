package lifecycle

import (
	"fmt"
	"time"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

var transitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPending:    {models.JobStatusOffered, models.JobStatusCancelled},
	models.JobStatusOffered:    {models.JobStatusAssigned, models.JobStatusPending, models.JobStatusCancelled},
	models.JobStatusAssigned:   {models.JobStatusAccepted, models.JobStatusPending, models.JobStatusCancelled},
	models.JobStatusAccepted:   {models.JobStatusInProgress, models.JobStatusCancelled},
	models.JobStatusInProgress: {models.JobStatusCompleted, models.JobStatusCancelled},
}

// Allowed reports whether from -> to is an edge of the lifecycle.
func Allowed(from, to models.JobStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Targets returns the statuses reachable from s in one step.
func Targets(s models.JobStatus) []models.JobStatus {
	return append([]models.JobStatus(nil), transitions[s]...)
}

/*
Request describes one transition attempt. ExpectedRevision is optional; when
set the attempt fails with ErrStaleVersion unless it matches the job.
CompletionRecord is mandatory for COMPLETED, OfferTTL is only read for OFFERED.
*/
type Request struct {
	Requested        models.JobStatus
	ActingStaffID    string
	ExpectedRevision *models.Revision
	CompletionRecord *models.CompletionRecord
	CancelReason     string
	OfferTTL         time.Duration
}

/*
Attempt applies req to current and returns the next value of the job.
It performs no I/O and never reads the clock; now is supplied by the caller.
The input job is never modified. RowVersion is left for the store to bump.
*/
func Attempt(current models.Job, req Request, now time.Time) (models.Job, error) {
	if !Allowed(current.Status, req.Requested) {
		return models.Job{}, fmt.Errorf("%w: %s -> %s", utils.ErrInvalidTransition, current.Status, req.Requested)
	}

	switch req.Requested {
	case models.JobStatusAccepted, models.JobStatusInProgress, models.JobStatusCompleted:
		if !current.IsAssignedTo(req.ActingStaffID) {
			return models.Job{}, utils.ErrNotAssignedToStaff
		}
	}

	if req.ExpectedRevision != nil && !req.ExpectedRevision.Equal(current.Revision()) {
		return models.Job{}, utils.NewStaleVersionError(current.Clone())
	}

	if req.Requested == models.JobStatusCompleted && req.CompletionRecord == nil {
		return models.Job{}, utils.ErrMissingCompletion
	}

	next := *current.Clone()
	next.Status = req.Requested
	next.UpdatedAt = now
	if current.UpdatedAt.After(now) {
		next.UpdatedAt = current.UpdatedAt
	}

	if current.Status == models.JobStatusOffered {
		next.OfferExpiresAt = nil
	}

	switch req.Requested {
	case models.JobStatusPending:
		next.AssignedStaffID = nil
	case models.JobStatusOffered:
		next.AssignedStaffID = nil
		if req.OfferTTL > 0 {
			exp := next.UpdatedAt.Add(req.OfferTTL)
			next.OfferExpiresAt = &exp
		}
	case models.JobStatusAssigned:
		actor := req.ActingStaffID
		next.AssignedStaffID = &actor
	case models.JobStatusCompleted:
		rec := *req.CompletionRecord
		next.Completion = &rec
	case models.JobStatusCancelled:
		next.AssignedStaffID = nil
		reason := req.CancelReason
		next.CancelReason = &reason
	}

	return next, nil
}

// CheckInvariant validates the assigned-iff-status rule and the completion record placement.
func CheckInvariant(j models.Job) error {
	if !j.Status.Valid() {
		return fmt.Errorf("job %s: unknown status %q", j.ID, j.Status)
	}
	hasAssignee := j.AssignedStaffID != nil && *j.AssignedStaffID != ""
	if j.Status.RequiresAssignee() != hasAssignee {
		return fmt.Errorf("job %s: status %s with assigned=%t", j.ID, j.Status, hasAssignee)
	}
	if (j.Status == models.JobStatusCompleted) != (j.Completion != nil) {
		return fmt.Errorf("job %s: completion record present=%t in status %s", j.ID, j.Completion != nil, j.Status)
	}
	if j.OfferExpiresAt != nil && j.Status != models.JobStatusOffered {
		return fmt.Errorf("job %s: offer expiry set in status %s", j.ID, j.Status)
	}
	return nil
}
