package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/lifecycle"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/store"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

/*
Resolver arbitrates claims. The first compare-and-swap to land wins; there
is no queue and no fairness between contenders, and it never retries.
*/
type Resolver struct {
	store store.Store
	now   utils.Clock

	// OnAttempt, when set, observes every finished claim with its outcome.
	OnAttempt func(models.ClaimAttempt, error)
}

func New(s store.Store, clock utils.Clock) *Resolver {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &Resolver{store: s, now: clock}
}

// Claim assigns jobID to staff. A PENDING job is offered and assigned in one write.
func (r *Resolver) Claim(ctx context.Context, jobID string, staff models.Staff) (*models.Job, error) {
	return r.ClaimExpecting(ctx, jobID, staff, nil)
}

// ClaimExpecting is Claim with the revision the caller last saw; a mismatch is ErrStaleVersion.
func (r *Resolver) ClaimExpecting(ctx context.Context, jobID string, staff models.Staff, expected *models.Revision) (*models.Job, error) {
	attempt := models.ClaimAttempt{
		JobID:            jobID,
		StaffID:          staff.ID,
		RequestedStatus:  models.JobStatusAssigned,
		RequestTimestamp: r.now(),
	}
	job, err := r.claim(ctx, &attempt, staff, expected)
	if r.OnAttempt != nil {
		r.OnAttempt(attempt, err)
	}
	return job, err
}

func (r *Resolver) claim(ctx context.Context, attempt *models.ClaimAttempt, staff models.Staff, expected *models.Revision) (*models.Job, error) {
	jobID := attempt.JobID

	cur, err := r.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	attempt.ExpectedStatus = cur.Status

	if !cur.Status.IsClaimable() {
		return nil, fmt.Errorf("%w: job %s is %s", utils.ErrJobNotClaimable, jobID, cur.Status)
	}
	if !staff.Has(cur.RequiredRole) {
		return nil, fmt.Errorf("%w: job %s needs role %s", utils.ErrJobNotClaimable, jobID, cur.RequiredRole)
	}

	next := *cur
	if cur.Status == models.JobStatusPending {
		next, err = lifecycle.Attempt(next, lifecycle.Request{
			Requested:        models.JobStatusOffered,
			ActingStaffID:    staff.ID,
			ExpectedRevision: expected,
		}, attempt.RequestTimestamp)
		if err != nil {
			return nil, err
		}
		expected = nil
	}
	next, err = lifecycle.Attempt(next, lifecycle.Request{
		Requested:        models.JobStatusAssigned,
		ActingStaffID:    staff.ID,
		ExpectedRevision: expected,
	}, attempt.RequestTimestamp)
	if err != nil {
		return nil, err
	}

	stored, err := r.store.CompareAndSwap(ctx, &next, store.Precondition{
		Revision:          cur.Revision(),
		RequireUnassigned: true,
	})
	if err != nil {
		var conflict *utils.ConflictError
		if errors.As(err, &conflict) {
			return nil, utils.NewAlreadyClaimedError(conflict.Current)
		}
		return nil, err
	}
	return stored, nil
}
