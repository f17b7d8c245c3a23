package engine

import (
	"context"
	"errors"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/lifecycle"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/store"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

// SystemActor is the acting id recorded for scheduler-driven transitions.
const SystemActor = "system"

/*
ExpireOffers returns OFFERED jobs whose offer ran out to PENDING. Jobs that
changed underneath (usually a claim landing first) are skipped. Returns the
number of jobs expired.
*/
func (e *Engine) ExpireOffers(ctx context.Context) (int, error) {
	now := e.now()
	expired, err := e.store.ListExpiredOffers(ctx, now)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, cur := range expired {
		next, err := lifecycle.Attempt(*cur, lifecycle.Request{
			Requested:     models.JobStatusPending,
			ActingStaffID: SystemActor,
		}, now)
		if err != nil {
			return n, err
		}
		stored, err := e.store.CompareAndSwap(ctx, &next, store.Precondition{Revision: cur.Revision()})
		if utils.IsConflict(err) || errors.Is(err, utils.ErrJobNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		e.metrics.RecordTransition(cur.Status, stored.Status)
		n++
	}
	if n > 0 {
		utils.Logger.WithField("count", n).Info("Expired job offers returned to pending")
	}
	return n, nil
}

// RelocateCompleted moves COMPLETED jobs still in the active partition. Safe to run concurrently.
func (e *Engine) RelocateCompleted(ctx context.Context) (int, error) {
	leftovers, err := e.store.ListCompletedInActive(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range leftovers {
		err := e.store.Relocate(ctx, j.ID)
		e.metrics.RecordRelocation(err)
		if err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		utils.Logger.WithField("count", n).Info("Relocated completed jobs")
	}
	return n, nil
}
