package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/ledger"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/notify"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

const (
	pathDirect = "direct"
	pathFeed   = "feed"
)

/*
notificationTarget picks who hears about prev -> next: the assignee when
there is one, else whoever held the job before (release, cancel).
*/
func notificationTarget(prev, next *models.Job) (string, bool) {
	if next.AssignedStaffID != nil {
		return *next.AssignedStaffID, true
	}
	if prev != nil && prev.AssignedStaffID != nil {
		return *prev.AssignedStaffID, true
	}
	return "", false
}

func (e *Engine) notificationEvent(target string, job *models.Job) models.NotificationEvent {
	kind := models.NotificationKindFor(job.Status)
	return models.NotificationEvent{
		TargetStaffID: target,
		JobID:         job.ID,
		Kind:          kind,
		DedupeKey:     ledger.NotificationKey(target, job.ID, kind, e.opts.NotificationWindow),
	}
}

func (e *Engine) notifyTransition(ctx context.Context, prev, next *models.Job, path string) {
	target, ok := notificationTarget(prev, next)
	if !ok {
		return
	}
	e.publish(ctx, e.notificationEvent(target, next), next, path)
}

// notifyOffer tells every staff member who could claim job that it is on offer.
func (e *Engine) notifyOffer(ctx context.Context, job *models.Job) {
	if e.roster == nil {
		return
	}
	staffIDs, err := e.roster.ListByCapability(ctx, job.RequiredRole)
	if err != nil {
		utils.Logger.WithError(err).WithField("job_id", job.ID).Error("Failed to list staff for job offer")
		return
	}
	for _, id := range staffIDs {
		e.publish(ctx, e.notificationEvent(id, job), job, pathDirect)
	}
}

/*
publish gates ev through the ledger and hands it to the channel. The
direct action and the change-feed echo derive the same key, so only the
first of them gets through. A failed publish releases the key so a later
redelivery can try again.
*/
func (e *Engine) publish(ctx context.Context, ev models.NotificationEvent, job *models.Job, path string) bool {
	log := utils.Logger.WithFields(logrus.Fields{
		"staff_id": ev.TargetStaffID,
		"job_id":   ev.JobID,
		"kind":     ev.Kind,
		"path":     path,
	})

	proceed, err := e.ledger.ShouldProceed(ctx, ev.DedupeKey, e.opts.NotificationWindow)
	if err != nil {
		// fail open
		log.WithError(err).Warn("Idempotency ledger unavailable; publishing without dedupe")
		proceed = true
	}
	if !proceed {
		e.metrics.RecordSuppressed(path)
		e.metrics.RecordNotification(ev.Kind, "suppressed")
		log.Debug("Duplicate notification suppressed")
		return false
	}

	if err := e.channel.Publish(ctx, ev.TargetStaffID, notify.Payload{Event: ev, Job: job}); err != nil {
		e.metrics.RecordNotification(ev.Kind, "failed")
		log.WithError(err).Error("Failed to publish job notification")
		if fErr := e.ledger.Forget(ctx, ev.DedupeKey); fErr != nil {
			log.WithError(fErr).Warn("Failed to release notification dedupe key")
		}
		return false
	}
	e.metrics.RecordNotification(ev.Kind, "sent")
	return true
}
