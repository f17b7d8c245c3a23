package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
)

var ErrDeliveryFailed = errors.New("notification_delivery_failed")

// Payload is what the engine hands to a channel for one NotificationEvent.
type Payload struct {
	Event models.NotificationEvent
	Job   *models.Job
}

/*
Channel delivers a payload to one staff member. Implementations may deliver
more than once; dedupe happens before Publish is called.
*/
type Channel interface {
	Publish(ctx context.Context, targetStaffID string, p Payload) error
}

// Render turns a payload into a subject line and a short body for SMS/email.
func Render(p Payload) (subject, body string) {
	title := "a job"
	if p.Job != nil && p.Job.Title != "" {
		title = fmt.Sprintf("%q", p.Job.Title)
	}
	when := ""
	if p.Job != nil && !p.Job.ScheduledAt.IsZero() {
		when = " scheduled " + p.Job.ScheduledAt.Format("Mon Jan 2 15:04 MST")
	}

	switch p.Event.Kind {
	case models.NotificationJobOffered:
		return "New job available", fmt.Sprintf("New job available: %s%s. Open the app to claim it.", title, when)
	case models.NotificationJobAssigned:
		return "Job assigned", fmt.Sprintf("You have been assigned %s%s. Please accept it in the app.", title, when)
	case models.NotificationJobAccepted:
		return "Job accepted", fmt.Sprintf("You accepted %s%s.", title, when)
	case models.NotificationJobStarted:
		return "Job started", fmt.Sprintf("You started %s.", title)
	case models.NotificationJobCompleted:
		return "Job completed", fmt.Sprintf("Thanks! %s is marked completed.", title)
	case models.NotificationJobCancelled:
		reason := ""
		if p.Job != nil && p.Job.CancelReason != nil && *p.Job.CancelReason != "" {
			reason = " Reason: " + *p.Job.CancelReason
		}
		return "Job cancelled", fmt.Sprintf("%s%s was cancelled.%s", title, when, reason)
	default:
		return "Job update", fmt.Sprintf("%s was released and is no longer assigned to you.", title)
	}
}
