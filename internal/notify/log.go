package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

// LogChannel writes rendered notifications to the service log. Used when no messaging credentials are configured.
type LogChannel struct{}

func (LogChannel) Publish(ctx context.Context, targetStaffID string, p Payload) error {
	subject, body := Render(p)
	utils.Logger.WithFields(logrus.Fields{
		"staff_id": targetStaffID,
		"job_id":   p.Event.JobID,
		"kind":     p.Event.Kind,
		"subject":  subject,
	}).Info(body)
	return nil
}
