package dtos

import (
	"time"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
)

/*
JobActionRequest is the body of every staff action. The revision pair is
optional; when sent, the action fails with stale_version unless it still
matches the stored job.
*/
type JobActionRequest struct {
	JobID      string     `json:"job_id" validate:"required,max=128"`
	RowVersion *int64     `json:"row_version,omitempty" validate:"required_with=UpdatedAt"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty" validate:"required_with=RowVersion"`
}

// Expected returns the client's revision, or nil when it sent none.
func (r JobActionRequest) Expected() *models.Revision {
	if r.RowVersion == nil || r.UpdatedAt == nil {
		return nil
	}
	return &models.Revision{
		RowVersion: *r.RowVersion,
		UpdatedAt:  r.UpdatedAt.UTC().Truncate(time.Microsecond),
	}
}

type CompleteJobRequest struct {
	JobActionRequest
	CompletionRecord *models.CompletionRecord `json:"completion_record"`
}

type CancelJobRequest struct {
	JobActionRequest
	Reason string `json:"reason" validate:"max=500"`
}

type OfferJobRequest struct {
	JobActionRequest
	TTLSeconds int `json:"ttl_seconds" validate:"gte=0,lte=604800"`
}

type CreateJobRequest struct {
	ID           string     `json:"id,omitempty" validate:"omitempty,max=128"`
	PropertyID   string     `json:"property_id" validate:"max=128"`
	Title        string     `json:"title" validate:"required,max=200"`
	RequiredRole string     `json:"required_role" validate:"required,oneof=cleaner maintenance"`
	Origin       string     `json:"origin,omitempty" validate:"omitempty,oneof=native webapp"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
}

func (r CreateJobRequest) Draft() models.JobDraft {
	d := models.JobDraft{
		ID:           r.ID,
		PropertyID:   r.PropertyID,
		Title:        r.Title,
		Origin:       models.JobOrigin(r.Origin),
		RequiredRole: models.RoleTag(r.RequiredRole),
	}
	if r.ScheduledAt != nil {
		d.ScheduledAt = *r.ScheduledAt
	}
	return d
}

type JobResponse struct {
	Job *models.Job `json:"job"`
}

// ConflictDetails is sent with stale_version and already_claimed so the client can refresh in place.
type ConflictDetails struct {
	CurrentJob *models.Job `json:"current_job"`
}
