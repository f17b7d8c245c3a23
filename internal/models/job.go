package models

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusOffered    JobStatus = "OFFERED"
	JobStatusAssigned   JobStatus = "ASSIGNED"
	JobStatusAccepted   JobStatus = "ACCEPTED"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// AllJobStatuses lists every status in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusOffered,
	JobStatusAssigned,
	JobStatusAccepted,
	JobStatusInProgress,
	JobStatusCompleted,
	JobStatusCancelled,
}

func (s JobStatus) Valid() bool {
	for _, v := range AllJobStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// IsClaimable is true for statuses a staff member may still claim.
func (s JobStatus) IsClaimable() bool {
	return s == JobStatusPending || s == JobStatusOffered
}

// RequiresAssignee is true for every status that must carry an assigned staff id.
func (s JobStatus) RequiresAssignee() bool {
	switch s {
	case JobStatusAssigned, JobStatusAccepted, JobStatusInProgress, JobStatusCompleted:
		return true
	}
	return false
}

type RoleTag string

const (
	RoleCleaner     RoleTag = "cleaner"
	RoleMaintenance RoleTag = "maintenance"
	RoleAdmin       RoleTag = "admin"
)

type JobOrigin string

const (
	JobOriginNative JobOrigin = "native"
	JobOriginWebApp JobOrigin = "webapp"
)

// CompletionRecord is opaque to the lifecycle; it is stored as JSONB.
type CompletionRecord struct {
	Notes          string          `json:"notes,omitempty"`
	EvidenceRefs   []string        `json:"evidence_refs,omitempty"`
	ActualDuration int64           `json:"actual_duration_minutes,omitempty"`
	Extra          json.RawMessage `json:"extra,omitempty"`
}

type Job struct {
	Versioned

	ID              string            `json:"id"`
	PropertyID      string            `json:"property_id,omitempty"`
	Title           string            `json:"title,omitempty"`
	Origin          JobOrigin         `json:"origin"`
	Status          JobStatus         `json:"status"`
	RequiredRole    RoleTag           `json:"required_role"`
	AssignedStaffID *string           `json:"assigned_staff_id,omitempty"`
	ScheduledAt     time.Time         `json:"scheduled_at"`
	OfferExpiresAt  *time.Time        `json:"offer_expires_at,omitempty"`
	CancelReason    *string           `json:"cancel_reason,omitempty"`
	Completion      *CompletionRecord `json:"completion_record,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (j *Job) GetID() string {
	return j.ID
}

func (j *Job) Revision() Revision {
	return Revision{RowVersion: j.RowVersion, UpdatedAt: j.UpdatedAt}
}

// IsAssignedTo reports whether staffID currently holds the job.
func (j *Job) IsAssignedTo(staffID string) bool {
	return j.AssignedStaffID != nil && *j.AssignedStaffID == staffID
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.AssignedStaffID != nil {
		v := *j.AssignedStaffID
		c.AssignedStaffID = &v
	}
	if j.OfferExpiresAt != nil {
		v := *j.OfferExpiresAt
		c.OfferExpiresAt = &v
	}
	if j.CancelReason != nil {
		v := *j.CancelReason
		c.CancelReason = &v
	}
	if j.Completion != nil {
		rec := *j.Completion
		rec.EvidenceRefs = append([]string(nil), j.Completion.EvidenceRefs...)
		rec.Extra = append(json.RawMessage(nil), j.Completion.Extra...)
		c.Completion = &rec
	}
	return &c
}

// JobDraft is the input for creating a job.
type JobDraft struct {
	ID           string
	PropertyID   string
	Title        string
	Origin       JobOrigin
	RequiredRole RoleTag
	ScheduledAt  time.Time
}
