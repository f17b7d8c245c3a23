package store

import (
	"context"
	"time"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
)

/*
Precondition guards CompareAndSwap. The stored row must still carry
Revision; with RequireUnassigned it must also have no assignee.
*/
type Precondition struct {
	Revision          models.Revision
	RequireUnassigned bool
}

// Filter narrows ListActive. Zero-valued fields match everything.
type Filter struct {
	AssignedStaffID *string
	Roles           []models.RoleTag
	Statuses        []models.JobStatus
	Origin          *models.JobOrigin
}

func (f Filter) Matches(j *models.Job) bool {
	if f.AssignedStaffID != nil && !j.IsAssignedTo(*f.AssignedStaffID) {
		return false
	}
	if len(f.Roles) > 0 && !containsRole(f.Roles, j.RequiredRole) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, j.Status) {
		return false
	}
	if f.Origin != nil && j.Origin != *f.Origin {
		return false
	}
	return true
}

type ChangeOp string

const (
	ChangeUpsert    ChangeOp = "upsert"
	ChangeRelocated ChangeOp = "relocated"
)

/*
ChangeEvent is one entry of the change feed. PreviousAssignee lets
subscribers notice a job leaving their assignment (release, cancel).
Delivery is at-least-once; consumers dedupe on (job id, status, updated_at).
*/
type ChangeEvent struct {
	Op               ChangeOp
	Job              *models.Job
	PreviousAssignee *string
	PreviousStatus   models.JobStatus
}

// Store is the document store contract the engine runs against.
type Store interface {
	// GetByID reads from the active partition only.
	GetByID(ctx context.Context, id string) (*models.Job, error)
	GetCompleted(ctx context.Context, id string) (*models.Job, error)
	Create(ctx context.Context, job *models.Job) (*models.Job, error)
	// CompareAndSwap persists next when pre holds and returns the stored value
	// with its bumped row_version. A failed precondition returns a ConflictError
	// (ErrStaleVersion) carrying the current row.
	CompareAndSwap(ctx context.Context, next *models.Job, pre Precondition) (*models.Job, error)
	// Relocate moves a COMPLETED job to the completed partition. Safe to repeat.
	Relocate(ctx context.Context, id string) error
	ListActive(ctx context.Context, f Filter) ([]*models.Job, error)
	ListExpiredOffers(ctx context.Context, now time.Time) ([]*models.Job, error)
	ListCompletedInActive(ctx context.Context) ([]*models.Job, error)
	// Watch streams changes until ctx ends; the channel is closed afterwards.
	Watch(ctx context.Context) (<-chan ChangeEvent, error)
	Ping(ctx context.Context) error
}

func containsRole(roles []models.RoleTag, r models.RoleTag) bool {
	for _, v := range roles {
		if v == r {
			return true
		}
	}
	return false
}

func containsStatus(statuses []models.JobStatus, s models.JobStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}
