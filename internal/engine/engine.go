package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/ledger"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/lifecycle"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/metrics"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/notify"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/resolver"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/store"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

const (
	DefaultNotificationWindow = 2 * time.Minute
	DefaultFeedDedupeWindow   = 10 * time.Minute
	DefaultOfferTTL           = 15 * time.Minute
)

type Options struct {
	// NotificationWindow is how long a NotificationEvent's dedupe key is held.
	NotificationWindow time.Duration
	// FeedDedupeWindow is how long an observed job revision is held per subscription.
	FeedDedupeWindow time.Duration
	DefaultOfferTTL  time.Duration
}

func (o Options) withDefaults() Options {
	if o.NotificationWindow <= 0 {
		o.NotificationWindow = DefaultNotificationWindow
	}
	if o.FeedDedupeWindow <= 0 {
		o.FeedDedupeWindow = DefaultFeedDedupeWindow
	}
	if o.DefaultOfferTTL <= 0 {
		o.DefaultOfferTTL = DefaultOfferTTL
	}
	return o
}

// Roster lists the staff who can take a job needing role. It backs offer broadcasts.
type Roster interface {
	ListByCapability(ctx context.Context, role models.RoleTag) ([]string, error)
}

/*
Engine is the only component that talks to the store, the ledger and the
notification channel. Every mutating call follows the same template:
fetch, decide, conditional write, ledger gate, one notification.
*/
type Engine struct {
	store    store.Store
	ledger   ledger.Ledger
	channel  notify.Channel
	roster   Roster
	resolver *resolver.Resolver
	now      utils.Clock
	metrics  *metrics.Collector
	opts     Options
}

// New wires the engine. roster may be nil, in which case offers reach nobody directly.
func New(
	s store.Store,
	l ledger.Ledger,
	ch notify.Channel,
	roster Roster,
	clock utils.Clock,
	m *metrics.Collector,
	opts Options,
) *Engine {
	if clock == nil {
		clock = utils.SystemClock
	}
	e := &Engine{
		store:   s,
		ledger:  l,
		channel: ch,
		roster:  roster,
		now:     clock,
		metrics: m,
		opts:    opts.withDefaults(),
	}
	e.resolver = resolver.New(s, clock)
	e.resolver.OnAttempt = func(a models.ClaimAttempt, err error) {
		e.metrics.RecordClaim(err)
		if err == nil {
			e.metrics.RecordTransition(a.ExpectedStatus, a.RequestedStatus)
		}
		utils.Logger.WithFields(logrus.Fields{
			"job_id":   a.JobID,
			"staff_id": a.StaffID,
			"from":     a.ExpectedStatus,
			"outcome":  metrics.ClaimOutcome(err),
		}).Debug("claim attempt")
	}
	return e
}

/*
───────────────────────────────────────────────────────────────────
 Client-facing operations

───────────────────────────────────────────────────────────────────
*/

// ClaimJob assigns a PENDING or OFFERED job to staff. Exactly one concurrent claimant wins.
func (e *Engine) ClaimJob(ctx context.Context, staff models.Staff, jobID string, expected *models.Revision) (*models.Job, error) {
	stored, err := e.resolver.ClaimExpecting(ctx, jobID, staff, expected)
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, nil, stored)
	return stored, nil
}

func (e *Engine) AcceptJob(ctx context.Context, staff models.Staff, jobID string, expected *models.Revision) (*models.Job, error) {
	return e.transition(ctx, jobID, lifecycle.Request{
		Requested:        models.JobStatusAccepted,
		ActingStaffID:    staff.ID,
		ExpectedRevision: expected,
	}, nil)
}

func (e *Engine) StartJob(ctx context.Context, staff models.Staff, jobID string, expected *models.Revision) (*models.Job, error) {
	return e.transition(ctx, jobID, lifecycle.Request{
		Requested:        models.JobStatusInProgress,
		ActingStaffID:    staff.ID,
		ExpectedRevision: expected,
	}, nil)
}

// CompleteJob records the completion and then relocates the job to the completed partition.
func (e *Engine) CompleteJob(ctx context.Context, staff models.Staff, jobID string, record *models.CompletionRecord, expected *models.Revision) (*models.Job, error) {
	return e.transition(ctx, jobID, lifecycle.Request{
		Requested:        models.JobStatusCompleted,
		ActingStaffID:    staff.ID,
		ExpectedRevision: expected,
		CompletionRecord: record,
	}, nil)
}

// CancelJob may be called by the assignee or by an admin.
func (e *Engine) CancelJob(ctx context.Context, staff models.Staff, jobID string, reason string, expected *models.Revision) (*models.Job, error) {
	return e.transition(ctx, jobID, lifecycle.Request{
		Requested:        models.JobStatusCancelled,
		ActingStaffID:    staff.ID,
		ExpectedRevision: expected,
		CancelReason:     strings.TrimSpace(reason),
	}, func(cur *models.Job) error {
		if staff.IsAdmin() || cur.IsAssignedTo(staff.ID) {
			return nil
		}
		if cur.AssignedStaffID == nil {
			return fmt.Errorf("%w: only an admin can cancel an unassigned job", utils.ErrForbidden)
		}
		return utils.ErrNotAssignedToStaff
	})
}

// ReleaseJob hands an ASSIGNED job back to the pool. An admin may also withdraw an offer.
func (e *Engine) ReleaseJob(ctx context.Context, staff models.Staff, jobID string, expected *models.Revision) (*models.Job, error) {
	return e.transition(ctx, jobID, lifecycle.Request{
		Requested:        models.JobStatusPending,
		ActingStaffID:    staff.ID,
		ExpectedRevision: expected,
	}, func(cur *models.Job) error {
		switch {
		case staff.IsAdmin():
			return nil
		case cur.Status == models.JobStatusAssigned && !cur.IsAssignedTo(staff.ID):
			return utils.ErrNotAssignedToStaff
		case cur.Status == models.JobStatusOffered:
			return fmt.Errorf("%w: only an admin can withdraw an offer", utils.ErrForbidden)
		}
		return nil
	})
}

// OfferJob broadcasts a PENDING job for ttl (the default offer TTL when zero) and
// tells every staff member holding the job's role.
func (e *Engine) OfferJob(ctx context.Context, admin models.Staff, jobID string, ttl time.Duration, expected *models.Revision) (*models.Job, error) {
	if ttl <= 0 {
		ttl = e.opts.DefaultOfferTTL
	}
	return e.transition(ctx, jobID, lifecycle.Request{
		Requested:        models.JobStatusOffered,
		ActingStaffID:    admin.ID,
		ExpectedRevision: expected,
		OfferTTL:         ttl,
	}, requireAdmin(admin))
}

func (e *Engine) CreateJob(ctx context.Context, admin models.Staff, draft models.JobDraft) (*models.Job, error) {
	if err := requireAdmin(admin)(nil); err != nil {
		return nil, err
	}
	if draft.RequiredRole == "" {
		return nil, fmt.Errorf("%w: required_role is required", utils.ErrInvalidPayload)
	}
	if draft.RequiredRole == models.RoleAdmin {
		return nil, fmt.Errorf("%w: jobs cannot require the admin role", utils.ErrInvalidPayload)
	}
	now := e.now()
	job := &models.Job{
		ID:           draft.ID,
		PropertyID:   draft.PropertyID,
		Title:        draft.Title,
		Origin:       draft.Origin,
		Status:       models.JobStatusPending,
		RequiredRole: draft.RequiredRole,
		ScheduledAt:  draft.ScheduledAt.UTC().Truncate(time.Microsecond),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Origin == "" {
		job.Origin = models.JobOriginNative
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}
	return e.store.Create(ctx, job)
}

// GetJob looks in the active partition first, then in the completed one.
func (e *Engine) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	j, err := e.store.GetByID(ctx, jobID)
	if errors.Is(err, utils.ErrJobNotFound) {
		return e.store.GetCompleted(ctx, jobID)
	}
	return j, err
}

// GetJobFor is GetJob limited to what staff may read: jobs assigned to them,
// jobs they could claim, or any job for an admin.
func (e *Engine) GetJobFor(ctx context.Context, staff models.Staff, jobID string) (*models.Job, error) {
	j, err := e.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if staff.IsAdmin() || j.IsAssignedTo(staff.ID) || (j.Status.IsClaimable() && staff.Has(j.RequiredRole)) {
		return j, nil
	}
	return nil, fmt.Errorf("%w: job %s is not visible to staff %s", utils.ErrForbidden, jobID, staff.ID)
}

/*
───────────────────────────────────────────────────────────────────
 Template

───────────────────────────────────────────────────────────────────
*/

func requireAdmin(staff models.Staff) func(*models.Job) error {
	return func(*models.Job) error {
		if !staff.IsAdmin() {
			return fmt.Errorf("%w: admin capability required", utils.ErrForbidden)
		}
		return nil
	}
}

func (e *Engine) transition(
	ctx context.Context,
	jobID string,
	req lifecycle.Request,
	authorize func(cur *models.Job) error,
) (*models.Job, error) {
	cur, err := e.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if authorize != nil {
		if err := authorize(cur); err != nil {
			return nil, err
		}
	}

	next, err := lifecycle.Attempt(*cur, req, e.now())
	if err != nil {
		return nil, err
	}

	stored, err := e.store.CompareAndSwap(ctx, &next, store.Precondition{Revision: cur.Revision()})
	if err != nil {
		return nil, err
	}
	e.metrics.RecordTransition(cur.Status, stored.Status)

	e.afterCommit(ctx, cur, stored)
	return stored, nil
}

/*
afterCommit runs once the write is durable. The caller's cancellation no
longer applies: the notification and the relocation always run to the end.
*/
func (e *Engine) afterCommit(ctx context.Context, prev, stored *models.Job) {
	ctx = context.WithoutCancel(ctx)

	e.notifyTransition(ctx, prev, stored, pathDirect)
	if stored.Status == models.JobStatusOffered {
		e.notifyOffer(ctx, stored)
	}

	if stored.Status == models.JobStatusCompleted {
		err := e.store.Relocate(ctx, stored.ID)
		e.metrics.RecordRelocation(err)
		if err != nil {
			utils.Logger.WithError(err).WithField("job_id", stored.ID).
				Warn("Relocation of completed job failed; the sweep will retry")
		}
	}
}
