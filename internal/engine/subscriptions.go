package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/ledger"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/store"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

type ChangeType string

const (
	ChangeTypeUpsert ChangeType = "UPSERT"
	ChangeTypeRemove ChangeType = "REMOVE"
)

// JobChangeEvent is what a subscriber sees: a job entering or changing inside its view, or leaving it.
type JobChangeEvent struct {
	Type ChangeType  `json:"type"`
	Job  *models.Job `json:"job"`
}

const (
	streamMy        = "my"
	streamClaimable = "claimable"
	subscriberBuf   = 32
)

type view func(*models.Job) bool

type subscription struct {
	e       *Engine
	staff   models.Staff
	id      string
	stream  string
	inView  view
	visible map[string]bool
	out     chan JobChangeEvent
	log     *logrus.Entry
}

/*
SubscribeToMyJobs streams the caller's non-terminal assignments plus the
jobs it could claim. The current state is sent first as UPSERTs.
The channel closes when ctx ends or the change feed drops the subscriber.
*/
func (e *Engine) SubscribeToMyJobs(ctx context.Context, staff models.Staff) (<-chan JobChangeEvent, error) {
	inView := func(j *models.Job) bool {
		if j.IsAssignedTo(staff.ID) && !j.Status.IsTerminal() {
			return true
		}
		return staff.Has(j.RequiredRole) && j.Status.IsClaimable()
	}
	initial := []store.Filter{
		{AssignedStaffID: utils.Ptr(staff.ID)},
		{Roles: staff.Capabilities, Statuses: claimableStatuses()},
	}
	return e.subscribe(ctx, staff, streamMy, inView, initial)
}

// SubscribeToClaimableJobs streams PENDING/OFFERED jobs requiring role.
func (e *Engine) SubscribeToClaimableJobs(ctx context.Context, staff models.Staff, role models.RoleTag) (<-chan JobChangeEvent, error) {
	if !staff.Has(role) {
		return nil, fmt.Errorf("%w: staff %s lacks role %s", utils.ErrForbidden, staff.ID, role)
	}
	inView := func(j *models.Job) bool {
		return j.RequiredRole == role && j.Status.IsClaimable()
	}
	initial := []store.Filter{
		{Roles: []models.RoleTag{role}, Statuses: claimableStatuses()},
	}
	return e.subscribe(ctx, staff, streamClaimable, inView, initial)
}

func claimableStatuses() []models.JobStatus {
	return []models.JobStatus{models.JobStatusPending, models.JobStatusOffered}
}

func (e *Engine) subscribe(
	ctx context.Context,
	staff models.Staff,
	stream string,
	inView view,
	initial []store.Filter,
) (<-chan JobChangeEvent, error) {
	// Open the feed before the snapshot so nothing committed in between is missed.
	feedCtx, cancel := context.WithCancel(ctx)
	feed, err := e.store.Watch(feedCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	var snapshot []*models.Job
	seen := map[string]bool{}
	for _, f := range initial {
		jobs, err := e.store.ListActive(ctx, f)
		if err != nil {
			cancel()
			return nil, err
		}
		for _, j := range jobs {
			if !seen[j.ID] && inView(j) {
				seen[j.ID] = true
				snapshot = append(snapshot, j)
			}
		}
	}

	sub := &subscription{
		e:       e,
		staff:   staff,
		id:      staff.ID + "#" + uuid.NewString(),
		stream:  stream,
		inView:  inView,
		visible: map[string]bool{},
		out:     make(chan JobChangeEvent, subscriberBuf),
	}
	sub.log = utils.Logger.WithFields(logrus.Fields{"staff_id": staff.ID, "stream": stream, "subscription": sub.id})

	e.metrics.SubscriptionOpened(stream)
	go func() {
		defer cancel()
		defer e.metrics.SubscriptionClosed(stream)
		defer close(sub.out)
		sub.run(feedCtx, snapshot, feed)
	}()
	return sub.out, nil
}

func (s *subscription) run(ctx context.Context, snapshot []*models.Job, feed <-chan store.ChangeEvent) {
	for _, j := range snapshot {
		// Record the snapshot state so a feed redelivery of it is recognised.
		if _, err := s.e.ledger.ShouldProceed(ctx, ledger.ChangeKey(s.id, j.ID, j.Status, j.Revision()), s.e.opts.FeedDedupeWindow); err != nil {
			s.log.WithError(err).Debug("Could not record snapshot entry in ledger")
		}
		if !s.surface(ctx, ChangeTypeUpsert, j) {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				if ctx.Err() == nil {
					s.log.Warn("Change feed closed; ending subscription")
				}
				return
			}
			if !s.handle(ctx, ev) {
				return
			}
		}
	}
}

// handle applies one feed event. It returns false once the subscriber is gone.
func (s *subscription) handle(ctx context.Context, ev store.ChangeEvent) bool {
	if ev.Job == nil {
		return true
	}
	job := ev.Job
	in := ev.Op != store.ChangeRelocated && s.inView(job)

	if !in && !s.visible[job.ID] {
		s.deriveNotification(ctx, ev)
		return true
	}

	proceed, err := s.e.ledger.ShouldProceed(ctx, ledger.ChangeKey(s.id, job.ID, job.Status, job.Revision()), s.e.opts.FeedDedupeWindow)
	if err != nil {
		s.log.WithError(err).Warn("Idempotency ledger unavailable; surfacing change without dedupe")
		proceed = true
	}
	if !proceed {
		s.e.metrics.RecordSuppressed(pathFeed)
		return true
	}

	s.deriveNotification(ctx, ev)

	if in {
		return s.surface(ctx, ChangeTypeUpsert, job)
	}
	return s.surface(ctx, ChangeTypeRemove, job)
}

/*
deriveNotification covers changes made by someone else (an admin cancel,
a claim from another replica). Echoes of the subscriber's own actions hit
the same ledger key as the direct path and are dropped there.
*/
func (s *subscription) deriveNotification(ctx context.Context, ev store.ChangeEvent) {
	if ev.Op != store.ChangeUpsert || ev.PreviousStatus == "" || ev.PreviousStatus == ev.Job.Status {
		return
	}
	var prev *models.Job
	if ev.PreviousAssignee != nil {
		prev = &models.Job{AssignedStaffID: ev.PreviousAssignee}
	}
	target, ok := notificationTarget(prev, ev.Job)
	if !ok || target != s.staff.ID {
		return
	}
	s.e.publish(context.WithoutCancel(ctx), s.e.notificationEvent(target, ev.Job), ev.Job, pathFeed)
}

func (s *subscription) surface(ctx context.Context, t ChangeType, job *models.Job) bool {
	select {
	case s.out <- JobChangeEvent{Type: t, Job: job.Clone()}:
		if t == ChangeTypeUpsert {
			s.visible[job.ID] = true
		} else {
			delete(s.visible, job.ID)
		}
		return true
	case <-ctx.Done():
		return false
	}
}
