package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

/*
MemoryStore keeps both partitions in process. It backs unit tests and
local runs without a database, and honours the same CAS and change-feed
contract as PostgresStore.
*/
type MemoryStore struct {
	mu        sync.Mutex
	active    map[string]*models.Job
	completed map[string]*models.Job
	watchers  *watcherSet
	failure   error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		active:    make(map[string]*models.Job),
		completed: make(map[string]*models.Job),
		watchers:  newWatcherSet(),
	}
}

// FailWith makes every subsequent call fail as if the backend were down. nil restores it.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	s.failure = err
	s.mu.Unlock()
}

func (s *MemoryStore) checkLocked(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failure != nil {
		return utils.NewStoreError(op, s.failure)
	}
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ctx, "get_by_id"); err != nil {
		return nil, err
	}
	j, ok := s.active[id]
	if !ok {
		return nil, utils.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) GetCompleted(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ctx, "get_completed"); err != nil {
		return nil, err
	}
	j, ok := s.completed[id]
	if !ok {
		return nil, utils.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ctx, "create"); err != nil {
		return nil, err
	}
	if _, ok := s.active[job.ID]; ok {
		return nil, fmt.Errorf("%w: %s", utils.ErrDuplicateJob, job.ID)
	}
	if _, ok := s.completed[job.ID]; ok {
		return nil, fmt.Errorf("%w: %s", utils.ErrDuplicateJob, job.ID)
	}

	stored := job.Clone()
	stored.RowVersion = 1
	if stored.Status == models.JobStatusCompleted {
		s.completed[stored.ID] = stored
	} else {
		s.active[stored.ID] = stored
	}
	s.broadcastLocked(ChangeEvent{Op: ChangeUpsert, Job: stored.Clone()})
	return stored.Clone(), nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, next *models.Job, pre Precondition) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ctx, "compare_and_swap"); err != nil {
		return nil, err
	}
	cur, ok := s.active[next.ID]
	if !ok {
		return nil, utils.ErrJobNotFound
	}
	if !cur.Revision().Equal(pre.Revision) || (pre.RequireUnassigned && cur.AssignedStaffID != nil) {
		return nil, utils.NewStaleVersionError(cur.Clone())
	}

	stored := next.Clone()
	stored.RowVersion = cur.RowVersion + 1
	stored.CreatedAt = cur.CreatedAt
	stored.RequiredRole = cur.RequiredRole
	stored.Origin = cur.Origin
	s.active[stored.ID] = stored

	s.broadcastLocked(ChangeEvent{
		Op:               ChangeUpsert,
		Job:              stored.Clone(),
		PreviousAssignee: cloneString(cur.AssignedStaffID),
		PreviousStatus:   cur.Status,
	})
	return stored.Clone(), nil
}

func (s *MemoryStore) Relocate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ctx, "relocate"); err != nil {
		return err
	}
	if _, done := s.completed[id]; done {
		if _, still := s.active[id]; !still {
			return nil
		}
	}
	cur, ok := s.active[id]
	if !ok {
		return utils.ErrJobNotFound
	}
	if cur.Status != models.JobStatusCompleted {
		return fmt.Errorf("%w: relocate job %s in status %s", utils.ErrInvalidTransition, id, cur.Status)
	}
	if _, ok := s.completed[id]; !ok {
		s.completed[id] = cur
	}
	delete(s.active, id)
	s.broadcastLocked(ChangeEvent{
		Op:               ChangeRelocated,
		Job:              s.completed[id].Clone(),
		PreviousAssignee: cloneString(cur.AssignedStaffID),
		PreviousStatus:   cur.Status,
	})
	return nil
}

func (s *MemoryStore) ListActive(ctx context.Context, f Filter) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ctx, "list_active"); err != nil {
		return nil, err
	}
	var out []*models.Job
	for _, j := range s.active {
		if f.Matches(j) {
			out = append(out, j.Clone())
		}
	}
	sortJobs(out)
	return out, nil
}

func (s *MemoryStore) ListExpiredOffers(ctx context.Context, now time.Time) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ctx, "list_expired_offers"); err != nil {
		return nil, err
	}
	var out []*models.Job
	for _, j := range s.active {
		if j.Status == models.JobStatusOffered && j.OfferExpiresAt != nil && !j.OfferExpiresAt.After(now) {
			out = append(out, j.Clone())
		}
	}
	sortJobs(out)
	return out, nil
}

func (s *MemoryStore) ListCompletedInActive(ctx context.Context) ([]*models.Job, error) {
	return s.ListActive(ctx, Filter{Statuses: []models.JobStatus{models.JobStatusCompleted}})
}

func (s *MemoryStore) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ctx, "watch"); err != nil {
		return nil, err
	}
	return s.watchers.add(ctx), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(ctx, "ping")
}

// Emit pushes ev to every watcher without touching stored state.
// Used to replay change-feed redeliveries.
func (s *MemoryStore) Emit(ev ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(ev)
}

// broadcastLocked runs under s.mu so watchers see changes in commit order.
func (s *MemoryStore) broadcastLocked(ev ChangeEvent) {
	s.watchers.broadcast(ev)
}

func sortJobs(jobs []*models.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].ScheduledAt.Equal(jobs[k].ScheduledAt) {
			return jobs[i].ScheduledAt.Before(jobs[k].ScheduledAt)
		}
		return jobs[i].ID < jobs[k].ID
	})
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
