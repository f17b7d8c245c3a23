package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/store"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return t0.Add(time.Minute) }

// snapshotStore holds every GetByID until n readers arrived, so all
// contenders decide from the same snapshot.
type snapshotStore struct {
	*store.MemoryStore
	arrived sync.WaitGroup
}

func newSnapshotStore(n int) *snapshotStore {
	s := &snapshotStore{MemoryStore: store.NewMemoryStore()}
	s.arrived.Add(n)
	return s
}

func (s *snapshotStore) GetByID(ctx context.Context, id string) (*models.Job, error) {
	j, err := s.MemoryStore.GetByID(ctx, id)
	s.arrived.Done()
	s.arrived.Wait()
	return j, err
}

func cleaner(id string) models.Staff {
	return models.Staff{ID: id, Capabilities: []models.RoleTag{models.RoleCleaner}}
}

func createJob(t *testing.T, s store.Store, id string, status models.JobStatus, assignee string) *models.Job {
	t.Helper()
	j := &models.Job{
		ID:           id,
		Status:       status,
		RequiredRole: models.RoleCleaner,
		Origin:       models.JobOriginNative,
		ScheduledAt:  t0.Add(2 * time.Hour),
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	if assignee != "" {
		j.AssignedStaffID = utils.Ptr(assignee)
	}
	stored, err := s.Create(context.Background(), j)
	require.NoError(t, err)
	return stored
}

/*
───────────────────────────────────────────────────────────────────
 Scenario A: two cleaners claim the same pending job

───────────────────────────────────────────────────────────────────
*/
func TestClaim_TwoContendersOneWinner(t *testing.T) {
	s := newSnapshotStore(2)
	createJob(t, s.MemoryStore, "J1", models.JobStatusPending, "")
	r := New(s, fixedClock)

	type result struct {
		job *models.Job
		err error
	}
	results := make(chan result, 2)
	for _, id := range []string{"S1", "S2"} {
		go func(id string) {
			j, err := r.Claim(context.Background(), "J1", cleaner(id))
			results <- result{j, err}
		}(id)
	}

	var winner *models.Job
	var losers []error
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err == nil {
			winner = res.job
		} else {
			losers = append(losers, res.err)
		}
	}

	require.NotNil(t, winner)
	require.Len(t, losers, 1)
	assert.Equal(t, models.JobStatusAssigned, winner.Status)
	require.NotNil(t, winner.AssignedStaffID)
	assert.Contains(t, []string{"S1", "S2"}, *winner.AssignedStaffID)

	require.ErrorIs(t, losers[0], utils.ErrAlreadyClaimed)
	var conflict *utils.ConflictError
	require.True(t, errors.As(losers[0], &conflict))
	assert.Equal(t, winner, conflict.Current)
}

func TestClaim_NWayExactlyOneWinner(t *testing.T) {
	for _, n := range []int{2, 5, 16} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s := newSnapshotStore(n)
			createJob(t, s.MemoryStore, "J", models.JobStatusOffered, "")
			r := New(s, fixedClock)

			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				go func(i int) {
					_, err := r.Claim(context.Background(), "J", cleaner(fmt.Sprintf("S%d", i)))
					errs <- err
				}(i)
			}

			wins := 0
			for i := 0; i < n; i++ {
				err := <-errs
				if err == nil {
					wins++
					continue
				}
				require.ErrorIs(t, err, utils.ErrAlreadyClaimed)
			}
			assert.Equal(t, 1, wins)
		})
	}
}

/*
───────────────────────────────────────────────────────────────────
 Eligibility

───────────────────────────────────────────────────────────────────
*/
func TestClaim_NotClaimable(t *testing.T) {
	s := store.NewMemoryStore()
	createJob(t, s, "assigned", models.JobStatusAssigned, "S1")
	createJob(t, s, "pending", models.JobStatusPending, "")
	r := New(s, fixedClock)

	_, err := r.Claim(context.Background(), "assigned", cleaner("S2"))
	require.ErrorIs(t, err, utils.ErrJobNotClaimable)

	gardener := models.Staff{ID: "G1", Capabilities: []models.RoleTag{models.RoleMaintenance}}
	_, err = r.Claim(context.Background(), "pending", gardener)
	require.ErrorIs(t, err, utils.ErrJobNotClaimable)

	_, err = r.Claim(context.Background(), "missing", cleaner("S2"))
	require.ErrorIs(t, err, utils.ErrJobNotFound)
}

func TestClaim_PendingGoesStraightToAssignedInOneWrite(t *testing.T) {
	s := store.NewMemoryStore()
	created := createJob(t, s, "J", models.JobStatusPending, "")
	r := New(s, fixedClock)

	var seen []models.ClaimAttempt
	r.OnAttempt = func(a models.ClaimAttempt, err error) {
		require.NoError(t, err)
		seen = append(seen, a)
	}

	j, err := r.Claim(context.Background(), "J", cleaner("S1"))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAssigned, j.Status)
	assert.Equal(t, created.RowVersion+1, j.RowVersion)
	assert.Equal(t, fixedClock(), j.UpdatedAt)
	assert.Nil(t, j.OfferExpiresAt)

	require.Len(t, seen, 1)
	assert.Equal(t, models.JobStatusPending, seen[0].ExpectedStatus)
	assert.Equal(t, "S1", seen[0].StaffID)
}

func TestClaimExpecting_StaleRevision(t *testing.T) {
	s := store.NewMemoryStore()
	created := createJob(t, s, "J", models.JobStatusOffered, "")
	r := New(s, fixedClock)

	old := created.Revision()
	old.RowVersion--
	_, err := r.ClaimExpecting(context.Background(), "J", cleaner("S1"), &old)
	require.ErrorIs(t, err, utils.ErrStaleVersion)

	rev := created.Revision()
	_, err = r.ClaimExpecting(context.Background(), "J", cleaner("S1"), &rev)
	require.NoError(t, err)
}

func TestClaim_StoreUnavailable(t *testing.T) {
	s := store.NewMemoryStore()
	createJob(t, s, "J", models.JobStatusOffered, "")
	s.FailWith(errors.New("dial tcp: connection refused"))

	_, err := New(s, fixedClock).Claim(context.Background(), "J", cleaner("S1"))
	require.ErrorIs(t, err, utils.ErrStoreUnavailable)
}
