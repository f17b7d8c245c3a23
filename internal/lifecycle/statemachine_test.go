package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func jobIn(status models.JobStatus, assignee string) models.Job {
	j := models.Job{
		ID:           "job-1",
		Status:       status,
		RequiredRole: models.RoleCleaner,
		Origin:       models.JobOriginNative,
		ScheduledAt:  t0.Add(24 * time.Hour),
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	j.RowVersion = 3
	if assignee != "" {
		j.AssignedStaffID = utils.Ptr(assignee)
	}
	if status == models.JobStatusCompleted {
		j.Completion = &models.CompletionRecord{Notes: "done"}
	}
	return j
}

// requestFor builds a request that satisfies every precondition except the edge itself.
func requestFor(to models.JobStatus, actor string) Request {
	req := Request{Requested: to, ActingStaffID: actor}
	if to == models.JobStatusCompleted {
		req.CompletionRecord = &models.CompletionRecord{Notes: "mopped", ActualDuration: 45}
	}
	if to == models.JobStatusCancelled {
		req.CancelReason = "guest extended stay"
	}
	if to == models.JobStatusOffered {
		req.OfferTTL = 15 * time.Minute
	}
	return req
}

/*
───────────────────────────────────────────────────────────────────
 1. Transition table

───────────────────────────────────────────────────────────────────
*/
func TestAttempt_TransitionTable(t *testing.T) {
	for _, from := range models.AllJobStatuses {
		for _, to := range models.AllJobStatuses {
			assignee := ""
			if from.RequiresAssignee() {
				assignee = "s1"
			}
			cur := jobIn(from, assignee)

			next, err := Attempt(cur, requestFor(to, "s1"), t0.Add(time.Minute))
			if Allowed(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, next.Status)
			} else {
				require.ErrorIs(t, err, utils.ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestAttempt_TerminalStatesHaveNoExits(t *testing.T) {
	assert.Empty(t, Targets(models.JobStatusCompleted))
	assert.Empty(t, Targets(models.JobStatusCancelled))
}

/*
───────────────────────────────────────────────────────────────────
 2. Authority and staleness

───────────────────────────────────────────────────────────────────
*/
func TestAttempt_NotAssignedToStaff(t *testing.T) {
	cases := []struct {
		from models.JobStatus
		to   models.JobStatus
	}{
		{models.JobStatusAssigned, models.JobStatusAccepted},
		{models.JobStatusAccepted, models.JobStatusInProgress},
		{models.JobStatusInProgress, models.JobStatusCompleted},
	}
	for _, tc := range cases {
		_, err := Attempt(jobIn(tc.from, "s1"), requestFor(tc.to, "s2"), t0)
		require.ErrorIs(t, err, utils.ErrNotAssignedToStaff, "%s -> %s", tc.from, tc.to)
	}
}

func TestAttempt_StaleRevision(t *testing.T) {
	cur := jobIn(models.JobStatusAssigned, "s1")

	stale := models.Revision{RowVersion: 2, UpdatedAt: t0}
	req := requestFor(models.JobStatusAccepted, "s1")
	req.ExpectedRevision = &stale

	_, err := Attempt(cur, req, t0)
	require.ErrorIs(t, err, utils.ErrStaleVersion)

	var conflict *utils.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.NotNil(t, conflict.Current)
	assert.Equal(t, int64(3), conflict.Current.RowVersion)

	// Same counter, different timestamp is still stale.
	sameCounter := models.Revision{RowVersion: 3, UpdatedAt: t0.Add(time.Second)}
	req.ExpectedRevision = &sameCounter
	_, err = Attempt(cur, req, t0)
	require.ErrorIs(t, err, utils.ErrStaleVersion)

	current := cur.Revision()
	req.ExpectedRevision = &current
	_, err = Attempt(cur, req, t0)
	require.NoError(t, err)
}

func TestAttempt_CompletionRecordRequired(t *testing.T) {
	_, err := Attempt(jobIn(models.JobStatusInProgress, "s1"), Request{
		Requested:     models.JobStatusCompleted,
		ActingStaffID: "s1",
	}, t0)
	require.ErrorIs(t, err, utils.ErrMissingCompletion)
	require.ErrorIs(t, err, utils.ErrInvalidPayload)
}

/*
───────────────────────────────────────────────────────────────────
 3. Field effects

───────────────────────────────────────────────────────────────────
*/
func TestAttempt_FieldEffects(t *testing.T) {
	now := t0.Add(time.Hour)

	offered, err := Attempt(jobIn(models.JobStatusPending, ""), requestFor(models.JobStatusOffered, "admin"), now)
	require.NoError(t, err)
	require.NotNil(t, offered.OfferExpiresAt)
	assert.Equal(t, now.Add(15*time.Minute), *offered.OfferExpiresAt)
	assert.Nil(t, offered.AssignedStaffID)

	assigned, err := Attempt(offered, requestFor(models.JobStatusAssigned, "s7"), now)
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedStaffID)
	assert.Equal(t, "s7", *assigned.AssignedStaffID)
	assert.Nil(t, assigned.OfferExpiresAt)

	released, err := Attempt(assigned, requestFor(models.JobStatusPending, "s7"), now)
	require.NoError(t, err)
	assert.Nil(t, released.AssignedStaffID)

	cancelled, err := Attempt(jobIn(models.JobStatusAccepted, "s1"), requestFor(models.JobStatusCancelled, "s1"), now)
	require.NoError(t, err)
	assert.Nil(t, cancelled.AssignedStaffID)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "guest extended stay", *cancelled.CancelReason)

	completed, err := Attempt(jobIn(models.JobStatusInProgress, "s1"), requestFor(models.JobStatusCompleted, "s1"), now)
	require.NoError(t, err)
	require.NotNil(t, completed.Completion)
	assert.Equal(t, "mopped", completed.Completion.Notes)
	assert.Equal(t, "s1", *completed.AssignedStaffID)
}

func TestAttempt_UpdatedAtNeverMovesBackwards(t *testing.T) {
	cur := jobIn(models.JobStatusAssigned, "s1")
	cur.UpdatedAt = t0.Add(time.Hour)

	next, err := Attempt(cur, requestFor(models.JobStatusAccepted, "s1"), t0)
	require.NoError(t, err)
	assert.Equal(t, cur.UpdatedAt, next.UpdatedAt)

	later := t0.Add(2 * time.Hour)
	next, err = Attempt(cur, requestFor(models.JobStatusAccepted, "s1"), later)
	require.NoError(t, err)
	assert.Equal(t, later, next.UpdatedAt)
}

func TestAttempt_DoesNotMutateInput(t *testing.T) {
	cur := jobIn(models.JobStatusAssigned, "s1")
	_, err := Attempt(cur, requestFor(models.JobStatusPending, "s1"), t0)
	require.NoError(t, err)
	require.NotNil(t, cur.AssignedStaffID)
	assert.Equal(t, "s1", *cur.AssignedStaffID)
	assert.Equal(t, models.JobStatusAssigned, cur.Status)
}

/*
───────────────────────────────────────────────────────────────────
 4. Properties

───────────────────────────────────────────────────────────────────
*/

// Walks every reachable path from PENDING and checks the invariant after each step.
func TestInvariantHoldsAfterEveryTransition(t *testing.T) {
	type node struct {
		job   models.Job
		depth int
	}
	actors := []string{"s1", "s2"}
	queue := []node{{job: jobIn(models.JobStatusPending, "")}}
	visited := 0

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		require.NoError(t, CheckInvariant(n.job))
		visited++
		if n.depth >= 6 {
			continue
		}
		for _, to := range models.AllJobStatuses {
			for _, actor := range actors {
				next, err := Attempt(n.job, requestFor(to, actor), t0.Add(time.Duration(n.depth+1)*time.Minute))
				if err != nil {
					continue
				}
				require.NoError(t, CheckInvariant(next), "%s -> %s by %s", n.job.Status, to, actor)
				queue = append(queue, node{job: next, depth: n.depth + 1})
			}
		}
	}
	require.Greater(t, visited, 10)
}

func TestAttempt_Deterministic(t *testing.T) {
	for _, from := range models.AllJobStatuses {
		for _, to := range models.AllJobStatuses {
			cur := jobIn(from, "s1")
			if !from.RequiresAssignee() {
				cur.AssignedStaffID = nil
			}
			for _, actor := range []string{"s1", "s2"} {
				req := requestFor(to, actor)
				a, errA := Attempt(cur, req, t0)
				b, errB := Attempt(cur, req, t0)
				assert.Equal(t, a, b)
				if errA == nil {
					assert.NoError(t, errB)
				} else {
					assert.EqualError(t, errB, errA.Error())
				}
			}
		}
	}
}

func TestCheckInvariant_Violations(t *testing.T) {
	j := jobIn(models.JobStatusAssigned, "")
	require.Error(t, CheckInvariant(j))

	j = jobIn(models.JobStatusPending, "s1")
	require.Error(t, CheckInvariant(j))

	j = jobIn(models.JobStatusInProgress, "s1")
	j.Completion = &models.CompletionRecord{}
	require.Error(t, CheckInvariant(j))

	j = jobIn("ARCHIVED", "")
	require.Error(t, CheckInvariant(j))
}
