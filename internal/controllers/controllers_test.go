package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/dtos"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/engine"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/ledger"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/notify"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/store"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/testhelpers"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

type fixture struct {
	h        *testhelpers.TestHelper
	store    *store.MemoryStore
	staff    *store.MemoryStaffRepository
	recorder *notify.Recorder
	router   *mux.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		h:        testhelpers.NewTestHelper(t),
		store:    store.NewMemoryStore(),
		staff:    store.NewMemoryStaffRepository(),
		recorder: notify.NewRecorder(),
	}
	eng := engine.New(f.store, ledger.NewMemoryLedger(utils.SystemClock), f.recorder, f.staff, utils.SystemClock, nil, engine.Options{})
	f.router = NewRouter(eng, f.store, f.h.PublicKey(), nil)
	return f
}

func (f *fixture) seed(t *testing.T, id string, status models.JobStatus, assignee string) *models.Job {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	j := &models.Job{
		ID:           id,
		Title:        "Villa " + id,
		Status:       status,
		RequiredRole: models.RoleCleaner,
		Origin:       models.JobOriginNative,
		ScheduledAt:  now.Add(2 * time.Hour),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if assignee != "" {
		j.AssignedStaffID = utils.Ptr(assignee)
	}
	stored, err := f.store.Create(context.Background(), j)
	require.NoError(t, err)
	return stored
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, f.h.BuildAuthRequest(method, path, token, raw))
	return rr
}

func decodeJob(t *testing.T, rr *httptest.ResponseRecorder) *models.Job {
	t.Helper()
	var resp dtos.JobResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Job)
	return resp.Job
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var resp utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

/*
───────────────────────────────────────────────────────────────────
 1. Staff actions

───────────────────────────────────────────────────────────────────
*/
func TestJobsController_Lifecycle(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "J", models.JobStatusPending, "")
	s1 := f.h.CreateStaffJWT("S1", models.RoleCleaner)

	rr := f.do(http.MethodPost, "/api/v1/jobs/claim", s1, map[string]any{"job_id": "J"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	claimed := decodeJob(t, rr)
	assert.Equal(t, models.JobStatusAssigned, claimed.Status)

	rr = f.do(http.MethodPost, "/api/v1/jobs/accept", s1, map[string]any{
		"job_id": "J", "row_version": claimed.RowVersion, "updated_at": claimed.UpdatedAt,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(http.MethodPost, "/api/v1/jobs/start", s1, map[string]any{"job_id": "J"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(http.MethodPost, "/api/v1/jobs/complete", s1, map[string]any{"job_id": "J"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, utils.ErrCodeMissingCompletion, decodeError(t, rr).Code)

	rr = f.do(http.MethodPost, "/api/v1/jobs/complete", s1, map[string]any{
		"job_id":            "J",
		"completion_record": map[string]any{"notes": "all rooms done", "evidence_refs": []string{"p1"}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	done := decodeJob(t, rr)
	assert.Equal(t, "all rooms done", done.Completion.Notes)

	rr = f.do(http.MethodGet, "/api/v1/jobs/J", s1, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.JobStatusCompleted, decodeJob(t, rr).Status)

	assert.Len(t, f.recorder.For("S1"), 4)
}

func TestJobsController_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	cur := f.seed(t, "J2", models.JobStatusAssigned, "S1")
	f.seed(t, "J3", models.JobStatusAssigned, "S1")
	s2 := f.h.CreateStaffJWT("S2", models.RoleCleaner)
	s1 := f.h.CreateStaffJWT("S1", models.RoleCleaner)

	rr := f.do(http.MethodPost, "/api/v1/jobs/accept", s2, map[string]any{"job_id": "J2"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, utils.ErrCodeNotAssignedToStaff, decodeError(t, rr).Code)

	rr = f.do(http.MethodPost, "/api/v1/jobs/claim", s2, map[string]any{"job_id": "J2"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, utils.ErrCodeJobNotClaimable, decodeError(t, rr).Code)

	rr = f.do(http.MethodPost, "/api/v1/jobs/start", s1, map[string]any{"job_id": "J2"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, utils.ErrCodeInvalidTransition, decodeError(t, rr).Code)

	rr = f.do(http.MethodPost, "/api/v1/jobs/accept", s1, map[string]any{
		"job_id": "J2", "row_version": cur.RowVersion + 1, "updated_at": cur.UpdatedAt,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
	var body struct {
		Code    string               `json:"code"`
		Details dtos.ConflictDetails `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, utils.ErrCodeStaleVersion, body.Code)
	require.NotNil(t, body.Details.CurrentJob)
	assert.Equal(t, cur.RowVersion, body.Details.CurrentJob.RowVersion)

	rr = f.do(http.MethodGet, "/api/v1/jobs/nope", s1, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(http.MethodPost, "/api/v1/jobs/accept", s1, map[string]any{"job_id": "J3", "row_version": 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, utils.ErrCodeValidation, decodeError(t, rr).Code)

	rr = f.do(http.MethodPost, "/api/v1/jobs/accept", s1, map[string]any{"job": "J3"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, utils.ErrCodeInvalidPayload, decodeError(t, rr).Code)

	rr = f.do(http.MethodPost, "/api/v1/jobs/accept", "", map[string]any{"job_id": "J3"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	f.store.FailWith(assert.AnError)
	rr = f.do(http.MethodPost, "/api/v1/jobs/accept", s1, map[string]any{"job_id": "J3"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, utils.ErrCodeStoreUnavailable, decodeError(t, rr).Code)

	rr = f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestJobsController_GetJobVisibility(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "J", models.JobStatusAccepted, "S1")

	rr := f.do(http.MethodGet, "/api/v1/jobs/J", f.h.CreateStaffJWT("S2", models.RoleCleaner), nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, utils.ErrCodeForbidden, decodeError(t, rr).Code)

	rr = f.do(http.MethodGet, "/api/v1/jobs/J", f.h.CreateStaffJWT("S1", models.RoleCleaner), nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(http.MethodGet, "/api/v1/jobs/J", f.h.CreateStaffJWT("A1", models.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestJobsController_CancelWithReason(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "J", models.JobStatusAccepted, "S1")

	rr := f.do(http.MethodPost, "/api/v1/jobs/cancel", f.h.CreateStaffJWT("A1", models.RoleAdmin), map[string]any{
		"job_id": "J", "reason": "guest cancelled",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	j := decodeJob(t, rr)
	assert.Equal(t, models.JobStatusCancelled, j.Status)
	assert.Equal(t, "guest cancelled", utils.Val(j.CancelReason))
	require.Len(t, f.recorder.For("S1"), 1)
}

/*
───────────────────────────────────────────────────────────────────
 2. Admin

───────────────────────────────────────────────────────────────────
*/
func TestAdminJobsController(t *testing.T) {
	f := newFixture(t)
	adminTok := f.h.CreateStaffJWT("A1", models.RoleAdmin)
	staffTok := f.h.CreateStaffJWT("S1", models.RoleCleaner)

	create := map[string]any{"title": "Turnover", "property_id": "villa-4", "required_role": "cleaner"}

	rr := f.do(http.MethodPost, "/api/v1/admin/jobs", staffTok, create)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(http.MethodPost, "/api/v1/admin/jobs", adminTok, map[string]any{"title": "x", "required_role": "admin"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, utils.ErrCodeValidation, decodeError(t, rr).Code)

	rr = f.do(http.MethodPost, "/api/v1/admin/jobs", adminTok, create)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeJob(t, rr)
	assert.Equal(t, models.JobStatusPending, created.Status)

	rr = f.do(http.MethodPost, "/api/v1/admin/jobs/offer", adminTok, map[string]any{"job_id": created.ID, "ttl_seconds": 600})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	offered := decodeJob(t, rr)
	assert.Equal(t, models.JobStatusOffered, offered.Status)
	require.NotNil(t, offered.OfferExpiresAt)
	assert.Equal(t, offered.UpdatedAt.Add(10*time.Minute), *offered.OfferExpiresAt)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rr.Body.String())
}

/*
───────────────────────────────────────────────────────────────────
 3. Streams

───────────────────────────────────────────────────────────────────
*/

// sseEvents reads "data:" lines from an event stream into a channel.
func sseEvents(t *testing.T, resp *http.Response) <-chan engine.JobChangeEvent {
	t.Helper()
	out := make(chan engine.JobChangeEvent, 16)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev engine.JobChangeEvent
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev) == nil {
				out <- ev
			}
		}
	}()
	return out
}

func nextSSE(t *testing.T, ch <-chan engine.JobChangeEvent) engine.JobChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream event")
		return engine.JobChangeEvent{}
	}
}

func TestStreamController_ClaimableStream(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "J", models.JobStatusPending, "")
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/jobs/claimable/stream?role=cleaner", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.h.CreateStaffJWT("S2", models.RoleCleaner))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := sseEvents(t, resp)
	ev := nextSSE(t, events)
	assert.Equal(t, engine.ChangeTypeUpsert, ev.Type)
	assert.Equal(t, "J", ev.Job.ID)

	rr := f.do(http.MethodPost, "/api/v1/jobs/claim", f.h.CreateStaffJWT("S1", models.RoleCleaner), map[string]any{"job_id": "J"})
	require.Equal(t, http.StatusOK, rr.Code)

	ev = nextSSE(t, events)
	assert.Equal(t, engine.ChangeTypeRemove, ev.Type)
	assert.Equal(t, "J", ev.Job.ID)
}

func TestStreamController_Rejects(t *testing.T) {
	f := newFixture(t)
	tok := f.h.CreateStaffJWT("S1", models.RoleCleaner)

	rr := f.do(http.MethodGet, "/api/v1/jobs/claimable/stream", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodGet, "/api/v1/jobs/claimable/stream?role=maintenance", tok, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(http.MethodGet, "/api/v1/jobs/my/stream", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
