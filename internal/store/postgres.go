package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

// ChangeChannel is the LISTEN/NOTIFY channel carrying job changes.
const ChangeChannel = "job_changes"

const jobColumns = `
            id, property_id, title, origin, status, required_role,
            assigned_staff_id, scheduled_at, offer_expires_at, cancel_reason,
            completion_record, row_version, created_at, updated_at`

func baseSelectJob(table string) string {
	return "SELECT " + jobColumns + " FROM " + table
}

/*
PostgresStore keeps active jobs in `jobs` and relocated ones in
`completed_jobs`. Every write emits pg_notify inside its transaction, so
the change feed only ever reports committed state.

All watchers share one LISTEN connection opened outside the pool, so open
streams never hold pooled connections.
*/
type PostgresStore struct {
	pool     *pgxpool.Pool
	watchers *watcherSet

	listenMu   sync.Mutex
	listening  bool
	stopListen context.CancelFunc
	closed     bool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, watchers: newWatcherSet()}
}

type changePayload struct {
	Op               ChangeOp         `json:"op"`
	JobID            string           `json:"job_id"`
	PreviousAssignee *string          `json:"previous_assignee,omitempty"`
	PreviousStatus   models.JobStatus `json:"previous_status,omitempty"`
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j          models.Job
		offerExp   pgtype.Timestamptz
		completion pgtype.JSONB
	)
	err := row.Scan(
		&j.ID,
		&j.PropertyID,
		&j.Title,
		&j.Origin,
		&j.Status,
		&j.RequiredRole,
		&j.AssignedStaffID,
		&j.ScheduledAt,
		&offerExp,
		&j.CancelReason,
		&completion,
		&j.RowVersion,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if completion.Status == pgtype.Present {
		var rec models.CompletionRecord
		if err := json.Unmarshal(completion.Bytes, &rec); err != nil {
			return nil, fmt.Errorf("decode completion_record for %s: %w", j.ID, err)
		}
		j.Completion = &rec
	}
	j.ScheduledAt = j.ScheduledAt.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	if offerExp.Status == pgtype.Present {
		t := offerExp.Time.UTC()
		j.OfferExpiresAt = &t
	}
	return &j, nil
}

func completionParam(rec *models.CompletionRecord) (interface{}, error) {
	if rec == nil {
		return nil, nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *PostgresStore) wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return utils.ErrJobNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", utils.ErrDuplicateJob, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return utils.NewStoreError(op, err)
	}
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, baseSelectJob("jobs")+" WHERE id=$1", id))
	if err != nil {
		return nil, s.wrap("get_by_id", err)
	}
	return j, nil
}

func (s *PostgresStore) GetCompleted(ctx context.Context, id string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, baseSelectJob("completed_jobs")+" WHERE id=$1", id))
	if err != nil {
		return nil, s.wrap("get_completed", err)
	}
	return j, nil
}

func (s *PostgresStore) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	table := "jobs"
	if job.Status == models.JobStatusCompleted {
		table = "completed_jobs"
	}
	completion, err := completionParam(job.Completion)
	if err != nil {
		return nil, fmt.Errorf("%w: completion_record: %v", utils.ErrInvalidPayload, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, s.wrap("create.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if table == "jobs" {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM completed_jobs WHERE id=$1)", job.ID).Scan(&exists); err != nil {
			return nil, s.wrap("create.exists", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", utils.ErrDuplicateJob, job.ID)
		}
	}

	row := tx.QueryRow(ctx, `
        INSERT INTO `+table+` (
            id, property_id, title, origin, status, required_role,
            assigned_staff_id, scheduled_at, offer_expires_at, cancel_reason,
            completion_record, row_version, created_at, updated_at
        ) VALUES (
            $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,1,$12,$13
        )
        RETURNING`+jobColumns,
		job.ID,
		job.PropertyID,
		job.Title,
		job.Origin,
		job.Status,
		job.RequiredRole,
		job.AssignedStaffID,
		job.ScheduledAt,
		job.OfferExpiresAt,
		job.CancelReason,
		completion,
		job.CreatedAt,
		job.UpdatedAt,
	)
	stored, err := scanJob(row)
	if err != nil {
		return nil, s.wrap("create.insert", err)
	}
	if err := notifyChange(ctx, tx, changePayload{Op: ChangeUpsert, JobID: stored.ID}); err != nil {
		return nil, s.wrap("create.notify", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, s.wrap("create.commit", err)
	}
	return stored, nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, next *models.Job, pre Precondition) (*models.Job, error) {
	completion, err := completionParam(next.Completion)
	if err != nil {
		return nil, fmt.Errorf("%w: completion_record: %v", utils.ErrInvalidPayload, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, s.wrap("cas.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanJob(tx.QueryRow(ctx, baseSelectJob("jobs")+" WHERE id=$1 FOR UPDATE", next.ID))
	if err != nil {
		return nil, s.wrap("cas.select", err)
	}
	if !cur.Revision().Equal(pre.Revision) || (pre.RequireUnassigned && cur.AssignedStaffID != nil) {
		return nil, utils.NewStaleVersionError(cur)
	}

	row := tx.QueryRow(ctx, `
        UPDATE jobs
        SET status=$1,
            assigned_staff_id=$2,
            offer_expires_at=$3,
            cancel_reason=$4,
            completion_record=$5,
            property_id=$6,
            title=$7,
            scheduled_at=$8,
            updated_at=$9,
            row_version=row_version+1
        WHERE id=$10 AND row_version=$11
        RETURNING`+jobColumns,
		next.Status,
		next.AssignedStaffID,
		next.OfferExpiresAt,
		next.CancelReason,
		completion,
		next.PropertyID,
		next.Title,
		next.ScheduledAt,
		next.UpdatedAt,
		next.ID,
		cur.RowVersion,
	)
	stored, err := scanJob(row)
	if err != nil {
		return nil, s.wrap("cas.update", err)
	}

	if err := notifyChange(ctx, tx, changePayload{
		Op:               ChangeUpsert,
		JobID:            stored.ID,
		PreviousAssignee: cur.AssignedStaffID,
		PreviousStatus:   cur.Status,
	}); err != nil {
		return nil, s.wrap("cas.notify", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, s.wrap("cas.commit", err)
	}
	return stored, nil
}

func (s *PostgresStore) Relocate(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return s.wrap("relocate.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanJob(tx.QueryRow(ctx, baseSelectJob("jobs")+" WHERE id=$1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		var done bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM completed_jobs WHERE id=$1)", id).Scan(&done); err != nil {
			return s.wrap("relocate.exists", err)
		}
		if done {
			return nil
		}
		return utils.ErrJobNotFound
	}
	if err != nil {
		return s.wrap("relocate.select", err)
	}
	if cur.Status != models.JobStatusCompleted {
		return fmt.Errorf("%w: relocate job %s in status %s", utils.ErrInvalidTransition, id, cur.Status)
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO completed_jobs (`+jobColumns+`
        )
        SELECT`+jobColumns+`
        FROM jobs
        WHERE id=$1
        ON CONFLICT (id) DO NOTHING
    `, id); err != nil {
		return s.wrap("relocate.insert", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM jobs WHERE id=$1", id); err != nil {
		return s.wrap("relocate.delete", err)
	}
	if err := notifyChange(ctx, tx, changePayload{
		Op:               ChangeRelocated,
		JobID:            id,
		PreviousAssignee: cur.AssignedStaffID,
		PreviousStatus:   cur.Status,
	}); err != nil {
		return s.wrap("relocate.notify", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return s.wrap("relocate.commit", err)
	}
	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context, f Filter) ([]*models.Job, error) {
	q := baseSelectJob("jobs") + " WHERE TRUE"
	var args []interface{}
	if f.AssignedStaffID != nil {
		args = append(args, *f.AssignedStaffID)
		q += fmt.Sprintf(" AND assigned_staff_id=$%d", len(args))
	}
	if len(f.Roles) > 0 {
		roles := make([]string, len(f.Roles))
		for i, r := range f.Roles {
			roles[i] = string(r)
		}
		args = append(args, roles)
		q += fmt.Sprintf(" AND required_role = ANY($%d)", len(args))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		q += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if f.Origin != nil {
		args = append(args, string(*f.Origin))
		q += fmt.Sprintf(" AND origin=$%d", len(args))
	}
	q += " ORDER BY scheduled_at, id"
	return s.queryJobs(ctx, "list_active", q, args...)
}

func (s *PostgresStore) ListExpiredOffers(ctx context.Context, now time.Time) ([]*models.Job, error) {
	return s.queryJobs(ctx, "list_expired_offers",
		baseSelectJob("jobs")+" WHERE status='OFFERED' AND offer_expires_at <= $1 ORDER BY offer_expires_at, id", now)
}

func (s *PostgresStore) ListCompletedInActive(ctx context.Context) ([]*models.Job, error) {
	return s.queryJobs(ctx, "list_completed_in_active",
		baseSelectJob("jobs")+" WHERE status='COMPLETED' ORDER BY updated_at, id")
}

func (s *PostgresStore) queryJobs(ctx context.Context, op, q string, args ...interface{}) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, s.wrap(op, err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, s.wrap(op, err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(op, err)
	}
	return out, nil
}

/*
Watch registers a watcher on the store's shared LISTEN connection, opening
it on first use. NOTIFY carries only ids; the job is re-read so the event
reflects committed state. A lost connection closes every watcher and the
next Watch reconnects.
*/
func (s *PostgresStore) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.closed {
		return nil, utils.NewStoreError("watch", errors.New("store closed"))
	}
	if !s.listening {
		if err := s.startListenerLocked(ctx); err != nil {
			return nil, err
		}
	}
	return s.watchers.add(ctx), nil
}

func (s *PostgresStore) startListenerLocked(ctx context.Context) error {
	conn, err := pgx.ConnectConfig(ctx, s.pool.Config().ConnConfig)
	if err != nil {
		return s.wrap("watch.connect", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		_ = conn.Close(context.Background())
		return s.wrap("watch.listen", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s.listening = true
	s.stopListen = cancel
	go s.listen(listenCtx, conn)
	return nil
}

func (s *PostgresStore) listen(ctx context.Context, conn *pgx.Conn) {
	defer func() {
		_ = conn.Close(context.Background())
		s.listenMu.Lock()
		s.watchers.closeAll()
		s.listening = false
		s.stopListen = nil
		s.listenMu.Unlock()
	}()

	for {
		notif, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				utils.Logger.WithError(err).Error("job change feed connection lost")
			}
			return
		}

		var p changePayload
		if err := json.Unmarshal([]byte(notif.Payload), &p); err != nil {
			utils.Logger.WithError(err).WithField("payload", notif.Payload).Warn("malformed job change payload")
			continue
		}

		ev, err := s.resolveChange(ctx, p)
		if err != nil {
			utils.Logger.WithError(err).WithFields(logrus.Fields{
				"job_id": p.JobID,
				"op":     p.Op,
			}).Warn("could not load changed job")
			continue
		}
		s.watchers.broadcast(ev)
	}
}

// Close stops the change feed and ends every watcher. The pool is left to its owner.
func (s *PostgresStore) Close() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.closed = true
	if s.stopListen != nil {
		s.stopListen()
	}
	s.watchers.closeAll()
}

func (s *PostgresStore) resolveChange(ctx context.Context, p changePayload) (ChangeEvent, error) {
	ev := ChangeEvent{Op: p.Op, PreviousAssignee: p.PreviousAssignee, PreviousStatus: p.PreviousStatus}

	var (
		j   *models.Job
		err error
	)
	if p.Op == ChangeRelocated {
		j, err = s.GetCompleted(ctx, p.JobID)
	} else {
		j, err = s.GetByID(ctx, p.JobID)
		if errors.Is(err, utils.ErrJobNotFound) {
			// relocated before we got to read it
			j, err = s.GetCompleted(ctx, p.JobID)
		}
	}
	if err != nil {
		return ev, err
	}
	ev.Job = j
	return ev, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return utils.NewStoreError("ping", err)
	}
	return nil
}

func notifyChange(ctx context.Context, tx pgx.Tx, p changePayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "SELECT pg_notify($1, $2)", ChangeChannel, string(b))
	return err
}
