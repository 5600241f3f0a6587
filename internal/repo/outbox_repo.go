package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/dbutil"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

type OutboxRepo struct {
	db *sql.DB
}

func NewOutboxRepo(db *sql.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// Enqueue stores an event once per dedupe key; a repeated key is a no-op.
func (r *OutboxRepo) Enqueue(ctx context.Context, event *model.OutboxEvent) error {
	sqlStr, args := dbutil.Finalize(`INSERT INTO outbox_events (id, kind, payload_json, dedupe_key, status,
		attempt_count, next_attempt_at, lease_owner, lease_expires_at, last_error, ctime, mtime)
		VALUES (?, ?, ?, ?, ?, 0, ?, '', 0, '', ?, ?)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		[]interface{}{event.ID, event.Kind, event.PayloadJSON, event.DedupeKey, string(model.OutboxPending),
			event.NextAttemptAt, event.Ctime, event.Mtime})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Lease claims up to limit due events for owner. Pending events whose next attempt
// is due and leased events whose lease ran out are both eligible.
func (r *OutboxRepo) Lease(ctx context.Context, owner string, limit int, now, leaseUntil int64) ([]*model.OutboxEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("lease limit must be greater than zero")
	}
	sqlStr, args := dbutil.Finalize(`WITH due AS (
			SELECT id FROM outbox_events
			WHERE (status = ? AND next_attempt_at <= ?) OR (status = ? AND lease_expires_at <= ?)
			ORDER BY next_attempt_at ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events SET status = ?, lease_owner = ?, lease_expires_at = ?, mtime = ?
		WHERE id IN (SELECT id FROM due)
		RETURNING id, kind, payload_json, dedupe_key, status, attempt_count, next_attempt_at,
			lease_owner, lease_expires_at, last_error, ctime, mtime`,
		[]interface{}{string(model.OutboxPending), now, string(model.OutboxLeased), now, limit,
			string(model.OutboxLeased), owner, leaseUntil, now})
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("lease outbox events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var events []*model.OutboxEvent
	for rows.Next() {
		var event model.OutboxEvent
		var status string
		if err := rows.Scan(&event.ID, &event.Kind, &event.PayloadJSON, &event.DedupeKey, &status, &event.AttemptCount,
			&event.NextAttemptAt, &event.LeaseOwner, &event.LeaseExpiresAt, &event.LastError, &event.Ctime, &event.Mtime); err != nil {
			return nil, fmt.Errorf("scan leased outbox event: %w", err)
		}
		event.Status = model.OutboxStatus(status)
		events = append(events, &event)
	}
	return events, rows.Err()
}

func (r *OutboxRepo) MarkDone(ctx context.Context, id, owner string, now int64) error {
	return r.settle(ctx, `UPDATE outbox_events SET status = ?, attempt_count = attempt_count + 1, lease_owner = '',
		lease_expires_at = 0, last_error = '', mtime = ? WHERE id = ? AND lease_owner = ? AND status = ?`,
		string(model.OutboxDone), now, id, owner, string(model.OutboxLeased))
}

func (r *OutboxRepo) MarkRetry(ctx context.Context, id, owner string, nextAttemptAt int64, lastError string, now int64) error {
	return r.settle(ctx, `UPDATE outbox_events SET status = ?, attempt_count = attempt_count + 1, next_attempt_at = ?,
		lease_owner = '', lease_expires_at = 0, last_error = ?, mtime = ? WHERE id = ? AND lease_owner = ? AND status = ?`,
		string(model.OutboxPending), nextAttemptAt, lastError, now, id, owner, string(model.OutboxLeased))
}

func (r *OutboxRepo) MarkDead(ctx context.Context, id, owner, lastError string, now int64) error {
	return r.settle(ctx, `UPDATE outbox_events SET status = ?, attempt_count = attempt_count + 1, lease_owner = '',
		lease_expires_at = 0, last_error = ?, mtime = ? WHERE id = ? AND lease_owner = ? AND status = ?`,
		string(model.OutboxDead), lastError, now, id, owner, string(model.OutboxLeased))
}

func (r *OutboxRepo) DeleteDoneBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args := dbutil.Finalize(`DELETE FROM outbox_events WHERE status = ? AND mtime < ?`,
		[]interface{}{string(model.OutboxDone), cutoff})
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *OutboxRepo) settle(ctx context.Context, query string, args ...interface{}) error {
	query, args = dbutil.Finalize(query, args)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}
