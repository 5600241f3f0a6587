package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/dbutil"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type VerificationLogRepo struct {
	db *sql.DB
}

func NewVerificationLogRepo(db *sql.DB) *VerificationLogRepo {
	return &VerificationLogRepo{db: db}
}

func (r *VerificationLogRepo) Append(ctx context.Context, entry *model.VerificationLog) error {
	return insertVerificationLog(ctx, r.db, entry)
}

func (r *VerificationLogRepo) ListByVerification(ctx context.Context, verificationID string) ([]*model.VerificationLog, error) {
	where := map[string]interface{}{"verification_id": verificationID, "_orderby": "ctime asc"}
	sqlStr, args, err := builder.BuildSelect("verification_logs", where, []string{"id", "verification_id", "action", "actor_email", "metadata_json", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var logs []*model.VerificationLog
	for rows.Next() {
		var entry model.VerificationLog
		var action, metadata string
		if err := rows.Scan(&entry.ID, &entry.VerificationID, &action, &entry.ActorEmail, &metadata, &entry.Ctime); err != nil {
			return nil, err
		}
		entry.Action = model.LogAction(action)
		if metadata != "" {
			_ = json.Unmarshal([]byte(metadata), &entry.Metadata)
		}
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}

func insertVerificationLog(ctx context.Context, db execer, entry *model.VerificationLog) error {
	metadata := "{}"
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		metadata = string(raw)
	}
	data := map[string]interface{}{
		"id":              entry.ID,
		"verification_id": entry.VerificationID,
		"action":          string(entry.Action),
		"actor_email":     entry.ActorEmail,
		"metadata_json":   metadata,
		"ctime":           entry.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("verification_logs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = db.ExecContext(ctx, sqlStr, args...)
	return err
}
