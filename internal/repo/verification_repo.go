package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/dbutil"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

var verificationColumns = []string{
	"id", "item_id", "item_type", "verifier_email", "verifier_name", "verifier_organization", "status",
	"token", "comment", "decided_by", "decided_at", "expires_at", "ctime", "mtime",
}

type VerificationRepo struct {
	db *sql.DB
}

func NewVerificationRepo(db *sql.DB) *VerificationRepo {
	return &VerificationRepo{db: db}
}

func (r *VerificationRepo) Create(ctx context.Context, v *model.Verification) error {
	data := map[string]interface{}{
		"id":                    v.ID,
		"item_id":               v.ItemID,
		"item_type":             string(v.ItemType),
		"verifier_email":        v.VerifierEmail,
		"verifier_name":         v.VerifierName,
		"verifier_organization": v.VerifierOrganization,
		"status":                string(v.Status),
		"token":                 v.Token,
		"comment":               v.Comment,
		"decided_by":            v.DecidedBy,
		"decided_at":            v.DecidedAt,
		"expires_at":            v.ExpiresAt,
		"ctime":                 v.Ctime,
		"mtime":                 v.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("verifications", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *VerificationRepo) GetByID(ctx context.Context, id string) (*model.Verification, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *VerificationRepo) GetPendingForItem(ctx context.Context, itemID string, itemType model.ItemType, now int64) (*model.Verification, error) {
	return r.getOne(ctx, map[string]interface{}{
		"item_id":      itemID,
		"item_type":    string(itemType),
		"status":       string(model.VerificationPending),
		"expires_at >": now,
	})
}

// ExpirePendingForItem retires a pending row of the item whose window has passed.
func (r *VerificationRepo) ExpirePendingForItem(ctx context.Context, itemID string, itemType model.ItemType, now int64) (int64, error) {
	return r.expire(ctx, map[string]interface{}{
		"item_id":       itemID,
		"item_type":     string(itemType),
		"status":        string(model.VerificationPending),
		"expires_at <=": now,
	}, now)
}

func (r *VerificationRepo) ExpireStale(ctx context.Context, now int64) (int64, error) {
	return r.expire(ctx, map[string]interface{}{
		"status":        string(model.VerificationPending),
		"expires_at <=": now,
	}, now)
}

// Decide moves a pending, unexpired record to its terminal status and appends the
// audit entry in the same transaction. It reports false when the record was not
// pending any more.
func (r *VerificationRepo) Decide(ctx context.Context, id string, status model.VerificationStatus, decidedBy, comment string, now int64, entry *model.VerificationLog) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	sqlStr, args := dbutil.Finalize(`UPDATE verifications SET status = ?, decided_by = ?, comment = ?, decided_at = ?, mtime = ?
		WHERE id = ? AND status = ? AND expires_at > ?`,
		[]interface{}{string(status), decidedBy, comment, now, now, id, string(model.VerificationPending), now})
	result, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	if entry != nil {
		if err := insertVerificationLog(ctx, tx, entry); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *VerificationRepo) UpdateVerifierInfo(ctx context.Context, id, name, organization string, now int64) error {
	update := map[string]interface{}{"mtime": now}
	if name != "" {
		update["verifier_name"] = name
	}
	if organization != "" {
		update["verifier_organization"] = organization
	}
	sqlStr, args, err := builder.BuildUpdate("verifications", map[string]interface{}{"id": id}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
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

func (r *VerificationRepo) expire(ctx context.Context, where map[string]interface{}, now int64) (int64, error) {
	update := map[string]interface{}{
		"status": string(model.VerificationExpired),
		"mtime":  now,
	}
	sqlStr, args, err := builder.BuildUpdate("verifications", where, update)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *VerificationRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Verification, error) {
	where["_limit"] = []uint{0, 1}
	sqlStr, args, err := builder.BuildSelect("verifications", where, verificationColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	var v model.Verification
	var itemType, status string
	if err := rows.Scan(&v.ID, &v.ItemID, &itemType, &v.VerifierEmail, &v.VerifierName, &v.VerifierOrganization,
		&status, &v.Token, &v.Comment, &v.DecidedBy, &v.DecidedAt, &v.ExpiresAt, &v.Ctime, &v.Mtime); err != nil {
		return nil, err
	}
	v.ItemType = model.ItemType(itemType)
	v.Status = model.VerificationStatus(status)
	return &v, nil
}
