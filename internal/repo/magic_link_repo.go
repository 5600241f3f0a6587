package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/dbutil"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

type MagicLinkRepo struct {
	db *sql.DB
}

func NewMagicLinkRepo(db *sql.DB) *MagicLinkRepo {
	return &MagicLinkRepo{db: db}
}

func (r *MagicLinkRepo) Create(ctx context.Context, link *model.MagicLinkToken) error {
	ctxJSON, err := json.Marshal(link.Context)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"token":        link.Token,
		"email":        link.Email,
		"link_type":    string(link.Type),
		"context_json": string(ctxJSON),
		"used":         link.Used,
		"used_at":      link.UsedAt,
		"expires_at":   link.ExpiresAt,
		"ctime":        link.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("magic_link_tokens", []map[string]interface{}{data})
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

func (r *MagicLinkRepo) Get(ctx context.Context, token string) (*model.MagicLinkToken, error) {
	sqlStr, args := dbutil.Finalize(`SELECT token, email, link_type, context_json, used, used_at, expires_at, ctime
		FROM magic_link_tokens WHERE token = ?`, []interface{}{token})
	return scanMagicLink(r.db.QueryRowContext(ctx, sqlStr, args...))
}

// ConsumeAndSetPassword marks an unused, unexpired token as used and sets the
// password of the account owning its email in one transaction. A used or
// expired token gives ErrNotFound and leaves the account untouched.
func (r *MagicLinkRepo) ConsumeAndSetPassword(ctx context.Context, token, passwordHash string, now int64) (*model.MagicLinkToken, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sqlStr, args := dbutil.Finalize(`UPDATE magic_link_tokens SET used = 1, used_at = ?
		WHERE token = ? AND used = 0 AND expires_at > ?
		RETURNING token, email, link_type, context_json, used, used_at, expires_at, ctime`,
		[]interface{}{now, token, now})
	link, err := scanMagicLink(tx.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(`UPDATE users SET password_hash = ?, email_verified = 1, mtime = ? WHERE email = ?`,
		[]interface{}{passwordHash, now, link.Email})
	result, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: no account for %s", appErr.ErrInvalid, link.Email)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return link, nil
}

func (r *MagicLinkRepo) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	sqlStr, args := dbutil.Finalize(`DELETE FROM magic_link_tokens WHERE expires_at <= ?`, []interface{}{now})
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanMagicLink(row *sql.Row) (*model.MagicLinkToken, error) {
	var link model.MagicLinkToken
	var linkType, ctxJSON string
	if err := row.Scan(&link.Token, &link.Email, &linkType, &ctxJSON, &link.Used, &link.UsedAt, &link.ExpiresAt, &link.Ctime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	link.Type = model.MagicLinkType(linkType)
	if ctxJSON != "" {
		_ = json.Unmarshal([]byte(ctxJSON), &link.Context)
	}
	return &link, nil
}
