package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/dbutil"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

var inviteColumns = []string{
	"id", "verification_id", "email", "email_lower", "name", "organization", "message", "created_by_user_id",
	"status", "status_reason", "complaint_flag", "token_jti", "token_expires_at", "action_token_jti",
	"action_token_expires_at", "used_at", "used_by_user_id", "last_sent_at", "notify_count", "audit_json",
	"ctime", "mtime",
}

// appendAudit is the SET fragment that appends one JSON array to audit_json.
const appendAudit = "audit_json = (audit_json::jsonb || ?::jsonb)::text"

type InviteRepo struct {
	db *sql.DB
}

func NewInviteRepo(db *sql.DB) *InviteRepo {
	return &InviteRepo{db: db}
}

func (r *InviteRepo) Create(ctx context.Context, invite *model.VerifierInvite) error {
	audit, err := encodeAudit(invite.Audit...)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":                      invite.ID,
		"verification_id":         invite.VerificationID,
		"email":                   invite.Email,
		"email_lower":             invite.EmailLower,
		"name":                    invite.Name,
		"organization":            invite.Organization,
		"message":                 invite.Message,
		"created_by_user_id":      invite.CreatedByUserID,
		"status":                  string(invite.Status),
		"status_reason":           invite.StatusReason,
		"complaint_flag":          invite.ComplaintFlag,
		"token_jti":               invite.TokenJTI,
		"token_expires_at":        invite.TokenExpiresAt,
		"action_token_jti":        invite.ActionTokenJTI,
		"action_token_expires_at": invite.ActionTokenExpiresAt,
		"used_at":                 invite.UsedAt,
		"used_by_user_id":         invite.UsedByUserID,
		"last_sent_at":            invite.LastSentAt,
		"notify_count":            invite.NotifyCount,
		"audit_json":              audit,
		"ctime":                   invite.Ctime,
		"mtime":                   invite.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("verifier_invites", []map[string]interface{}{data})
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

func (r *InviteRepo) GetByID(ctx context.Context, id string) (*model.VerifierInvite, error) {
	where := map[string]interface{}{"id": id, "_limit": []uint{0, 1}}
	sqlStr, args, err := builder.BuildSelect("verifier_invites", where, inviteColumns)
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
	var invite model.VerifierInvite
	var status, audit string
	if err := rows.Scan(&invite.ID, &invite.VerificationID, &invite.Email, &invite.EmailLower, &invite.Name,
		&invite.Organization, &invite.Message, &invite.CreatedByUserID, &status, &invite.StatusReason,
		&invite.ComplaintFlag, &invite.TokenJTI, &invite.TokenExpiresAt, &invite.ActionTokenJTI,
		&invite.ActionTokenExpiresAt, &invite.UsedAt, &invite.UsedByUserID, &invite.LastSentAt,
		&invite.NotifyCount, &audit, &invite.Ctime, &invite.Mtime); err != nil {
		return nil, err
	}
	invite.Status = model.InviteStatus(status)
	if audit != "" {
		_ = json.Unmarshal([]byte(audit), &invite.Audit)
	}
	return &invite, nil
}

// RotateClaimToken stores a new invite-claim jti on a pending invite, which
// invalidates every link minted before it.
func (r *InviteRepo) RotateClaimToken(ctx context.Context, id, jti string, expiresAt, now int64, entry model.InviteAuditEntry) (bool, error) {
	audit, err := encodeAudit(entry)
	if err != nil {
		return false, err
	}
	return r.exec(ctx, `UPDATE verifier_invites SET token_jti = ?, token_expires_at = ?, last_sent_at = ?,
		notify_count = notify_count + 1, mtime = ?, `+appendAudit+`
		WHERE id = ? AND status = ?`,
		jti, expiresAt, now, now, audit, id, string(model.InvitePending))
}

// Claim accepts a pending invite only while expectedJTI is still the current claim jti.
func (r *InviteRepo) Claim(ctx context.Context, id, expectedJTI, usedByUserID, actionJTI string, actionExpiresAt, now int64, entry model.InviteAuditEntry) (bool, error) {
	audit, err := encodeAudit(entry)
	if err != nil {
		return false, err
	}
	return r.exec(ctx, `UPDATE verifier_invites SET status = ?, used_at = ?, used_by_user_id = ?,
		action_token_jti = ?, action_token_expires_at = ?, mtime = ?, `+appendAudit+`
		WHERE id = ? AND status = ? AND token_jti = ?`,
		string(model.InviteAccepted), now, usedByUserID, actionJTI, actionExpiresAt, now, audit,
		id, string(model.InvitePending), expectedJTI)
}

func (r *InviteRepo) BindUser(ctx context.Context, id, userID string, now int64, entry model.InviteAuditEntry) error {
	audit, err := encodeAudit(entry)
	if err != nil {
		return err
	}
	ok, err := r.exec(ctx, `UPDATE verifier_invites SET used_by_user_id = ?, mtime = ?, `+appendAudit+` WHERE id = ?`,
		userID, now, audit, id)
	if err != nil {
		return err
	}
	if !ok {
		return appErr.ErrNotFound
	}
	return nil
}

// Revoke forces REVOKED whatever the current status is.
func (r *InviteRepo) Revoke(ctx context.Context, id, reason string, now int64, entry model.InviteAuditEntry) error {
	audit, err := encodeAudit(entry)
	if err != nil {
		return err
	}
	ok, err := r.exec(ctx, `UPDATE verifier_invites SET status = ?, status_reason = ?, complaint_flag = 1, mtime = ?, `+appendAudit+`
		WHERE id = ?`, string(model.InviteRevoked), reason, now, audit, id)
	if err != nil {
		return err
	}
	if !ok {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *InviteRepo) ExpirePendingFor(ctx context.Context, verificationID, emailLower string, now int64) (int64, error) {
	return r.expire(ctx, map[string]interface{}{
		"verification_id":     verificationID,
		"email_lower":         emailLower,
		"status":              string(model.InvitePending),
		"token_expires_at <=": now,
	}, now)
}

func (r *InviteRepo) ExpireStale(ctx context.Context, now int64) (int64, error) {
	return r.expire(ctx, map[string]interface{}{
		"status":              string(model.InvitePending),
		"token_expires_at <=": now,
	}, now)
}

func (r *InviteRepo) expire(ctx context.Context, where map[string]interface{}, now int64) (int64, error) {
	update := map[string]interface{}{
		"status":        string(model.InviteExpired),
		"status_reason": "invite link expired",
		"mtime":         now,
	}
	sqlStr, args, err := builder.BuildUpdate("verifier_invites", where, update)
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

func (r *InviteRepo) exec(ctx context.Context, query string, args ...interface{}) (bool, error) {
	query, args = dbutil.Finalize(query, args)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func encodeAudit(entries ...model.InviteAuditEntry) (string, error) {
	if entries == nil {
		entries = []model.InviteAuditEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
