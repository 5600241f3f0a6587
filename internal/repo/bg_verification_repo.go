package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/dbutil"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

var bgColumns = []string{
	"id", "student_id", "student_name", "student_email", "student_institute", "verifier_id", "verifier_name",
	"verifier_email", "verifier_institute", "referee_contacts_requested", "notes", "status", "completed",
	"completed_at", "completed_by", "requested_at", "submitted_at", "expires_at", "ctime", "mtime",
}

var activeBGStatuses = []interface{}{string(model.BGPending), string(model.BGSubmitted)}

type BGVerificationRepo struct {
	db *sql.DB
}

func NewBGVerificationRepo(db *sql.DB) *BGVerificationRepo {
	return &BGVerificationRepo{db: db}
}

func (r *BGVerificationRepo) Create(ctx context.Context, bg *model.BackgroundVerification) error {
	data := map[string]interface{}{
		"id":                         bg.ID,
		"student_id":                 bg.StudentID,
		"student_name":               bg.StudentName,
		"student_email":              bg.StudentEmail,
		"student_institute":          bg.StudentInstitute,
		"verifier_id":                bg.VerifierID,
		"verifier_name":              bg.VerifierName,
		"verifier_email":             bg.VerifierEmail,
		"verifier_institute":         bg.VerifierInstitute,
		"referee_contacts_requested": bg.RefereeContactsRequested,
		"notes":                      bg.Notes,
		"status":                     string(bg.Status),
		"completed":                  bg.Completed,
		"completed_at":               bg.CompletedAt,
		"completed_by":               bg.CompletedBy,
		"requested_at":               bg.RequestedAt,
		"submitted_at":               bg.SubmittedAt,
		"expires_at":                 bg.ExpiresAt,
		"ctime":                      bg.Ctime,
		"mtime":                      bg.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("bg_verifications", []map[string]interface{}{data})
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

func (r *BGVerificationRepo) GetByID(ctx context.Context, id string) (*model.BackgroundVerification, error) {
	list, err := r.list(ctx, map[string]interface{}{"id": id, "_limit": []uint{0, 1}})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, appErr.ErrNotFound
	}
	return list[0], nil
}

// DeleteExpiredForPair clears expired cycles of a pair so a new request can take the slot.
func (r *BGVerificationRepo) DeleteExpiredForPair(ctx context.Context, studentID, verifierID string, now int64) (int64, error) {
	return r.deleteWhere(ctx, "student_id = ? AND verifier_id = ? AND expires_at <= ?", studentID, verifierID, now)
}

func (r *BGVerificationRepo) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	return r.deleteWhere(ctx, "expires_at <= ?", now)
}

func (r *BGVerificationRepo) ListActiveByStudent(ctx context.Context, studentID string, now int64) ([]*model.BackgroundVerification, error) {
	return r.list(ctx, map[string]interface{}{
		"student_id":   studentID,
		"status in":    activeBGStatuses,
		"completed":    0,
		"expires_at >": now,
		"_orderby":     "requested_at desc",
	})
}

func (r *BGVerificationRepo) ListByVerifier(ctx context.Context, verifierID string, status model.BGStatus, now int64) ([]*model.BackgroundVerification, error) {
	where := map[string]interface{}{
		"verifier_id":  verifierID,
		"expires_at >": now,
		"_orderby":     "requested_at desc",
	}
	if status != "" {
		where["status"] = string(status)
	}
	return r.list(ctx, where)
}

// ListByRefereeEmail returns unexpired submitted requests that name email as a referee.
func (r *BGVerificationRepo) ListByRefereeEmail(ctx context.Context, email string, now int64) ([]*model.BackgroundVerification, error) {
	sqlStr, args := dbutil.Finalize(`SELECT DISTINCT bg_verification_id FROM bg_referee_contacts WHERE email = ?`,
		[]interface{}{strings.ToLower(email)})
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, map[string]interface{}{
		"id in":        toInterfaces(ids),
		"status":       string(model.BGSubmitted),
		"expires_at >": now,
		"_orderby":     "submitted_at desc",
	})
}

// ActiveStudentIDs returns which of studentIDs already have an active request from verifierID.
func (r *BGVerificationRepo) ActiveStudentIDs(ctx context.Context, verifierID string, studentIDs []string, now int64) (map[string]bool, error) {
	active := make(map[string]bool)
	if len(studentIDs) == 0 {
		return active, nil
	}
	query, args, err := sqlx.In(`SELECT student_id FROM bg_verifications
		WHERE verifier_id = ? AND student_id IN (?) AND status IN (?) AND completed = 0 AND expires_at > ?`,
		verifierID, studentIDs, []string{string(model.BGPending), string(model.BGSubmitted)}, now)
	if err != nil {
		return nil, err
	}
	query, args = dbutil.Finalize(query, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		active[id] = true
	}
	return active, rows.Err()
}

// SubmitReferences moves a pending, unexpired request to SUBMITTED and stores its
// contacts in one transaction. It reports false when the request was not pending.
func (r *BGVerificationRepo) SubmitReferences(ctx context.Context, id string, contacts []model.RefereeContact, now int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	sqlStr, args := dbutil.Finalize(`UPDATE bg_verifications SET status = ?, submitted_at = ?, mtime = ?
		WHERE id = ? AND status = ? AND expires_at > ?`,
		[]interface{}{string(model.BGSubmitted), now, now, id, string(model.BGPending), now})
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
	if len(contacts) > 0 {
		rowsData := make([]map[string]interface{}, 0, len(contacts))
		for _, c := range contacts {
			rowsData = append(rowsData, map[string]interface{}{
				"id":                 c.ID,
				"bg_verification_id": id,
				"seq":                c.Seq,
				"name":               c.Name,
				"email":              c.Email,
				"phone":              c.Phone,
				"role":               c.Role,
				"user_id":            c.UserID,
				"submitted_at":       c.SubmittedAt,
			})
		}
		insertSQL, insertArgs, err := builder.BuildInsert("bg_referee_contacts", rowsData)
		if err != nil {
			return false, err
		}
		insertSQL, insertArgs = dbutil.Finalize(insertSQL, insertArgs)
		if _, err := tx.ExecContext(ctx, insertSQL, insertArgs...); err != nil {
			if dbutil.IsConflict(err) {
				return false, appErr.ErrInvalid
			}
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Complete flags a request as completed by its verifier. It reports false when
// the request is missing, owned by someone else or already completed.
func (r *BGVerificationRepo) Complete(ctx context.Context, id, verifierID string, now int64) (bool, error) {
	sqlStr, args := dbutil.Finalize(`UPDATE bg_verifications SET completed = 1, completed_at = ?, completed_by = ?, mtime = ?
		WHERE id = ? AND verifier_id = ? AND completed = 0`,
		[]interface{}{now, verifierID, now, id, verifierID})
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *BGVerificationRepo) deleteWhere(ctx context.Context, cond string, args ...interface{}) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	contactsSQL, contactsArgs := dbutil.Finalize(`DELETE FROM bg_referee_contacts WHERE bg_verification_id IN (SELECT id FROM bg_verifications WHERE `+cond+`)`, args)
	if _, err := tx.ExecContext(ctx, contactsSQL, contactsArgs...); err != nil {
		return 0, err
	}
	deleteSQL, deleteArgs := dbutil.Finalize(`DELETE FROM bg_verifications WHERE `+cond, args)
	result, err := tx.ExecContext(ctx, deleteSQL, deleteArgs...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}

func (r *BGVerificationRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.BackgroundVerification, error) {
	sqlStr, args, err := builder.BuildSelect("bg_verifications", where, bgColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	var list []*model.BackgroundVerification
	for rows.Next() {
		var bg model.BackgroundVerification
		var status string
		if err := rows.Scan(&bg.ID, &bg.StudentID, &bg.StudentName, &bg.StudentEmail, &bg.StudentInstitute,
			&bg.VerifierID, &bg.VerifierName, &bg.VerifierEmail, &bg.VerifierInstitute, &bg.RefereeContactsRequested,
			&bg.Notes, &status, &bg.Completed, &bg.CompletedAt, &bg.CompletedBy, &bg.RequestedAt, &bg.SubmittedAt,
			&bg.ExpiresAt, &bg.Ctime, &bg.Mtime); err != nil {
			_ = rows.Close()
			return nil, err
		}
		bg.Status = model.BGStatus(status)
		list = append(list, &bg)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if err := r.attachContacts(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *BGVerificationRepo) attachContacts(ctx context.Context, list []*model.BackgroundVerification) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[string]*model.BackgroundVerification, len(list))
	ids := make([]string, 0, len(list))
	for _, bg := range list {
		bg.RefereeContacts = []model.RefereeContact{}
		byID[bg.ID] = bg
		ids = append(ids, bg.ID)
	}
	where := map[string]interface{}{"bg_verification_id in": toInterfaces(ids), "_orderby": "seq asc"}
	sqlStr, args, err := builder.BuildSelect("bg_referee_contacts", where,
		[]string{"id", "bg_verification_id", "seq", "name", "email", "phone", "role", "user_id", "submitted_at"})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var c model.RefereeContact
		var bgID string
		if err := rows.Scan(&c.ID, &bgID, &c.Seq, &c.Name, &c.Email, &c.Phone, &c.Role, &c.UserID, &c.SubmittedAt); err != nil {
			return err
		}
		if bg, ok := byID[bgID]; ok {
			bg.RefereeContacts = append(bg.RefereeContacts, c)
		}
	}
	return rows.Err()
}

func toInterfaces(list []string) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, v := range list {
		out = append(out, v)
	}
	return out
}
