package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/didi/gendry/builder"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/dbutil"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

var userColumns = []string{
	"id", "name", "email", "password_hash", "role", "institute",
	"email_verified", "external_contact", "profile_setup_complete", "ctime", "mtime",
}

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	data := map[string]interface{}{
		"id":                     user.ID,
		"name":                   user.Name,
		"email":                  strings.ToLower(user.Email),
		"password_hash":          user.PasswordHash,
		"role":                   string(user.Role),
		"institute":              user.Institute,
		"email_verified":         user.EmailVerified,
		"external_contact":       user.ExternalContact,
		"profile_setup_complete": user.ProfileSetupComplete,
		"ctime":                  user.Ctime,
		"mtime":                  user.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("users", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, map[string]interface{}{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *UserRepo) GetByID(ctx context.Context, userID string) (*model.User, error) {
	return r.getOne(ctx, map[string]interface{}{"id": userID})
}

func (r *UserRepo) ListByEmails(ctx context.Context, emails []string) ([]*model.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{"email in": emails}
	return r.list(ctx, where)
}

// SearchStudents matches name, email or institute and leaves out one institute.
func (r *UserRepo) SearchStudents(ctx context.Context, query, excludeInstitute string, limit uint) ([]*model.User, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	sqlStr := `SELECT ` + strings.Join(userColumns, ", ") + ` FROM users
		WHERE role = ? AND LOWER(institute) <> LOWER(?)
		AND (LOWER(name) LIKE ? OR email LIKE ? OR LOWER(institute) LIKE ?)
		ORDER BY name ASC LIMIT ?`
	args := []interface{}{string(model.RoleStudent), excludeInstitute, pattern, pattern, pattern, limit}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanUsers(rows)
}

func (r *UserRepo) UpdateRole(ctx context.Context, userID string, role model.Role, mtime int64) error {
	return r.update(ctx, userID, map[string]interface{}{
		"role":  string(role),
		"mtime": mtime,
	})
}

func (r *UserRepo) CompleteProfile(ctx context.Context, userID, name, institute, passwordHash string, mtime int64) error {
	return r.update(ctx, userID, map[string]interface{}{
		"name":                   name,
		"institute":              institute,
		"password_hash":          passwordHash,
		"role":                   string(model.RoleVerifier),
		"profile_setup_complete": 1,
		"mtime":                  mtime,
	})
}

func (r *UserRepo) update(ctx context.Context, userID string, update map[string]interface{}) error {
	where := map[string]interface{}{"id": userID}
	sqlStr, args, err := builder.BuildUpdate("users", where, update)
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

func (r *UserRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.User, error) {
	where["_limit"] = []uint{0, 1}
	users, err := r.list(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, appErr.ErrNotFound
	}
	return users[0], nil
}

func (r *UserRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.User, error) {
	sqlStr, args, err := builder.BuildSelect("users", where, userColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]*model.User, error) {
	var users []*model.User
	for rows.Next() {
		var user model.User
		var role string
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role, &user.Institute,
			&user.EmailVerified, &user.ExternalContact, &user.ProfileSetupComplete, &user.Ctime, &user.Mtime); err != nil {
			return nil, err
		}
		user.Role = model.Role(role)
		users = append(users, &user)
	}
	return users, rows.Err()
}
