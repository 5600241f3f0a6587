package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/dbutil"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

var experienceColumns = []string{
	"id", "user_id", "title", "organization", "role", "start_date", "end_date",
	"description", "attachments_json", "verified", "verified_at", "verified_by", "verifier_comment",
	"verifier_name", "verifier_organization", "ctime", "mtime",
}

type ExperienceRepo struct {
	db *sql.DB
}

func NewExperienceRepo(db *sql.DB) *ExperienceRepo {
	return &ExperienceRepo{db: db}
}

func (r *ExperienceRepo) Create(ctx context.Context, exp *model.Experience) error {
	attachments, err := encodeAttachments(exp.Attachments)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":               exp.ID,
		"user_id":          exp.UserID,
		"title":            exp.Title,
		"organization":     exp.Organization,
		"role":             exp.Role,
		"start_date":       exp.StartDate,
		"end_date":         exp.EndDate,
		"description":      exp.Description,
		"attachments_json": attachments,
		"ctime":            exp.Ctime,
		"mtime":            exp.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("experiences", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ExperienceRepo) GetByID(ctx context.Context, id string) (*model.Experience, error) {
	list, err := r.list(ctx, map[string]interface{}{"id": id, "_limit": []uint{0, 1}})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, appErr.ErrNotFound
	}
	return list[0], nil
}

func (r *ExperienceRepo) ListByUser(ctx context.Context, userID string) ([]*model.Experience, error) {
	return r.list(ctx, map[string]interface{}{"user_id": userID, "_orderby": "ctime desc"})
}

func (r *ExperienceRepo) ApplyOutcome(ctx context.Context, id string, outcome model.ItemOutcome) error {
	return applyItemOutcome(ctx, r.db, "experiences", id, outcome)
}

func (r *ExperienceRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Experience, error) {
	sqlStr, args, err := builder.BuildSelect("experiences", where, experienceColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var items []*model.Experience
	for rows.Next() {
		var exp model.Experience
		var attachments string
		if err := rows.Scan(&exp.ID, &exp.UserID, &exp.Title, &exp.Organization, &exp.Role, &exp.StartDate,
			&exp.EndDate, &exp.Description, &attachments, &exp.Verified, &exp.VerifiedAt,
			&exp.VerifiedBy, &exp.VerifierComment, &exp.VerifierName, &exp.VerifierOrganization, &exp.Ctime, &exp.Mtime); err != nil {
			return nil, err
		}
		exp.Attachments = decodeAttachments(attachments)
		items = append(items, &exp)
	}
	return items, rows.Err()
}
