package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/dbutil"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

var educationColumns = []string{
	"id", "user_id", "course_name", "school_or_college", "board_or_university", "passing_year", "grade",
	"description", "attachments_json", "verified", "verified_at", "verified_by", "verifier_comment",
	"verifier_name", "verifier_organization", "ctime", "mtime",
}

type EducationRepo struct {
	db *sql.DB
}

func NewEducationRepo(db *sql.DB) *EducationRepo {
	return &EducationRepo{db: db}
}

func (r *EducationRepo) Create(ctx context.Context, edu *model.Education) error {
	attachments, err := encodeAttachments(edu.Attachments)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":                  edu.ID,
		"user_id":             edu.UserID,
		"course_name":         edu.CourseName,
		"school_or_college":   edu.SchoolOrCollege,
		"board_or_university": edu.BoardOrUniversity,
		"passing_year":        edu.PassingYear,
		"grade":               edu.Grade,
		"description":         edu.Description,
		"attachments_json":    attachments,
		"ctime":               edu.Ctime,
		"mtime":               edu.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("educations", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EducationRepo) GetByID(ctx context.Context, id string) (*model.Education, error) {
	list, err := r.list(ctx, map[string]interface{}{"id": id, "_limit": []uint{0, 1}})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, appErr.ErrNotFound
	}
	return list[0], nil
}

func (r *EducationRepo) ListByUser(ctx context.Context, userID string) ([]*model.Education, error) {
	return r.list(ctx, map[string]interface{}{"user_id": userID, "_orderby": "ctime desc"})
}

func (r *EducationRepo) ApplyOutcome(ctx context.Context, id string, outcome model.ItemOutcome) error {
	return applyItemOutcome(ctx, r.db, "educations", id, outcome)
}

func (r *EducationRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Education, error) {
	sqlStr, args, err := builder.BuildSelect("educations", where, educationColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var items []*model.Education
	for rows.Next() {
		var edu model.Education
		var attachments string
		if err := rows.Scan(&edu.ID, &edu.UserID, &edu.CourseName, &edu.SchoolOrCollege, &edu.BoardOrUniversity,
			&edu.PassingYear, &edu.Grade, &edu.Description, &attachments, &edu.Verified, &edu.VerifiedAt,
			&edu.VerifiedBy, &edu.VerifierComment, &edu.VerifierName, &edu.VerifierOrganization, &edu.Ctime, &edu.Mtime); err != nil {
			return nil, err
		}
		edu.Attachments = decodeAttachments(attachments)
		items = append(items, &edu)
	}
	return items, rows.Err()
}
