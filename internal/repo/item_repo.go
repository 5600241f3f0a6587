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

// applyItemOutcome writes a verification result onto an education or experience row.
// A rejection stamps the verifier fields and leaves the verified flag as it was.
func applyItemOutcome(ctx context.Context, db *sql.DB, table, id string, outcome model.ItemOutcome) error {
	update := map[string]interface{}{
		"verified_by":      outcome.VerifiedBy,
		"verifier_comment": outcome.Comment,
		"mtime":            outcome.VerifiedAt,
	}
	if outcome.VerifierName != "" {
		update["verifier_name"] = outcome.VerifierName
	}
	if outcome.VerifierOrganization != "" {
		update["verifier_organization"] = outcome.VerifierOrganization
	}
	if outcome.Verified {
		update["verified"] = 1
		update["verified_at"] = outcome.VerifiedAt
	}
	sqlStr, args, err := builder.BuildUpdate(table, map[string]interface{}{"id": id}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := db.ExecContext(ctx, sqlStr, args...)
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

func encodeAttachments(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeAttachments(raw string) []string {
	list := []string{}
	if raw == "" {
		return list
	}
	_ = json.Unmarshal([]byte(raw), &list)
	return list
}
