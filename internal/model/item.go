package model

import "strings"

type ItemType string

const (
	ItemTypeEducation     ItemType = "EDUCATION"
	ItemTypeExperience    ItemType = "EXPERIENCE"
	ItemTypeGithubProject ItemType = "GITHUB_PROJECT"
)

// ParseItemType accepts any casing of a known item type.
func ParseItemType(raw string) (ItemType, bool) {
	switch t := ItemType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case ItemTypeEducation, ItemTypeExperience, ItemTypeGithubProject:
		return t, true
	default:
		return "", false
	}
}

type Education struct {
	ID                   string   `json:"id"`
	UserID               string   `json:"user_id"`
	CourseName           string   `json:"course_name"`
	SchoolOrCollege      string   `json:"school_or_college"`
	BoardOrUniversity    string   `json:"board_or_university"`
	PassingYear          int      `json:"passing_year"`
	Grade                string   `json:"grade"`
	Description          string   `json:"description"`
	Attachments          []string `json:"attachments"`
	Verified             int      `json:"verified"`
	VerifiedAt           int64    `json:"verified_at"`
	VerifiedBy           string   `json:"verified_by"`
	VerifierComment      string   `json:"verifier_comment"`
	VerifierName         string   `json:"verifier_name"`
	VerifierOrganization string   `json:"verifier_organization"`
	Ctime                int64    `json:"ctime"`
	Mtime                int64    `json:"mtime"`
}

type Experience struct {
	ID                   string   `json:"id"`
	UserID               string   `json:"user_id"`
	Title                string   `json:"title"`
	Organization         string   `json:"organization"`
	Role                 string   `json:"role"`
	StartDate            string   `json:"start_date"`
	EndDate              string   `json:"end_date"`
	Description          string   `json:"description"`
	Attachments          []string `json:"attachments"`
	Verified             int      `json:"verified"`
	VerifiedAt           int64    `json:"verified_at"`
	VerifiedBy           string   `json:"verified_by"`
	VerifierComment      string   `json:"verifier_comment"`
	VerifierName         string   `json:"verifier_name"`
	VerifierOrganization string   `json:"verifier_organization"`
	Ctime                int64    `json:"ctime"`
	Mtime                int64    `json:"mtime"`
}

// ItemOutcome is what a decided verification writes onto its claim item.
type ItemOutcome struct {
	Verified             bool
	VerifiedAt           int64
	VerifiedBy           string
	Comment              string
	VerifierName         string
	VerifierOrganization string
}

// ItemSummary is the type-independent view of a claim item.
type ItemSummary struct {
	ID          string   `json:"id"`
	Type        ItemType `json:"type"`
	OwnerID     string   `json:"owner_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Attachments []string `json:"attachments"`
	Detail      any      `json:"detail"`
}
