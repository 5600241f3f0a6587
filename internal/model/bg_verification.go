package model

type BGStatus string

const (
	BGPending   BGStatus = "PENDING"
	BGSubmitted BGStatus = "SUBMITTED"
)

const (
	MinRefereeContacts = 1
	MaxRefereeContacts = 3
)

type RefereeContact struct {
	ID          string `json:"id"`
	Seq         int    `json:"seq"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	UserID      string `json:"user_id"`
	SubmittedAt int64  `json:"submitted_at"`
}

type BackgroundVerification struct {
	ID                       string           `json:"id"`
	StudentID                string           `json:"student_id"`
	StudentName              string           `json:"student_name"`
	StudentEmail             string           `json:"student_email"`
	StudentInstitute         string           `json:"student_institute"`
	VerifierID               string           `json:"verifier_id"`
	VerifierName             string           `json:"verifier_name"`
	VerifierEmail            string           `json:"verifier_email"`
	VerifierInstitute        string           `json:"verifier_institute"`
	RefereeContactsRequested int              `json:"referee_contacts_requested"`
	RefereeContacts          []RefereeContact `json:"referee_contacts"`
	Notes                    string           `json:"notes"`
	Status                   BGStatus         `json:"status"`
	Completed                int              `json:"completed"`
	CompletedAt              int64            `json:"completed_at"`
	CompletedBy              string           `json:"completed_by"`
	RequestedAt              int64            `json:"requested_at"`
	SubmittedAt              int64            `json:"submitted_at"`
	ExpiresAt                int64            `json:"expires_at"`
	Ctime                    int64            `json:"ctime"`
	Mtime                    int64            `json:"mtime"`
}
