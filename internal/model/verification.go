package model

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationApproved VerificationStatus = "APPROVED"
	VerificationRejected VerificationStatus = "REJECTED"
	// VerificationExpired marks a pending record whose window passed; it frees
	// the item for a new cycle.
	VerificationExpired  VerificationStatus = "EXPIRED"
)

type Verification struct {
	ID                   string             `json:"id"`
	ItemID               string             `json:"item_id"`
	ItemType             ItemType           `json:"item_type"`
	VerifierEmail        string             `json:"verifier_email"`
	VerifierName         string             `json:"verifier_name"`
	VerifierOrganization string             `json:"verifier_organization"`
	Status               VerificationStatus `json:"status"`
	Token                string             `json:"-"`
	Comment              string             `json:"comment"`
	DecidedBy            string             `json:"decided_by"`
	DecidedAt            int64              `json:"decided_at"`
	ExpiresAt            int64              `json:"expires_at"`
	Ctime                int64              `json:"ctime"`
	Mtime                int64              `json:"mtime"`
}

type LogAction string

const (
	LogActionCreated  LogAction = "CREATED"
	LogActionApproved LogAction = "APPROVED"
	LogActionRejected LogAction = "REJECTED"
)

type VerificationLog struct {
	ID             string            `json:"id"`
	VerificationID string            `json:"verification_id"`
	Action         LogAction         `json:"action"`
	ActorEmail     string            `json:"actor_email"`
	Metadata       map[string]string `json:"metadata"`
	Ctime          int64             `json:"ctime"`
}

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionDeny    Decision = "DENY"
)
