package model

type InviteStatus string

const (
	InvitePending  InviteStatus = "PENDING"
	InviteAccepted InviteStatus = "ACCEPTED"
	InviteRevoked  InviteStatus = "REVOKED"
	InviteExpired  InviteStatus = "EXPIRED"
	InviteRejected InviteStatus = "REJECTED"
)

type InviteAuditAction string

const (
	InviteAuditCreated        InviteAuditAction = "CREATED"
	InviteAuditResent         InviteAuditAction = "RESENT"
	InviteAuditClaimed        InviteAuditAction = "CLAIMED"
	InviteAuditAccountCreated InviteAuditAction = "ACCOUNT_CREATED"
	InviteAuditRevoked        InviteAuditAction = "REVOKED"
)

type InviteAuditEntry struct {
	Action   InviteAuditAction `json:"action"`
	Actor    string            `json:"actor"`
	At       int64             `json:"at"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type VerifierInvite struct {
	ID                   string             `json:"id"`
	VerificationID       string             `json:"verification_id"`
	Email                string             `json:"email"`
	EmailLower           string             `json:"email_lower"`
	Name                 string             `json:"name"`
	Organization         string             `json:"organization"`
	Message              string             `json:"message"`
	CreatedByUserID      string             `json:"created_by_user_id"`
	Status               InviteStatus       `json:"status"`
	StatusReason         string             `json:"status_reason"`
	ComplaintFlag        int                `json:"complaint_flag"`
	TokenJTI             string             `json:"-"`
	TokenExpiresAt       int64              `json:"token_expires_at"`
	ActionTokenJTI       string             `json:"-"`
	ActionTokenExpiresAt int64              `json:"action_token_expires_at"`
	UsedAt               int64              `json:"used_at"`
	UsedByUserID         string             `json:"used_by_user_id"`
	LastSentAt           int64              `json:"last_sent_at"`
	NotifyCount          int                `json:"notify_count"`
	Audit                []InviteAuditEntry `json:"audit"`
	Ctime                int64              `json:"ctime"`
	Mtime                int64              `json:"mtime"`
}
