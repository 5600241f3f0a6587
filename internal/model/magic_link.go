package model

type MagicLinkType string

const (
	MagicLinkBGVerification    MagicLinkType = "BG_VERIFICATION"
	MagicLinkEmailVerification MagicLinkType = "EMAIL_VERIFICATION"
	MagicLinkPasswordReset     MagicLinkType = "PASSWORD_RESET"
	MagicLinkInvite            MagicLinkType = "INVITE"
)

type MagicLinkContext struct {
	BGVerificationID string            `json:"bg_verification_id,omitempty"`
	ChatID           string            `json:"chat_id,omitempty"`
	RequestID        string            `json:"request_id,omitempty"`
	UserID           string            `json:"user_id,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type MagicLinkToken struct {
	Token     string           `json:"-"`
	Email     string           `json:"email"`
	Type      MagicLinkType    `json:"type"`
	Context   MagicLinkContext `json:"context"`
	Used      int              `json:"used"`
	UsedAt    int64            `json:"used_at"`
	ExpiresAt int64            `json:"expires_at"`
	Ctime     int64            `json:"ctime"`
}
