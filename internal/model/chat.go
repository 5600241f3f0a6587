package model

const MaxChatMessageLength = 2000

type BGChat struct {
	ID                 string `json:"id"`
	BGVerificationID   string `json:"bg_verification_id"`
	RequesterID        string `json:"requester_id"`
	RequesterEmail     string `json:"requester_email"`
	SharedContactID    string `json:"shared_contact_id"`
	SharedContactEmail string `json:"shared_contact_email"`
	StudentID          string `json:"student_id"`
	StudentEmail       string `json:"student_email"`
	IsActive           int    `json:"is_active"`
	LastMessageAt      int64  `json:"last_message_at"`
	Ctime              int64  `json:"ctime"`
	Mtime              int64  `json:"mtime"`
}

// IsParticipant reports whether userID is one of the two verifier sides.
func (c *BGChat) IsParticipant(userID string) bool {
	return userID != "" && (c.RequesterID == userID || c.SharedContactID == userID)
}

// OtherParticipant returns the id and email of the side that is not userID.
func (c *BGChat) OtherParticipant(userID string) (string, string) {
	if c.RequesterID == userID {
		return c.SharedContactID, c.SharedContactEmail
	}
	return c.RequesterID, c.RequesterEmail
}

type BGChatMessage struct {
	ID          string `json:"id"`
	ChatID      string `json:"chat_id"`
	SenderID    string `json:"sender_id"`
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name"`
	SenderRole  string `json:"sender_role"`
	Content     string `json:"content"`
	Ctime       int64  `json:"ctime"`
}
