package model

type Role string

const (
	RoleStudent  Role = "STUDENT"
	RoleVerifier Role = "VERIFIER"
)

type User struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
	PasswordHash         string `json:"-"`
	Role                 Role   `json:"role"`
	Institute            string `json:"institute"`
	EmailVerified        int    `json:"email_verified"`
	ExternalContact      int    `json:"external_contact"`
	ProfileSetupComplete int    `json:"profile_setup_complete"`
	Ctime                int64  `json:"ctime"`
	Mtime                int64  `json:"mtime"`
}
