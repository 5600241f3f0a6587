package service

import (
	"context"

	"github.com/Xzayogn-ECS/trueport-backend/internal/live"
	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
)

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, userID string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ListByEmails(ctx context.Context, emails []string) ([]*model.User, error)
	SearchStudents(ctx context.Context, query, excludeInstitute string, limit uint) ([]*model.User, error)
	UpdateRole(ctx context.Context, userID string, role model.Role, mtime int64) error
	CompleteProfile(ctx context.Context, userID, name, institute, passwordHash string, mtime int64) error
}

type EducationStore interface {
	Create(ctx context.Context, edu *model.Education) error
	GetByID(ctx context.Context, id string) (*model.Education, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Education, error)
	ApplyOutcome(ctx context.Context, id string, outcome model.ItemOutcome) error
}

type ExperienceStore interface {
	Create(ctx context.Context, exp *model.Experience) error
	GetByID(ctx context.Context, id string) (*model.Experience, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Experience, error)
	ApplyOutcome(ctx context.Context, id string, outcome model.ItemOutcome) error
}

type VerificationStore interface {
	Create(ctx context.Context, v *model.Verification) error
	GetByID(ctx context.Context, id string) (*model.Verification, error)
	GetPendingForItem(ctx context.Context, itemID string, itemType model.ItemType, now int64) (*model.Verification, error)
	ExpirePendingForItem(ctx context.Context, itemID string, itemType model.ItemType, now int64) (int64, error)
	ExpireStale(ctx context.Context, now int64) (int64, error)
	Decide(ctx context.Context, id string, status model.VerificationStatus, decidedBy, comment string, now int64, entry *model.VerificationLog) (bool, error)
	UpdateVerifierInfo(ctx context.Context, id, name, organization string, now int64) error
}

type VerificationLogStore interface {
	Append(ctx context.Context, entry *model.VerificationLog) error
	ListByVerification(ctx context.Context, verificationID string) ([]*model.VerificationLog, error)
}

type InviteStore interface {
	Create(ctx context.Context, invite *model.VerifierInvite) error
	GetByID(ctx context.Context, id string) (*model.VerifierInvite, error)
	RotateClaimToken(ctx context.Context, id, jti string, expiresAt, now int64, entry model.InviteAuditEntry) (bool, error)
	Claim(ctx context.Context, id, expectedJTI, usedByUserID, actionJTI string, actionExpiresAt, now int64, entry model.InviteAuditEntry) (bool, error)
	BindUser(ctx context.Context, id, userID string, now int64, entry model.InviteAuditEntry) error
	Revoke(ctx context.Context, id, reason string, now int64, entry model.InviteAuditEntry) error
	ExpirePendingFor(ctx context.Context, verificationID, emailLower string, now int64) (int64, error)
	ExpireStale(ctx context.Context, now int64) (int64, error)
}

type BGVerificationStore interface {
	Create(ctx context.Context, bg *model.BackgroundVerification) error
	GetByID(ctx context.Context, id string) (*model.BackgroundVerification, error)
	DeleteExpiredForPair(ctx context.Context, studentID, verifierID string, now int64) (int64, error)
	DeleteExpired(ctx context.Context, now int64) (int64, error)
	ListActiveByStudent(ctx context.Context, studentID string, now int64) ([]*model.BackgroundVerification, error)
	ListByVerifier(ctx context.Context, verifierID string, status model.BGStatus, now int64) ([]*model.BackgroundVerification, error)
	ListByRefereeEmail(ctx context.Context, email string, now int64) ([]*model.BackgroundVerification, error)
	ActiveStudentIDs(ctx context.Context, verifierID string, studentIDs []string, now int64) (map[string]bool, error)
	SubmitReferences(ctx context.Context, id string, contacts []model.RefereeContact, now int64) (bool, error)
	Complete(ctx context.Context, id, verifierID string, now int64) (bool, error)
}

type ChatStore interface {
	FindOrCreate(ctx context.Context, chat *model.BGChat) (*model.BGChat, bool, error)
	GetByID(ctx context.Context, id string) (*model.BGChat, error)
	GetByTriple(ctx context.Context, bgVerificationID, requesterID, sharedContactID string) (*model.BGChat, error)
	ListByParticipant(ctx context.Context, userID string) ([]*model.BGChat, error)
	ListByBGVerification(ctx context.Context, bgVerificationID string) ([]*model.BGChat, error)
	AddMessage(ctx context.Context, msg *model.BGChatMessage) error
	ListMessages(ctx context.Context, chatID string) ([]*model.BGChatMessage, error)
	LastMessages(ctx context.Context, chatIDs []string) (map[string]*model.BGChatMessage, error)
}

type MagicLinkStore interface {
	Create(ctx context.Context, link *model.MagicLinkToken) error
	Get(ctx context.Context, token string) (*model.MagicLinkToken, error)
	ConsumeAndSetPassword(ctx context.Context, token, passwordHash string, now int64) (*model.MagicLinkToken, error)
	DeleteExpired(ctx context.Context, now int64) (int64, error)
}

type OutboxStore interface {
	Enqueue(ctx context.Context, event *model.OutboxEvent) error
	Lease(ctx context.Context, owner string, limit int, now, leaseUntil int64) ([]*model.OutboxEvent, error)
	MarkDone(ctx context.Context, id, owner string, now int64) error
	MarkRetry(ctx context.Context, id, owner string, nextAttemptAt int64, lastError string, now int64) error
	MarkDead(ctx context.Context, id, owner, lastError string, now int64) error
	DeleteDoneBefore(ctx context.Context, cutoff int64) (int64, error)
}

type LivePublisher interface {
	PublishUser(ctx context.Context, userID string, event live.Event)
	PublishChat(ctx context.Context, chatID string, event live.Event)
}
