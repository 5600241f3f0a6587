package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/metrics"
	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/password"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

const (
	inviteResendCooldownSeconds = 60
	maxInviteMessageLength      = 1000
	abuseReason                 = "Reported by recipient"
)

type CreateInviteRequest struct {
	VerificationID string
	Email          string
	ItemType       string
	ItemID         string
	Name           string
	Organization   string
	Message        string
	CreatorUserID  string
}

type InvitePreview struct {
	Invite       *model.VerifierInvite `json:"invite"`
	Verification struct {
		ID   string         `json:"id"`
		Type model.ItemType `json:"type"`
	} `json:"verification"`
	ItemTitle string `json:"item_title"`
}

type ClaimResult struct {
	HasAccount     bool        `json:"has_account"`
	ActionToken    string      `json:"action_token"`
	Token          *string     `json:"token"`
	User           *model.User `json:"user"`
	VerificationID string      `json:"verification_id"`
}

type InviteService struct {
	invites       InviteStore
	verifications VerificationStore
	records       *VerificationService
	users         UserStore
	items         *ItemRegistry
	tokens        *TokenService
	sessions      *SessionIssuer
	notifier      *Notifier
	templates     *MailTemplates
}

func NewInviteService(invites InviteStore, verifications VerificationStore, records *VerificationService, users UserStore,
	items *ItemRegistry, tokens *TokenService, sessions *SessionIssuer, notifier *Notifier, templates *MailTemplates) *InviteService {
	return &InviteService{
		invites:       invites,
		verifications: verifications,
		records:       records,
		users:         users,
		items:         items,
		tokens:        tokens,
		sessions:      sessions,
		notifier:      notifier,
		templates:     templates,
	}
}

func (s *InviteService) Create(ctx context.Context, req CreateInviteRequest) (*model.VerifierInvite, error) {
	creator, err := s.users.GetByID(ctx, req.CreatorUserID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.ErrUnauthorized
		}
		return nil, err
	}
	record, err := s.resolveVerification(ctx, req, creator)
	if err != nil {
		return nil, err
	}
	email := normalizeEmail(req.Email)
	if email == "" {
		email = record.VerifierEmail
	}
	if email != record.VerifierEmail {
		return nil, fmt.Errorf("%w: a verification is already pending for this item", appErr.ErrInvalid)
	}
	item, err := s.items.Summary(ctx, record.ItemType, record.ItemID)
	if err != nil {
		return nil, err
	}

	now := timeutil.NowUnix()
	if _, err := s.invites.ExpirePendingFor(ctx, record.ID, email, now); err != nil {
		return nil, err
	}
	invite := &model.VerifierInvite{
		ID:              newID(),
		VerificationID:  record.ID,
		Email:           strings.TrimSpace(req.Email),
		EmailLower:      email,
		Name:            strings.TrimSpace(req.Name),
		Organization:    strings.TrimSpace(req.Organization),
		Message:         truncate(strings.TrimSpace(req.Message), maxInviteMessageLength),
		CreatedByUserID: creator.ID,
		Status:          model.InvitePending,
		LastSentAt:      now,
		NotifyCount:     1,
		Ctime:           now,
		Mtime:           now,
	}
	if invite.Email == "" {
		invite.Email = email
	}
	issued, err := s.tokens.IssueInviteClaim(invite.ID, email)
	if err != nil {
		return nil, err
	}
	invite.TokenJTI = issued.JTI
	invite.TokenExpiresAt = issued.ExpiresAt
	invite.Audit = []model.InviteAuditEntry{{Action: model.InviteAuditCreated, Actor: creator.Email, At: now}}
	if err := s.invites.Create(ctx, invite); err != nil {
		if appErr.IsConflict(err) {
			return nil, fmt.Errorf("%w: an invite to this email is already pending", appErr.ErrInvalid)
		}
		return nil, err
	}
	metrics.InviteEvents.WithLabelValues("created").Inc()

	if record.VerifierName == "" || record.VerifierOrganization == "" {
		name, org := "", ""
		if record.VerifierName == "" {
			name = displayName(invite.Name, invite.Email)
		}
		if record.VerifierOrganization == "" {
			org = invite.Organization
		}
		if err := s.verifications.UpdateVerifierInfo(ctx, record.ID, name, org, now); err != nil {
			logutil.GetLogger(ctx).Warn("store verifier info failed", zap.String("verification_id", record.ID), zap.Error(err))
		}
	}
	s.notifier.Email(ctx, "invite:"+invite.ID+":"+issued.JTI,
		s.templates.Invite(invite, issued.Token, item.Title, displayName(creator.Name, creator.Email), record.ItemType))
	return invite, nil
}

// resolveVerification finds the record an invite targets, creating the pending
// record when the caller names an item instead of a verification.
func (s *InviteService) resolveVerification(ctx context.Context, req CreateInviteRequest, creator *model.User) (*model.Verification, error) {
	if req.VerificationID != "" {
		record, err := s.verifications.GetByID(ctx, req.VerificationID)
		if err != nil {
			return nil, err
		}
		if _, err := s.items.Lookup(record.ItemType); err != nil {
			return nil, err
		}
		if err := decidable(record, timeutil.NowUnix()); err != nil {
			return nil, fmt.Errorf("%w: verification is not pending", appErr.ErrGone)
		}
		return record, nil
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.ItemType == "" || req.ItemID == "" {
		return nil, fmt.Errorf("%w: verification id or email, item type and item id required", appErr.ErrInvalid)
	}
	itemType, ok := model.ParseItemType(req.ItemType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown item type", appErr.ErrInvalid)
	}
	if itemType == model.ItemTypeGithubProject {
		return nil, fmt.Errorf("%w: invites are not supported for github projects", appErr.ErrInvalid)
	}
	if _, err := s.items.Summary(ctx, itemType, req.ItemID); err != nil {
		return nil, err
	}
	record, _, err := s.records.CreateOrGetPending(ctx, PendingRequest{
		ItemID:               req.ItemID,
		ItemType:             itemType,
		VerifierEmail:        email,
		VerifierName:         req.Name,
		VerifierOrganization: req.Organization,
		ActorEmail:           creator.Email,
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *InviteService) Resend(ctx context.Context, inviteID, userID string) (*model.VerifierInvite, error) {
	invite, err := s.invites.GetByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.CreatedByUserID != userID {
		return nil, fmt.Errorf("%w: only the invite creator can resend", appErr.ErrForbidden)
	}
	if invite.Status != model.InvitePending {
		return nil, fmt.Errorf("%w: invite is %s", appErr.ErrGone, strings.ToLower(string(invite.Status)))
	}
	now := timeutil.NowUnix()
	if invite.LastSentAt+inviteResendCooldownSeconds > now {
		return nil, appErr.ErrTooMany
	}
	issued, err := s.tokens.IssueInviteClaim(invite.ID, invite.EmailLower)
	if err != nil {
		return nil, err
	}
	creator, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := s.invites.RotateClaimToken(ctx, invite.ID, issued.JTI, issued.ExpiresAt, now,
		model.InviteAuditEntry{Action: model.InviteAuditResent, Actor: creator.Email, At: now})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: invite is no longer pending", appErr.ErrGone)
	}
	invite.TokenJTI = issued.JTI
	invite.TokenExpiresAt = issued.ExpiresAt
	invite.LastSentAt = now
	invite.NotifyCount++
	invite.Mtime = now
	metrics.InviteEvents.WithLabelValues("resent").Inc()

	title, itemType := "Verification Request", model.ItemType("")
	if record, err := s.verifications.GetByID(ctx, invite.VerificationID); err == nil {
		itemType = record.ItemType
		if item, err := s.items.Summary(ctx, record.ItemType, record.ItemID); err == nil {
			title = item.Title
		}
	}
	s.notifier.Email(ctx, "invite:"+invite.ID+":"+issued.JTI,
		s.templates.Invite(invite, issued.Token, title, displayName(creator.Name, creator.Email), itemType))
	return invite, nil
}

// Preview is a read-only look at a pending invite for the holder of its claim link.
func (s *InviteService) Preview(ctx context.Context, token string) (*InvitePreview, error) {
	validated, err := s.tokens.Validate(ctx, token, PurposeInviteClaim)
	if err != nil {
		return nil, err
	}
	invite := validated.Invite
	if invite.Status != model.InvitePending {
		return nil, fmt.Errorf("%w: invite is %s", appErr.ErrGone, strings.ToLower(string(invite.Status)))
	}
	preview := &InvitePreview{Invite: invite}
	record, err := s.verifications.GetByID(ctx, invite.VerificationID)
	if err != nil {
		return nil, err
	}
	preview.Verification.ID = record.ID
	preview.Verification.Type = record.ItemType
	if item, err := s.items.Summary(ctx, record.ItemType, record.ItemID); err == nil {
		preview.ItemTitle = item.Title
	}
	return preview, nil
}

func (s *InviteService) Claim(ctx context.Context, inviteID, token string) (*ClaimResult, error) {
	validated, err := s.tokens.Validate(ctx, token, PurposeInviteClaim)
	if err != nil {
		return nil, err
	}
	invite := validated.Invite
	if validated.Claims.Subject != inviteID {
		return nil, fmt.Errorf("%w: token does not match invite", appErr.ErrTokenInvalid)
	}
	if invite.Status != model.InvitePending {
		return nil, fmt.Errorf("%w: invite is %s", appErr.ErrGone, strings.ToLower(string(invite.Status)))
	}
	if normalizeEmail(validated.Claims.Email) != invite.EmailLower {
		return nil, fmt.Errorf("%w: token email does not match invite", appErr.ErrForbidden)
	}

	user, err := s.users.GetByEmail(ctx, invite.EmailLower)
	if err != nil && !appErr.IsNotFound(err) {
		return nil, err
	}
	now := timeutil.NowUnix()
	usedBy := ""
	if user != nil {
		usedBy = user.ID
	}
	action, err := s.tokens.IssueAction(invite.ID, invite.EmailLower)
	if err != nil {
		return nil, err
	}
	ok, err := s.invites.Claim(ctx, invite.ID, validated.Claims.ID, usedBy, action.JTI, action.ExpiresAt, now,
		model.InviteAuditEntry{Action: model.InviteAuditClaimed, Actor: invite.EmailLower, At: now})
	if err != nil {
		return nil, err
	}
	if !ok {
		latest, getErr := s.invites.GetByID(ctx, invite.ID)
		if getErr == nil && latest.Status != model.InvitePending {
			return nil, fmt.Errorf("%w: invite is %s", appErr.ErrGone, strings.ToLower(string(latest.Status)))
		}
		return nil, fmt.Errorf("%w: token superseded", appErr.ErrTokenRevoked)
	}
	metrics.InviteEvents.WithLabelValues("claimed").Inc()

	if user != nil && user.Role != model.RoleVerifier {
		if err := s.users.UpdateRole(ctx, user.ID, model.RoleVerifier, now); err != nil {
			return nil, err
		}
		user.Role = model.RoleVerifier
	}
	org := invite.Organization
	if err := s.verifications.UpdateVerifierInfo(ctx, invite.VerificationID, displayName(invite.Name, invite.Email), org, now); err != nil {
		logutil.GetLogger(ctx).Warn("store verifier info failed", zap.String("verification_id", invite.VerificationID), zap.Error(err))
	}

	result := &ClaimResult{
		HasAccount:     user != nil,
		ActionToken:    action.Token,
		User:           user,
		VerificationID: invite.VerificationID,
	}
	if user != nil {
		session, err := s.sessions.Issue(user)
		if err != nil {
			return nil, err
		}
		result.Token = &session
	}
	return result, nil
}

// CreateAccount turns the invited email into a VERIFIER account. Either of the
// invite's current tokens proves the email.
func (s *InviteService) CreateAccount(ctx context.Context, inviteID, token, plainPassword, name string) (*model.User, string, error) {
	validated, err := s.tokens.Validate(ctx, token, PurposeInviteClaim, PurposeVerificationAction)
	if err != nil {
		return nil, "", err
	}
	invite := validated.Invite
	if validated.Claims.Subject != inviteID {
		return nil, "", fmt.Errorf("%w: token does not match invite", appErr.ErrTokenInvalid)
	}
	if normalizeEmail(validated.Claims.Email) != invite.EmailLower {
		return nil, "", fmt.Errorf("%w: token email does not match invite", appErr.ErrForbidden)
	}
	if !password.IsStrong(plainPassword) {
		return nil, "", errWeakPassword
	}
	if _, err := s.users.GetByEmail(ctx, invite.EmailLower); err == nil {
		return nil, "", fmt.Errorf("%w: account already exists, please login", appErr.ErrInvalid)
	} else if !appErr.IsNotFound(err) {
		return nil, "", err
	}
	hash, err := password.Hash(plainPassword)
	if err != nil {
		return nil, "", err
	}
	now := timeutil.NowUnix()
	name = strings.TrimSpace(name)
	if name == "" {
		name = displayName(invite.Name, invite.Email)
	}
	user := &model.User{
		ID:                   newID(),
		Name:                 name,
		Email:                invite.EmailLower,
		PasswordHash:         hash,
		Role:                 model.RoleVerifier,
		Institute:            invite.Organization,
		EmailVerified:        1,
		ProfileSetupComplete: 1,
		Ctime:                now,
		Mtime:                now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if appErr.IsConflict(err) {
			return nil, "", fmt.Errorf("%w: account already exists, please login", appErr.ErrInvalid)
		}
		return nil, "", err
	}
	if err := s.invites.BindUser(ctx, invite.ID, user.ID, now,
		model.InviteAuditEntry{Action: model.InviteAuditAccountCreated, Actor: user.Email, At: now}); err != nil {
		logutil.GetLogger(ctx).Warn("bind invite user failed", zap.String("invite_id", invite.ID), zap.Error(err))
	}
	metrics.InviteEvents.WithLabelValues("account_created").Inc()
	session, err := s.sessions.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, session, nil
}

// ReportAbuse revokes the invite whatever state it is in.
func (s *InviteService) ReportAbuse(ctx context.Context, inviteID, token string) error {
	actor := "anonymous"
	if token != "" {
		if validated, err := s.tokens.Validate(ctx, token, PurposeInviteClaim, PurposeVerificationAction); err == nil {
			actor = validated.Invite.EmailLower
		}
	}
	now := timeutil.NowUnix()
	if err := s.invites.Revoke(ctx, inviteID, abuseReason, now,
		model.InviteAuditEntry{Action: model.InviteAuditRevoked, Actor: actor, At: now, Metadata: map[string]string{"reason": abuseReason}}); err != nil {
		return err
	}
	metrics.InviteEvents.WithLabelValues("revoked").Inc()
	logutil.GetLogger(ctx).Warn("invite reported as abuse", zap.String("invite_id", inviteID), zap.String("actor", actor))
	return nil
}
