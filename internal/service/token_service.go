package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/jwt"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

const (
	PurposeInviteClaim        = "invite_claim"
	PurposeVerificationAction = "verification_action"
)

type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt int64
}

type ValidatedToken struct {
	Claims *jwt.PurposeClaims
	Invite *model.VerifierInvite
}

// TokenService mints and checks the signed invite tokens. Each invite keeps one
// current jti per purpose; minting a new one invalidates every earlier token.
type TokenService struct {
	invites   InviteStore
	secret    []byte
	inviteTTL time.Duration
	actionTTL time.Duration
}

func NewTokenService(invites InviteStore, secret []byte, inviteTTL, actionTTL time.Duration) *TokenService {
	return &TokenService{invites: invites, secret: secret, inviteTTL: inviteTTL, actionTTL: actionTTL}
}

func (s *TokenService) IssueInviteClaim(inviteID, email string) (*IssuedToken, error) {
	return s.issue(inviteID, PurposeInviteClaim, email, s.inviteTTL)
}

func (s *TokenService) IssueAction(inviteID, email string) (*IssuedToken, error) {
	return s.issue(inviteID, PurposeVerificationAction, email, s.actionTTL)
}

func (s *TokenService) issue(inviteID, purpose, email string, ttl time.Duration) (*IssuedToken, error) {
	jti := newJTI()
	expiresAt := time.Now().Add(ttl)
	token, err := jwt.GeneratePurposeToken(inviteID, purpose, jti, normalizeEmail(email), s.secret, expiresAt)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, JTI: jti, ExpiresAt: expiresAt.Unix()}, nil
}

// Validate checks signature, purpose, expiry and that the token's jti is still the
// one stored on its invite.
func (s *TokenService) Validate(ctx context.Context, token string, purposes ...string) (*ValidatedToken, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token required", appErr.ErrTokenInvalid)
	}
	claims, err := jwt.ParsePurposeToken(token, s.secret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErr.ErrTokenExpired
		}
		return nil, appErr.ErrTokenInvalid
	}
	if !containsPurpose(purposes, claims.Purpose) {
		return nil, fmt.Errorf("%w: unexpected token purpose", appErr.ErrTokenRevoked)
	}
	invite, err := s.invites.GetByID(ctx, claims.Subject)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, fmt.Errorf("%w: invite", appErr.ErrNotFound)
		}
		return nil, err
	}
	storedJTI, storedExpiry := invite.TokenJTI, invite.TokenExpiresAt
	if claims.Purpose == PurposeVerificationAction {
		storedJTI, storedExpiry = invite.ActionTokenJTI, invite.ActionTokenExpiresAt
	}
	if storedJTI == "" || storedJTI != claims.ID {
		return nil, fmt.Errorf("%w: token superseded", appErr.ErrTokenRevoked)
	}
	if timeutil.Expired(storedExpiry, timeutil.NowUnix()) {
		return nil, appErr.ErrTokenExpired
	}
	return &ValidatedToken{Claims: claims, Invite: invite}, nil
}

func containsPurpose(purposes []string, purpose string) bool {
	for _, p := range purposes {
		if p == purpose {
			return true
		}
	}
	return false
}
