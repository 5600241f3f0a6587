package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/password"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

const defaultMagicLinkRedirect = "/dashboard"

type MagicLinkView struct {
	Valid    bool                   `json:"valid"`
	Email    string                 `json:"email"`
	Type     model.MagicLinkType    `json:"type"`
	Context  model.MagicLinkContext `json:"context"`
	User     *model.User            `json:"user"`
	Redirect string                 `json:"redirect"`
}

type MagicLinkLogin struct {
	User     *model.User `json:"user"`
	Token    string      `json:"token"`
	Redirect string      `json:"redirect"`
}

// MagicLinkService hands out single-use opaque sign-in tokens. The token string
// is the lookup key; consuming it is one conditional update.
type MagicLinkService struct {
	links    MagicLinkStore
	users    UserStore
	sessions *SessionIssuer
	ttl      time.Duration
}

func NewMagicLinkService(links MagicLinkStore, users UserStore, sessions *SessionIssuer, ttl time.Duration) *MagicLinkService {
	return &MagicLinkService{links: links, users: users, sessions: sessions, ttl: ttl}
}

func (s *MagicLinkService) Issue(ctx context.Context, email string, linkType model.MagicLinkType, linkCtx model.MagicLinkContext) (*model.MagicLinkToken, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: valid email required", appErr.ErrInvalid)
	}
	now := timeutil.NowUnix()
	link := &model.MagicLinkToken{
		Token:     newToken(),
		Email:     email,
		Type:      linkType,
		Context:   linkCtx,
		ExpiresAt: now + int64(s.ttl/time.Second),
		Ctime:     now,
	}
	if err := s.links.Create(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// Validate checks a link without consuming it.
func (s *MagicLinkService) Validate(ctx context.Context, token, redirect string) (*MagicLinkView, error) {
	link, err := s.usable(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, link.Email)
	if err != nil {
		return nil, err
	}
	target := chatRedirect(link.Context)
	if safeRedirect(redirect) {
		target = redirect
	}
	return &MagicLinkView{
		Valid:    true,
		Email:    link.Email,
		Type:     link.Type,
		Context:  link.Context,
		User:     user,
		Redirect: target,
	}, nil
}

// SetPassword consumes the link and sets the account password in one step.
func (s *MagicLinkService) SetPassword(ctx context.Context, token, plainPassword string) (*MagicLinkLogin, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token required", appErr.ErrTokenInvalid)
	}
	if !password.IsStrong(plainPassword) {
		return nil, errWeakPassword
	}
	if _, err := s.usable(ctx, token); err != nil {
		return nil, err
	}
	hash, err := password.Hash(plainPassword)
	if err != nil {
		return nil, err
	}
	link, err := s.links.ConsumeAndSetPassword(ctx, token, hash, timeutil.NowUnix())
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, fmt.Errorf("%w: magic link already used", appErr.ErrTokenRevoked)
		}
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, link.Email)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.Issue(user)
	if err != nil {
		return nil, err
	}
	return &MagicLinkLogin{User: user, Token: session, Redirect: chatRedirect(link.Context)}, nil
}

func (s *MagicLinkService) usable(ctx context.Context, token string) (*model.MagicLinkToken, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token required", appErr.ErrTokenInvalid)
	}
	link, err := s.links.Get(ctx, token)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, fmt.Errorf("%w: unknown magic link", appErr.ErrTokenInvalid)
		}
		return nil, err
	}
	if link.Used != 0 {
		return nil, fmt.Errorf("%w: magic link already used", appErr.ErrTokenRevoked)
	}
	if timeutil.Expired(link.ExpiresAt, timeutil.NowUnix()) {
		return nil, appErr.ErrTokenExpired
	}
	return link, nil
}

func chatRedirect(linkCtx model.MagicLinkContext) string {
	if linkCtx.ChatID == "" {
		return defaultMagicLinkRedirect
	}
	return "/bg-chat/" + linkCtx.ChatID
}

// safeRedirect accepts only same-origin absolute paths.
func safeRedirect(redirect string) bool {
	return strings.HasPrefix(redirect, "/") && !strings.HasPrefix(redirect, "//") && !strings.Contains(redirect, "\\")
}
