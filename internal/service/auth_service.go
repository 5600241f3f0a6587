package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/jwt"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/password"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

var errWeakPassword = fmt.Errorf("%w: password needs %d+ characters with upper, lower, digit and symbol", appErr.ErrInvalid, password.MinLength)

// SessionIssuer mints the bearer tokens the JWT middleware accepts.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewSessionIssuer(secret []byte, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{secret: secret, ttl: ttl}
}

func (s *SessionIssuer) Issue(user *model.User) (string, error) {
	return jwt.GenerateToken(user.ID, user.Email, string(user.Role), s.secret, s.ttl)
}

type AuthService struct {
	users    UserStore
	sessions *SessionIssuer
}

func NewAuthService(users UserStore, sessions *SessionIssuer) *AuthService {
	return &AuthService{users: users, sessions: sessions}
}

type RegisterRequest struct {
	Name      string
	Email     string
	Password  string
	Institute string
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*model.User, string, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if name == "" || !validEmail(email) {
		return nil, "", fmt.Errorf("%w: name and a valid email required", appErr.ErrInvalid)
	}
	if !password.IsStrong(req.Password) {
		return nil, "", errWeakPassword
	}
	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, "", err
	}
	now := timeutil.NowUnix()
	user := &model.User{
		ID:                   newID(),
		Name:                 name,
		Email:                email,
		PasswordHash:         hash,
		Role:                 model.RoleStudent,
		Institute:            strings.TrimSpace(req.Institute),
		ProfileSetupComplete: 1,
		Ctime:                now,
		Mtime:                now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}
	token, err := s.sessions.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, plainPassword string) (*model.User, string, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, "", appErr.ErrUnauthorized
	}
	if err := password.Compare(user.PasswordHash, plainPassword); err != nil {
		return nil, "", appErr.ErrUnauthorized
	}
	token, err := s.sessions.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// CompleteProfile finishes a placeholder account created for a referee.
func (s *AuthService) CompleteProfile(ctx context.Context, userID, name, institute, plainPassword string) (*model.User, string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if user.ProfileSetupComplete == 1 {
		return nil, "", fmt.Errorf("%w: profile already complete", appErr.ErrConflict)
	}
	if !password.IsStrong(plainPassword) {
		return nil, "", errWeakPassword
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = displayName(user.Name, user.Email)
	}
	institute = strings.TrimSpace(institute)
	if institute == "" {
		institute = user.Institute
	}
	hash, err := password.Hash(plainPassword)
	if err != nil {
		return nil, "", err
	}
	now := timeutil.NowUnix()
	if err := s.users.CompleteProfile(ctx, user.ID, name, institute, hash, now); err != nil {
		return nil, "", err
	}
	user.Name = name
	user.Institute = institute
	user.Role = model.RoleVerifier
	user.ProfileSetupComplete = 1
	user.Mtime = now
	token, err := s.sessions.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}
