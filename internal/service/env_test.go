package service

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

var (
	testSecret   = []byte("test-secret")
	previewToken = regexp.MustCompile(`/verifier-invite/preview/(\S+)`)
	magicToken   = regexp.MustCompile(`/auth/magic-link/(\S+)`)
)

const strongPassword = "Str0ng!Pass"

type testEnv struct {
	db        *memDB
	live      *recordingPublisher
	tokens    *TokenService
	sessions  *SessionIssuer
	records   *VerificationService
	invites   *InviteService
	items     *ItemService
	auth      *AuthService
	chats     *ChatService
	links     *MagicLinkService
	bgs       *BGVerificationService
	notifier  *Notifier
	templates *MailTemplates
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newMemDB()
	users := fakeUsers{db}
	registry := NewItemRegistry(fakeEducations{db}, fakeExperiences{db})
	publisher := &recordingPublisher{}
	notifier := NewNotifier(fakeOutbox{db})
	templates := NewMailTemplates("https://app.example.com/")
	tokens := NewTokenService(fakeInvites{db}, testSecret, 7*24*time.Hour, 24*time.Hour)
	sessions := NewSessionIssuer(testSecret, time.Hour)
	records := NewVerificationService(fakeVerifications{db}, fakeLogs{db: db}, users, registry, tokens, notifier, templates, 30*24*time.Hour)
	chats := NewChatService(fakeChats{db}, users, publisher)
	links := NewMagicLinkService(fakeLinks{db}, users, sessions, time.Hour)
	return &testEnv{
		db:        db,
		live:      publisher,
		tokens:    tokens,
		sessions:  sessions,
		records:   records,
		invites:   NewInviteService(fakeInvites{db}, fakeVerifications{db}, records, users, registry, tokens, sessions, notifier, templates),
		items:     NewItemService(fakeEducations{db}, fakeExperiences{db}, users, records, notifier, templates),
		auth:      NewAuthService(users, sessions),
		chats:     chats,
		links:     links,
		bgs:       NewBGVerificationService(fakeBGs{db}, users, chats, links, notifier, templates, 30*24*time.Hour, 2),
		notifier:  notifier,
		templates: templates,
	}
}

func (e *testEnv) addUser(t *testing.T, name, email string, role model.Role, institute string) *model.User {
	t.Helper()
	now := timeutil.NowUnix()
	user := &model.User{
		ID:                   newID(),
		Name:                 name,
		Email:                email,
		PasswordHash:         "x",
		Role:                 role,
		Institute:            institute,
		ProfileSetupComplete: 1,
		Ctime:                now,
		Mtime:                now,
	}
	require.NoError(t, fakeUsers{e.db}.Create(context.Background(), user))
	return user
}

func (e *testEnv) addEducation(t *testing.T, owner *model.User, course string) *model.Education {
	t.Helper()
	now := timeutil.NowUnix()
	edu := &model.Education{
		ID:              newID(),
		UserID:          owner.ID,
		CourseName:      course,
		SchoolOrCollege: "Springfield High",
		PassingYear:     2020,
		Ctime:           now,
		Mtime:           now,
	}
	require.NoError(t, fakeEducations{e.db}.Create(context.Background(), edu))
	return edu
}

func (e *testEnv) user(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := fakeUsers{e.db}.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *testEnv) invite(t *testing.T, id string) *model.VerifierInvite {
	t.Helper()
	i, err := fakeInvites{e.db}.GetByID(context.Background(), id)
	require.NoError(t, err)
	return i
}

func (e *testEnv) verification(t *testing.T, id string) *model.Verification {
	t.Helper()
	v, err := fakeVerifications{e.db}.GetByID(context.Background(), id)
	require.NoError(t, err)
	return v
}

// backdateInvite moves an invite's last send out of the resend cooldown.
func (e *testEnv) backdateInvite(id string, seconds int64) {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	e.db.invites[id].LastSentAt -= seconds
}

func decodeMail(t *testing.T, event *model.OutboxEvent) Mail {
	t.Helper()
	var mail Mail
	require.NoError(t, json.Unmarshal([]byte(event.PayloadJSON), &mail))
	return mail
}

// inviteToken returns the claim token mailed for one jti of an invite.
func (e *testEnv) inviteToken(t *testing.T, inviteID, jti string) string {
	t.Helper()
	events := e.db.emails("invite:" + inviteID + ":" + jti)
	require.Len(t, events, 1)
	m := previewToken.FindStringSubmatch(decodeMail(t, events[0]).Body)
	require.Len(t, m, 2)
	return m[1]
}

func (e *testEnv) currentInviteToken(t *testing.T, inviteID string) string {
	t.Helper()
	return e.inviteToken(t, inviteID, e.invite(t, inviteID).TokenJTI)
}
