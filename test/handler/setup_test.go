package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/Xzayogn-ECS/trueport-backend/internal/config"
	"github.com/Xzayogn-ECS/trueport-backend/internal/filestore"
	"github.com/Xzayogn-ECS/trueport-backend/internal/handler"
	"github.com/Xzayogn-ECS/trueport-backend/internal/live"
	"github.com/Xzayogn-ECS/trueport-backend/internal/middleware"
	"github.com/Xzayogn-ECS/trueport-backend/internal/repo"
	"github.com/Xzayogn-ECS/trueport-backend/internal/service"
	"github.com/Xzayogn-ECS/trueport-backend/test/testutil"
)

var previewLink = regexp.MustCompile(`/verifier-invite/preview/(\S+)`)

type testServer struct {
	t       *testing.T
	handler http.Handler
	db      *sql.DB
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setupServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, cleanup := testutil.OpenTestDB(t)
	userRepo := repo.NewUserRepo(db)
	educationRepo := repo.NewEducationRepo(db)
	experienceRepo := repo.NewExperienceRepo(db)
	verificationRepo := repo.NewVerificationRepo(db)
	inviteRepo := repo.NewInviteRepo(db)
	bgRepo := repo.NewBGVerificationRepo(db)
	chatRepo := repo.NewBGChatRepo(db)
	magicLinkRepo := repo.NewMagicLinkRepo(db)
	outboxRepo := repo.NewOutboxRepo(db)

	secret := []byte("test-secret")
	sessions := service.NewSessionIssuer(secret, time.Hour)
	notifier := service.NewNotifier(outboxRepo)
	templates := service.NewMailTemplates("https://app.example.com")
	registry := service.NewItemRegistry(educationRepo, experienceRepo)
	tokens := service.NewTokenService(inviteRepo, secret, 7*24*time.Hour, 24*time.Hour)
	verifications := service.NewVerificationService(verificationRepo, repo.NewVerificationLogRepo(db), userRepo, registry,
		tokens, notifier, templates, 30*24*time.Hour)
	links := service.NewMagicLinkService(magicLinkRepo, userRepo, sessions, time.Hour)
	chats := service.NewChatService(chatRepo, userRepo, live.NewNoop())
	invites := service.NewInviteService(inviteRepo, verificationRepo, verifications, userRepo, registry, tokens,
		sessions, notifier, templates)
	bgs := service.NewBGVerificationService(bgRepo, userRepo, chats, links, notifier, templates, 30*24*time.Hour, 2)

	tmpDir, err := os.MkdirTemp("", "trueport-upload-*")
	require.NoError(t, err)
	store, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": tmpDir},
	})
	require.NoError(t, err)

	deps := handler.RouterDeps{
		Auth:            handler.NewAuthHandler(service.NewAuthService(userRepo, sessions), links),
		Items:           handler.NewItemHandler(service.NewItemService(educationRepo, experienceRepo, userRepo, verifications, notifier, templates)),
		Files:           handler.NewFileHandler(store, 5*1024*1024),
		Invites:         handler.NewInviteHandler(invites),
		Verifications:   handler.NewVerificationHandler(verifications),
		BGVerifications: handler.NewBGVerificationHandler(bgs, chats),
		JWTSecret:       secret,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)

	return &testServer{t: t, handler: engine, db: db}, func() {
		cleanup()
		_ = os.RemoveAll(tmpDir)
	}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(s.t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	var out envelope
	if resp.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	}
	return resp.Code, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// inviteLinkToken reads the claim token out of the newest queued invite mail.
func (s *testServer) inviteLinkToken(inviteID string) string {
	s.t.Helper()
	var payload string
	err := s.db.QueryRowContext(context.Background(),
		`SELECT payload_json FROM outbox_events WHERE dedupe_key LIKE $1 ORDER BY ctime DESC, id LIMIT 1`,
		"invite:"+inviteID+":%").Scan(&payload)
	require.NoError(s.t, err)
	var mail service.Mail
	require.NoError(s.t, json.Unmarshal([]byte(payload), &mail))
	match := previewLink.FindStringSubmatch(mail.Body)
	require.Len(s.t, match, 2, mail.Body)
	return match[1]
}
