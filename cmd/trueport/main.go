package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/config"
	"github.com/Xzayogn-ECS/trueport-backend/internal/db"
	"github.com/Xzayogn-ECS/trueport-backend/internal/filestore"
	"github.com/Xzayogn-ECS/trueport-backend/internal/handler"
	"github.com/Xzayogn-ECS/trueport-backend/internal/job"
	"github.com/Xzayogn-ECS/trueport-backend/internal/live"
	"github.com/Xzayogn-ECS/trueport-backend/internal/middleware"
	"github.com/Xzayogn-ECS/trueport-backend/internal/repo"
	"github.com/Xzayogn-ECS/trueport-backend/internal/schedule"
	"github.com/Xzayogn-ECS/trueport-backend/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "trueport",
		Short: "trueport verification backend",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run http server and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runServer(cfg, conn)
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "expire stale records and drain the outbox once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			app := newApp(cfg, conn, live.NewNoop())
			ctx := cmd.Context()
			if err := schedule.RunOnce(ctx, app.sweepJob); err != nil {
				return err
			}
			return schedule.RunOnce(ctx, app.dispatchJob)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd, sweepCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func bootstrap(configPath string) (*config.Config, *sql.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, conn, nil
}

type app struct {
	auth          *service.AuthService
	links         *service.MagicLinkService
	items         *service.ItemService
	verifications *service.VerificationService
	invites       *service.InviteService
	bgs           *service.BGVerificationService
	chats         *service.ChatService
	sweepJob      *job.ExpirySweepJob
	dispatchJob   *job.OutboxDispatchJob
}

func newApp(cfg *config.Config, conn *sql.DB, publisher service.LivePublisher) *app {
	userRepo := repo.NewUserRepo(conn)
	educationRepo := repo.NewEducationRepo(conn)
	experienceRepo := repo.NewExperienceRepo(conn)
	verificationRepo := repo.NewVerificationRepo(conn)
	verificationLogRepo := repo.NewVerificationLogRepo(conn)
	inviteRepo := repo.NewInviteRepo(conn)
	bgRepo := repo.NewBGVerificationRepo(conn)
	chatRepo := repo.NewBGChatRepo(conn)
	magicLinkRepo := repo.NewMagicLinkRepo(conn)
	outboxRepo := repo.NewOutboxRepo(conn)

	secret := []byte(cfg.JWTSecret)
	sessions := service.NewSessionIssuer(secret, time.Hour*time.Duration(cfg.JWTTTLHours))
	notifier := service.NewNotifier(outboxRepo)
	templates := service.NewMailTemplates(cfg.FrontendURL)
	registry := service.NewItemRegistry(educationRepo, experienceRepo)
	tokens := service.NewTokenService(inviteRepo, secret,
		time.Hour*time.Duration(cfg.Verification.InviteTTLHours),
		time.Minute*time.Duration(cfg.Verification.ActionTTLMinutes))

	verifications := service.NewVerificationService(verificationRepo, verificationLogRepo, userRepo, registry,
		tokens, notifier, templates, 24*time.Hour*time.Duration(cfg.Verification.RecordTTLDays))
	links := service.NewMagicLinkService(magicLinkRepo, userRepo, sessions, time.Hour*time.Duration(cfg.MagicLink.TTLHours))
	chats := service.NewChatService(chatRepo, userRepo, publisher)
	dispatcher := service.NewOutboxDispatcher(outboxRepo, service.NewEmailSender(cfg.Mail), service.OutboxDispatcherConfig{
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Lease:       time.Second * time.Duration(cfg.Outbox.LeaseSeconds),
	})

	return &app{
		auth:          service.NewAuthService(userRepo, sessions),
		links:         links,
		items:         service.NewItemService(educationRepo, experienceRepo, userRepo, verifications, notifier, templates),
		verifications: verifications,
		invites: service.NewInviteService(inviteRepo, verificationRepo, verifications, userRepo, registry, tokens,
			sessions, notifier, templates),
		bgs: service.NewBGVerificationService(bgRepo, userRepo, chats, links, notifier, templates,
			24*time.Hour*time.Duration(cfg.BackgroundCheck.TTLDays), cfg.BackgroundCheck.DefaultReferees),
		chats: chats,
		sweepJob: job.NewExpirySweepJob(job.ExpirySweepDeps{
			Verifications:   verificationRepo,
			Invites:         inviteRepo,
			BGVerifications: bgRepo,
			MagicLinks:      magicLinkRepo,
			Outbox:          outboxRepo,
		}),
		dispatchJob: job.NewOutboxDispatchJob(dispatcher, cfg.Outbox.BatchSize),
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.Bool("live_enabled", cfg.NATS.URL != ""),
	)

	publisher, err := live.New(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer publisher.Close()

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	a := newApp(cfg, conn, publisher)
	deps := handler.RouterDeps{
		Auth:            handler.NewAuthHandler(a.auth, a.links),
		Items:           handler.NewItemHandler(a.items),
		Files:           handler.NewFileHandler(store, cfg.MaxUploadSize),
		Invites:         handler.NewInviteHandler(a.invites),
		Verifications:   handler.NewVerificationHandler(a.verifications),
		BGVerifications: handler.NewBGVerificationHandler(a.bgs, a.chats),
		JWTSecret:       []byte(cfg.JWTSecret),
		RateLimitWindow: time.Second * time.Duration(cfg.RateLimitSeconds),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(a.dispatchJob, cfg.Outbox.DispatchSpec); err != nil {
		return err
	}
	if err := scheduler.AddJob(a.sweepJob, cfg.SweepSpec); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
