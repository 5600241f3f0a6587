package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Xzayogn-ECS/trueport-backend/internal/metrics"
	"github.com/Xzayogn-ECS/trueport-backend/internal/middleware"
	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
)

type RouterDeps struct {
	Auth            *AuthHandler
	Items           *ItemHandler
	Files           *FileHandler
	Invites         *InviteHandler
	Verifications   *VerificationHandler
	BGVerifications *BGVerificationHandler
	JWTSecret       []byte
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	throttle := middleware.RateLimit(deps.RateLimitWindow)
	student := middleware.RequireRole(model.RoleStudent)
	verifier := middleware.RequireRole(model.RoleVerifier)

	api.GET("/metrics", gin.WrapH(metrics.Handler()))

	api.POST("/auth/register", deps.Auth.Register)
	api.POST("/auth/login", deps.Auth.Login)
	api.GET("/auth/magic-link/:token", deps.Auth.ValidateMagicLink)
	api.POST("/auth/magic-link/set-password", deps.Auth.SetMagicLinkPassword)

	api.POST("/invites/preview", deps.Invites.Preview)
	api.POST("/invites/:id/claim", deps.Invites.Claim)
	api.POST("/invites/:id/create-account", deps.Invites.CreateAccount)
	api.POST("/invites/:id/report-abuse", throttle, deps.Invites.ReportAbuse)
	api.POST("/verifications/:id/details", deps.Verifications.Details)
	api.GET("/files/:key", deps.Files.Get)

	tokenGroup := api.Group("")
	tokenGroup.Use(middleware.OptionalJWTAuth(deps.JWTSecret))
	tokenGroup.POST("/verifications/:id/decision", deps.Verifications.Decision)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.GET("/auth/me", deps.Auth.Me)
	authGroup.POST("/auth/complete-profile", deps.Auth.CompleteProfile)
	authGroup.POST("/files/upload", deps.Files.Upload)

	authGroup.POST("/educations", student, deps.Items.CreateEducation)
	authGroup.GET("/educations", student, deps.Items.ListEducations)
	authGroup.POST("/experiences", student, deps.Items.CreateExperience)
	authGroup.GET("/experiences", student, deps.Items.ListExperiences)

	authGroup.POST("/invites", throttle, deps.Invites.Create)
	authGroup.POST("/invites/:id/resend", throttle, deps.Invites.Resend)

	bg := authGroup.Group("/bg-verifications")
	bg.POST("/request", verifier, deps.BGVerifications.Request)
	bg.GET("/search", verifier, deps.BGVerifications.Search)
	bg.GET("/requests", verifier, deps.BGVerifications.VerifierRequests)
	bg.POST("/requests/:id/start-chat", verifier, deps.BGVerifications.StartChatAsRequester)
	bg.POST("/:id/complete", verifier, deps.BGVerifications.Complete)
	bg.GET("/shared-requests", verifier, deps.BGVerifications.SharedRequests)
	bg.POST("/shared-requests/:id/start-chat", verifier, deps.BGVerifications.StartChatAsReferee)
	bg.GET("/my-requests", student, deps.BGVerifications.MyRequests)
	bg.POST("/:id/submit-references", student, deps.BGVerifications.SubmitReferences)
	bg.GET("/chats", deps.BGVerifications.ListChats)
	bg.GET("/chat/:id", deps.BGVerifications.GetChat)
	bg.POST("/chat/:id/message", deps.BGVerifications.PostMessage)
}
