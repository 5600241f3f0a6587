package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/response"
	"github.com/Xzayogn-ECS/trueport-backend/internal/service"
)

type AuthHandler struct {
	auth  *service.AuthService
	links *service.MagicLinkService
}

func NewAuthHandler(auth *service.AuthService, links *service.MagicLinkService) *AuthHandler {
	return &AuthHandler{auth: auth, links: links}
}

type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Institute string `json:"institute"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type completeProfileRequest struct {
	Name      string `json:"name"`
	Institute string `json:"institute"`
	Password  string `json:"password"`
}

type setPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		badRequest(c, "email and password required")
		return
	}
	user, token, err := h.auth.Register(c.Request.Context(), service.RegisterRequest{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Institute: req.Institute,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, gin.H{"user": user, "token": token})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		badRequest(c, "email and password required")
		return
	}
	user, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"user": user, "token": token})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.auth.Me(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, user)
}

func (h *AuthHandler) CompleteProfile(c *gin.Context) {
	var req completeProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	user, token, err := h.auth.CompleteProfile(c.Request.Context(), getUserID(c), req.Name, req.Institute, req.Password)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"user": user, "token": token})
}

func (h *AuthHandler) ValidateMagicLink(c *gin.Context) {
	view, err := h.links.Validate(c.Request.Context(), c.Param("token"), c.Query("redirect"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *AuthHandler) SetMagicLinkPassword(c *gin.Context) {
	var req setPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	login, err := h.links.SetPassword(c.Request.Context(), req.Token, req.Password)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, login)
}
