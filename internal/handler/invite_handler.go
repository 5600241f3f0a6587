package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/response"
	"github.com/Xzayogn-ECS/trueport-backend/internal/service"
)

type InviteHandler struct {
	invites *service.InviteService
}

func NewInviteHandler(invites *service.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

type createInviteRequest struct {
	VerificationID string `json:"verification_id"`
	Email          string `json:"email"`
	ItemType       string `json:"item_type"`
	ItemID         string `json:"item_id"`
	Name           string `json:"name"`
	Organization   string `json:"organization"`
	Message        string `json:"message"`
}

type inviteTokenRequest struct {
	Token string `json:"token"`
}

type createAccountRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *InviteHandler) Create(c *gin.Context) {
	var req createInviteRequest
	if !bindJSON(c, &req) {
		return
	}
	invite, err := h.invites.Create(c.Request.Context(), service.CreateInviteRequest{
		VerificationID: req.VerificationID,
		Email:          req.Email,
		ItemType:       req.ItemType,
		ItemID:         req.ItemID,
		Name:           req.Name,
		Organization:   req.Organization,
		Message:        req.Message,
		CreatorUserID:  getUserID(c),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, gin.H{
		"invite_id":       invite.ID,
		"status":          invite.Status,
		"expires_at":      invite.TokenExpiresAt,
		"verification_id": invite.VerificationID,
	})
}

func (h *InviteHandler) Resend(c *gin.Context) {
	invite, err := h.invites.Resend(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"invite_id": invite.ID, "expires_at": invite.TokenExpiresAt})
}

func (h *InviteHandler) Preview(c *gin.Context) {
	var req inviteTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	preview, err := h.invites.Preview(c.Request.Context(), bearerToken(c, req.Token))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, preview)
}

func (h *InviteHandler) Claim(c *gin.Context) {
	var req inviteTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.invites.Claim(c.Request.Context(), c.Param("id"), bearerToken(c, req.Token))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *InviteHandler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	user, token, err := h.invites.CreateAccount(c.Request.Context(), c.Param("id"), bearerToken(c, req.Token), req.Password, req.Name)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, gin.H{"user": user, "token": token})
}

func (h *InviteHandler) ReportAbuse(c *gin.Context) {
	var req inviteTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.invites.ReportAbuse(c.Request.Context(), c.Param("id"), bearerToken(c, req.Token)); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
