package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/response"
	"github.com/Xzayogn-ECS/trueport-backend/internal/service"
)

type VerificationHandler struct {
	verifications *service.VerificationService
}

func NewVerificationHandler(verifications *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{verifications: verifications}
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
	Token    string `json:"token"`
}

// Decision accepts either an action token or a verifier session. The token wins
// when both are present.
func (h *VerificationHandler) Decision(c *gin.Context) {
	var req decisionRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.verifications.Decide(c.Request.Context(), service.DecisionRequest{
		VerificationID: c.Param("id"),
		Decision:       model.Decision(req.Decision),
		Comment:        req.Comment,
		ActionToken:    bearerToken(c, req.Token),
		SessionUserID:  getUserID(c),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true, "verification_id": record.ID, "status": record.Status})
}

func (h *VerificationHandler) Details(c *gin.Context) {
	var req inviteTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	details, err := h.verifications.Details(c.Request.Context(), c.Param("id"), bearerToken(c, req.Token))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, details)
}
