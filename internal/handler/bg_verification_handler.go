package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/response"
	"github.com/Xzayogn-ECS/trueport-backend/internal/service"
)

type BGVerificationHandler struct {
	bgs   *service.BGVerificationService
	chats *service.ChatService
}

func NewBGVerificationHandler(bgs *service.BGVerificationService, chats *service.ChatService) *BGVerificationHandler {
	return &BGVerificationHandler{bgs: bgs, chats: chats}
}

type bgRequestRequest struct {
	StudentID                string `json:"student_id"`
	RefereeContactsRequested int    `json:"referee_contacts_requested"`
	Notes                    string `json:"notes"`
}

type refereeContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

type submitReferencesRequest struct {
	RefereeContacts []refereeContactRequest `json:"referee_contacts"`
}

type startChatRequest struct {
	SharedContactID string `json:"shared_contact_id"`
}

type chatMessageRequest struct {
	Message string `json:"message"`
}

func (h *BGVerificationHandler) Request(c *gin.Context) {
	var req bgRequestRequest
	if !bindJSON(c, &req) {
		return
	}
	bg, err := h.bgs.Request(c.Request.Context(), getUserID(c), service.BGRequestInput{
		StudentID:                req.StudentID,
		RefereeContactsRequested: req.RefereeContactsRequested,
		Notes:                    req.Notes,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, bg)
}

func (h *BGVerificationHandler) SubmitReferences(c *gin.Context) {
	var req submitReferencesRequest
	if !bindJSON(c, &req) {
		return
	}
	inputs := make([]service.RefereeInput, 0, len(req.RefereeContacts))
	for _, contact := range req.RefereeContacts {
		inputs = append(inputs, service.RefereeInput{
			Name:  contact.Name,
			Email: contact.Email,
			Phone: contact.Phone,
			Role:  contact.Role,
		})
	}
	bg, err := h.bgs.SubmitReferences(c.Request.Context(), c.Param("id"), getUserID(c), inputs)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bg)
}

func (h *BGVerificationHandler) Complete(c *gin.Context) {
	bg, err := h.bgs.Complete(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bg)
}

func (h *BGVerificationHandler) Search(c *gin.Context) {
	limit := 0
	if value := c.Query("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	results, err := h.bgs.SearchStudents(c.Request.Context(), getUserID(c), c.Query("q"), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, results)
}

func (h *BGVerificationHandler) MyRequests(c *gin.Context) {
	requests, err := h.bgs.MyRequests(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, requests)
}

func (h *BGVerificationHandler) VerifierRequests(c *gin.Context) {
	requests, err := h.bgs.VerifierRequests(c.Request.Context(), getUserID(c), c.Query("status"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, requests)
}

func (h *BGVerificationHandler) SharedRequests(c *gin.Context) {
	requests, err := h.bgs.SharedRequests(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, requests)
}

func (h *BGVerificationHandler) StartChatAsReferee(c *gin.Context) {
	chat, err := h.bgs.StartChatAsReferee(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"chat_id": chat.ID, "chat": chat})
}

func (h *BGVerificationHandler) StartChatAsRequester(c *gin.Context) {
	var req startChatRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.SharedContactID == "" {
		badRequest(c, "shared_contact_id required")
		return
	}
	chat, err := h.bgs.StartChatAsRequester(c.Request.Context(), c.Param("id"), getUserID(c), req.SharedContactID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"chat_id": chat.ID, "chat": chat})
}

func (h *BGVerificationHandler) ListChats(c *gin.Context) {
	chats, err := h.chats.List(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, chats)
}

func (h *BGVerificationHandler) GetChat(c *gin.Context) {
	detail, err := h.chats.Get(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, detail)
}

func (h *BGVerificationHandler) PostMessage(c *gin.Context) {
	var req chatMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.chats.AddMessage(c.Request.Context(), c.Param("id"), getUserID(c), req.Message)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, msg)
}
