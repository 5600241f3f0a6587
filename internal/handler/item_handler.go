package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/response"
	"github.com/Xzayogn-ECS/trueport-backend/internal/service"
)

type ItemHandler struct {
	items *service.ItemService
}

func NewItemHandler(items *service.ItemService) *ItemHandler {
	return &ItemHandler{items: items}
}

type educationRequest struct {
	CourseName        string   `json:"course_name"`
	SchoolOrCollege   string   `json:"school_or_college"`
	BoardOrUniversity string   `json:"board_or_university"`
	PassingYear       int      `json:"passing_year"`
	Grade             string   `json:"grade"`
	Description       string   `json:"description"`
	Attachments       []string `json:"attachments"`
	VerifierEmail     string   `json:"verifier_email"`
}

type experienceRequest struct {
	Title         string   `json:"title"`
	Organization  string   `json:"organization"`
	Role          string   `json:"role"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	Description   string   `json:"description"`
	Attachments   []string `json:"attachments"`
	VerifierEmail string   `json:"verifier_email"`
}

func (h *ItemHandler) CreateEducation(c *gin.Context) {
	var req educationRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.items.CreateEducation(c.Request.Context(), getUserID(c), service.EducationInput(req))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, created)
}

func (h *ItemHandler) ListEducations(c *gin.Context) {
	items, err := h.items.ListEducations(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *ItemHandler) CreateExperience(c *gin.Context) {
	var req experienceRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.items.CreateExperience(c.Request.Context(), getUserID(c), service.ExperienceInput(req))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, created)
}

func (h *ItemHandler) ListExperiences(c *gin.Context) {
	items, err := h.items.ListExperiences(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}
