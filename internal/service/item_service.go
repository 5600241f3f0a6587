package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

const (
	minPassingYear = 1990
	maxAttachments = 10
)

type EducationInput struct {
	CourseName        string
	SchoolOrCollege   string
	BoardOrUniversity string
	PassingYear       int
	Grade             string
	Description       string
	Attachments       []string
	VerifierEmail     string
}

type ExperienceInput struct {
	Title         string
	Organization  string
	Role          string
	StartDate     string
	EndDate       string
	Description   string
	Attachments   []string
	VerifierEmail string
}

// ItemCreated carries the new item and, when a same-institute verifier was
// named, the pending record opened for it.
type ItemCreated[T any] struct {
	Item         T                   `json:"item"`
	Verification *model.Verification `json:"verification,omitempty"`
}

type ItemService struct {
	educations  EducationStore
	experiences ExperienceStore
	users       UserStore
	records     *VerificationService
	notifier    *Notifier
	templates   *MailTemplates
}

func NewItemService(educations EducationStore, experiences ExperienceStore, users UserStore, records *VerificationService,
	notifier *Notifier, templates *MailTemplates) *ItemService {
	return &ItemService{
		educations:  educations,
		experiences: experiences,
		users:       users,
		records:     records,
		notifier:    notifier,
		templates:   templates,
	}
}

func (s *ItemService) CreateEducation(ctx context.Context, userID string, in EducationInput) (*ItemCreated[*model.Education], error) {
	in.CourseName = strings.TrimSpace(in.CourseName)
	in.SchoolOrCollege = strings.TrimSpace(in.SchoolOrCollege)
	if in.CourseName == "" || in.SchoolOrCollege == "" || in.PassingYear == 0 {
		return nil, fmt.Errorf("%w: course name, school/college and passing year are required", appErr.ErrInvalid)
	}
	maxYear := time.Now().Year() + 10
	if in.PassingYear < minPassingYear || in.PassingYear > maxYear {
		return nil, fmt.Errorf("%w: passing year must be between %d and %d", appErr.ErrInvalid, minPassingYear, maxYear)
	}
	if len(in.Attachments) > maxAttachments {
		return nil, fmt.Errorf("%w: at most %d attachments", appErr.ErrInvalid, maxAttachments)
	}
	now := timeutil.NowUnix()
	edu := &model.Education{
		ID:                newID(),
		UserID:            userID,
		CourseName:        in.CourseName,
		SchoolOrCollege:   in.SchoolOrCollege,
		BoardOrUniversity: strings.TrimSpace(in.BoardOrUniversity),
		PassingYear:       in.PassingYear,
		Grade:             strings.TrimSpace(in.Grade),
		Description:       strings.TrimSpace(in.Description),
		Attachments:       cleanAttachments(in.Attachments),
		Ctime:             now,
		Mtime:             now,
	}
	if err := s.educations.Create(ctx, edu); err != nil {
		return nil, err
	}
	out := &ItemCreated[*model.Education]{Item: edu}
	out.Verification = s.requestSameInstitute(ctx, userID, edu.ID, model.ItemTypeEducation, edu.CourseName, in.VerifierEmail)
	return out, nil
}

func (s *ItemService) CreateExperience(ctx context.Context, userID string, in ExperienceInput) (*ItemCreated[*model.Experience], error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Organization = strings.TrimSpace(in.Organization)
	if in.Title == "" || in.Organization == "" {
		return nil, fmt.Errorf("%w: title and organization are required", appErr.ErrInvalid)
	}
	if len(in.Attachments) > maxAttachments {
		return nil, fmt.Errorf("%w: at most %d attachments", appErr.ErrInvalid, maxAttachments)
	}
	now := timeutil.NowUnix()
	exp := &model.Experience{
		ID:           newID(),
		UserID:       userID,
		Title:        in.Title,
		Organization: in.Organization,
		Role:         strings.TrimSpace(in.Role),
		StartDate:    strings.TrimSpace(in.StartDate),
		EndDate:      strings.TrimSpace(in.EndDate),
		Description:  strings.TrimSpace(in.Description),
		Attachments:  cleanAttachments(in.Attachments),
		Ctime:        now,
		Mtime:        now,
	}
	if err := s.experiences.Create(ctx, exp); err != nil {
		return nil, err
	}
	out := &ItemCreated[*model.Experience]{Item: exp}
	out.Verification = s.requestSameInstitute(ctx, userID, exp.ID, model.ItemTypeExperience, exp.Title, in.VerifierEmail)
	return out, nil
}

func (s *ItemService) ListEducations(ctx context.Context, userID string) ([]*model.Education, error) {
	return s.educations.ListByUser(ctx, userID)
}

func (s *ItemService) ListExperiences(ctx context.Context, userID string) ([]*model.Experience, error) {
	return s.experiences.ListByUser(ctx, userID)
}

// requestSameInstitute opens a pending record when the named verifier is a VERIFIER
// of the student's own institute. Any failure leaves the item unverified.
func (s *ItemService) requestSameInstitute(ctx context.Context, userID, itemID string, itemType model.ItemType, title, verifierEmail string) *model.Verification {
	email := normalizeEmail(verifierEmail)
	if email == "" {
		return nil
	}
	logger := logutil.GetLogger(ctx).With(zap.String("item_id", itemID), zap.String("verifier", email))
	verifier, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !appErr.IsNotFound(err) {
			logger.Warn("load verifier failed", zap.Error(err))
		}
		return nil
	}
	if verifier.Role != model.RoleVerifier {
		return nil
	}
	student, err := s.users.GetByID(ctx, userID)
	if err != nil {
		logger.Warn("load student failed", zap.Error(err))
		return nil
	}
	if !sameInstitute(student.Institute, verifier.Institute) {
		logger.Info("verifier is from another institute, skip request")
		return nil
	}
	record, created, err := s.records.CreateOrGetPending(ctx, PendingRequest{
		ItemID:               itemID,
		ItemType:             itemType,
		VerifierEmail:        verifier.Email,
		VerifierName:         verifier.Name,
		VerifierOrganization: verifier.Institute,
		ActorEmail:           student.Email,
	})
	if err != nil {
		logger.Warn("open verification failed", zap.Error(err))
		return nil
	}
	if !created {
		return nil
	}
	s.notifier.Email(ctx, "verification:"+record.ID, s.templates.VerifierRequest(verifier, student, record, title))
	return record
}

func cleanAttachments(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
