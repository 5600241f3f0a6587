package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/metrics"
	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/password"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

const (
	maxBGNotesLength     = 1000
	refereeResolvers     = 3
	defaultSearchLimit   = 20
	maxSearchLimit       = 100
	bgStatusFilterAll    = "ALL"
	bgStatusFilterNormal = model.BGSubmitted
)

type BGRequestInput struct {
	StudentID                string
	RefereeContactsRequested int
	Notes                    string
}

type RefereeInput struct {
	Name  string
	Email string
	Phone string
	Role  string
}

type StudentSearchResult struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Institute        string `json:"institute"`
	JoinedAt         int64  `json:"joined_at"`
	HasActiveRequest bool   `json:"has_active_request"`
}

type RefereeContactView struct {
	model.RefereeContact
	UserRole        model.Role `json:"user_role"`
	ExternalContact *bool      `json:"external_contact"`
}

type VerifierRequestView struct {
	*model.BackgroundVerification
	RefereeContacts []RefereeContactView `json:"referee_contacts"`
}

type SharedRequestView struct {
	ID          string               `json:"id"`
	Verifier    ChatParticipant      `json:"verifier"`
	Student     ChatParticipant      `json:"student"`
	Referee     model.RefereeContact `json:"referee"`
	Status      model.BGStatus       `json:"status"`
	SubmittedAt int64                `json:"submitted_at"`
	ChatID      string               `json:"chat_id"`
}

type BGVerificationService struct {
	bgs             BGVerificationStore
	users           UserStore
	chats           *ChatService
	links           *MagicLinkService
	notifier        *Notifier
	templates       *MailTemplates
	ttl             time.Duration
	defaultReferees int
}

func NewBGVerificationService(bgs BGVerificationStore, users UserStore, chats *ChatService, links *MagicLinkService,
	notifier *Notifier, templates *MailTemplates, ttl time.Duration, defaultReferees int) *BGVerificationService {
	return &BGVerificationService{
		bgs:             bgs,
		users:           users,
		chats:           chats,
		links:           links,
		notifier:        notifier,
		templates:       templates,
		ttl:             ttl,
		defaultReferees: defaultReferees,
	}
}

func (s *BGVerificationService) Request(ctx context.Context, verifierID string, in BGRequestInput) (*model.BackgroundVerification, error) {
	verifier, err := s.verifier(ctx, verifierID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(verifier.Institute) == "" {
		return nil, fmt.Errorf("%w: verifier must have an associated institute", appErr.ErrInvalid)
	}
	if in.StudentID == "" {
		return nil, fmt.Errorf("%w: student id required", appErr.ErrInvalid)
	}
	student, err := s.users.GetByID(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}
	if student.Role != model.RoleStudent {
		return nil, fmt.Errorf("%w: user is not a student", appErr.ErrInvalid)
	}
	if sameInstitute(student.Institute, verifier.Institute) {
		return nil, fmt.Errorf("%w: cannot request background verification for students from the same institute", appErr.ErrInvalid)
	}
	referees := in.RefereeContactsRequested
	if referees == 0 {
		referees = s.defaultReferees
	}
	if referees < model.MinRefereeContacts || referees > model.MaxRefereeContacts {
		return nil, fmt.Errorf("%w: number of referee contacts must be between %d and %d",
			appErr.ErrInvalid, model.MinRefereeContacts, model.MaxRefereeContacts)
	}

	now := timeutil.NowUnix()
	if _, err := s.bgs.DeleteExpiredForPair(ctx, student.ID, verifier.ID, now); err != nil {
		return nil, err
	}
	bg := &model.BackgroundVerification{
		ID:                       newID(),
		StudentID:                student.ID,
		StudentName:              student.Name,
		StudentEmail:             student.Email,
		StudentInstitute:         student.Institute,
		VerifierID:               verifier.ID,
		VerifierName:             verifier.Name,
		VerifierEmail:            verifier.Email,
		VerifierInstitute:        verifier.Institute,
		RefereeContactsRequested: referees,
		RefereeContacts:          []model.RefereeContact{},
		Notes:                    truncate(strings.TrimSpace(in.Notes), maxBGNotesLength),
		Status:                   model.BGPending,
		RequestedAt:              now,
		ExpiresAt:                now + int64(s.ttl/time.Second),
		Ctime:                    now,
		Mtime:                    now,
	}
	if err := s.bgs.Create(ctx, bg); err != nil {
		if appErr.IsConflict(err) {
			return nil, fmt.Errorf("%w: you already have an active background verification request for this student", appErr.ErrConflict)
		}
		return nil, err
	}
	metrics.BGVerificationEvents.WithLabelValues("requested").Inc()
	s.notifier.Email(ctx, "bg-request:"+bg.ID, s.templates.BGRequest(bg))
	return bg, nil
}

type resolvedReferee struct {
	index       int
	user        *model.User
	placeholder bool
}

// SubmitReferences stores the student's referees and opens one chat per referee
// that resolves to a VERIFIER account. Referees without an account get a
// placeholder VERIFIER user first.
func (s *BGVerificationService) SubmitReferences(ctx context.Context, requestID, studentID string, inputs []RefereeInput) (*model.BackgroundVerification, error) {
	bg, err := s.bgs.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if bg.StudentID != studentID {
		return nil, fmt.Errorf("%w: this request does not belong to you", appErr.ErrForbidden)
	}
	now := timeutil.NowUnix()
	if err := submittable(bg, now); err != nil {
		return nil, err
	}
	contacts, err := normalizeReferees(bg, inputs, now)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolveReferees(ctx, contacts)
	if err != nil {
		return nil, err
	}
	for _, r := range resolved {
		if r.user != nil {
			contacts[r.index].UserID = r.user.ID
		}
	}
	ok, err := s.bgs.SubmitReferences(ctx, bg.ID, contacts, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		latest, getErr := s.bgs.GetByID(ctx, bg.ID)
		if getErr != nil {
			return nil, getErr
		}
		if err := submittable(latest, now); err != nil {
			return nil, err
		}
		return nil, appErr.ErrAlreadyProcessed
	}
	bg.Status = model.BGSubmitted
	bg.SubmittedAt = now
	bg.Mtime = now
	bg.RefereeContacts = contacts
	metrics.BGVerificationEvents.WithLabelValues("submitted").Inc()

	for _, r := range resolved {
		if r.user == nil {
			continue
		}
		s.openRefereeChat(ctx, bg, contacts[r.index], r.user, r.placeholder)
	}
	return bg, nil
}

func (s *BGVerificationService) resolveReferees(ctx context.Context, contacts []model.RefereeContact) ([]resolvedReferee, error) {
	p := pool.NewWithResults[resolvedReferee]().WithContext(ctx).WithMaxGoroutines(refereeResolvers)
	for i := range contacts {
		index, contact := i, contacts[i]
		p.Go(func(ctx context.Context) (resolvedReferee, error) {
			user, placeholder, err := s.resolveReferee(ctx, contact)
			if err != nil {
				return resolvedReferee{}, err
			}
			return resolvedReferee{index: index, user: user, placeholder: placeholder}, nil
		})
	}
	return p.Wait()
}

// resolveReferee returns the VERIFIER account behind a referee email, creating a
// placeholder when nobody owns the email. An email owned by a non-verifier gets
// no account and therefore no chat.
func (s *BGVerificationService) resolveReferee(ctx context.Context, contact model.RefereeContact) (*model.User, bool, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("referee", contact.Email))
	user, err := s.users.GetByEmail(ctx, contact.Email)
	if err == nil {
		if user.Role != model.RoleVerifier {
			logger.Warn("referee email belongs to a non-verifier account, skip chat", zap.String("role", string(user.Role)))
			return nil, false, nil
		}
		return user, false, nil
	}
	if !appErr.IsNotFound(err) {
		return nil, false, err
	}
	hash, err := password.Unusable()
	if err != nil {
		return nil, false, err
	}
	now := timeutil.NowUnix()
	placeholder := &model.User{
		ID:              newID(),
		Name:            displayName(contact.Name, contact.Email),
		Email:           contact.Email,
		PasswordHash:    hash,
		Role:            model.RoleVerifier,
		ExternalContact: 1,
		Ctime:           now,
		Mtime:           now,
	}
	if err := s.users.Create(ctx, placeholder); err != nil {
		if !appErr.IsConflict(err) {
			return nil, false, err
		}
		existing, getErr := s.users.GetByEmail(ctx, contact.Email)
		if getErr != nil {
			return nil, false, getErr
		}
		if existing.Role != model.RoleVerifier {
			logger.Warn("referee email belongs to a non-verifier account, skip chat", zap.String("role", string(existing.Role)))
			return nil, false, nil
		}
		return existing, false, nil
	}
	logger.Info("created placeholder account for referee", zap.String("user_id", placeholder.ID))
	return placeholder, true, nil
}

func (s *BGVerificationService) openRefereeChat(ctx context.Context, bg *model.BackgroundVerification, contact model.RefereeContact, user *model.User, placeholder bool) {
	logger := logutil.GetLogger(ctx).With(zap.String("bg_verification_id", bg.ID), zap.String("referee", contact.Email))
	chat, _, err := s.chats.FindOrCreate(ctx, ChatParties{
		BGVerificationID:   bg.ID,
		RequesterID:        bg.VerifierID,
		RequesterEmail:     bg.VerifierEmail,
		SharedContactID:    user.ID,
		SharedContactEmail: user.Email,
		StudentID:          bg.StudentID,
		StudentEmail:       bg.StudentEmail,
	})
	if err != nil {
		logger.Warn("open referee chat failed", zap.Error(err))
		return
	}
	if !placeholder {
		s.notifier.Email(ctx, "bg-chat:"+chat.ID, s.templates.RefereeChat(contact, bg, chat.ID))
		return
	}
	link, err := s.links.Issue(ctx, user.Email, model.MagicLinkBGVerification, model.MagicLinkContext{
		BGVerificationID: bg.ID,
		ChatID:           chat.ID,
		UserID:           user.ID,
	})
	if err != nil {
		logger.Warn("issue referee magic link failed", zap.Error(err))
		return
	}
	s.notifier.Email(ctx, "bg-magic:"+chat.ID, s.templates.RefereeMagicLink(contact, bg, link.Token))
}

func (s *BGVerificationService) Complete(ctx context.Context, requestID, verifierID string) (*model.BackgroundVerification, error) {
	bg, err := s.bgs.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if bg.VerifierID != verifierID {
		return nil, fmt.Errorf("%w: only the requesting verifier can complete this request", appErr.ErrForbidden)
	}
	if bg.Completed == 1 {
		return nil, appErr.ErrAlreadyProcessed
	}
	if bg.Status != model.BGSubmitted {
		return nil, fmt.Errorf("%w: referees have not been submitted yet", appErr.ErrInvalid)
	}
	now := timeutil.NowUnix()
	ok, err := s.bgs.Complete(ctx, bg.ID, verifierID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErr.ErrAlreadyProcessed
	}
	bg.Completed = 1
	bg.CompletedAt = now
	bg.CompletedBy = verifierID
	bg.Mtime = now
	metrics.BGVerificationEvents.WithLabelValues("completed").Inc()
	return bg, nil
}

// SearchStudents lists students a verifier could request a check on. Students
// of the verifier's own institute are left out.
func (s *BGVerificationService) SearchStudents(ctx context.Context, verifierID, query string, limit int) ([]*StudentSearchResult, error) {
	verifier, err := s.verifier(ctx, verifierID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(verifier.Institute) == "" {
		return nil, fmt.Errorf("%w: verifier must have an associated institute", appErr.ErrInvalid)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	students, err := s.users.SearchStudents(ctx, strings.TrimSpace(query), verifier.Institute, uint(limit))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	active, err := s.bgs.ActiveStudentIDs(ctx, verifier.ID, ids, timeutil.NowUnix())
	if err != nil {
		return nil, err
	}
	results := make([]*StudentSearchResult, 0, len(students))
	for _, st := range students {
		results = append(results, &StudentSearchResult{
			ID:               st.ID,
			Name:             st.Name,
			Email:            st.Email,
			Institute:        st.Institute,
			JoinedAt:         st.Ctime,
			HasActiveRequest: active[st.ID],
		})
	}
	return results, nil
}

func (s *BGVerificationService) MyRequests(ctx context.Context, studentID string) ([]*model.BackgroundVerification, error) {
	student, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.Role != model.RoleStudent {
		return nil, fmt.Errorf("%w: only students can view their background verification requests", appErr.ErrForbidden)
	}
	list, err := s.bgs.ListActiveByStudent(ctx, student.ID, timeutil.NowUnix())
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*model.BackgroundVerification{}
	}
	return list, nil
}

// VerifierRequests lists the caller's own requests. An empty filter means
// SUBMITTED, ALL drops the filter.
func (s *BGVerificationService) VerifierRequests(ctx context.Context, verifierID, statusFilter string) ([]*VerifierRequestView, error) {
	status := bgStatusFilterNormal
	switch f := strings.ToUpper(strings.TrimSpace(statusFilter)); f {
	case "":
	case bgStatusFilterAll:
		status = ""
	case string(model.BGPending), string(model.BGSubmitted):
		status = model.BGStatus(f)
	default:
		return nil, fmt.Errorf("%w: unknown status filter", appErr.ErrInvalid)
	}
	list, err := s.bgs.ListByVerifier(ctx, verifierID, status, timeutil.NowUnix())
	if err != nil {
		return nil, err
	}
	var emails []string
	for _, bg := range list {
		for _, c := range bg.RefereeContacts {
			emails = append(emails, c.Email)
		}
	}
	accounts := map[string]*model.User{}
	if len(emails) > 0 {
		users, err := s.users.ListByEmails(ctx, emails)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			accounts[normalizeEmail(u.Email)] = u
		}
	}
	views := make([]*VerifierRequestView, 0, len(list))
	for _, bg := range list {
		contacts := make([]RefereeContactView, 0, len(bg.RefereeContacts))
		for _, c := range bg.RefereeContacts {
			view := RefereeContactView{RefereeContact: c}
			if u, ok := accounts[c.Email]; ok {
				external := u.ExternalContact == 1
				view.UserID = u.ID
				view.UserRole = u.Role
				view.ExternalContact = &external
			}
			contacts = append(contacts, view)
		}
		views = append(views, &VerifierRequestView{BackgroundVerification: bg, RefereeContacts: contacts})
	}
	return views, nil
}

// SharedRequests lists submitted requests that name the caller as a referee.
func (s *BGVerificationService) SharedRequests(ctx context.Context, userID string) ([]*SharedRequestView, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	email := normalizeEmail(user.Email)
	list, err := s.bgs.ListByRefereeEmail(ctx, email, timeutil.NowUnix())
	if err != nil {
		return nil, err
	}
	views := make([]*SharedRequestView, 0, len(list))
	for _, bg := range list {
		contact, ok := findReferee(bg, email)
		if !ok {
			continue
		}
		chatID, err := s.chats.ChatIDForReferee(ctx, bg.ID, bg.VerifierID, user.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, &SharedRequestView{
			ID:          bg.ID,
			Verifier:    ChatParticipant{ID: bg.VerifierID, Name: bg.VerifierName, Email: bg.VerifierEmail, Institute: bg.VerifierInstitute},
			Student:     ChatParticipant{ID: bg.StudentID, Name: bg.StudentName, Email: bg.StudentEmail, Institute: bg.StudentInstitute},
			Referee:     contact,
			Status:      bg.Status,
			SubmittedAt: bg.SubmittedAt,
			ChatID:      chatID,
		})
	}
	return views, nil
}

// StartChatAsReferee opens the caller's thread with the requesting verifier.
func (s *BGVerificationService) StartChatAsReferee(ctx context.Context, requestID, userID string) (*model.BGChat, error) {
	bg, err := s.bgs.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := findReferee(bg, normalizeEmail(user.Email)); !ok {
		return nil, fmt.Errorf("%w: this request was not shared with you", appErr.ErrForbidden)
	}
	chat, _, err := s.chats.FindOrCreate(ctx, s.parties(bg, user))
	return chat, err
}

// StartChatAsRequester opens the requesting verifier's thread with one referee.
func (s *BGVerificationService) StartChatAsRequester(ctx context.Context, requestID, userID, sharedContactID string) (*model.BGChat, error) {
	bg, err := s.bgs.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if bg.VerifierID != userID {
		return nil, fmt.Errorf("%w: only the requesting verifier can start chats here", appErr.ErrForbidden)
	}
	if sharedContactID == "" {
		return nil, fmt.Errorf("%w: shared contact id required", appErr.ErrInvalid)
	}
	shared, err := s.users.GetByID(ctx, sharedContactID)
	if err != nil {
		return nil, err
	}
	if _, ok := findReferee(bg, normalizeEmail(shared.Email)); !ok {
		return nil, fmt.Errorf("%w: user was not shared as a referee in this request", appErr.ErrInvalid)
	}
	chat, _, err := s.chats.FindOrCreate(ctx, s.parties(bg, shared))
	return chat, err
}

func (s *BGVerificationService) parties(bg *model.BackgroundVerification, referee *model.User) ChatParties {
	return ChatParties{
		BGVerificationID:   bg.ID,
		RequesterID:        bg.VerifierID,
		RequesterEmail:     bg.VerifierEmail,
		SharedContactID:    referee.ID,
		SharedContactEmail: referee.Email,
		StudentID:          bg.StudentID,
		StudentEmail:       bg.StudentEmail,
	}
}

func (s *BGVerificationService) verifier(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role != model.RoleVerifier {
		return nil, fmt.Errorf("%w: verifier role required", appErr.ErrForbidden)
	}
	return user, nil
}

func submittable(bg *model.BackgroundVerification, now int64) error {
	if timeutil.Expired(bg.ExpiresAt, now) {
		return fmt.Errorf("%w: background verification request expired", appErr.ErrGone)
	}
	if bg.Status != model.BGPending {
		return fmt.Errorf("%w: request is %s", appErr.ErrAlreadyProcessed, strings.ToLower(string(bg.Status)))
	}
	return nil
}

func normalizeReferees(bg *model.BackgroundVerification, inputs []RefereeInput, now int64) ([]model.RefereeContact, error) {
	if len(inputs) < bg.RefereeContactsRequested {
		return nil, fmt.Errorf("%w: you must provide at least %d referee contacts", appErr.ErrInvalid, bg.RefereeContactsRequested)
	}
	seen := make(map[string]bool, len(inputs))
	contacts := make([]model.RefereeContact, 0, len(inputs))
	for _, in := range inputs {
		name, email, phone := strings.TrimSpace(in.Name), normalizeEmail(in.Email), strings.TrimSpace(in.Phone)
		if name == "" || email == "" || phone == "" {
			return nil, fmt.Errorf("%w: each referee must have name, email and phone", appErr.ErrInvalid)
		}
		if !validEmail(email) {
			return nil, fmt.Errorf("%w: invalid email format for referee: %s", appErr.ErrInvalid, email)
		}
		// first entry wins for a repeated email
		if seen[email] {
			continue
		}
		seen[email] = true
		contacts = append(contacts, model.RefereeContact{
			ID:          newID(),
			Seq:         len(contacts),
			Name:        name,
			Email:       email,
			Phone:       phone,
			Role:        strings.TrimSpace(in.Role),
			SubmittedAt: now,
		})
	}
	return contacts, nil
}

func findReferee(bg *model.BackgroundVerification, email string) (model.RefereeContact, bool) {
	for _, c := range bg.RefereeContacts {
		if c.Email == email {
			return c, true
		}
	}
	return model.RefereeContact{}, false
}
