package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/metrics"
	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

const maxCommentLength = 2000

type PendingRequest struct {
	ItemID               string
	ItemType             model.ItemType
	VerifierEmail        string
	VerifierName         string
	VerifierOrganization string
	ActorEmail           string
}

type DecisionRequest struct {
	VerificationID string
	Decision       model.Decision
	Comment        string
	ActionToken    string
	SessionUserID  string
}

type VerificationDetails struct {
	Verification *model.Verification      `json:"verification"`
	Item         *model.ItemSummary       `json:"item"`
	Student      *model.User              `json:"student"`
	Logs         []*model.VerificationLog `json:"logs"`
}

type VerificationService struct {
	verifications VerificationStore
	logs          VerificationLogStore
	users         UserStore
	items         *ItemRegistry
	tokens        *TokenService
	notifier      *Notifier
	templates     *MailTemplates
	recordTTL     time.Duration
}

func NewVerificationService(verifications VerificationStore, logs VerificationLogStore, users UserStore, items *ItemRegistry,
	tokens *TokenService, notifier *Notifier, templates *MailTemplates, recordTTL time.Duration) *VerificationService {
	return &VerificationService{
		verifications: verifications,
		logs:          logs,
		users:         users,
		items:         items,
		tokens:        tokens,
		notifier:      notifier,
		templates:     templates,
		recordTTL:     recordTTL,
	}
}

// CreateOrGetPending returns the item's live pending record, creating one when
// none exists. A concurrent creator that loses the unique index race gets the
// winner's record.
func (s *VerificationService) CreateOrGetPending(ctx context.Context, req PendingRequest) (*model.Verification, bool, error) {
	email := normalizeEmail(req.VerifierEmail)
	if req.ItemID == "" || !validEmail(email) {
		return nil, false, fmt.Errorf("%w: item id and verifier email required", appErr.ErrInvalid)
	}
	if _, err := s.items.Lookup(req.ItemType); err != nil {
		return nil, false, err
	}
	now := timeutil.NowUnix()
	if _, err := s.verifications.ExpirePendingForItem(ctx, req.ItemID, req.ItemType, now); err != nil {
		return nil, false, err
	}
	existing, err := s.verifications.GetPendingForItem(ctx, req.ItemID, req.ItemType, now)
	if err == nil {
		return existing, false, nil
	}
	if !appErr.IsNotFound(err) {
		return nil, false, err
	}
	record := &model.Verification{
		ID:                   newID(),
		ItemID:               req.ItemID,
		ItemType:             req.ItemType,
		VerifierEmail:        email,
		VerifierName:         strings.TrimSpace(req.VerifierName),
		VerifierOrganization: strings.TrimSpace(req.VerifierOrganization),
		Status:               model.VerificationPending,
		Token:                newToken(),
		ExpiresAt:            now + int64(s.recordTTL/time.Second),
		Ctime:                now,
		Mtime:                now,
	}
	if err := s.verifications.Create(ctx, record); err != nil {
		if !appErr.IsConflict(err) {
			return nil, false, err
		}
		winner, getErr := s.verifications.GetPendingForItem(ctx, req.ItemID, req.ItemType, now)
		if getErr != nil {
			return nil, false, getErr
		}
		return winner, false, nil
	}
	if actor := normalizeEmail(req.ActorEmail); actor != "" {
		s.appendLog(ctx, &model.VerificationLog{
			ID:             newID(),
			VerificationID: record.ID,
			Action:         model.LogActionCreated,
			ActorEmail:     actor,
			Metadata:       map[string]string{"verifier_email": email},
			Ctime:          now,
		})
	}
	return record, true, nil
}

func (s *VerificationService) Get(ctx context.Context, id string) (*model.Verification, error) {
	return s.verifications.GetByID(ctx, id)
}

type decisionActor struct {
	email        string
	name         string
	organization string
}

// Decide applies a verifier's decision. The status change and its log entry are
// committed together; the item write-back and owner email happen afterwards and
// never fail the call.
func (s *VerificationService) Decide(ctx context.Context, req DecisionRequest) (*model.Verification, error) {
	status, action, err := decisionTarget(req.Decision)
	if err != nil {
		return nil, err
	}
	actor, err := s.resolveActor(ctx, req)
	if err != nil {
		return nil, err
	}
	record, err := s.verifications.GetByID(ctx, req.VerificationID)
	if err != nil {
		return nil, err
	}
	now := timeutil.NowUnix()
	if err := decidable(record, now); err != nil {
		return nil, err
	}
	if !strings.EqualFold(record.VerifierEmail, actor.email) {
		return nil, fmt.Errorf("%w: not the designated verifier", appErr.ErrForbidden)
	}
	comment := truncate(strings.TrimSpace(req.Comment), maxCommentLength)
	entry := &model.VerificationLog{
		ID:             newID(),
		VerificationID: record.ID,
		Action:         action,
		ActorEmail:     actor.email,
		Metadata:       map[string]string{"comment": comment},
		Ctime:          now,
	}
	ok, err := s.verifications.Decide(ctx, record.ID, status, actor.email, comment, now, entry)
	if err != nil {
		return nil, err
	}
	if !ok {
		latest, getErr := s.verifications.GetByID(ctx, record.ID)
		if getErr != nil {
			return nil, getErr
		}
		if err := decidable(latest, now); err != nil {
			return nil, err
		}
		return nil, appErr.ErrAlreadyProcessed
	}
	metrics.VerificationDecisions.WithLabelValues(strings.ToUpper(string(req.Decision))).Inc()
	record.Status = status
	record.DecidedBy = actor.email
	record.DecidedAt = now
	record.Comment = comment
	record.Mtime = now

	s.applyOutcome(ctx, record, actor, now)
	logutil.GetLogger(ctx).Info("verification decided",
		zap.String("verification_id", record.ID),
		zap.String("status", string(status)),
		zap.String("actor", actor.email))
	return record, nil
}

// Details is the action-token holder's full view of the record it may decide.
func (s *VerificationService) Details(ctx context.Context, verificationID, actionToken string) (*VerificationDetails, error) {
	validated, err := s.tokens.Validate(ctx, actionToken, PurposeVerificationAction)
	if err != nil {
		return nil, err
	}
	if validated.Invite.VerificationID != verificationID {
		return nil, fmt.Errorf("%w: token is for another verification", appErr.ErrForbidden)
	}
	record, err := s.verifications.GetByID(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	item, err := s.items.Summary(ctx, record.ItemType, record.ItemID)
	if err != nil {
		return nil, err
	}
	details := &VerificationDetails{Verification: record, Item: item}
	if student, err := s.users.GetByID(ctx, item.OwnerID); err == nil {
		details.Student = student
	}
	logs, err := s.logs.ListByVerification(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	details.Logs = logs
	return details, nil
}

func (s *VerificationService) resolveActor(ctx context.Context, req DecisionRequest) (*decisionActor, error) {
	if req.ActionToken != "" {
		validated, err := s.tokens.Validate(ctx, req.ActionToken, PurposeVerificationAction)
		if err != nil {
			return nil, err
		}
		invite := validated.Invite
		if invite.Status != model.InviteAccepted {
			return nil, fmt.Errorf("%w: invite is %s", appErr.ErrTokenRevoked, strings.ToLower(string(invite.Status)))
		}
		if invite.VerificationID != req.VerificationID {
			return nil, fmt.Errorf("%w: token is for another verification", appErr.ErrForbidden)
		}
		email := normalizeEmail(validated.Claims.Email)
		if email == "" {
			email = invite.EmailLower
		}
		return &decisionActor{email: email, name: invite.Name, organization: invite.Organization}, nil
	}
	if req.SessionUserID == "" {
		return nil, appErr.ErrUnauthorized
	}
	user, err := s.users.GetByID(ctx, req.SessionUserID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.ErrUnauthorized
		}
		return nil, err
	}
	if user.Role != model.RoleVerifier {
		return nil, fmt.Errorf("%w: verifier role required", appErr.ErrForbidden)
	}
	return &decisionActor{email: normalizeEmail(user.Email), name: user.Name, organization: user.Institute}, nil
}

func (s *VerificationService) applyOutcome(ctx context.Context, record *model.Verification, actor *decisionActor, now int64) {
	logger := logutil.GetLogger(ctx).With(zap.String("verification_id", record.ID), zap.String("item_id", record.ItemID))
	item, err := s.items.Lookup(record.ItemType)
	if err != nil {
		logger.Warn("no verifiable item kind", zap.Error(err))
		return
	}
	name, organization := actor.name, actor.organization
	if name == "" {
		name = record.VerifierName
	}
	if organization == "" {
		organization = record.VerifierOrganization
	}
	outcome := model.ItemOutcome{
		Verified:             record.Status == model.VerificationApproved,
		VerifiedAt:           now,
		VerifiedBy:           actor.email,
		Comment:              record.Comment,
		VerifierName:         name,
		VerifierOrganization: organization,
	}
	if err := item.ApplyOutcome(ctx, record.ItemID, outcome); err != nil {
		logger.Warn("apply item outcome failed", zap.Error(err))
	}
	summary, err := item.Summary(ctx, record.ItemID)
	if err != nil {
		logger.Warn("load item for owner notification failed", zap.Error(err))
		return
	}
	owner, err := s.users.GetByID(ctx, summary.OwnerID)
	if err != nil {
		logger.Warn("load item owner failed", zap.Error(err))
		return
	}
	s.notifier.Email(ctx, "decision:"+record.ID,
		s.templates.Decision(owner, summary.Title, record.Status, actor.email, record.Comment))
}

func (s *VerificationService) appendLog(ctx context.Context, entry *model.VerificationLog) {
	if err := s.logs.Append(ctx, entry); err != nil {
		logutil.GetLogger(ctx).Warn("append verification log failed",
			zap.String("verification_id", entry.VerificationID), zap.Error(err))
	}
}

func decisionTarget(decision model.Decision) (model.VerificationStatus, model.LogAction, error) {
	switch model.Decision(strings.ToUpper(string(decision))) {
	case model.DecisionApprove:
		return model.VerificationApproved, model.LogActionApproved, nil
	case model.DecisionDeny:
		return model.VerificationRejected, model.LogActionRejected, nil
	default:
		return "", "", fmt.Errorf("%w: decision must be APPROVE or DENY", appErr.ErrInvalid)
	}
}

// decidable checks terminal states before the actor so a finished record reports
// AlreadyProcessed to everyone.
func decidable(record *model.Verification, now int64) error {
	switch record.Status {
	case model.VerificationApproved, model.VerificationRejected:
		return appErr.ErrAlreadyProcessed
	case model.VerificationExpired:
		return fmt.Errorf("%w: verification expired", appErr.ErrGone)
	}
	if timeutil.Expired(record.ExpiresAt, now) {
		return fmt.Errorf("%w: verification expired", appErr.ErrGone)
	}
	return nil
}
