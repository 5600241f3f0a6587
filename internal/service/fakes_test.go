package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/Xzayogn-ECS/trueport-backend/internal/live"
	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

// memDB backs every fake store with one lock so the unique indexes of the
// postgres schema can be mirrored exactly.
type memDB struct {
	mu            sync.Mutex
	users         map[string]*model.User
	educations    map[string]*model.Education
	experiences   map[string]*model.Experience
	verifications map[string]*model.Verification
	logs          []*model.VerificationLog
	invites       map[string]*model.VerifierInvite
	bgs           map[string]*model.BackgroundVerification
	chats         map[string]*model.BGChat
	messages      map[string][]*model.BGChatMessage
	links         map[string]*model.MagicLinkToken
	outbox        map[string]*model.OutboxEvent
}

func newMemDB() *memDB {
	return &memDB{
		users:         map[string]*model.User{},
		educations:    map[string]*model.Education{},
		experiences:   map[string]*model.Experience{},
		verifications: map[string]*model.Verification{},
		invites:       map[string]*model.VerifierInvite{},
		bgs:           map[string]*model.BackgroundVerification{},
		chats:         map[string]*model.BGChat{},
		messages:      map[string][]*model.BGChatMessage{},
		links:         map[string]*model.MagicLinkToken{},
		outbox:        map[string]*model.OutboxEvent{},
	}
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

// users

type fakeUsers struct{ db *memDB }

func (f fakeUsers) Create(_ context.Context, user *model.User) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, u := range f.db.users {
		if strings.EqualFold(u.Email, user.Email) {
			return appErr.ErrConflict
		}
	}
	f.db.users[user.ID] = clone(user)
	return nil
}

func (f fakeUsers) GetByID(_ context.Context, userID string) (*model.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[userID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return clone(u), nil
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, u := range f.db.users {
		if strings.EqualFold(u.Email, email) {
			return clone(u), nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f fakeUsers) ListByEmails(_ context.Context, emails []string) ([]*model.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*model.User
	for _, u := range f.db.users {
		for _, e := range emails {
			if strings.EqualFold(u.Email, e) {
				out = append(out, clone(u))
				break
			}
		}
	}
	return out, nil
}

func (f fakeUsers) SearchStudents(_ context.Context, query, excludeInstitute string, limit uint) ([]*model.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	q := strings.ToLower(query)
	var out []*model.User
	for _, u := range f.db.users {
		if u.Role != model.RoleStudent || strings.EqualFold(u.Institute, excludeInstitute) {
			continue
		}
		hay := strings.ToLower(u.Name + " " + u.Email + " " + u.Institute)
		if q != "" && !strings.Contains(hay, q) {
			continue
		}
		out = append(out, clone(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if uint(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeUsers) mutate(userID string, fn func(u *model.User)) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[userID]
	if !ok {
		return appErr.ErrNotFound
	}
	fn(u)
	return nil
}

func (f fakeUsers) UpdateRole(_ context.Context, userID string, role model.Role, mtime int64) error {
	return f.mutate(userID, func(u *model.User) { u.Role, u.Mtime = role, mtime })
}

func (f fakeUsers) CompleteProfile(_ context.Context, userID, name, institute, passwordHash string, mtime int64) error {
	return f.mutate(userID, func(u *model.User) {
		u.Name, u.Institute, u.PasswordHash, u.Mtime = name, institute, passwordHash, mtime
		u.Role = model.RoleVerifier
		u.ProfileSetupComplete = 1
	})
}

// items

type fakeEducations struct{ db *memDB }

func (f fakeEducations) Create(_ context.Context, edu *model.Education) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.educations[edu.ID] = clone(edu)
	return nil
}

func (f fakeEducations) GetByID(_ context.Context, id string) (*model.Education, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e, ok := f.db.educations[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return clone(e), nil
}

func (f fakeEducations) ListByUser(_ context.Context, userID string) ([]*model.Education, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*model.Education
	for _, e := range f.db.educations {
		if e.UserID == userID {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func (f fakeEducations) ApplyOutcome(_ context.Context, id string, outcome model.ItemOutcome) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e, ok := f.db.educations[id]
	if !ok {
		return appErr.ErrNotFound
	}
	e.VerifiedBy, e.VerifierComment, e.Mtime = outcome.VerifiedBy, outcome.Comment, outcome.VerifiedAt
	if outcome.VerifierName != "" {
		e.VerifierName = outcome.VerifierName
	}
	if outcome.VerifierOrganization != "" {
		e.VerifierOrganization = outcome.VerifierOrganization
	}
	if outcome.Verified {
		e.Verified, e.VerifiedAt = 1, outcome.VerifiedAt
	}
	return nil
}

type fakeExperiences struct{ db *memDB }

func (f fakeExperiences) Create(_ context.Context, exp *model.Experience) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.experiences[exp.ID] = clone(exp)
	return nil
}

func (f fakeExperiences) GetByID(_ context.Context, id string) (*model.Experience, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e, ok := f.db.experiences[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return clone(e), nil
}

func (f fakeExperiences) ListByUser(_ context.Context, userID string) ([]*model.Experience, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*model.Experience
	for _, e := range f.db.experiences {
		if e.UserID == userID {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func (f fakeExperiences) ApplyOutcome(_ context.Context, id string, outcome model.ItemOutcome) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e, ok := f.db.experiences[id]
	if !ok {
		return appErr.ErrNotFound
	}
	e.VerifiedBy, e.VerifierComment, e.Mtime = outcome.VerifiedBy, outcome.Comment, outcome.VerifiedAt
	if outcome.VerifierName != "" {
		e.VerifierName = outcome.VerifierName
	}
	if outcome.VerifierOrganization != "" {
		e.VerifierOrganization = outcome.VerifierOrganization
	}
	if outcome.Verified {
		e.Verified, e.VerifiedAt = 1, outcome.VerifiedAt
	}
	return nil
}

// verifications

type fakeVerifications struct{ db *memDB }

func (f fakeVerifications) Create(_ context.Context, v *model.Verification) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if v.Status == model.VerificationPending {
		for _, existing := range f.db.verifications {
			if existing.Status == model.VerificationPending && existing.ItemID == v.ItemID && existing.ItemType == v.ItemType {
				return appErr.ErrConflict
			}
		}
	}
	f.db.verifications[v.ID] = clone(v)
	return nil
}

func (f fakeVerifications) GetByID(_ context.Context, id string) (*model.Verification, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	v, ok := f.db.verifications[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return clone(v), nil
}

func (f fakeVerifications) GetPendingForItem(_ context.Context, itemID string, itemType model.ItemType, now int64) (*model.Verification, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, v := range f.db.verifications {
		if v.ItemID == itemID && v.ItemType == itemType && v.Status == model.VerificationPending && v.ExpiresAt > now {
			return clone(v), nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f fakeVerifications) expire(match func(v *model.Verification) bool, now int64) int64 {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for _, v := range f.db.verifications {
		if v.Status == model.VerificationPending && v.ExpiresAt <= now && match(v) {
			v.Status, v.Mtime = model.VerificationExpired, now
			n++
		}
	}
	return n
}

func (f fakeVerifications) ExpirePendingForItem(_ context.Context, itemID string, itemType model.ItemType, now int64) (int64, error) {
	return f.expire(func(v *model.Verification) bool { return v.ItemID == itemID && v.ItemType == itemType }, now), nil
}

func (f fakeVerifications) ExpireStale(_ context.Context, now int64) (int64, error) {
	return f.expire(func(*model.Verification) bool { return true }, now), nil
}

func (f fakeVerifications) Decide(_ context.Context, id string, status model.VerificationStatus, decidedBy, comment string, now int64, entry *model.VerificationLog) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	v, ok := f.db.verifications[id]
	if !ok || v.Status != model.VerificationPending || v.ExpiresAt <= now {
		return false, nil
	}
	v.Status, v.DecidedBy, v.Comment, v.DecidedAt, v.Mtime = status, decidedBy, comment, now, now
	f.db.logs = append(f.db.logs, clone(entry))
	return true, nil
}

func (f fakeVerifications) UpdateVerifierInfo(_ context.Context, id, name, organization string, now int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	v, ok := f.db.verifications[id]
	if !ok {
		return appErr.ErrNotFound
	}
	if name != "" {
		v.VerifierName = name
	}
	if organization != "" {
		v.VerifierOrganization = organization
	}
	v.Mtime = now
	return nil
}

type fakeLogs struct {
	db   *memDB
	fail bool
}

func (f fakeLogs) Append(_ context.Context, entry *model.VerificationLog) error {
	if f.fail {
		return errors.New("log store down")
	}
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.logs = append(f.db.logs, clone(entry))
	return nil
}

func (f fakeLogs) ListByVerification(_ context.Context, verificationID string) ([]*model.VerificationLog, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*model.VerificationLog
	for _, l := range f.db.logs {
		if l.VerificationID == verificationID {
			out = append(out, clone(l))
		}
	}
	return out, nil
}

// invites

type fakeInvites struct{ db *memDB }

func (f fakeInvites) Create(_ context.Context, invite *model.VerifierInvite) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.invites {
		if existing.Status == model.InvitePending && existing.VerificationID == invite.VerificationID &&
			existing.EmailLower == invite.EmailLower {
			return appErr.ErrConflict
		}
	}
	f.db.invites[invite.ID] = clone(invite)
	return nil
}

func (f fakeInvites) GetByID(_ context.Context, id string) (*model.VerifierInvite, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	i, ok := f.db.invites[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	c := clone(i)
	c.Audit = append([]model.InviteAuditEntry(nil), i.Audit...)
	return c, nil
}

func (f fakeInvites) RotateClaimToken(_ context.Context, id, jti string, expiresAt, now int64, entry model.InviteAuditEntry) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	i, ok := f.db.invites[id]
	if !ok || i.Status != model.InvitePending {
		return false, nil
	}
	i.TokenJTI, i.TokenExpiresAt, i.LastSentAt, i.Mtime = jti, expiresAt, now, now
	i.NotifyCount++
	i.Audit = append(i.Audit, entry)
	return true, nil
}

func (f fakeInvites) Claim(_ context.Context, id, expectedJTI, usedByUserID, actionJTI string, actionExpiresAt, now int64, entry model.InviteAuditEntry) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	i, ok := f.db.invites[id]
	if !ok || i.Status != model.InvitePending || i.TokenJTI != expectedJTI {
		return false, nil
	}
	i.Status, i.UsedAt, i.UsedByUserID, i.Mtime = model.InviteAccepted, now, usedByUserID, now
	i.ActionTokenJTI, i.ActionTokenExpiresAt = actionJTI, actionExpiresAt
	i.Audit = append(i.Audit, entry)
	return true, nil
}

func (f fakeInvites) BindUser(_ context.Context, id, userID string, now int64, entry model.InviteAuditEntry) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	i, ok := f.db.invites[id]
	if !ok {
		return appErr.ErrNotFound
	}
	i.UsedByUserID, i.Mtime = userID, now
	i.Audit = append(i.Audit, entry)
	return nil
}

func (f fakeInvites) Revoke(_ context.Context, id, reason string, now int64, entry model.InviteAuditEntry) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	i, ok := f.db.invites[id]
	if !ok {
		return appErr.ErrNotFound
	}
	i.Status, i.StatusReason, i.ComplaintFlag, i.Mtime = model.InviteRevoked, reason, 1, now
	i.Audit = append(i.Audit, entry)
	return nil
}

func (f fakeInvites) expire(match func(i *model.VerifierInvite) bool, now int64) int64 {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for _, i := range f.db.invites {
		if i.Status == model.InvitePending && i.TokenExpiresAt <= now && match(i) {
			i.Status, i.StatusReason, i.Mtime = model.InviteExpired, "invite link expired", now
			n++
		}
	}
	return n
}

func (f fakeInvites) ExpirePendingFor(_ context.Context, verificationID, emailLower string, now int64) (int64, error) {
	return f.expire(func(i *model.VerifierInvite) bool {
		return i.VerificationID == verificationID && i.EmailLower == emailLower
	}, now), nil
}

func (f fakeInvites) ExpireStale(_ context.Context, now int64) (int64, error) {
	return f.expire(func(*model.VerifierInvite) bool { return true }, now), nil
}

// background verifications

type fakeBGs struct{ db *memDB }

func bgActive(bg *model.BackgroundVerification) bool {
	return (bg.Status == model.BGPending || bg.Status == model.BGSubmitted) && bg.Completed == 0
}

func cloneBG(bg *model.BackgroundVerification) *model.BackgroundVerification {
	c := clone(bg)
	c.RefereeContacts = append([]model.RefereeContact{}, bg.RefereeContacts...)
	return c
}

func (f fakeBGs) Create(_ context.Context, bg *model.BackgroundVerification) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.bgs {
		if bgActive(existing) && existing.StudentID == bg.StudentID && existing.VerifierID == bg.VerifierID {
			return appErr.ErrConflict
		}
	}
	f.db.bgs[bg.ID] = cloneBG(bg)
	return nil
}

func (f fakeBGs) GetByID(_ context.Context, id string) (*model.BackgroundVerification, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	bg, ok := f.db.bgs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return cloneBG(bg), nil
}

func (f fakeBGs) deleteWhere(match func(bg *model.BackgroundVerification) bool) int64 {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for id, bg := range f.db.bgs {
		if match(bg) {
			delete(f.db.bgs, id)
			n++
		}
	}
	return n
}

func (f fakeBGs) DeleteExpiredForPair(_ context.Context, studentID, verifierID string, now int64) (int64, error) {
	return f.deleteWhere(func(bg *model.BackgroundVerification) bool {
		return bg.StudentID == studentID && bg.VerifierID == verifierID && bg.ExpiresAt <= now
	}), nil
}

func (f fakeBGs) DeleteExpired(_ context.Context, now int64) (int64, error) {
	return f.deleteWhere(func(bg *model.BackgroundVerification) bool { return bg.ExpiresAt <= now }), nil
}

func (f fakeBGs) list(match func(bg *model.BackgroundVerification) bool) []*model.BackgroundVerification {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*model.BackgroundVerification
	for _, bg := range f.db.bgs {
		if match(bg) {
			out = append(out, cloneBG(bg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f fakeBGs) ListActiveByStudent(_ context.Context, studentID string, now int64) ([]*model.BackgroundVerification, error) {
	return f.list(func(bg *model.BackgroundVerification) bool {
		return bg.StudentID == studentID && bgActive(bg) && bg.ExpiresAt > now
	}), nil
}

func (f fakeBGs) ListByVerifier(_ context.Context, verifierID string, status model.BGStatus, now int64) ([]*model.BackgroundVerification, error) {
	return f.list(func(bg *model.BackgroundVerification) bool {
		return bg.VerifierID == verifierID && bg.ExpiresAt > now && (status == "" || bg.Status == status)
	}), nil
}

func (f fakeBGs) ListByRefereeEmail(_ context.Context, email string, now int64) ([]*model.BackgroundVerification, error) {
	return f.list(func(bg *model.BackgroundVerification) bool {
		if bg.Status != model.BGSubmitted || bg.ExpiresAt <= now {
			return false
		}
		_, ok := findReferee(bg, email)
		return ok
	}), nil
}

func (f fakeBGs) ActiveStudentIDs(_ context.Context, verifierID string, studentIDs []string, now int64) (map[string]bool, error) {
	wanted := map[string]bool{}
	for _, id := range studentIDs {
		wanted[id] = true
	}
	out := map[string]bool{}
	for _, bg := range f.list(func(bg *model.BackgroundVerification) bool {
		return bg.VerifierID == verifierID && wanted[bg.StudentID] && bgActive(bg) && bg.ExpiresAt > now
	}) {
		out[bg.StudentID] = true
	}
	return out, nil
}

func (f fakeBGs) SubmitReferences(_ context.Context, id string, contacts []model.RefereeContact, now int64) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	bg, ok := f.db.bgs[id]
	if !ok || bg.Status != model.BGPending || bg.ExpiresAt <= now {
		return false, nil
	}
	bg.Status, bg.SubmittedAt, bg.Mtime = model.BGSubmitted, now, now
	bg.RefereeContacts = append([]model.RefereeContact{}, contacts...)
	return true, nil
}

func (f fakeBGs) Complete(_ context.Context, id, verifierID string, now int64) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	bg, ok := f.db.bgs[id]
	if !ok || bg.VerifierID != verifierID || bg.Completed != 0 {
		return false, nil
	}
	bg.Completed, bg.CompletedAt, bg.CompletedBy, bg.Mtime = 1, now, verifierID, now
	return true, nil
}

// chats

type fakeChats struct{ db *memDB }

func (f fakeChats) FindOrCreate(_ context.Context, chat *model.BGChat) (*model.BGChat, bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.chats {
		if existing.BGVerificationID == chat.BGVerificationID && existing.RequesterID == chat.RequesterID &&
			existing.SharedContactID == chat.SharedContactID {
			return clone(existing), false, nil
		}
	}
	f.db.chats[chat.ID] = clone(chat)
	return clone(chat), true, nil
}

func (f fakeChats) GetByID(_ context.Context, id string) (*model.BGChat, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.chats[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return clone(c), nil
}

func (f fakeChats) GetByTriple(_ context.Context, bgVerificationID, requesterID, sharedContactID string) (*model.BGChat, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, c := range f.db.chats {
		if c.BGVerificationID == bgVerificationID && c.RequesterID == requesterID && c.SharedContactID == sharedContactID {
			return clone(c), nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f fakeChats) filter(match func(c *model.BGChat) bool) []*model.BGChat {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*model.BGChat
	for _, c := range f.db.chats {
		if match(c) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f fakeChats) ListByParticipant(_ context.Context, userID string) ([]*model.BGChat, error) {
	return f.filter(func(c *model.BGChat) bool { return c.IsActive == 1 && c.IsParticipant(userID) }), nil
}

func (f fakeChats) ListByBGVerification(_ context.Context, bgVerificationID string) ([]*model.BGChat, error) {
	return f.filter(func(c *model.BGChat) bool { return c.BGVerificationID == bgVerificationID }), nil
}

func (f fakeChats) AddMessage(_ context.Context, msg *model.BGChatMessage) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.chats[msg.ChatID]
	if !ok {
		return appErr.ErrNotFound
	}
	f.db.messages[msg.ChatID] = append(f.db.messages[msg.ChatID], clone(msg))
	c.LastMessageAt, c.Mtime = msg.Ctime, msg.Ctime
	return nil
}

func (f fakeChats) ListMessages(_ context.Context, chatID string) ([]*model.BGChatMessage, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return append([]*model.BGChatMessage{}, f.db.messages[chatID]...), nil
}

func (f fakeChats) LastMessages(_ context.Context, chatIDs []string) (map[string]*model.BGChatMessage, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := map[string]*model.BGChatMessage{}
	for _, id := range chatIDs {
		if msgs := f.db.messages[id]; len(msgs) > 0 {
			out[id] = msgs[len(msgs)-1]
		}
	}
	return out, nil
}

// magic links

type fakeLinks struct{ db *memDB }

func (f fakeLinks) Create(_ context.Context, link *model.MagicLinkToken) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.links[link.Token]; ok {
		return appErr.ErrConflict
	}
	f.db.links[link.Token] = clone(link)
	return nil
}

func (f fakeLinks) Get(_ context.Context, token string) (*model.MagicLinkToken, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	l, ok := f.db.links[token]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return clone(l), nil
}

func (f fakeLinks) ConsumeAndSetPassword(_ context.Context, token, passwordHash string, now int64) (*model.MagicLinkToken, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	l, ok := f.db.links[token]
	if !ok || l.Used != 0 || l.ExpiresAt <= now {
		return nil, appErr.ErrNotFound
	}
	var owner *model.User
	for _, u := range f.db.users {
		if u.Email == l.Email {
			owner = u
		}
	}
	if owner == nil {
		return nil, appErr.ErrInvalid
	}
	l.Used, l.UsedAt = 1, now
	owner.PasswordHash, owner.EmailVerified, owner.Mtime = passwordHash, 1, now
	return clone(l), nil
}

func (f fakeLinks) DeleteExpired(_ context.Context, now int64) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for token, l := range f.db.links {
		if l.ExpiresAt <= now {
			delete(f.db.links, token)
			n++
		}
	}
	return n, nil
}

// outbox

type fakeOutbox struct{ db *memDB }

func (f fakeOutbox) Enqueue(_ context.Context, event *model.OutboxEvent) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, e := range f.db.outbox {
		if e.DedupeKey == event.DedupeKey {
			return nil
		}
	}
	f.db.outbox[event.ID] = clone(event)
	return nil
}

func (f fakeOutbox) Lease(_ context.Context, owner string, limit int, now, leaseUntil int64) ([]*model.OutboxEvent, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var due []*model.OutboxEvent
	for _, e := range f.db.outbox {
		if (e.Status == model.OutboxPending && e.NextAttemptAt <= now) ||
			(e.Status == model.OutboxLeased && e.LeaseExpiresAt <= now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Ctime < due[j].Ctime || (due[i].Ctime == due[j].Ctime && due[i].ID < due[j].ID) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*model.OutboxEvent, 0, len(due))
	for _, e := range due {
		e.Status, e.LeaseOwner, e.LeaseExpiresAt, e.Mtime = model.OutboxLeased, owner, leaseUntil, now
		out = append(out, clone(e))
	}
	return out, nil
}

func (f fakeOutbox) settle(id, owner string, fn func(e *model.OutboxEvent)) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e, ok := f.db.outbox[id]
	if !ok || e.LeaseOwner != owner || e.Status != model.OutboxLeased {
		return appErr.ErrNotFound
	}
	fn(e)
	return nil
}

func (f fakeOutbox) MarkDone(_ context.Context, id, owner string, now int64) error {
	return f.settle(id, owner, func(e *model.OutboxEvent) {
		e.Status, e.AttemptCount, e.LeaseOwner, e.LeaseExpiresAt, e.LastError, e.Mtime = model.OutboxDone, e.AttemptCount+1, "", 0, "", now
	})
}

func (f fakeOutbox) MarkRetry(_ context.Context, id, owner string, nextAttemptAt int64, lastError string, now int64) error {
	return f.settle(id, owner, func(e *model.OutboxEvent) {
		e.Status, e.AttemptCount, e.NextAttemptAt = model.OutboxPending, e.AttemptCount+1, nextAttemptAt
		e.LeaseOwner, e.LeaseExpiresAt, e.LastError, e.Mtime = "", 0, lastError, now
	})
}

func (f fakeOutbox) MarkDead(_ context.Context, id, owner, lastError string, now int64) error {
	return f.settle(id, owner, func(e *model.OutboxEvent) {
		e.Status, e.AttemptCount, e.LeaseOwner, e.LeaseExpiresAt, e.LastError, e.Mtime = model.OutboxDead, e.AttemptCount+1, "", 0, lastError, now
	})
}

func (f fakeOutbox) DeleteDoneBefore(_ context.Context, cutoff int64) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for id, e := range f.db.outbox {
		if e.Status == model.OutboxDone && e.Mtime < cutoff {
			delete(f.db.outbox, id)
			n++
		}
	}
	return n, nil
}

// emails returns queued mails whose dedupe key starts with prefix.
func (db *memDB) emails(prefix string) []*model.OutboxEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*model.OutboxEvent
	for _, e := range db.outbox {
		if strings.HasPrefix(e.DedupeKey, prefix) {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DedupeKey < out[j].DedupeKey })
	return out
}

type recordedEvent struct {
	subject string
	event   live.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) PublishUser(_ context.Context, userID string, event live.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{subject: "user." + userID, event: event})
}

func (p *recordingPublisher) PublishChat(_ context.Context, chatID string, event live.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{subject: "chat." + chatID, event: event})
}

func (p *recordingPublisher) count(subject, eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.subject == subject && e.event.Type == eventType {
			n++
		}
	}
	return n
}
