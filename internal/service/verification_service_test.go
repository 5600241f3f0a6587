package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

type sessionFixture struct {
	env      *testEnv
	student  *model.User
	verifier *model.User
	item     *model.Education
	record   *model.Verification
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	env := newTestEnv(t)
	student := env.addUser(t, "Sam", "sam@school.edu", model.RoleStudent, "Springfield")
	verifier := env.addUser(t, "Vera", "vera@school.edu", model.RoleVerifier, "Springfield")
	item := env.addEducation(t, student, "BSc Physics")
	record, created, err := env.records.CreateOrGetPending(context.Background(), PendingRequest{
		ItemID:        item.ID,
		ItemType:      model.ItemTypeEducation,
		VerifierEmail: "Vera@School.edu",
		ActorEmail:    student.Email,
	})
	require.NoError(t, err)
	require.True(t, created)
	return &sessionFixture{env: env, student: student, verifier: verifier, item: item, record: record}
}

func (f *sessionFixture) expireRecord() {
	f.env.db.mu.Lock()
	defer f.env.db.mu.Unlock()
	f.env.db.verifications[f.record.ID].ExpiresAt = timeutil.NowUnix() - 1
}

func TestCreateOrGetPendingReturnsExisting(t *testing.T) {
	f := newSessionFixture(t)
	again, created, err := f.env.records.CreateOrGetPending(context.Background(), PendingRequest{
		ItemID:        f.item.ID,
		ItemType:      model.ItemTypeEducation,
		VerifierEmail: "vera@school.edu",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, f.record.ID, again.ID)
	assert.Equal(t, "vera@school.edu", f.record.VerifierEmail)
}

func TestCreateOrGetPendingConcurrentKeepsOneRecord(t *testing.T) {
	env := newTestEnv(t)
	student := env.addUser(t, "Sam", "sam@school.edu", model.RoleStudent, "Springfield")
	item := env.addEducation(t, student, "BSc")

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record, _, err := env.records.CreateOrGetPending(context.Background(), PendingRequest{
				ItemID:        item.ID,
				ItemType:      model.ItemTypeEducation,
				VerifierEmail: "v@x.com",
			})
			if assert.NoError(t, err) {
				ids[i] = record.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	env.db.mu.Lock()
	defer env.db.mu.Unlock()
	assert.Len(t, env.db.verifications, 1)
}

func TestCreateOrGetPendingReplacesExpired(t *testing.T) {
	f := newSessionFixture(t)
	f.expireRecord()
	fresh, created, err := f.env.records.CreateOrGetPending(context.Background(), PendingRequest{
		ItemID:        f.item.ID,
		ItemType:      model.ItemTypeEducation,
		VerifierEmail: "other@x.com",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, f.record.ID, fresh.ID)
	assert.Equal(t, model.VerificationExpired, f.env.verification(t, f.record.ID).Status)
}

func TestCreateOrGetPendingRejectsGithubProject(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.records.CreateOrGetPending(context.Background(), PendingRequest{
		ItemID:        "repo-1",
		ItemType:      model.ItemTypeGithubProject,
		VerifierEmail: "v@x.com",
	})
	assert.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestDecideWithSession(t *testing.T) {
	f := newSessionFixture(t)
	record, err := f.env.records.Decide(context.Background(), DecisionRequest{
		VerificationID: f.record.ID,
		Decision:       "deny",
		Comment:        "no such course",
		SessionUserID:  f.verifier.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.VerificationRejected, record.Status)

	edu, err := fakeEducations{f.env.db}.GetByID(context.Background(), f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, edu.Verified)
	assert.Equal(t, "no such course", edu.VerifierComment)
	assert.Equal(t, "Springfield", edu.VerifierOrganization)

	mail := decodeMail(t, f.env.db.emails("decision:" + f.record.ID)[0])
	assert.Contains(t, mail.Subject, "Rejected")
}

func TestDecideRules(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *sessionFixture) DecisionRequest
		want  error
	}{
		{
			name: "bad decision",
			setup: func(t *testing.T, f *sessionFixture) DecisionRequest {
				return DecisionRequest{VerificationID: f.record.ID, Decision: "MAYBE", SessionUserID: f.verifier.ID}
			},
			want: appErr.ErrInvalid,
		},
		{
			name: "no credentials",
			setup: func(t *testing.T, f *sessionFixture) DecisionRequest {
				return DecisionRequest{VerificationID: f.record.ID, Decision: model.DecisionApprove}
			},
			want: appErr.ErrUnauthorized,
		},
		{
			name: "student session",
			setup: func(t *testing.T, f *sessionFixture) DecisionRequest {
				return DecisionRequest{VerificationID: f.record.ID, Decision: model.DecisionApprove, SessionUserID: f.student.ID}
			},
			want: appErr.ErrForbidden,
		},
		{
			name: "other verifier",
			setup: func(t *testing.T, f *sessionFixture) DecisionRequest {
				other := f.env.addUser(t, "Otto", "otto@school.edu", model.RoleVerifier, "Springfield")
				return DecisionRequest{VerificationID: f.record.ID, Decision: model.DecisionApprove, SessionUserID: other.ID}
			},
			want: appErr.ErrForbidden,
		},
		{
			name: "expired",
			setup: func(t *testing.T, f *sessionFixture) DecisionRequest {
				f.expireRecord()
				return DecisionRequest{VerificationID: f.record.ID, Decision: model.DecisionApprove, SessionUserID: f.verifier.ID}
			},
			want: appErr.ErrGone,
		},
		{
			name: "unknown record",
			setup: func(t *testing.T, f *sessionFixture) DecisionRequest {
				return DecisionRequest{VerificationID: "missing", Decision: model.DecisionApprove, SessionUserID: f.verifier.ID}
			},
			want: appErr.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t)
			_, err := f.env.records.Decide(context.Background(), tt.setup(t, f))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, model.VerificationPending, f.env.verification(t, f.record.ID).Status)
		})
	}
}

func TestDecideProcessedBeforeActorCheck(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	_, err := f.env.records.Decide(ctx, DecisionRequest{VerificationID: f.record.ID, Decision: model.DecisionApprove, SessionUserID: f.verifier.ID})
	require.NoError(t, err)

	other := f.env.addUser(t, "Otto", "otto@school.edu", model.RoleVerifier, "Springfield")
	_, err = f.env.records.Decide(ctx, DecisionRequest{VerificationID: f.record.ID, Decision: model.DecisionDeny, SessionUserID: other.ID})
	assert.ErrorIs(t, err, appErr.ErrAlreadyProcessed)
	assert.Equal(t, model.VerificationApproved, f.env.verification(t, f.record.ID).Status)
}

func TestDecideConcurrentSingleWinner(t *testing.T) {
	f := newSessionFixture(t)
	const workers = 12
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := model.DecisionApprove
			if i%2 == 1 {
				decision = model.DecisionDeny
			}
			_, errs[i] = f.env.records.Decide(context.Background(), DecisionRequest{
				VerificationID: f.record.ID,
				Decision:       decision,
				SessionUserID:  f.verifier.ID,
			})
		}(i)
	}
	wg.Wait()
	var winners int
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, appErr.ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, winners)
	assert.Len(t, f.env.db.emails("decision:"+f.record.ID), 1)

	logs, err := fakeLogs{db: f.env.db}.ListByVerification(context.Background(), f.record.ID)
	require.NoError(t, err)
	var decided int
	for _, l := range logs {
		if l.Action != model.LogActionCreated {
			decided++
		}
	}
	assert.Equal(t, 1, decided)
}

func TestDecideActionTokenMustMatchRecord(t *testing.T) {
	f := newInviteFixture(t, "ext@x.com")
	ctx := context.Background()
	claim, err := f.env.invites.Claim(ctx, f.invite.ID, f.token)
	require.NoError(t, err)

	_, err = f.env.records.Decide(ctx, DecisionRequest{VerificationID: "another", Decision: model.DecisionApprove, ActionToken: claim.ActionToken})
	assert.ErrorIs(t, err, appErr.ErrForbidden)

	_, err = f.env.records.Decide(ctx, DecisionRequest{VerificationID: f.invite.VerificationID, Decision: model.DecisionApprove, ActionToken: f.token})
	assert.ErrorIs(t, err, appErr.ErrTokenRevoked)
}

func TestDetailsWithActionToken(t *testing.T) {
	f := newInviteFixture(t, "ext@x.com")
	ctx := context.Background()
	claim, err := f.env.invites.Claim(ctx, f.invite.ID, f.token)
	require.NoError(t, err)

	details, err := f.env.records.Details(ctx, f.invite.VerificationID, claim.ActionToken)
	require.NoError(t, err)
	assert.Equal(t, "BSc Physics", details.Item.Title)
	assert.Equal(t, f.student.ID, details.Student.ID)
	require.NotEmpty(t, details.Logs)
	assert.Equal(t, model.LogActionCreated, details.Logs[0].Action)

	_, err = f.env.records.Details(ctx, f.invite.VerificationID, "")
	assert.ErrorIs(t, err, appErr.ErrTokenInvalid)
}

func TestCreateOrGetPendingSurvivesLogFailure(t *testing.T) {
	env := newTestEnv(t)
	student := env.addUser(t, "Sam", "sam@school.edu", model.RoleStudent, "Springfield")
	item := env.addEducation(t, student, "BSc")
	registry := NewItemRegistry(fakeEducations{env.db}, fakeExperiences{env.db})
	records := NewVerificationService(fakeVerifications{env.db}, fakeLogs{db: env.db, fail: true}, fakeUsers{env.db}, registry,
		env.tokens, env.notifier, env.templates, 0)
	record, created, err := records.CreateOrGetPending(context.Background(), PendingRequest{
		ItemID:        item.ID,
		ItemType:      model.ItemTypeEducation,
		VerifierEmail: "v@x.com",
		ActorEmail:    student.Email,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.VerificationPending, record.Status)
}
