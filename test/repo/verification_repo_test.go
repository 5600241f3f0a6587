package repo_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
	"github.com/Xzayogn-ECS/trueport-backend/internal/repo"
	"github.com/Xzayogn-ECS/trueport-backend/test/testutil"
)

func pendingVerification(itemID string, now int64) *model.Verification {
	return &model.Verification{
		ID:            testutil.NewID(),
		ItemID:        itemID,
		ItemType:      model.ItemTypeEducation,
		VerifierEmail: "v@example.com",
		Status:        model.VerificationPending,
		Token:         testutil.NewID(),
		ExpiresAt:     now + 3600,
		Ctime:         now,
		Mtime:         now,
	}
}

func TestVerificationRepoSinglePendingPerItem(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	ctx := context.Background()
	verifications := repo.NewVerificationRepo(db)
	now := timeutil.NowUnix()
	itemID := testutil.NewID()

	first := pendingVerification(itemID, now)
	require.NoError(t, verifications.Create(ctx, first))
	require.ErrorIs(t, verifications.Create(ctx, pendingVerification(itemID, now)), appErr.ErrConflict)

	got, err := verifications.GetPendingForItem(ctx, itemID, model.ItemTypeEducation, now)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)

	_, err = verifications.GetPendingForItem(ctx, itemID, model.ItemTypeExperience, now)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestVerificationRepoDecideOnce(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	ctx := context.Background()
	verifications := repo.NewVerificationRepo(db)
	logs := repo.NewVerificationLogRepo(db)
	now := timeutil.NowUnix()
	record := pendingVerification(testutil.NewID(), now)
	require.NoError(t, verifications.Create(ctx, record))

	const workers = 8
	wins := make([]bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := &model.VerificationLog{
				ID:             testutil.NewID(),
				VerificationID: record.ID,
				Action:         model.LogActionApproved,
				ActorEmail:     "v@example.com",
				Ctime:          now,
			}
			ok, err := verifications.Decide(ctx, record.ID, model.VerificationApproved, "v@example.com", "ok", now, entry)
			require.NoError(t, err)
			wins[i] = ok
		}(i)
	}
	wg.Wait()

	var n int
	for _, ok := range wins {
		if ok {
			n++
		}
	}
	require.Equal(t, 1, n)

	entries, err := logs.ListByVerification(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	stored, err := verifications.GetByID(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, model.VerificationApproved, stored.Status)
	require.Equal(t, "v@example.com", stored.DecidedBy)
}

func TestVerificationRepoExpire(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	ctx := context.Background()
	verifications := repo.NewVerificationRepo(db)
	now := timeutil.NowUnix()
	itemID := testutil.NewID()
	stale := pendingVerification(itemID, now)
	stale.ExpiresAt = now - 10
	require.NoError(t, verifications.Create(ctx, stale))

	ok, err := verifications.Decide(ctx, stale.ID, model.VerificationApproved, "v@example.com", "", now, &model.VerificationLog{
		ID: testutil.NewID(), VerificationID: stale.ID, Action: model.LogActionApproved, Ctime: now,
	})
	require.NoError(t, err)
	require.False(t, ok)

	n, err := verifications.ExpirePendingForItem(ctx, itemID, model.ItemTypeEducation, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, verifications.Create(ctx, pendingVerification(itemID, now)))

	stored, err := verifications.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, model.VerificationExpired, stored.Status)
}

func TestVerificationRepoUpdateVerifierInfoKeepsBlankFields(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	ctx := context.Background()
	verifications := repo.NewVerificationRepo(db)
	now := timeutil.NowUnix()
	record := pendingVerification(testutil.NewID(), now)
	record.VerifierOrganization = "Acme"
	require.NoError(t, verifications.Create(ctx, record))

	require.NoError(t, verifications.UpdateVerifierInfo(ctx, record.ID, "Vera", "", now))
	stored, err := verifications.GetByID(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, "Vera", stored.VerifierName)
	require.Equal(t, "Acme", stored.VerifierOrganization)
}
