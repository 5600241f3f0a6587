package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
	"github.com/Xzayogn-ECS/trueport-backend/internal/service"
)

type countingDispatcher struct {
	batches []int
	err     error
	calls   int
}

func (d *countingDispatcher) Dispatch(context.Context) (int, error) {
	d.calls++
	if d.err != nil {
		return 0, d.err
	}
	if len(d.batches) == 0 {
		return 0, nil
	}
	n := d.batches[0]
	d.batches = d.batches[1:]
	return n, nil
}

func TestOutboxDispatchJobDrainsFullBatches(t *testing.T) {
	d := &countingDispatcher{batches: []int{5, 5, 2, 5}}
	require.NoError(t, NewOutboxDispatchJob(d, 5).Run(context.Background()))
	assert.Equal(t, 3, d.calls)

	flood := &countingDispatcher{batches: make([]int, 50)}
	for i := range flood.batches {
		flood.batches[i] = 1
	}
	require.NoError(t, NewOutboxDispatchJob(flood, 1).Run(context.Background()))
	assert.Equal(t, maxDispatchRounds, flood.calls)

	failing := &countingDispatcher{err: errors.New("db down")}
	assert.Error(t, NewOutboxDispatchJob(failing, 5).Run(context.Background()))

	assert.NoError(t, NewOutboxDispatchJob(nil, 5).Run(context.Background()))
}

type sweepVerifications struct {
	service.VerificationStore
	n   int64
	err error
}

func (s *sweepVerifications) ExpireStale(context.Context, int64) (int64, error) { return s.n, s.err }

type sweepInvites struct {
	service.InviteStore
	calls int
}

func (s *sweepInvites) ExpireStale(context.Context, int64) (int64, error) {
	s.calls++
	return 2, nil
}

type sweepBGs struct{ service.BGVerificationStore }

func (sweepBGs) DeleteExpired(context.Context, int64) (int64, error) { return 0, nil }

type sweepLinks struct{ service.MagicLinkStore }

func (sweepLinks) DeleteExpired(context.Context, int64) (int64, error) { return 1, nil }

type sweepOutbox struct {
	service.OutboxStore
	cutoff int64
}

func (s *sweepOutbox) DeleteDoneBefore(_ context.Context, cutoff int64) (int64, error) {
	s.cutoff = cutoff
	return 0, nil
}

func TestExpirySweepRunsEveryStep(t *testing.T) {
	invites := &sweepInvites{}
	outbox := &sweepOutbox{}
	job := NewExpirySweepJob(ExpirySweepDeps{
		Verifications:   &sweepVerifications{err: errors.New("boom")},
		Invites:         invites,
		BGVerifications: sweepBGs{},
		MagicLinks:      sweepLinks{},
		Outbox:          outbox,
	})
	assert.Equal(t, "expiry_sweep", job.Name())

	before := timeutil.NowUnix()
	err := job.Run(context.Background())
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, invites.calls)
	retention := int64(defaultOutboxRetention / time.Second)
	assert.GreaterOrEqual(t, outbox.cutoff, before-retention)
	assert.LessOrEqual(t, outbox.cutoff, timeutil.NowUnix()-retention)
}

func TestExpirySweepCustomRetention(t *testing.T) {
	outbox := &sweepOutbox{}
	job := NewExpirySweepJob(ExpirySweepDeps{
		Verifications:   &sweepVerifications{n: 3},
		Invites:         &sweepInvites{},
		BGVerifications: sweepBGs{},
		MagicLinks:      sweepLinks{},
		Outbox:          outbox,
		OutboxRetention: time.Hour,
	})
	require.NoError(t, job.Run(context.Background()))
	assert.InDelta(t, timeutil.NowUnix()-3600, outbox.cutoff, 2)
}
