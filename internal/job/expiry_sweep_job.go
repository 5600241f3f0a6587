package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
	"github.com/Xzayogn-ECS/trueport-backend/internal/service"
)

const defaultOutboxRetention = 7 * 24 * time.Hour

type ExpirySweepDeps struct {
	Verifications   service.VerificationStore
	Invites         service.InviteStore
	BGVerifications service.BGVerificationStore
	MagicLinks      service.MagicLinkStore
	Outbox          service.OutboxStore
	OutboxRetention time.Duration
}

// ExpirySweepJob settles everything whose window has passed. Read paths check
// expiry on their own, so the sweep only keeps tables and unique indexes tidy.
type ExpirySweepJob struct {
	deps ExpirySweepDeps
}

func NewExpirySweepJob(deps ExpirySweepDeps) *ExpirySweepJob {
	if deps.OutboxRetention <= 0 {
		deps.OutboxRetention = defaultOutboxRetention
	}
	return &ExpirySweepJob{deps: deps}
}

func (j *ExpirySweepJob) Name() string {
	return "expiry_sweep"
}

func (j *ExpirySweepJob) Run(ctx context.Context) error {
	now := timeutil.NowUnix()
	steps := []struct {
		name string
		run  func() (int64, error)
	}{
		{"verifications", func() (int64, error) { return j.deps.Verifications.ExpireStale(ctx, now) }},
		{"invites", func() (int64, error) { return j.deps.Invites.ExpireStale(ctx, now) }},
		{"bg_verifications", func() (int64, error) { return j.deps.BGVerifications.DeleteExpired(ctx, now) }},
		{"magic_links", func() (int64, error) { return j.deps.MagicLinks.DeleteExpired(ctx, now) }},
		{"outbox", func() (int64, error) {
			return j.deps.Outbox.DeleteDoneBefore(ctx, now-int64(j.deps.OutboxRetention/time.Second))
		}},
	}
	logger := logutil.GetLogger(ctx)
	var firstErr error
	for _, step := range steps {
		affected, err := step.run()
		if err != nil {
			logger.Error("expiry sweep step failed", zap.String("step", step.name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if affected > 0 {
			logger.Info("expiry sweep step done", zap.String("step", step.name), zap.Int64("affected", affected))
		}
	}
	return firstErr
}
