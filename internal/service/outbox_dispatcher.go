package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/metrics"
	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

const (
	sendAttempts     = 3
	sendDelay        = 200 * time.Millisecond
	baseRetryBackoff = 30 * time.Second
	maxRetryBackoff  = time.Hour
	maxErrorLength   = 500
)

type OutboxDispatcherConfig struct {
	Owner       string
	BatchSize   int
	MaxAttempts int
	Lease       time.Duration
}

// OutboxDispatcher delivers queued side effects. An event is retried with
// exponential backoff and parked as DEAD after MaxAttempts deliveries fail.
type OutboxDispatcher struct {
	outbox OutboxStore
	sender EmailSender
	cfg    OutboxDispatcherConfig
}

func NewOutboxDispatcher(outbox OutboxStore, sender EmailSender, cfg OutboxDispatcherConfig) *OutboxDispatcher {
	if cfg.Owner == "" {
		cfg.Owner = "dispatcher-" + newID()[:8]
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 6
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	return &OutboxDispatcher{outbox: outbox, sender: sender, cfg: cfg}
}

// Dispatch leases one batch and settles every event in it. It returns how many
// events were delivered.
func (d *OutboxDispatcher) Dispatch(ctx context.Context) (int, error) {
	now := timeutil.NowUnix()
	events, err := d.outbox.Lease(ctx, d.cfg.Owner, d.cfg.BatchSize, now, now+int64(d.cfg.Lease/time.Second))
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if d.deliver(ctx, event) {
			delivered++
		}
	}
	return delivered, nil
}

func (d *OutboxDispatcher) deliver(ctx context.Context, event *model.OutboxEvent) bool {
	logger := logutil.GetLogger(ctx).With(zap.String("event_id", event.ID), zap.String("kind", event.Kind),
		zap.String("dedupe_key", event.DedupeKey))
	sendErr := d.send(ctx, event)
	now := timeutil.NowUnix()
	if sendErr == nil {
		if err := d.outbox.MarkDone(ctx, event.ID, d.cfg.Owner, now); err != nil {
			logger.Warn("mark outbox event done failed", zap.Error(err))
		}
		metrics.OutboxDeliveries.WithLabelValues(event.Kind, "ok").Inc()
		return true
	}
	lastError := truncate(sendErr.Error(), maxErrorLength)
	attempt := event.AttemptCount + 1
	if attempt >= d.cfg.MaxAttempts {
		if err := d.outbox.MarkDead(ctx, event.ID, d.cfg.Owner, lastError, now); err != nil {
			logger.Warn("mark outbox event dead failed", zap.Error(err))
		}
		metrics.OutboxDeliveries.WithLabelValues(event.Kind, "dead").Inc()
		logger.Error("outbox event gave up", zap.Int("attempts", attempt), zap.Error(sendErr))
		return false
	}
	next := now + int64(retryBackoff(attempt)/time.Second)
	if err := d.outbox.MarkRetry(ctx, event.ID, d.cfg.Owner, next, lastError, now); err != nil {
		logger.Warn("mark outbox event retry failed", zap.Error(err))
	}
	metrics.OutboxDeliveries.WithLabelValues(event.Kind, "retry").Inc()
	logger.Warn("outbox delivery failed, will retry", zap.Int("attempt", attempt), zap.Int64("next_attempt_at", next), zap.Error(sendErr))
	return false
}

func (d *OutboxDispatcher) send(ctx context.Context, event *model.OutboxEvent) error {
	switch event.Kind {
	case OutboxKindEmail:
		var mail Mail
		if err := json.Unmarshal([]byte(event.PayloadJSON), &mail); err != nil {
			return fmt.Errorf("decode email payload: %w", err)
		}
		return retry.Do(
			func() error { return d.sender.Send(ctx, mail) },
			retry.Context(ctx),
			retry.Attempts(sendAttempts),
			retry.Delay(sendDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
	default:
		return fmt.Errorf("unknown outbox kind %q", event.Kind)
	}
}

func retryBackoff(attempt int) time.Duration {
	backoff := baseRetryBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	return backoff
}
