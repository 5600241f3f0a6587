package service

import (
	"context"
	"encoding/json"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

const OutboxKindEmail = "email"

type Mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notifier queues side effects after the primary write has committed. Enqueue
// never fails the caller; a lost notification is logged.
type Notifier struct {
	outbox OutboxStore
}

func NewNotifier(outbox OutboxStore) *Notifier {
	return &Notifier{outbox: outbox}
}

func (n *Notifier) Email(ctx context.Context, dedupeKey string, mail Mail) {
	logger := logutil.GetLogger(ctx).With(zap.String("dedupe_key", dedupeKey), zap.String("to", mail.To))
	if n == nil || n.outbox == nil {
		logger.Warn("notifier not configured, email dropped")
		return
	}
	payload, err := json.Marshal(mail)
	if err != nil {
		logger.Warn("encode email payload failed", zap.Error(err))
		return
	}
	now := timeutil.NowUnix()
	event := &model.OutboxEvent{
		ID:            newID(),
		Kind:          OutboxKindEmail,
		PayloadJSON:   string(payload),
		DedupeKey:     dedupeKey,
		Status:        model.OutboxPending,
		NextAttemptAt: now,
		Ctime:         now,
		Mtime:         now,
	}
	if err := n.outbox.Enqueue(ctx, event); err != nil {
		logger.Warn("enqueue email failed", zap.Error(err))
	}
}
