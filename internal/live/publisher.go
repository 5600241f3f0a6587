package live

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/metrics"
)

const (
	EventChatCreated = "bg_chat_created"
	EventMessage     = "bg_message"
)

type Event struct {
	Type      string      `json:"type"`
	ChatID    string      `json:"chat_id,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	At        int64       `json:"at"`
}

// Publisher emits at-most-once live notifications over core NATS. A publisher
// without a connection drops every event.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

func New(url, prefix string) (*Publisher, error) {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "trueport"
	}
	if strings.TrimSpace(url) == "" {
		return &Publisher{prefix: prefix}, nil
	}
	conn, err := nats.Connect(url,
		nats.Name("trueport"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, prefix: prefix}, nil
}

func NewNoop() *Publisher {
	return &Publisher{prefix: "trueport"}
}

func (p *Publisher) UserSubject(userID string) string {
	return p.prefix + ".user." + userID
}

func (p *Publisher) ChatSubject(chatID string) string {
	return p.prefix + ".chat." + chatID
}

func (p *Publisher) PublishUser(ctx context.Context, userID string, event Event) {
	p.publish(ctx, p.UserSubject(userID), event)
}

func (p *Publisher) PublishChat(ctx context.Context, chatID string, event Event) {
	p.publish(ctx, p.ChatSubject(chatID), event)
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *Publisher) publish(ctx context.Context, subject string, event Event) {
	if p.conn == nil {
		metrics.LivePublishes.WithLabelValues("skipped").Inc()
		return
	}
	if event.At == 0 {
		event.At = time.Now().Unix()
	}
	data, err := json.Marshal(event)
	if err != nil {
		metrics.LivePublishes.WithLabelValues("error").Inc()
		logutil.GetLogger(ctx).Warn("encode live event failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		metrics.LivePublishes.WithLabelValues("error").Inc()
		logutil.GetLogger(ctx).Warn("publish live event failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	metrics.LivePublishes.WithLabelValues("ok").Inc()
}
