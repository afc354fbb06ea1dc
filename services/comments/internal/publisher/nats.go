// Package publisher provides NATS JetStream event publishing for comments.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectCreated = "comments.created"
	SubjectLiked   = "comments.liked"
	SubjectUnliked = "comments.unliked"
	SubjectDeleted = "comments.deleted"
	streamName     = "COMMENTS"
)

// Event is the payload published to NATS.
type Event struct {
	EventID    string    `json:"event_id"`
	Subject    string    `json:"-"`
	CommentID  string    `json:"comment_id"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Likes      int       `json:"likes,omitempty"`
	DeletedIDs []string  `json:"deleted_ids,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher publishes comment events to NATS JetStream.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

// New ensures the COMMENTS stream exists on nc.
// If nc is nil, returns a no-op publisher (stub).
func New(nc *nats.Conn, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if nc == nil {
		log.Warn("NATS not connected, comment events will not be published (stub mode)")
		return &Publisher{log: log}, nil
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"comments.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		log.Warn("failed to create NATS stream (may already exist)", zap.Error(err))
	}

	log.Info("NATS publisher initialised", zap.String("stream", streamName))
	return &Publisher{js: js, log: log}, nil
}

// Publish sends evt to its subject. Failures are logged and dropped: event
// delivery never fails the write that produced it.
func (p *Publisher) Publish(ctx context.Context, evt Event) {
	if p.js == nil {
		p.log.Debug("NATS stub: skipping publish", zap.String("subject", evt.Subject), zap.String("event_id", evt.EventID))
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		p.log.Warn("marshal comment event", zap.String("subject", evt.Subject), zap.Error(err))
		return
	}

	ack, err := p.js.Publish(evt.Subject, data, nats.Context(ctx), nats.MsgId(evt.EventID))
	if err != nil {
		p.log.Warn("publish comment event",
			zap.String("subject", evt.Subject),
			zap.String("event_id", evt.EventID),
			zap.Error(err),
		)
		return
	}

	p.log.Debug("NATS event published",
		zap.String("subject", evt.Subject),
		zap.String("event_id", evt.EventID),
		zap.Uint64("seq", ack.Sequence),
	)
}
