// Package eventbus bridges NATS subjects into the event pipeline. Messages
// published under orchepy.events.<type> are submitted as events of that type.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/orchehq/orchepy/model"
	"github.com/orchehq/orchepy/service"
)

const (
	subjectPrefix = "orchepy.events."
	queueGroup    = "orchepy"
)

// EventSubmitter accepts bridged events.
type EventSubmitter interface {
	Submit(ctx context.Context, payload model.CreateEvent) (*service.SubmitResult, error)
}

// Bridge consumes NATS messages and feeds them to the event pipeline.
type Bridge struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	events EventSubmitter
	logger *slog.Logger
}

// NewBridge connects to NATS and subscribes to the event subjects. The
// subscription is a queue subscription so multiple instances share the load.
func NewBridge(url string, events EventSubmitter, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("orchepy"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	b := &Bridge{conn: conn, events: events, logger: logger}

	sub, err := conn.QueueSubscribe(subjectPrefix+">", queueGroup, func(msg *nats.Msg) {
		b.handle(msg.Subject, msg.Data)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to %s>: %w", subjectPrefix, err)
	}
	b.sub = sub

	logger.Info("Connected NATS event bridge", "url", url, "subject", subjectPrefix+">")
	return b, nil
}

// handle decodes one message and submits it. The subject suffix is the event
// type unless the payload carries its own.
func (b *Bridge) handle(subject string, data []byte) {
	payload := model.CreateEvent{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			b.logger.Error("Dropping undecodable NATS message", "subject", subject, "error", err)
			return
		}
	}
	if payload.EventType == "" {
		payload.EventType = strings.TrimPrefix(subject, subjectPrefix)
	}
	if payload.EventType == "" {
		b.logger.Error("Dropping NATS message without event type", "subject", subject)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := b.events.Submit(ctx, payload)
	if err != nil {
		b.logger.Error("Failed to submit bridged event",
			"subject", subject, "event_type", payload.EventType, "error", err)
		return
	}
	b.logger.Info("Bridged event from NATS",
		"subject", subject, "event_id", result.EventID, "matched", result.MatchedFlows)
}

// Close drains the subscription and closes the connection.
func (b *Bridge) Close() {
	if b.sub != nil {
		if err := b.sub.Drain(); err != nil {
			b.logger.Error("Failed to drain NATS subscription", "error", err)
		}
	}
	if b.conn != nil {
		b.conn.Drain()
	}
}
