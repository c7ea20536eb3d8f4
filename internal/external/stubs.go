package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// LogSender is a Sender that only logs. Local and test deployments use it in
// place of providers that need credentials.
type LogSender struct {
	channel string
	logger  *slog.Logger
	seq     atomic.Int64
}

// NewLogSender creates a LogSender labelled with its channel name.
func NewLogSender(channel string, logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{channel: channel, logger: logger}
}

// Send logs the notification and returns a synthetic message ID.
func (s *LogSender) Send(ctx context.Context, n Notification) (string, error) {
	id := fmt.Sprintf("stub-%s-%d", s.channel, s.seq.Add(1))
	s.logger.InfoContext(ctx, "stub: notification sent",
		"channel", s.channel,
		"to", n.To,
		"title", n.Title,
		"priority", string(n.Priority),
		"message_id", id,
	)
	return id, nil
}
