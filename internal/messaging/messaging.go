// Package messaging holds the outbound message adapters. The engine treats
// delivery as an external collaborator: adapters accept a rendered message
// and either deliver it or return an error, and the caller decides whether
// to retry.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/booking-engine/internal/application"
)

// LogSender writes messages to the log instead of delivering them. It backs
// development and test environments where no provider is wired.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a LogSender. A nil logger falls back to the
// default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message and reports success.
func (s *LogSender) Send(ctx context.Context, message application.Message) error {
	s.logger.InfoContext(ctx, "outbound message",
		"channel", message.Channel,
		"recipient", message.Recipient,
		"subject", message.Subject,
		"body_length", len(message.Body),
	)
	return nil
}

// TimeoutSender bounds each delivery attempt. A provider that hangs must not
// stall a dispatch batch past the configured timeout.
type TimeoutSender struct {
	next    application.Messenger
	timeout time.Duration
}

// NewTimeoutSender wraps next with a per-send timeout.
func NewTimeoutSender(next application.Messenger, timeout time.Duration) *TimeoutSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TimeoutSender{next: next, timeout: timeout}
}

// Send delivers through the wrapped sender under a deadline.
func (s *TimeoutSender) Send(ctx context.Context, message application.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.next.Send(ctx, message)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("message delivery timed out after %s: %w", s.timeout, ctx.Err())
	}
}
