package messaging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/application"
)

func TestLogSenderLogsWithoutDelivering(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	message := application.Message{
		Channel:   application.ChannelEmail,
		Recipient: "claire@example.com",
		Subject:   "Rappel",
		Body:      "Bonjour Claire",
	}
	if err := sender.Send(context.Background(), message); err != nil {
		t.Fatalf("Send: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "claire@example.com") {
		t.Fatalf("log output missing recipient: %s", out)
	}
	if strings.Contains(out, "Bonjour Claire") {
		t.Fatalf("message body must not be logged verbatim: %s", out)
	}
}

type blockingSender struct {
	release chan struct{}
}

func (s *blockingSender) Send(ctx context.Context, _ application.Message) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestTimeoutSenderBoundsDelivery(t *testing.T) {
	blocked := &blockingSender{release: make(chan struct{})}
	defer close(blocked.release)

	sender := NewTimeoutSender(blocked, 20*time.Millisecond)

	start := time.Now()
	err := sender.Send(context.Background(), application.Message{Recipient: "claire@example.com"})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("send blocked for %s", elapsed)
	}
}

func TestTimeoutSenderPassesThrough(t *testing.T) {
	sender := NewTimeoutSender(NewLogSender(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))), time.Second)

	if err := sender.Send(context.Background(), application.Message{Recipient: "claire@example.com"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
