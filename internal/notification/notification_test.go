package notification

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerNotifierHidesBodyAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	n := NewLoggerNotifier(logger)
	if err := n.Send(context.Background(), Message{Kind: KindOTP, Destination: "ann@x.com", Subject: "code", Body: "123456"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "destination=ann@x.com") {
		t.Fatalf("expected destination in log, got %s", out)
	}
	if strings.Contains(out, "123456") {
		t.Fatalf("code leaked at info level: %s", out)
	}
}

func TestNilLoggerNotifierIsNoop(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
