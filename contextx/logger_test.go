package contextx

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerDefaultsToNop(t *testing.T) {
	if Logger(t.Context()) == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestLoggerRoundTrip(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(t.Context(), zap.New(core).With(zap.String("request_id", "r1")))

	Logger(ctx).Info("handled")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["request_id"]; got != "r1" {
		t.Fatalf("request_id = %v, want r1", got)
	}
}
