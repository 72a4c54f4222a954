package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func setupBuffer(t *testing.T, enabled bool) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	shutdown, err := Setup(context.Background(), Config{Enabled: enabled, Service: "catalog"}, logger)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })
	return buf
}

func TestStartSpan_LogsLifecycle(t *testing.T) {
	buf := setupBuffer(t, true)

	_, end := StartSpan(context.Background(), "catalog", "extract")
	end(errors.New("boom"))

	out := buf.String()
	for _, want := range []string{"obs span start", "obs span end", "operation=extract", "error=boom", "service=catalog"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output: %s", want, out)
		}
	}
}

func TestRecordMetric_SortedLabels(t *testing.T) {
	buf := setupBuffer(t, true)

	RecordMetric(context.Background(), "catalog.images", 3, map[string]string{"z": "1", "a": "2"})

	out := buf.String()
	if !strings.Contains(out, "metric=catalog.images") {
		t.Fatalf("metric missing: %s", out)
	}
	if strings.Index(out, "a=2") > strings.Index(out, "z=1") {
		t.Fatalf("labels not sorted: %s", out)
	}
}

func TestDisabled_EmitsNothing(t *testing.T) {
	buf := setupBuffer(t, false)
	buf.Reset()

	_, end := StartSpan(context.Background(), "catalog", "extract")
	end(nil)
	RecordMetric(context.Background(), "ignored", 1, nil)

	if buf.Len() != 0 {
		t.Fatalf("expected no output when disabled, got %s", buf.String())
	}
	if Enabled() {
		t.Fatal("Enabled() should be false")
	}
}
