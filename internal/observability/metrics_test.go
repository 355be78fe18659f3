package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewInstruments(t *testing.T) {
	in, err := NewInstruments(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	ctx := context.Background()
	in.RecordAnalysis(ctx, "data-candidate", 3, 0.002)
	in.RecordFailure(ctx, "no_records")
}

func TestNewInstruments_GlobalMeter(t *testing.T) {
	in, err := NewInstruments(nil)
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	in.RecordAnalysis(context.Background(), "first-block", 1, 0)
}

func TestInstruments_NilSafe(t *testing.T) {
	var in *Instruments
	in.RecordAnalysis(context.Background(), "x", 1, 0)
	in.RecordFailure(context.Background(), "x")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "json")
	log.Info("hidden")
	log.Warn("shown", "record", "CUSTOMER-RECORD")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line emitted at warn level: %s", out)
	}
	if !strings.Contains(out, `"record":"CUSTOMER-RECORD"`) {
		t.Errorf("expected JSON attribute, got %s", out)
	}

	buf.Reset()
	NewLogger(&buf, "", "").Info("plain", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Errorf("expected text handler output, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
