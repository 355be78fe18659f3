package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/goleak"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/efebarandurmaz/cpyselect/internal/copybook"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const rulesAndCustomer = "       01 VALIDATION-RULES.\n" +
	"          05 STATUS-CODE    PIC X(6) VALUE \"ACTIVE\".\n" +
	"       01 CUSTOMER-RECORD.\n" +
	"          05 CUST-ID        PIC 9(8).\n" +
	"          05 CUST-NAME      PIC X(30).\n" +
	"          05 CUST-CITY      PIC X(20).\n" +
	"          05 CUST-ZIP       PIC 9(5).\n"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestAnalyze(t *testing.T) {
	a := New(WithLogger(quietLogger()))
	res, err := a.Analyze(context.Background(), Request{Source: "cust.cpy", Text: rulesAndCustomer})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Decision.Block.Name != "CUSTOMER-RECORD" {
		t.Errorf("selected %s", res.Decision.Block.Name)
	}
	if res.Decision.Rule != copybook.RuleDataCandidate {
		t.Errorf("rule = %s", res.Decision.Rule)
	}
	if len(res.Blocks) != 2 {
		t.Errorf("expected 2 blocks, got %d", len(res.Blocks))
	}
	if !strings.HasPrefix(res.Fragment, "       01 CUSTOMER-RECORD.") || strings.Contains(res.Fragment, "VALIDATION") {
		t.Errorf("unexpected fragment:\n%s", res.Fragment)
	}
	if len(res.Digest) != 64 {
		t.Errorf("expected hex sha256 digest, got %q", res.Digest)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	a := New(WithLogger(quietLogger()))
	for _, hint := range []string{"", "validation-rules", "unknown"} {
		req := Request{Source: "x", Text: rulesAndCustomer, RecordName: hint}
		r1, err := a.Analyze(context.Background(), req)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		r2, err := a.Analyze(context.Background(), req)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if r1.Fragment != r2.Fragment || r1.Digest != r2.Digest {
			t.Errorf("hint %q: results differ between runs", hint)
		}
	}
}

func TestAnalyzeErrors(t *testing.T) {
	a := New(WithLogger(quietLogger()))
	tests := []struct {
		name string
		text string
		want error
	}{
		{"empty", "", copybook.ErrEmptyCopybook},
		{"comments only", "      * header\n      * nothing else\n", copybook.ErrNoRecordsFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Analyze(context.Background(), Request{Source: tt.name, Text: tt.text})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if res != nil {
				t.Error("expected nil result on failure")
			}
			if !strings.Contains(err.Error(), tt.name) {
				t.Errorf("error should name the source: %v", err)
			}
		})
	}

	t.Run("diagnostics survive wrapping", func(t *testing.T) {
		_, err := a.Analyze(context.Background(), Request{Source: "bad", Text: "just text\n"})
		var nr *copybook.NoRecordsFoundError
		if !errors.As(err, &nr) {
			t.Fatalf("expected *NoRecordsFoundError, got %T", err)
		}
		if nr.LineCount != 2 {
			t.Errorf("expected 2 lines, got %d", nr.LineCount)
		}
	})
}

func TestAnalyzeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(WithLogger(quietLogger())).Analyze(ctx, Request{Text: rulesAndCustomer})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAnalyzeSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	a := New(WithLogger(quietLogger()), WithTracer(tp.Tracer("test")))
	if _, err := a.Analyze(context.Background(), Request{Source: "s", Text: rulesAndCustomer}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	want := []string{"copybook.tokenize", "copybook.select", "copybook.extract", "copybook.analyze"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("spans = %v, want %v", names, want)
	}
}

func TestAnalyzeLogsDecision(t *testing.T) {
	var buf bytes.Buffer
	a := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	if _, err := a.Analyze(context.Background(), Request{Source: "cust.cpy", Text: rulesAndCustomer}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"record=CUSTOMER-RECORD", "rule=data-candidate", "source=cust.cpy"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeWithExpansion(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/copy/ADDR.cpy", []byte("          05 STREET PIC X(30).\n          05 CITY PIC X(20).\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := New(
		WithLogger(quietLogger()),
		WithExpanderFactory(func() (Expander, error) {
			return copybook.NewResolver(fs, "/copy")
		}),
	)
	src := "01 CODE-TYPES.\n    05 A PIC X(1) VALUE 'A'.\n    05 B PIC X(1) VALUE 'B'.\n" +
		"01 PARTY-REC.\n    05 ID PIC 9(6).\n    COPY ADDR.\n    COPY MISSING.\n"
	res, err := a.Analyze(context.Background(), Request{Source: "p", Text: src})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Decision.Block.Name != "PARTY-REC" {
		t.Fatalf("selected %s", res.Decision.Block.Name)
	}
	if res.Decision.Block.FieldCount != 3 {
		t.Errorf("expected 3 fields after expansion, got %d", res.Decision.Block.FieldCount)
	}
	if !strings.Contains(res.Fragment, "05 STREET PIC X(30).") {
		t.Errorf("fragment missing expanded member:\n%s", res.Fragment)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected 1 warning, got %v", res.Warnings)
	}
}

func TestAnalyzeExpanderError(t *testing.T) {
	a := New(
		WithLogger(quietLogger()),
		WithExpanderFactory(func() (Expander, error) {
			return copybook.NewResolver(afero.NewMemMapFs(), "/nowhere")
		}),
	)
	if _, err := a.Analyze(context.Background(), Request{Source: "p", Text: rulesAndCustomer}); err == nil {
		t.Error("expected expander error")
	}
}

func TestAnalyzeAll(t *testing.T) {
	a := New(WithLogger(quietLogger()))
	var reqs []Request
	for i := 0; i < 12; i++ {
		reqs = append(reqs, Request{
			Source: fmt.Sprintf("file-%02d.cpy", i),
			Text:   fmt.Sprintf("01 REC-%02d.\n  05 F PIC X(%d).\n", i, i+1),
		})
	}
	results, err := a.AnalyzeAll(context.Background(), reqs, 3)
	if err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	for i, res := range results {
		if res.Source != reqs[i].Source {
			t.Errorf("result %d out of order: %s", i, res.Source)
		}
		if want := fmt.Sprintf("REC-%02d", i); res.Decision.Block.Name != want {
			t.Errorf("result %d selected %s, want %s", i, res.Decision.Block.Name, want)
		}
		if res.Decision.Block.EstimatedByteLength != i+1 {
			t.Errorf("result %d length %d", i, res.Decision.Block.EstimatedByteLength)
		}
	}
}

func TestAnalyzeAllFailure(t *testing.T) {
	a := New(WithLogger(quietLogger()))
	reqs := []Request{
		{Source: "good.cpy", Text: rulesAndCustomer},
		{Source: "bad.cpy", Text: "   \n"},
		{Source: "good2.cpy", Text: rulesAndCustomer},
	}
	results, err := a.AnalyzeAll(context.Background(), reqs, 0)
	if !errors.Is(err, copybook.ErrEmptyCopybook) {
		t.Fatalf("expected ErrEmptyCopybook, got %v", err)
	}
	if results != nil {
		t.Error("expected nil results on failure")
	}
}

func TestAnalyzeEachKeepsGoing(t *testing.T) {
	a := New(WithLogger(quietLogger()))
	reqs := []Request{
		{Source: "good.cpy", Text: rulesAndCustomer},
		{Source: "bad.cpy", Text: "no records\nhere\n"},
		{Source: "empty.cpy", Text: ""},
		{Source: "good2.cpy", Text: "01 ONLY-REC.\n  05 F PIC X(2).\n"},
	}
	results, errs := a.AnalyzeEach(context.Background(), reqs, 2)
	if len(results) != len(reqs) || len(errs) != len(reqs) {
		t.Fatalf("expected %d slots, got %d results and %d errors", len(reqs), len(results), len(errs))
	}

	wantErr := []error{nil, copybook.ErrNoRecordsFound, copybook.ErrEmptyCopybook, nil}
	wantRec := []string{"CUSTOMER-RECORD", "", "", "ONLY-REC"}
	for i := range reqs {
		if wantErr[i] == nil {
			if errs[i] != nil {
				t.Errorf("%s: unexpected error %v", reqs[i].Source, errs[i])
				continue
			}
			if results[i] == nil || results[i].Decision.Block.Name != wantRec[i] {
				t.Errorf("%s: unexpected result %+v", reqs[i].Source, results[i])
			}
			continue
		}
		if !errors.Is(errs[i], wantErr[i]) {
			t.Errorf("%s: expected %v, got %v", reqs[i].Source, wantErr[i], errs[i])
		}
		if results[i] != nil {
			t.Errorf("%s: expected nil result alongside error", reqs[i].Source)
		}
	}
}

func TestFailureKind(t *testing.T) {
	tests := map[string]error{
		"empty":      fmt.Errorf("tokenize x: %w", copybook.ErrEmptyCopybook),
		"no_records": &copybook.NoRecordsFoundError{},
		"canceled":   context.Canceled,
		"other":      errors.New("boom"),
	}
	for want, err := range tests {
		if got := failureKind(err); got != want {
			t.Errorf("failureKind(%v) = %s, want %s", err, got, want)
		}
	}
}
