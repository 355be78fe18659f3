// Package analysis runs the copybook pipeline end to end: optional COPY
// expansion, tokenization, record selection and fragment extraction.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/cpyselect/internal/copybook"
	"github.com/efebarandurmaz/cpyselect/internal/observability"
)

// Expander rewrites copybook text before tokenization, e.g. by inlining
// COPY members. *copybook.Resolver satisfies it.
type Expander interface {
	Expand(text string) string
	Warnings() []string
}

// Request is one copybook to analyze.
type Request struct {
	// Source identifies the copybook in logs and reports (usually a path).
	Source string
	Text   string
	// RecordName is the optional explicit-name hint.
	RecordName string
}

// Result is the outcome of a successful analysis.
type Result struct {
	Source   string            `json:"source" yaml:"source"`
	Blocks   []copybook.Block  `json:"blocks" yaml:"blocks"`
	Decision copybook.Decision `json:"decision" yaml:"decision"`
	Fragment string            `json:"fragment" yaml:"fragment"`
	// Digest is the SHA-256 of Fragment; identical input and hint always
	// produce the same digest.
	Digest   string        `json:"digest" yaml:"digest"`
	Warnings []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Analyzer runs the pipeline. It holds no per-call state, so one Analyzer
// may serve concurrent calls as long as its Expander does (see
// WithExpanderFactory).
type Analyzer struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	instruments *observability.Instruments
	newExpander func() (Expander, error)
}

// Option configures an Analyzer.
type Option func(*Analyzer)

func WithLogger(l *slog.Logger) Option { return func(a *Analyzer) { a.logger = l } }

func WithTracer(t trace.Tracer) Option { return func(a *Analyzer) { a.tracer = t } }

func WithInstruments(in *observability.Instruments) Option {
	return func(a *Analyzer) { a.instruments = in }
}

// WithExpanderFactory enables COPY expansion. The factory is called once per
// analysis, so each call gets its own Expander.
func WithExpanderFactory(f func() (Expander, error)) Option {
	return func(a *Analyzer) { a.newExpander = f }
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the pipeline on a single copybook. Errors from the copybook
// package are wrapped but remain matchable with errors.Is / errors.As.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := observability.StartAnalysisSpan(ctx, a.tracer, req.Source, len(req.Text))
	defer span.End()

	res, err := a.analyze(ctx, req)
	if err != nil {
		observability.RecordError(span, err)
		a.instruments.RecordFailure(ctx, failureKind(err))
		a.logger.Warn("copybook analysis failed", "source", req.Source, "error", err)
		return nil, err
	}
	res.Duration = time.Since(start)

	d := res.Decision
	observability.RecordDecision(span, d.Block.Name, string(d.Rule), len(res.Blocks), d.Block.IsMetadata)
	a.instruments.RecordAnalysis(ctx, string(d.Rule), len(res.Blocks), res.Duration.Seconds())
	a.logger.Info("selected data record",
		"source", req.Source,
		"record", d.Block.Name,
		"rule", d.Rule,
		"reason", d.Reason,
		"blocks", len(res.Blocks),
	)
	return res, nil
}

func (a *Analyzer) analyze(ctx context.Context, req Request) (*Result, error) {
	text := req.Text
	var warnings []string

	if a.newExpander != nil {
		_, span := observability.StartStageSpan(ctx, a.tracer, observability.StageExpand)
		exp, err := a.newExpander()
		if err != nil {
			observability.RecordError(span, err)
			span.End()
			return nil, fmt.Errorf("expand %s: %w", req.Source, err)
		}
		text = exp.Expand(text)
		warnings = append(warnings, exp.Warnings()...)
		span.End()
		for _, w := range warnings {
			a.logger.Warn("COPY expansion", "source", req.Source, "warning", w)
		}
	}

	_, span := observability.StartStageSpan(ctx, a.tracer, observability.StageTokenize)
	blocks, err := copybook.Tokenize(text)
	if err != nil {
		observability.RecordError(span, err)
		span.End()
		return nil, fmt.Errorf("tokenize %s: %w", req.Source, err)
	}
	span.End()
	a.logger.Debug("tokenized copybook", "source", req.Source, "blocks", len(blocks))

	_, span = observability.StartStageSpan(ctx, a.tracer, observability.StageSelect)
	decision, err := copybook.Select(blocks, req.RecordName)
	if err != nil {
		observability.RecordError(span, err)
		span.End()
		return nil, fmt.Errorf("select %s: %w", req.Source, err)
	}
	span.End()

	_, span = observability.StartStageSpan(ctx, a.tracer, observability.StageExtract)
	fragment := copybook.ExtractBlock(text, decision.Block)
	span.End()

	return &Result{
		Source:   req.Source,
		Blocks:   blocks,
		Decision: decision,
		Fragment: fragment,
		Digest:   digest(fragment),
		Warnings: warnings,
	}, nil
}

// AnalyzeAll analyzes reqs with at most limit running at once (limit <= 0
// means one per CPU). Results are returned in request order. The first
// failure cancels the remaining work and is returned.
func (a *Analyzer) AnalyzeAll(ctx context.Context, reqs []Request, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	ctx, span := observability.StartBatchSpan(ctx, a.tracer, len(reqs), limit)
	defer span.End()

	results := make([]*Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := a.Analyze(gctx, req)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return results, nil
}

// AnalyzeEach is AnalyzeAll without fail-fast: every request runs to
// completion. results[i] and errs[i] belong to reqs[i]; exactly one of them
// is non-nil.
func (a *Analyzer) AnalyzeEach(ctx context.Context, reqs []Request, limit int) ([]*Result, []error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	ctx, span := observability.StartBatchSpan(ctx, a.tracer, len(reqs), limit)
	defer span.End()

	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			results[i], errs[i] = a.Analyze(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		observability.RecordError(span, err)
	}
	return results, errs
}

func digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, copybook.ErrEmptyCopybook):
		return "empty"
	case errors.Is(err, copybook.ErrNoRecordsFound):
		return "no_records"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
