package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/cpyselect/internal/analysis"
	"github.com/efebarandurmaz/cpyselect/internal/config"
	"github.com/efebarandurmaz/cpyselect/internal/copybook"
	"github.com/efebarandurmaz/cpyselect/internal/observability"
	"github.com/efebarandurmaz/cpyselect/internal/report"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0-dev"

const defaultConfigPath = "cpyselect.yaml"

func main() {
	if err := newRootCmd(afero.NewOsFs(), os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the state shared by every subcommand.
type cli struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer

	configPath  string
	logLevel    string
	includeDirs []string

	cfg    *config.Config
	logger *slog.Logger
	tp     *observability.TracerProvider
}

func newRootCmd(fs afero.Fs, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{fs: fs, stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:           "cpyselect",
		Short:         "Select and extract the data record from a COBOL copybook",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", defaultConfigPath, "Config file path")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringArrayVar(&c.includeDirs, "include", nil, "Directory searched for COPY members (repeatable)")

	var (
		extractRecord string
		extractOut    string
	)
	extractCmd := &cobra.Command{
		Use:   "extract <copybook>",
		Short: "Print the selected data record fragment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer c.teardown(cmd.Context())
			return c.runExtract(cmd.Context(), args[0], extractRecord, extractOut)
		},
	}
	extractCmd.Flags().StringVar(&extractRecord, "record", "", "Preferred record name")
	extractCmd.Flags().StringVar(&extractOut, "out", "", "Write the fragment to this file instead of stdout")

	var (
		inspectRecord string
		inspectFormat string
	)
	inspectCmd := &cobra.Command{
		Use:   "inspect <copybook>...",
		Short: "Report blocks, features and the selection decision for each copybook",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer c.teardown(cmd.Context())
			return c.runInspect(cmd.Context(), args, inspectRecord, inspectFormat)
		},
	}
	inspectCmd.Flags().StringVar(&inspectRecord, "record", "", "Preferred record name")
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "", "Output format (text, json, yaml)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the cpyselect version",
		Run: func(cmd *cobra.Command, args []string) {
			defer c.teardown(cmd.Context())
			fmt.Fprintf(c.stdout, "cpyselect %s\n", version)
		},
	}

	rootCmd.AddCommand(extractCmd, inspectCmd, versionCmd)

	rootCmd.SetContext(context.Background())
	return rootCmd
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		// A missing default config file is normal; anything else is worth a warning.
		if cmd.Flags().Changed("config") || !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(c.stderr, "Warning: config load failed (%v), using defaults\n", err)
		}
		cfg = config.Default()
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if len(c.includeDirs) > 0 {
		cfg.Analysis.IncludeDirs = c.includeDirs
	}
	c.cfg = cfg
	c.logger = observability.NewLogger(c.stderr, cfg.Log.Level, cfg.Log.Format)

	tp, err := observability.InitTracing(cmd.Context(), &observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	c.tp = tp
	return nil
}

func (c *cli) teardown(ctx context.Context) {
	if c.tp == nil {
		return
	}
	if err := c.tp.Shutdown(ctx); err != nil {
		c.logger.Warn("tracing shutdown failed", "error", err)
	}
}

func (c *cli) analyzer() (*analysis.Analyzer, error) {
	instruments, err := observability.NewInstruments(nil)
	if err != nil {
		return nil, err
	}
	opts := []analysis.Option{
		analysis.WithLogger(c.logger),
		analysis.WithTracer(c.tp.Tracer()),
		analysis.WithInstruments(instruments),
	}
	if dirs := c.cfg.Analysis.IncludeDirs; len(dirs) > 0 {
		opts = append(opts, analysis.WithExpanderFactory(func() (analysis.Expander, error) {
			return copybook.NewResolver(c.fs, dirs...)
		}))
	}
	return analysis.New(opts...), nil
}

// recordHint returns the flag value if set, else the configured default.
func (c *cli) recordHint(flag string) string {
	if strings.TrimSpace(flag) != "" {
		return flag
	}
	return c.cfg.Analysis.RecordName
}

func (c *cli) readRequest(path, record string) (analysis.Request, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return analysis.Request{}, fmt.Errorf("read copybook: %w", err)
	}
	return analysis.Request{Source: path, Text: string(data), RecordName: c.recordHint(record)}, nil
}

func (c *cli) runExtract(ctx context.Context, path, record, out string) error {
	a, err := c.analyzer()
	if err != nil {
		return err
	}
	req, err := c.readRequest(path, record)
	if err != nil {
		return err
	}
	res, err := a.Analyze(ctx, req)
	if err != nil {
		printExcerpt(c.stderr, err)
		return err
	}

	if out == "" {
		_, err = io.WriteString(c.stdout, res.Fragment)
		return err
	}
	if err := afero.WriteFile(c.fs, out, []byte(res.Fragment), 0o644); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	c.logger.Info("fragment written", "path", out, "record", res.Decision.Block.Name)
	return nil
}

// runInspect reports every copybook it could analyze. Failed copybooks are
// listed in the report and make the command exit non-zero.
func (c *cli) runInspect(ctx context.Context, paths []string, record, format string) error {
	if format == "" {
		format = c.cfg.Output.Format
	}
	a, err := c.analyzer()
	if err != nil {
		return err
	}

	var (
		reqs   []analysis.Request
		failed []error
	)
	for _, p := range paths {
		req, err := c.readRequest(p, record)
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", p, err))
			continue
		}
		reqs = append(reqs, req)
	}

	rep := report.New()
	results, errs := a.AnalyzeEach(ctx, reqs, c.cfg.Analysis.Concurrency)
	for i, res := range results {
		if errs[i] != nil {
			printExcerpt(c.stderr, errs[i])
			failed = append(failed, errs[i])
			continue
		}
		rep.Add(res)
	}
	rep.Finish(failed...)
	if err := rep.Write(c.stdout, format); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d copybooks failed: %w", len(failed), len(paths), errors.Join(failed...))
	}
	return nil
}

// printExcerpt shows the start of the input when no records were found.
func printExcerpt(w io.Writer, err error) {
	var nr *copybook.NoRecordsFoundError
	if errors.As(err, &nr) && len(nr.Excerpt) > 0 {
		fmt.Fprintf(w, "Input (%d lines, %d chars) begins:\n", nr.LineCount, nr.CharCount)
		for _, line := range nr.Excerpt {
			fmt.Fprintf(w, "  | %s\n", line)
		}
	}
}
