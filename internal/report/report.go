package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/cpyselect/internal/analysis"
)

// Report collects statistics for one cpyselect run over one or more copybooks.
type Report struct {
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Files      []FileReport  `json:"files" yaml:"files"`
	Errors     []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// FileReport summarizes the analysis of a single copybook.
type FileReport struct {
	Source         string        `json:"source" yaml:"source"`
	Record         string        `json:"record" yaml:"record"`
	Rule           string        `json:"rule" yaml:"rule"`
	Reason         string        `json:"reason" yaml:"reason"`
	Digest         string        `json:"digest" yaml:"digest"`
	FragmentLines  int           `json:"fragment_lines" yaml:"fragment_lines"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
	Blocks         []BlockReport `json:"blocks" yaml:"blocks"`
	ExpandWarnings []string      `json:"expand_warnings,omitempty" yaml:"expand_warnings,omitempty"`
}

// BlockReport is one row of the per-file block table.
type BlockReport struct {
	Name                string   `json:"name" yaml:"name"`
	StartLine           int      `json:"start_line" yaml:"start_line"`
	FieldCount          int      `json:"field_count" yaml:"field_count"`
	EstimatedByteLength int      `json:"estimated_byte_length" yaml:"estimated_byte_length"`
	IsMetadata          bool     `json:"is_metadata" yaml:"is_metadata"`
	MetadataReasons     []string `json:"metadata_reasons,omitempty" yaml:"metadata_reasons,omitempty"`
	Selected            bool     `json:"selected" yaml:"selected"`
}

// New starts tracking a run.
func New() *Report {
	return &Report{StartedAt: time.Now()}
}

// Add records one analysis result.
func (r *Report) Add(res *analysis.Result) {
	fr := FileReport{
		Source:         res.Source,
		Record:         res.Decision.Block.Name,
		Rule:           string(res.Decision.Rule),
		Reason:         res.Decision.Reason,
		Digest:         res.Digest,
		FragmentLines:  countLines(res.Fragment),
		Duration:       res.Duration,
		ExpandWarnings: res.Warnings,
	}
	for i, b := range res.Blocks {
		fr.Blocks = append(fr.Blocks, BlockReport{
			Name:                b.Name,
			StartLine:           b.StartLine,
			FieldCount:          b.FieldCount,
			EstimatedByteLength: b.EstimatedByteLength,
			IsMetadata:          b.IsMetadata,
			MetadataReasons:     b.MetadataReasons,
			Selected:            i == res.Decision.Index,
		})
	}
	r.Files = append(r.Files, fr)
}

// Finish marks the run as complete.
func (r *Report) Finish(errs ...error) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	for _, err := range errs {
		if err != nil {
			r.Errors = append(r.Errors, err.Error())
		}
	}
}

// PrintSummary writes a human-readable summary.
func (r *Report) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║       COPYBOOK RECORD SELECTION      ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s ║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Copybooks:   %-23d ║\n", len(r.Files))
	for _, f := range r.Files {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ %s\n", f.Source)
		fmt.Fprintf(w, "║   Record:  %s [%s]\n", f.Record, f.Rule)
		fmt.Fprintf(w, "║   Reason:  %s\n", f.Reason)
		fmt.Fprintf(w, "║   Lines:   %d\n", f.FragmentLines)
		fmt.Fprintf(w, "║   %-3s %-30s %5s %6s %7s  %s\n", "", "BLOCK", "LINE", "FIELDS", "BYTES", "METADATA")
		for _, b := range f.Blocks {
			mark := ""
			if b.Selected {
				mark = "->"
			}
			meta := "-"
			if b.IsMetadata {
				meta = fmt.Sprintf("%v", b.MetadataReasons)
			}
			fmt.Fprintf(w, "║   %-3s %-30s %5d %6d %7d  %s\n", mark, b.Name, b.StartLine+1, b.FieldCount, b.EstimatedByteLength, meta)
		}
		for _, warn := range f.ExpandWarnings {
			fmt.Fprintf(w, "║   ! %s\n", warn)
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// YAML returns the report as YAML.
func (r *Report) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// Write renders the report to w in the given format (text, json or yaml).
func (r *Report) Write(w io.Writer, format string) error {
	var (
		data []byte
		err  error
	)
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "", "text":
		r.PrintSummary(w)
		return nil
	case "json":
		data, err = r.JSON()
	case "yaml":
		data, err = r.YAML()
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encode %s report: %w", format, err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
		}
	}
	// A trailing terminator does not start another line.
	if s[len(s)-1] == '\n' {
		n--
	}
	return n
}
