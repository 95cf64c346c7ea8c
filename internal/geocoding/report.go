package geocoding

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Report is the end-of-run summary shown to the user.
type Report struct {
	Table     string       `json:"table" yaml:"table"`
	Provider  string       `json:"provider" yaml:"provider"`
	RunID     string       `json:"run_id" yaml:"run_id"`
	Total     int          `json:"total" yaml:"total"`
	Processed int          `json:"processed" yaml:"processed"`
	Succeeded int          `json:"succeeded" yaml:"succeeded"`
	Skipped   int          `json:"skipped" yaml:"skipped"`
	Failed    int          `json:"failed" yaml:"failed"`
	Failures  []RowFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Halt      *HaltInfo    `json:"halt,omitempty" yaml:"halt,omitempty"`
}

// HaltInfo identifies the row and error that stopped a run.
type HaltInfo struct {
	Key   any    `json:"key" yaml:"key"`
	Query string `json:"query,omitempty" yaml:"query,omitempty"`
	Error string `json:"error" yaml:"error"`
}

// NewReport summarizes a run from its progress and the error Run returned.
func NewReport(table, provider string, p *Progress, runErr error) *Report {
	r := &Report{Table: table, Provider: provider}
	if p != nil {
		r.RunID = p.RunID
		r.Total = p.Total
		r.Processed = p.Processed
		r.Succeeded = p.Succeeded
		r.Skipped = p.Skipped
		r.Failed = p.Failed
		r.Failures = p.Failures
	}
	var halt *HaltError
	if errors.As(runErr, &halt) {
		r.Halt = &HaltInfo{Key: halt.Key, Query: halt.Query}
		if halt.Err != nil {
			r.Halt.Error = halt.Err.Error()
		}
	}
	return r
}

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Format writes the report to w as text, json or yaml.
func (r *Report) Format(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return r.text(w)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(r), "report: encode json")
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "report: encode yaml")
		}
		return eris.Wrap(enc.Close(), "report: close yaml encoder")
	default:
		return eris.Errorf("report: unknown format %q", format)
	}
}

func (r *Report) text(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Geocoded %d rows\n", r.Succeeded)
	fmt.Fprintf(&b, "processed: %d  succeeded: %d  skipped: %d  failed: %d\n",
		r.Processed, r.Succeeded, r.Skipped, r.Failed)
	if len(r.Failures) > 0 {
		b.WriteString("The following rows failed to geocode:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "%v: %s (%s)\n", f.Key, f.Query, f.Reason)
		}
	}
	if r.Halt != nil {
		fmt.Fprintf(&b, "Stopped at row %v: %s\n", r.Halt.Key, r.Halt.Error)
		b.WriteString("Rows written so far are kept; run again to resume.\n")
	}
	_, err := io.WriteString(w, b.String())
	return eris.Wrap(err, "report: write text")
}
