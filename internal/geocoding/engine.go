// Package geocoding runs a geocoding pass over one table: it renders a
// query per row, paces provider calls, and writes results back so that an
// interrupted run resumes where it stopped.
package geocoding

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geocode-cli/internal/resilience"
	"github.com/sells-group/geocode-cli/internal/store"
	"github.com/sells-group/geocode-cli/pkg/geocode"
)

// Status is the terminal state of a row.
type Status int

const (
	// StatusSkipped means the row already had output.
	StatusSkipped Status = iota + 1
	// StatusSucceeded means the row was geocoded and written.
	StatusSucceeded
	// StatusFailed means the row could not be geocoded.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Failure reasons recorded on RowFailure.
const (
	ReasonMissingField = "missing_field"
	ReasonWriteError   = "write_error"
	ReasonCanceled     = "canceled"
	ReasonError        = "error"
)

// RowOutcome is reported to EngineOptions.OnRow after each row.
type RowOutcome struct {
	Key    any
	Query  string
	Status Status
	Reason string
	Err    error
	Result *geocode.Result
}

// RowFailure records a failed row for the end-of-run report.
type RowFailure struct {
	Key    any    `json:"key" yaml:"key"`
	Query  string `json:"query" yaml:"query"`
	Reason string `json:"reason" yaml:"reason"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Progress counts row outcomes for one run. Processed counts rows that were
// not skipped and were attempted.
type Progress struct {
	RunID     string       `json:"run_id" yaml:"run_id"`
	Total     int          `json:"total" yaml:"total"`
	Processed int          `json:"processed" yaml:"processed"`
	Succeeded int          `json:"succeeded" yaml:"succeeded"`
	Skipped   int          `json:"skipped" yaml:"skipped"`
	Failed    int          `json:"failed" yaml:"failed"`
	Failures  []RowFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// EngineOptions tunes a run.
type EngineOptions struct {
	// Force geocodes rows that already have output.
	Force bool
	// Limit stops after this many processed rows; 0 means no limit.
	Limit int
	// Retry bounds retries of transport failures. A zero value means
	// resilience.DefaultRetryConfig.
	Retry resilience.RetryConfig
	// RateLimitRetry bounds retries of rate-limit refusals. A zero value
	// means no retry, which makes a rate-limit refusal halt the run.
	RateLimitRetry resilience.RetryConfig
	// OnStart is called once with the number of rows read from the store.
	OnStart func(total int)
	// OnRow observes every row outcome.
	OnRow func(RowOutcome)
	// Logger defaults to zap.L().
	Logger *zap.Logger
}

// Engine geocodes the rows of one store, one at a time in store order.
type Engine struct {
	store    store.Store
	provider geocode.Provider
	tpl      *Template
	writer   *Writer
	pacer    *Pacer
	opts     EngineOptions
}

// NewEngine wires an engine. The pacer is owned by the caller and may be
// shared across engines that call the same provider.
func NewEngine(st store.Store, p geocode.Provider, tpl *Template, w *Writer, pacer *Pacer, opts EngineOptions) *Engine {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.RateLimitRetry.MaxAttempts <= 0 {
		opts.RateLimitRetry = resilience.NoRetry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	return &Engine{store: st, provider: p, tpl: tpl, writer: w, pacer: pacer, opts: opts}
}

// Run processes every row once. It returns the progress so far together
// with a *ConfigError when the run cannot start, or a *HaltError when a
// run-fatal condition stopped it.
func (e *Engine) Run(ctx context.Context) (*Progress, error) {
	prog := &Progress{RunID: uuid.New().String()}
	log := e.opts.Logger.With(
		zap.String("run_id", prog.RunID),
		zap.String("table", e.store.Table()),
		zap.String("provider", e.provider.Name()),
	)

	if err := e.validate(ctx); err != nil {
		return prog, err
	}
	if err := e.writer.Prepare(ctx, e.store); err != nil {
		return prog, err
	}

	rows, err := e.store.Rows(ctx)
	if err != nil {
		return prog, eris.Wrap(err, "engine: read rows")
	}
	prog.Total = len(rows)
	if e.opts.OnStart != nil {
		e.opts.OnStart(len(rows))
	}
	log.Info("geocoding started", zap.Int("rows", len(rows)), zap.String("template", e.tpl.String()))

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			log.Warn("geocoding interrupted", zap.Any("next_row", row.Key))
			return prog, &HaltError{Key: row.Key, Err: err}
		}

		if !e.opts.Force && e.writer.Populated(row) {
			prog.Skipped++
			log.Debug("row already geocoded", zap.Any("row", row.Key))
			e.report(RowOutcome{Key: row.Key, Status: StatusSkipped})
			continue
		}
		if e.opts.Limit > 0 && prog.Processed >= e.opts.Limit {
			log.Info("row limit reached", zap.Int("limit", e.opts.Limit))
			break
		}
		prog.Processed++

		if halt := e.processRow(ctx, log, prog, row); halt != nil {
			log.Error("geocoding halted",
				zap.Any("row", halt.Key),
				zap.String("query", halt.Query),
				zap.Error(halt.Err),
			)
			return prog, halt
		}
	}

	log.Info("geocoding finished",
		zap.Int("processed", prog.Processed),
		zap.Int("succeeded", prog.Succeeded),
		zap.Int("skipped", prog.Skipped),
		zap.Int("failed", prog.Failed),
	)
	return prog, nil
}

// validate checks every template field against the table schema.
func (e *Engine) validate(ctx context.Context) error {
	cols, err := e.store.Columns(ctx)
	if err != nil {
		return eris.Wrap(err, "engine: read columns")
	}
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c.Name] = true
	}
	for _, f := range e.tpl.Fields() {
		if !known[f] {
			return &ConfigError{
				Msg: "template " + e.tpl.String() + " references unknown column of " + e.store.Table(),
				Err: &MissingFieldError{Field: f},
			}
		}
	}
	return nil
}

// processRow takes one pending row to a terminal state and returns a
// HaltError when the run must stop.
func (e *Engine) processRow(ctx context.Context, log *zap.Logger, prog *Progress, row store.Row) *HaltError {
	query, err := e.tpl.Render(row.Values)
	if err != nil {
		e.fail(log, prog, RowOutcome{Key: row.Key, Reason: ReasonMissingField, Err: err})
		return nil
	}

	res, err := e.geocode(ctx, log, row.Key, query)
	if err != nil {
		out := RowOutcome{Key: row.Key, Query: query, Reason: ReasonError, Err: err}
		kind, isProvider := geocode.KindOf(err)
		if isProvider {
			out.Reason = kind.String()
		}
		if ctx.Err() != nil {
			out.Reason = ReasonCanceled
			e.fail(log, prog, out)
			return &HaltError{Key: row.Key, Query: query, Err: err}
		}
		e.fail(log, prog, out)
		if isProvider && (kind == geocode.KindNotFound || kind == geocode.KindTransport) {
			return nil
		}
		return &HaltError{Key: row.Key, Query: query, Err: err}
	}

	if err := e.writer.Write(ctx, e.store, row.Key, res, e.provider.Name()); err != nil {
		e.fail(log, prog, RowOutcome{Key: row.Key, Query: query, Reason: ReasonWriteError, Err: err})
		return &HaltError{Key: row.Key, Query: query, Err: err}
	}

	prog.Succeeded++
	e.report(RowOutcome{Key: row.Key, Query: query, Status: StatusSucceeded, Result: res})
	return nil
}

// geocode calls the provider through the pacer. Transport failures are
// retried under opts.Retry; rate-limit refusals under opts.RateLimitRetry.
func (e *Engine) geocode(ctx context.Context, log *zap.Logger, key any, query string) (*geocode.Result, error) {
	transport := e.opts.Retry
	transport.ShouldRetry = isRetryableTransport
	if transport.OnRetry == nil {
		transport.OnRetry = resilience.RetryLogger(log, zap.Any("row", key), zap.String("reason", "transport"))
	}

	limited := e.opts.RateLimitRetry
	limited.ShouldRetry = func(err error) bool { return geocode.IsKind(err, geocode.KindRateLimited) }
	if limited.OnRetry == nil {
		limited.OnRetry = resilience.RetryLogger(log, zap.Any("row", key), zap.String("reason", "rate_limited"))
	}

	return resilience.DoVal(ctx, limited, func(ctx context.Context) (*geocode.Result, error) {
		return resilience.DoVal(ctx, transport, func(ctx context.Context) (*geocode.Result, error) {
			if err := e.pacer.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "engine: pacer wait")
			}
			res, err := e.provider.Geocode(ctx, query)
			if err != nil {
				return nil, asTransport(e.provider.Name(), query, err)
			}
			if err := res.Validate(); err != nil {
				return nil, geocode.NewProviderError(geocode.KindNotFound, e.provider.Name(), query, err)
			}
			return res, nil
		})
	})
}

func isRetryableTransport(err error) bool {
	return geocode.IsKind(err, geocode.KindTransport)
}

// asTransport classifies a bare network error from a provider as a
// transport failure so it is retried and then fails only its row.
func asTransport(provider, query string, err error) error {
	var pe *geocode.ProviderError
	if errors.As(err, &pe) || !resilience.IsTransient(err) {
		return err
	}
	return geocode.NewProviderError(geocode.KindTransport, provider, query, err)
}

func (e *Engine) fail(log *zap.Logger, prog *Progress, out RowOutcome) {
	out.Status = StatusFailed
	prog.Failed++
	f := RowFailure{Key: out.Key, Query: out.Query, Reason: out.Reason}
	if out.Err != nil {
		f.Error = out.Err.Error()
	}
	prog.Failures = append(prog.Failures, f)
	log.Warn("row failed",
		zap.Any("row", out.Key),
		zap.String("query", out.Query),
		zap.String("reason", out.Reason),
		zap.Error(out.Err),
	)
	e.report(out)
}

func (e *Engine) report(out RowOutcome) {
	if e.opts.OnRow != nil {
		e.opts.OnRow(out)
	}
}
