package batch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/llm-batch/internal/ledger"
	"github.com/vnmchuo/llm-batch/internal/metrics"
	"github.com/vnmchuo/llm-batch/internal/provider"
	"github.com/vnmchuo/llm-batch/internal/sink"
	"github.com/vnmchuo/llm-batch/internal/source"
)

type Invoker interface {
	Invoke(ctx context.Context, prompt string) provider.Result
}

type TimestampMode string

const (
	// TimestampPerCall stamps each record when its call returns.
	TimestampPerCall TimestampMode = "per-call"
	// TimestampBatch stamps every record with one value taken just before
	// the output file is written.
	TimestampBatch TimestampMode = "batch"
)

func ParseTimestampMode(s string) (TimestampMode, error) {
	switch TimestampMode(s) {
	case TimestampPerCall, TimestampBatch:
		return TimestampMode(s), nil
	}
	return "", fmt.Errorf("unknown timestamp mode %q (want %q or %q)", s, TimestampPerCall, TimestampBatch)
}

type Runner struct {
	invoker Invoker
	mode    TimestampMode
	now     func() time.Time
	tracer  trace.Tracer
	metrics *metrics.Metrics
	ledger  ledger.Store
	runMeta ledger.Run
}

type Option func(*Runner)

func WithTimestampMode(m TimestampMode) Option {
	return func(r *Runner) { r.mode = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLedger archives each successful run. meta supplies the provider
// fields; ID, paths and times are filled in per run.
func WithLedger(store ledger.Store, meta ledger.Run) Option {
	return func(r *Runner) {
		r.ledger = store
		r.runMeta = meta
	}
}

func NewRunner(inv Invoker, opts ...Option) *Runner {
	r := &Runner{
		invoker: inv,
		mode:    TimestampPerCall,
		now:     time.Now,
		tracer:  otel.GetTracerProvider().Tracer("llm-batch/batch"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run invokes every prompt in order, one at a time. The result slices are
// index-aligned with prompts. Once ctx is done, remaining prompts are not
// sent and are recorded as network failures.
func (r *Runner) Run(ctx context.Context, prompts []string) ([]provider.Result, []time.Time) {
	results := make([]provider.Result, len(prompts))
	stamps := make([]time.Time, len(prompts))

	for i, p := range prompts {
		if err := ctx.Err(); err != nil {
			results[i] = provider.Failure(provider.KindNetwork, err.Error())
			stamps[i] = r.now()
			continue
		}

		pctx, span := r.tracer.Start(ctx, "batch.prompt")
		span.SetAttributes(attribute.Int("prompt_index", i))
		results[i] = r.invoker.Invoke(pctx, p)
		stamps[i] = r.now()
		span.SetAttributes(attribute.String("result.kind", results[i].Outcome()))
		span.End()

		if results[i].OK {
			log.Printf("[Batch] prompt %d/%d ok", i+1, len(prompts))
		} else {
			log.Printf("[Batch] prompt %d/%d failed (%s): %s", i+1, len(prompts), results[i].Kind, results[i].Detail)
		}
	}

	return results, stamps
}

// Records pairs prompts with their results. In batch mode stamps is ignored
// and savedAt is used for every record.
func (r *Runner) Records(prompts []string, results []provider.Result, stamps []time.Time, savedAt time.Time) []sink.Record {
	records := make([]sink.Record, len(prompts))
	for i, p := range prompts {
		ts := savedAt
		if r.mode == TimestampPerCall {
			ts = stamps[i]
		}
		records[i] = sink.Record{
			Prompt:    p,
			Response:  results[i].Display(),
			Timestamp: sink.FormatTimestamp(ts),
		}
	}
	return records
}

type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    map[provider.ErrorKind]int
	Duration  time.Duration
}

// Execute loads prompts from inputPath, runs them and writes outputPath.
// Only source and sink failures are returned; per-prompt failures end up in
// the output file.
func (r *Runner) Execute(ctx context.Context, inputPath, outputPath string) (*Summary, error) {
	started := r.now()
	runID := uuid.New().String()

	ctx, span := r.tracer.Start(ctx, "batch.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("input_path", inputPath),
		attribute.String("output_path", outputPath),
	)

	log.Printf("[Batch] reading prompts from %s", inputPath)
	prompts, err := source.Load(inputPath)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("prompts", len(prompts)))

	log.Printf("[Batch] sending %d prompts (run %s)", len(prompts), runID)
	results, stamps := r.Run(ctx, prompts)

	savedAt := r.now()
	records := r.Records(prompts, results, stamps, savedAt)

	log.Printf("[Batch] saving responses to %s", outputPath)
	if err := sink.Write(outputPath, records); err != nil {
		return nil, err
	}

	finished := r.now()
	summary := summarize(runID, results, finished.Sub(started))
	r.metrics.ObserveBatch(len(prompts), summary.Duration, finished)

	if r.ledger != nil {
		run := r.runMeta
		run.ID = runID
		run.InputPath = inputPath
		run.OutputPath = outputPath
		run.StartedAt = started
		run.FinishedAt = finished
		// The output file is already written; the ledger write must not be
		// cut short by a cancelled batch context.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := r.ledger.SaveRun(lctx, &run, entries(records, results)); err != nil {
			log.Printf("[Ledger] failed to archive run %s: %v", runID, err)
		} else {
			log.Printf("[Ledger] archived run %s", runID)
		}
	}

	log.Printf("[Batch] done: %d ok, %d failed, results saved to %s", summary.Succeeded, summary.Total-summary.Succeeded, outputPath)
	return summary, nil
}

func summarize(runID string, results []provider.Result, d time.Duration) *Summary {
	s := &Summary{
		RunID:    runID,
		Total:    len(results),
		Failed:   make(map[provider.ErrorKind]int),
		Duration: d,
	}
	for _, res := range results {
		if res.OK {
			s.Succeeded++
			continue
		}
		s.Failed[res.Kind]++
	}
	return s
}

func entries(records []sink.Record, results []provider.Result) []ledger.Entry {
	out := make([]ledger.Entry, len(records))
	for i, rec := range records {
		out[i] = ledger.Entry{
			Position:  i,
			Prompt:    rec.Prompt,
			Response:  rec.Response,
			Outcome:   results[i].Outcome(),
			Timestamp: rec.Timestamp,
		}
	}
	return out
}
