// Package pipeline coordinates one request end to end: it drives a
// single question through training, generation, validation, execution,
// and post-processing, and emits a PipelineResult or PipelineError.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nlq-sql/queryengine/pkg/chart"
	"github.com/nlq-sql/queryengine/pkg/config"
	"github.com/nlq-sql/queryengine/pkg/correction"
	"github.com/nlq-sql/queryengine/pkg/dialect"
	"github.com/nlq-sql/queryengine/pkg/executor"
	"github.com/nlq-sql/queryengine/pkg/model"
	"github.com/nlq-sql/queryengine/pkg/process"
	"github.com/nlq-sql/queryengine/pkg/sqlgen"
	"github.com/nlq-sql/queryengine/pkg/telemetry"
	"github.com/nlq-sql/queryengine/pkg/trainer"
	"github.com/nlq-sql/queryengine/pkg/validator"
)

// Stage names one coordinator phase, reported through ProgressCallback.
type Stage string

const (
	StageTraining   Stage = "training"
	StageGenerating Stage = "generating"
	StageExecuting  Stage = "executing"
	StageAnalyzing  Stage = "analyzing"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// ProgressCallback receives stage transitions; nil callbacks are allowed.
type ProgressCallback func(stage Stage)

// Coordinator orchestrates one request end to end. Construct once per
// process; Process is safe for concurrent use across requests.
type Coordinator struct {
	Log        *slog.Logger
	Metrics    *telemetry.Metrics
	Trainer    *trainer.Trainer
	Generator  *sqlgen.Generator
	Validator  *validator.Validator
	Executors  executor.Resolver
	Advisor    *chart.Advisor
	Discoverer *process.Discoverer
	Opts       config.Options
}

// New constructs a Coordinator, falling back to the documented defaults
// when opts is zero-valued.
func New(log *slog.Logger, metrics *telemetry.Metrics, tr *trainer.Trainer, gen *sqlgen.Generator, v *validator.Validator, execs executor.Resolver, advisor *chart.Advisor, disc *process.Discoverer, opts config.Options) *Coordinator {
	if opts.MaxAttempts <= 0 {
		opts = config.Defaults()
	}
	return &Coordinator{
		Log:        log,
		Metrics:    metrics,
		Trainer:    tr,
		Generator:  gen,
		Validator:  v,
		Executors:  execs,
		Advisor:    advisor,
		Discoverer: disc,
		Opts:       opts,
	}
}

// Process runs one question through the full pipeline. Exactly one of the
// returned values is non-nil. Cancellation via ctx aborts the in-flight
// LLM call, SQL execution, and retrievals; partial results are not
// emitted.
func (c *Coordinator) Process(ctx context.Context, question string, cfg model.ConnectionConfig, onProgress ProgressCallback) (*model.PipelineResult, *model.PipelineError) {
	start := time.Now()
	fp := cfg.Fingerprint()
	log := c.Log.With("fingerprint", fp[:8], "dialect", cfg.Dialect)

	notify := func(s Stage) {
		if onProgress != nil {
			onProgress(s)
		}
	}

	fail := func(perr *model.PipelineError) (*model.PipelineResult, *model.PipelineError) {
		notify(StageError)
		c.observe(string(perr.Kind), time.Since(start), len(perr.Attempts))
		log.Warn("pipeline failed", "kind", perr.Kind, "diagnostic", perr.Diagnostic)
		return nil, perr
	}

	profile, err := dialect.New(cfg.Dialect)
	if err != nil {
		return fail(model.NewPipelineError(model.PEInternal, "this database dialect is not supported", err))
	}

	notify(StageTraining)
	trainRes, err := c.Trainer.EnsureTrained(ctx, cfg, profile)
	if err != nil {
		if ctx.Err() != nil {
			return fail(model.NewPipelineError(model.PECancelled, "request cancelled", ctx.Err()))
		}
		return fail(model.NewPipelineError(model.PESchemaIntrospection, "couldn't read the database schema", err))
	}
	c.Metrics.ObserveTraining(string(trainRes.Kind))
	log.Debug("training ensured", "kind", trainRes.Kind, "tables", len(trainRes.Snapshot.Tables))

	exec, err := c.Executors.Executor(ctx, cfg)
	if err != nil {
		return fail(model.NewPipelineError(model.PEExecutionConnectionLost, "couldn't connect to the database", err))
	}

	disambiguation := trainer.DisambiguationNote(trainRes.Snapshot)

	loop := correction.New(c.Generator, c.Validator, exec, c.Opts.MaxAttempts)
	notify(StageGenerating)
	outcome := loop.Run(ctx, question, fp, profile, disambiguation, executor.Options{
		RowLimit:         c.Opts.RowLimit,
		StatementTimeout: time.Duration(c.Opts.StatementTimeoutMS) * time.Millisecond,
	})
	if outcome.Err != nil {
		outcome.Err.Attempts = outcome.Attempts
		return fail(outcome.Err)
	}
	notify(StageExecuting)

	if ctx.Err() != nil {
		return fail(model.NewPipelineError(model.PECancelled, "request cancelled", ctx.Err()))
	}

	// Chart advice and process detection run concurrently once the result
	// is materialized; neither can fail the pipeline.
	notify(StageAnalyzing)
	var (
		wg        sync.WaitGroup
		chartSpec model.ChartSpec
		flow      *model.ProcessFlow
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		chartSpec = c.Advisor.Recommend(ctx, outcome.Result, question)
	}()
	if c.Opts.DiscoveryEnabled && c.Discoverer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			discovered := c.Discoverer.Discover(fp, trainRes.Snapshot, trainRes.Categorical)
			flow = process.Detect(outcome.Result, question, discovered)
		}()
	}
	wg.Wait()

	if flow != nil {
		log.Debug("process flow detected", "nodes", len(flow.Nodes), "edges", len(flow.Edges))
	}

	result := &model.PipelineResult{
		SQL:       outcome.SQL,
		Attempts:  outcome.Attempts,
		Result:    outcome.Result,
		Chart:     chartSpec,
		Process:   flow,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	notify(StageComplete)
	c.observe("success", time.Since(start), len(outcome.Attempts))
	log.Info("pipeline complete", "attempts", len(outcome.Attempts), "rows", outcome.Result.RowCount, "latency_ms", result.LatencyMS)
	return result, nil
}

// Invalidate drops every per-fingerprint cache for cfg, forcing a full
// re-train and re-discovery on the next request. Used by explicit schema
// refresh requests.
func (c *Coordinator) Invalidate(cfg model.ConnectionConfig) {
	fp := cfg.Fingerprint()
	c.Trainer.Invalidate(fp)
	if c.Discoverer != nil {
		c.Discoverer.Invalidate(fp)
	}
}

func (c *Coordinator) observe(outcome string, elapsed time.Duration, attempts int) {
	c.Metrics.ObservePipeline(outcome, elapsed, attempts)
}

// IsCancelled reports whether perr is the coordinator's cancellation error.
func IsCancelled(perr *model.PipelineError) bool {
	return perr != nil && perr.Kind == model.PECancelled
}
