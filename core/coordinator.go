package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/evolution"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/internal/telemetry"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

const instrumentationName = "memflow/core"

// RecordResult reports what one RecordOutcome call did.
type RecordResult struct {
	// Record is the stored record with id, timestamp, and fingerprint
	// filled in.
	Record *types.TaskRecord `json:"record"`
	// Fitness is the sample derived from the outcome.
	Fitness float64 `json:"fitness"`
	// GenerationAdvanced reports whether this sample triggered a
	// generation boundary.
	GenerationAdvanced bool `json:"generation_advanced"`
}

// Status is a merged snapshot of the whole pipeline.
type Status struct {
	Running       bool              `json:"running"`
	Uptime        time.Duration     `json:"uptime"`
	TasksRecorded int64             `json:"tasks_recorded"`
	Retrievals    int64             `json:"retrievals"`
	RetrievalHits int64             `json:"retrieval_hits"`
	Memory        memory.Sizes      `json:"memory"`
	Evolution     evolution.Metrics `json:"evolution"`
}

// Coordinator owns the full pipeline: dual-tier task memory, the
// consolidation scheduler, outcome scoring, and parameter evolution.
// All methods are safe for concurrent use.
type Coordinator struct {
	config *config.Config

	manager      *memory.Manager
	consolidator *memory.Consolidator
	archive      *memory.Archive
	evaluator    *evolution.Evaluator
	engine       *evolution.Engine
	collector    *metrics.Collector
	tracer       trace.Tracer

	tasksRecorded atomic.Int64
	retrievals    atomic.Int64
	retrievalHits atomic.Int64

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	providers *telemetry.Providers

	now    func() time.Time
	logger *zap.Logger
}

// NewCoordinator builds the pipeline from configuration. A nil cfg
// uses defaults; an invalid cfg is rejected with INVALID_CONFIGURATION.
// A nil logger silences the pipeline.
func NewCoordinator(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	now := o.clock
	if now == nil {
		now = time.Now
	}

	store := o.store
	if store == nil && cfg.Memory.ShortTermBackend == "redis" {
		var err error
		store, err = memory.NewRedisShortTerm(redisShortTermConfig(cfg.Memory.Redis), logger)
		if err != nil {
			return nil, fmt.Errorf("create redis short-term store: %w", err)
		}
	}

	manager := memory.NewManager(managerConfig(cfg.Memory, o.clock), store, logger)
	consolidator := memory.NewConsolidator(memory.ConsolidatorConfig{
		Interval: cfg.Memory.ConsolidationInterval,
	}, manager, logger)
	engine := evolution.NewEngine(engineConfig(cfg.Evolution, o.clock), o.rand, logger)
	evaluator := evolution.NewEvaluator(evaluatorConfig(cfg.Fitness))

	var archive *memory.Archive
	if cfg.Memory.Archive.Enabled {
		var err error
		archive, err = memory.OpenArchive(cfg.Memory.Archive.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	c := &Coordinator{
		config:       cfg,
		manager:      manager,
		consolidator: consolidator,
		archive:      archive,
		evaluator:    evaluator,
		engine:       engine,
		collector:    collector,
		tracer:       otel.Tracer(instrumentationName),
		now:          now,
		logger:       logger.With(zap.String("component", "coordinator")),
	}
	consolidator.OnPass(c.onScheduledPass)

	c.logger.Info("coordinator created",
		zap.String("short_term_backend", shortTermBackendName(cfg, o.store)),
		zap.Bool("archive", archive != nil),
		zap.Bool("metrics", collector != nil))
	return c, nil
}

// Start restores the long-term tier from the archive when one is
// configured, initializes telemetry, and launches the consolidation
// scheduler. Starting a running coordinator is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	if c.archive != nil {
		recs, err := c.archive.Load(ctx)
		if err != nil {
			return fmt.Errorf("restore archive: %w", err)
		}
		n := c.manager.ImportLongTerm(recs)
		c.logger.Info("long-term memory restored", zap.Int("records", n))
	}

	providers, err := telemetry.Init(c.config.Telemetry, c.logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	c.providers = providers

	if err := c.consolidator.Start(ctx); err != nil {
		return err
	}

	c.started = true
	c.startedAt = c.now()
	c.logger.Info("coordinator started")
	return nil
}

// Stop halts the scheduler, snapshots the long-term tier into the
// archive, and shuts telemetry down. Stop is final: the archive is
// closed, so a stopped coordinator cannot be started again.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}

	c.consolidator.Stop()

	var errs []error
	if c.archive != nil {
		recs := c.manager.ExportLongTerm()
		if err := c.archive.Save(ctx, recs); err != nil {
			errs = append(errs, fmt.Errorf("snapshot archive: %w", err))
		} else {
			c.logger.Info("long-term memory snapshotted", zap.Int("records", len(recs)))
		}
		if err := c.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close archive: %w", err))
		}
	}
	if err := c.providers.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	c.providers = nil
	c.started = false
	c.logger.Info("coordinator stopped")
	return errors.Join(errs...)
}

// RecordOutcome stores a finished task and feeds its outcome to the
// evolution engine. The record may be sparse: id, timestamp, and
// fingerprint are filled in, and the outcome's success and confidence
// overwrite the record's.
func (c *Coordinator) RecordOutcome(ctx context.Context, rec *types.TaskRecord, outcome types.Outcome) (RecordResult, error) {
	ctx, span := c.tracer.Start(ctx, "memflow.record_outcome")
	defer span.End()

	if rec == nil {
		rec = &types.TaskRecord{}
	}
	rec.Success = outcome.Success
	rec.Confidence = outcome.Confidence

	if err := c.manager.Store(ctx, rec); err != nil {
		return RecordResult{}, fmt.Errorf("store task record: %w", err)
	}

	fitness := c.evaluator.Evaluate(outcome)
	c.engine.RecordSample(fitness)
	advanced := c.engine.MaybeAdvanceGeneration()

	c.tasksRecorded.Add(1)
	if c.collector != nil {
		c.collector.RecordTaskOutcome(outcome.Success, outcome.Latency, fitness)
		if advanced {
			em := c.engine.Metrics()
			c.collector.RecordGenerationAdvance(em.Generation, em.AvgFitness, em.MaxFitness, em.EvolutionProgress)
		}
		c.refreshTierGauges(ctx)
	}

	span.SetAttributes(
		attribute.Bool("task.success", outcome.Success),
		attribute.Float64("task.fitness", fitness),
		attribute.Bool("evolution.advanced", advanced),
	)
	return RecordResult{Record: rec, Fitness: fitness, GenerationAdvanced: advanced}, nil
}

// FindSimilar retrieves past tasks resembling the given description
// and context, ranked best first. Options override the configured
// threshold and limit for this call only.
func (c *Coordinator) FindSimilar(ctx context.Context, description string, taskContext map[string]any, opts ...RetrieveOption) ([]memory.Match, error) {
	ctx, span := c.tracer.Start(ctx, "memflow.find_similar")
	defer span.End()

	// threshold -1 selects the configured default; zero stays explicit.
	ro := retrieveOptions{threshold: -1}
	for _, opt := range opts {
		opt(&ro)
	}

	start := c.now()
	fp := c.manager.Fingerprint(description, taskContext)
	matches, err := c.manager.FindSimilar(ctx, fp, ro.threshold, ro.limit)
	if err != nil {
		return nil, fmt.Errorf("find similar tasks: %w", err)
	}

	c.retrievals.Add(1)
	if len(matches) > 0 {
		c.retrievalHits.Add(1)
	}
	if c.collector != nil {
		c.collector.RecordRetrieval(len(matches), c.now().Sub(start))
	}

	span.SetAttributes(attribute.Int("retrieval.matches", len(matches)))
	return matches, nil
}

// CurrentParameters returns the active genome's parameters.
func (c *Coordinator) CurrentParameters() types.ParameterGenome {
	return c.engine.CurrentParameters()
}

// Metrics returns the evolution engine's snapshot.
func (c *Coordinator) Metrics() evolution.Metrics {
	return c.engine.Metrics()
}

// GenerationHistory returns up to limit recent generation records,
// oldest first.
func (c *Coordinator) GenerationHistory(limit int) []evolution.GenerationRecord {
	return c.engine.History(limit)
}

// BoostLearning raises the active genome's learning rate and
// exploration factor, clamped to bounds. It returns the parameters
// before and after the adjustment.
func (c *Coordinator) BoostLearning() (before, after types.ParameterGenome) {
	return c.engine.BoostLearning()
}

// Get returns a record from either tier without counting an access.
func (c *Coordinator) Get(ctx context.Context, id string) (*types.TaskRecord, bool, error) {
	return c.manager.Get(ctx, id)
}

// Remove deletes a record from whichever tier holds it.
func (c *Coordinator) Remove(ctx context.Context, id string) (bool, error) {
	return c.manager.Remove(ctx, id)
}

// ConsolidateNow runs one synchronous consolidation pass.
func (c *Coordinator) ConsolidateNow(ctx context.Context) (memory.ConsolidationResult, error) {
	ctx, span := c.tracer.Start(ctx, "memflow.consolidate")
	defer span.End()

	res, err := c.manager.ConsolidateOnce(ctx)
	if err != nil {
		return memory.ConsolidationResult{}, err
	}
	if c.collector != nil {
		c.collector.RecordConsolidation("manual", res.Consolidated, res.Evicted, 0)
		c.refreshTierGauges(ctx)
	}
	return res, nil
}

// Optimize trims every bounded structure back to its cap.
func (c *Coordinator) Optimize(ctx context.Context) (memory.OptimizeResult, error) {
	res, err := c.manager.Optimize(ctx)
	if err != nil {
		return memory.OptimizeResult{}, err
	}
	if c.collector != nil {
		c.collector.RecordConsolidation("optimize", res.Consolidated, res.Evicted,
			res.HistoryTrimmed+res.ExperiencesTrimmed)
		c.refreshTierGauges(ctx)
	}
	return res, nil
}

// ClearShortTerm drops every short-term record and reports how many.
func (c *Coordinator) ClearShortTerm(ctx context.Context) (int, error) {
	n, err := c.manager.ClearShortTerm(ctx)
	if err != nil {
		return 0, err
	}
	if c.collector != nil {
		c.refreshTierGauges(ctx)
	}
	return n, nil
}

// RecordExperience appends a learning note to the experience log.
func (c *Coordinator) RecordExperience(category, summary string, details map[string]any) memory.Experience {
	return c.manager.RecordExperience(memory.Experience{
		Category: category,
		Summary:  summary,
		Details:  details,
	})
}

// Experiences returns logged experiences, newest first, optionally
// filtered by category.
func (c *Coordinator) Experiences(category string, limit int) []memory.Experience {
	return c.manager.Experiences(category, limit)
}

// TaskHistory returns up to limit recent task-history entries,
// oldest first.
func (c *Coordinator) TaskHistory(limit int) []memory.HistoryEntry {
	return c.manager.History(limit)
}

// Snapshot writes the long-term tier to the archive and reports how
// many records it saved.
func (c *Coordinator) Snapshot(ctx context.Context) (int, error) {
	if c.archive == nil {
		return 0, fmt.Errorf("archive is not enabled")
	}
	recs := c.manager.ExportLongTerm()
	if err := c.archive.Save(ctx, recs); err != nil {
		return 0, fmt.Errorf("snapshot archive: %w", err)
	}
	return len(recs), nil
}

// Restore loads the archive into the long-term tier and reports how
// many records it imported.
func (c *Coordinator) Restore(ctx context.Context) (int, error) {
	if c.archive == nil {
		return 0, fmt.Errorf("archive is not enabled")
	}
	recs, err := c.archive.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore archive: %w", err)
	}
	return c.manager.ImportLongTerm(recs), nil
}

// Status merges uptime, call counters, memory sizes, and evolution
// metrics into one snapshot.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	sizes, err := c.manager.Sizes(ctx)
	if err != nil {
		return Status{}, err
	}

	c.mu.Lock()
	running := c.started
	var uptime time.Duration
	if running {
		uptime = c.now().Sub(c.startedAt)
	}
	c.mu.Unlock()

	return Status{
		Running:       running,
		Uptime:        uptime,
		TasksRecorded: c.tasksRecorded.Load(),
		Retrievals:    c.retrievals.Load(),
		RetrievalHits: c.retrievalHits.Load(),
		Memory:        sizes,
		Evolution:     c.engine.Metrics(),
	}, nil
}

// onScheduledPass feeds background consolidation results into the
// metrics pipeline. It runs on the scheduler goroutine.
func (c *Coordinator) onScheduledPass(res memory.ConsolidationResult) {
	c.logger.Info("scheduled consolidation completed",
		zap.Int("consolidated", res.Consolidated),
		zap.Int("evicted", res.Evicted))
	if c.collector != nil {
		c.collector.RecordConsolidation("scheduled", res.Consolidated, res.Evicted, 0)
		c.refreshTierGauges(context.Background())
	}
}

func (c *Coordinator) refreshTierGauges(ctx context.Context) {
	sizes, err := c.manager.Sizes(ctx)
	if err != nil {
		return
	}
	c.collector.SetTierSizes(sizes.ShortTerm, sizes.LongTerm)
}

func shortTermBackendName(cfg *config.Config, injected memory.ShortTermStore) string {
	if injected != nil {
		return "injected"
	}
	if cfg.Memory.ShortTermBackend == "" {
		return "memory"
	}
	return cfg.Memory.ShortTermBackend
}

func managerConfig(cfg config.MemoryConfig, now func() time.Time) memory.ManagerConfig {
	return memory.ManagerConfig{
		ShortTermMax:          cfg.ShortTermMax,
		LongTermMax:           cfg.LongTermMax,
		SimilarityThreshold:   cfg.SimilarityThreshold,
		ResultLimit:           cfg.ResultLimit,
		ConsolidationInterval: cfg.ConsolidationInterval,
		HistoryMax:            cfg.HistoryMax,
		ExperienceMax:         cfg.ExperienceMax,
		SignificantKeys:       cfg.SignificantKeys,
		Now:                   now,
	}
}

func engineConfig(cfg config.EvolutionConfig, now func() time.Time) evolution.EngineConfig {
	return evolution.EngineConfig{
		PopulationSize:           cfg.PopulationSize,
		MinSamples:               cfg.MinSamples,
		TargetFitness:            cfg.TargetFitness,
		HistoryMax:               cfg.HistoryMax,
		InitialLearningRate:      cfg.InitialLearningRate,
		InitialExplorationFactor: cfg.InitialExplorationFactor,
		InitialMutationRate:      cfg.InitialMutationRate,
		Now:                      now,
	}
}

func evaluatorConfig(cfg config.FitnessConfig) evolution.EvaluatorConfig {
	return evolution.EvaluatorConfig{
		SuccessWeight:    cfg.SuccessWeight,
		ConfidenceWeight: cfg.ConfidenceWeight,
		LatencyWeight:    cfg.LatencyWeight,
		LatencyCap:       cfg.LatencyCap,
	}
}

func redisShortTermConfig(cfg config.RedisConfig) memory.RedisShortTermConfig {
	return memory.RedisShortTermConfig{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		KeyPrefix:    cfg.KeyPrefix,
	}
}
