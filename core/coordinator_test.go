package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/evolution"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Memory.ShortTermMax = 16
	cfg.Memory.SimilarityThreshold = 0.5
	cfg.Evolution.MinSamples = 2
	return cfg
}

func newTestCoordinator(t *testing.T, cfg *config.Config, opts ...Option) (*Coordinator, *testClock) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	clock := newTestClock()
	opts = append(opts, WithClock(clock.Now))
	c, err := NewCoordinator(cfg, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return c, clock
}

func successOutcome() types.Outcome {
	return types.Outcome{Success: true, Confidence: 0.9, Latency: time.Second}
}

func TestNewCoordinator_NilConfigUsesDefaults(t *testing.T) {
	t.Parallel()
	c, err := NewCoordinator(nil, nil)
	require.NoError(t, err)

	m := c.Metrics()
	assert.Equal(t, 8, m.PopulationSize)
	assert.InDelta(t, 0.001, c.CurrentParameters().LearningRate, 1e-9)
}

func TestNewCoordinator_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Memory.ShortTermMax = -1

	_, err := NewCoordinator(cfg, nil)
	require.Error(t, err)
	assert.True(t, types.IsInvalidConfiguration(err))
}

func TestCoordinator_RecordOutcomeStoresAndScores(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	res, err := c.RecordOutcome(ctx, &types.TaskRecord{
		Description: "analyze sales data",
	}, successOutcome())
	require.NoError(t, err)

	require.NotNil(t, res.Record)
	assert.NotEmpty(t, res.Record.ID)
	assert.NotEmpty(t, res.Record.Fingerprint)
	assert.True(t, res.Record.Success)
	assert.InDelta(t, 0.9, res.Record.Confidence, 1e-9)

	// 0.6 success + 0.3*0.9 confidence + 0.1*(1 - 1s/5s) speed.
	assert.InDelta(t, 0.95, res.Fitness, 1e-9)
	assert.False(t, res.GenerationAdvanced)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.TasksRecorded)
	assert.Equal(t, 1, status.Memory.ShortTerm)
	assert.Equal(t, 1, status.Evolution.PendingSamples)
}

func TestCoordinator_RecordOutcomeOverridesRecordFlags(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	res, err := c.RecordOutcome(ctx, &types.TaskRecord{
		Description: "deploy service",
		Success:     true,
		Confidence:  1.0,
	}, types.Outcome{Success: false, Confidence: 0.4, Latency: 0})
	require.NoError(t, err)

	// The outcome is authoritative over whatever the caller preset.
	assert.False(t, res.Record.Success)
	assert.InDelta(t, 0.4, res.Record.Confidence, 1e-9)

	stored, ok, err := c.Get(ctx, res.Record.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, stored.Success)
}

func TestCoordinator_RecordOutcomeAdvancesGeneration(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	first, err := c.RecordOutcome(ctx, &types.TaskRecord{Description: "index catalog"}, successOutcome())
	require.NoError(t, err)
	assert.False(t, first.GenerationAdvanced)

	second, err := c.RecordOutcome(ctx, &types.TaskRecord{Description: "rotate keys"}, successOutcome())
	require.NoError(t, err)
	assert.True(t, second.GenerationAdvanced)

	m := c.Metrics()
	assert.Equal(t, 1, m.Generation)
	assert.Equal(t, 0, m.PendingSamples)
	assert.InDelta(t, 0.95, m.MaxFitness, 1e-9)
}

func TestCoordinator_FindSimilarRanksAndCounts(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	_, err := c.RecordOutcome(ctx, &types.TaskRecord{Description: "analyze sales data"}, successOutcome())
	require.NoError(t, err)
	_, err = c.RecordOutcome(ctx, &types.TaskRecord{Description: "analyze sales report"}, successOutcome())
	require.NoError(t, err)
	_, err = c.RecordOutcome(ctx, &types.TaskRecord{Description: "cook dinner"}, successOutcome())
	require.NoError(t, err)

	matches, err := c.FindSimilar(ctx, "analyze sales figures", nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	for _, m := range matches {
		assert.NotEqual(t, "cook dinner", m.Record.Description)
	}

	missing, err := c.FindSimilar(ctx, "unrelated topic entirely", nil)
	require.NoError(t, err)
	assert.Empty(t, missing)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Retrievals)
	assert.Equal(t, int64(1), status.RetrievalHits)
}

func TestCoordinator_FindSimilarOptionOverrides(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	_, err := c.RecordOutcome(ctx, &types.TaskRecord{Description: "analyze sales data"}, successOutcome())
	require.NoError(t, err)
	_, err = c.RecordOutcome(ctx, &types.TaskRecord{Description: "analyze sales report"}, successOutcome())
	require.NoError(t, err)

	// The 0.5 default excludes the single-token overlap; 0.1 admits it.
	matches, err := c.FindSimilar(ctx, "analyze performance", nil, WithThreshold(0.1))
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	limited, err := c.FindSimilar(ctx, "analyze sales figures", nil, WithLimit(1))
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCoordinator_StartStopLifecycle(t *testing.T) {
	t.Parallel()
	c, clock := newTestCoordinator(t, nil)
	ctx := context.Background()

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Zero(t, status.Uptime)

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx), "second start is a no-op")

	clock.Advance(90 * time.Minute)
	status, err = c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, 90*time.Minute, status.Uptime)

	require.NoError(t, c.Stop(ctx))
	status, err = c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Zero(t, status.Uptime)

	require.NoError(t, c.Stop(ctx), "second stop is a no-op")
}

func TestCoordinator_ConsolidateNowPromotes(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	res, err := c.RecordOutcome(ctx, &types.TaskRecord{Description: "migrate cluster storage"}, successOutcome())
	require.NoError(t, err)

	// Retrieval marks the record as useful, making it promotable.
	matches, err := c.FindSimilar(ctx, "migrate cluster storage", nil)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	pass, err := c.ConsolidateNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pass.Consolidated)
	assert.Equal(t, 0, pass.Evicted)

	stored, ok, err := c.Get(ctx, res.Record.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.TierLongTerm, stored.StoreTier)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Memory.ShortTerm)
	assert.Equal(t, 1, status.Memory.LongTerm)
}

func TestCoordinator_OptimizeAndClear(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.RecordOutcome(ctx, &types.TaskRecord{
			Description: fmt.Sprintf("tune cache shard %d", i),
		}, successOutcome())
		require.NoError(t, err)
	}

	opt, err := c.Optimize(ctx)
	require.NoError(t, err)
	assert.Zero(t, opt.HistoryTrimmed)
	assert.Zero(t, opt.ExperiencesTrimmed)
	assert.Equal(t, 3, opt.Sizes.ShortTerm)
	assert.Equal(t, 3, opt.Sizes.TaskHistory)

	n, err := c.ClearShortTerm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Memory.ShortTerm)
}

func TestCoordinator_ExperiencesAndTaskHistory(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	exp := c.RecordExperience("deploy", "canary first, then fleet", map[string]any{"attempts": 2})
	assert.NotEmpty(t, exp.ID)
	assert.False(t, exp.CreatedAt.IsZero())
	c.RecordExperience("retrieval", "lower the threshold for short queries", nil)

	deploys := c.Experiences("deploy", 0)
	require.Len(t, deploys, 1)
	assert.Equal(t, "canary first, then fleet", deploys[0].Summary)
	assert.Len(t, c.Experiences("", 0), 2)

	for i := 0; i < 3; i++ {
		_, err := c.RecordOutcome(ctx, &types.TaskRecord{
			Description: fmt.Sprintf("backup volume %d", i),
		}, successOutcome())
		require.NoError(t, err)
	}
	history := c.TaskHistory(0)
	require.Len(t, history, 3)
	assert.Equal(t, "backup volume 0", history[0].Description)
	assert.Equal(t, "backup volume 2", history[2].Description)
}

func TestCoordinator_ParametersAndBoost(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)

	params := c.CurrentParameters()
	assert.InDelta(t, 0.001, params.LearningRate, 1e-9)
	assert.InDelta(t, 0.1, params.ExplorationFactor, 1e-9)

	before, boosted := c.BoostLearning()
	assert.InDelta(t, 0.001, before.LearningRate, 1e-9)
	assert.InDelta(t, 0.0012, boosted.LearningRate, 1e-9)
	assert.InDelta(t, 0.11, boosted.ExplorationFactor, 1e-9)
	assert.Equal(t, boosted, c.CurrentParameters())
}

func TestCoordinator_GenerationHistory(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := c.RecordOutcome(ctx, &types.TaskRecord{
			Description: fmt.Sprintf("audit pipeline %d", i),
		}, successOutcome())
		require.NoError(t, err)
	}

	history := c.GenerationHistory(0)
	require.Len(t, history, 2, "four samples at min_samples 2 mean two advances")
	assert.Equal(t, 1, history[0].Generation)
	assert.Equal(t, 2, history[1].Generation)
	assert.Equal(t, 2, history[0].Samples)
}

func TestCoordinator_RemoveAcrossTiers(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	res, err := c.RecordOutcome(ctx, &types.TaskRecord{Description: "restore backup"}, successOutcome())
	require.NoError(t, err)

	removed, err := c.Remove(ctx, res.Record.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.Remove(ctx, "no-such-id")
	require.NoError(t, err)
	assert.False(t, removed)

	_, ok, err := c.Get(ctx, res.Record.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCoordinator_ArchivePersistsAcrossLifecycles(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "memflow.db")
	ctx := context.Background()

	cfg := testConfig()
	cfg.Memory.Archive.Enabled = true
	cfg.Memory.Archive.Path = path

	first, _ := newTestCoordinator(t, cfg)
	require.NoError(t, first.Start(ctx))

	res, err := first.RecordOutcome(ctx, &types.TaskRecord{Description: "rotate signing keys"}, successOutcome())
	require.NoError(t, err)
	_, err = first.FindSimilar(ctx, "rotate signing keys", nil)
	require.NoError(t, err)
	pass, err := first.ConsolidateNow(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pass.Consolidated)

	// Stop snapshots the long tier into the archive.
	require.NoError(t, first.Stop(ctx))

	second, _ := newTestCoordinator(t, cfg)
	require.NoError(t, second.Start(ctx))
	t.Cleanup(func() { _ = second.Stop(ctx) })

	matches, err := second.FindSimilar(ctx, "rotate signing keys", nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, res.Record.ID, matches[0].Record.ID)
	assert.Equal(t, types.TierLongTerm, matches[0].Record.StoreTier)
}

func TestCoordinator_SnapshotRestoreExplicit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "memflow.db")
	ctx := context.Background()

	cfg := testConfig()
	cfg.Memory.Archive.Enabled = true
	cfg.Memory.Archive.Path = path

	first, _ := newTestCoordinator(t, cfg)
	_, err := first.RecordOutcome(ctx, &types.TaskRecord{Description: "catalog index rebuild"}, successOutcome())
	require.NoError(t, err)
	_, err = first.FindSimilar(ctx, "catalog index rebuild", nil)
	require.NoError(t, err)
	_, err = first.ConsolidateNow(ctx)
	require.NoError(t, err)

	saved, err := first.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	second, _ := newTestCoordinator(t, cfg)
	restored, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	status, err := second.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Memory.LongTerm)
}

func TestCoordinator_SnapshotWithoutArchiveFails(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)

	_, err := c.Snapshot(context.Background())
	require.Error(t, err)
	_, err = c.Restore(context.Background())
	require.Error(t, err)
}

func TestCoordinator_InjectedShortTermStore(t *testing.T) {
	t.Parallel()
	store := memory.NewInMemoryShortTerm(memory.InMemoryShortTermConfig{}, nil)
	c, _ := newTestCoordinator(t, nil, WithShortTermStore(store))
	ctx := context.Background()

	_, err := c.RecordOutcome(ctx, &types.TaskRecord{Description: "resize worker pool"}, successOutcome())
	require.NoError(t, err)

	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size, "records should land in the injected store")
}

func TestCoordinator_RedisBackend(t *testing.T) {
	t.Parallel()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := testConfig()
	cfg.Memory.ShortTermBackend = "redis"
	cfg.Memory.Redis.Addr = mr.Addr()

	c, _ := newTestCoordinator(t, cfg)
	ctx := context.Background()

	_, err = c.RecordOutcome(ctx, &types.TaskRecord{Description: "analyze sales data"}, successOutcome())
	require.NoError(t, err)

	matches, err := c.FindSimilar(ctx, "analyze sales data", nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	n, err := c.ClearShortTerm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCoordinator_InjectedRandomSource(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Evolution.MinSamples = 1

	buildAndAdvance := func() []types.ParameterGenome {
		c, _ := newTestCoordinator(t, cfg, WithRandomSource(evolution.NewRandomSource(42)))
		_, err := c.RecordOutcome(context.Background(), &types.TaskRecord{Description: "tune cache"}, successOutcome())
		require.NoError(t, err)
		return c.engine.Population()
	}

	// Identical seeds make whole advances reproducible.
	assert.Equal(t, buildAndAdvance(), buildAndAdvance())
}

var metricsNamespaceSeq uint64

func TestCoordinator_MetricsEnabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = fmt.Sprintf("memflow_core_test_%d", atomic.AddUint64(&metricsNamespaceSeq, 1))
	cfg.Evolution.MinSamples = 1

	c, _ := newTestCoordinator(t, cfg)
	ctx := context.Background()

	_, err := c.RecordOutcome(ctx, &types.TaskRecord{Description: "analyze sales data"}, successOutcome())
	require.NoError(t, err)
	_, err = c.FindSimilar(ctx, "analyze sales data", nil)
	require.NoError(t, err)
	_, err = c.ConsolidateNow(ctx)
	require.NoError(t, err)
	_, err = c.Optimize(ctx)
	require.NoError(t, err)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.TasksRecorded)
}

func TestCoordinator_ConcurrentUse(t *testing.T) {
	t.Parallel()
	c, _ := newTestCoordinator(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := c.RecordOutcome(ctx, &types.TaskRecord{
					Description: fmt.Sprintf("worker %d task %d", worker, i),
				}, successOutcome())
				assert.NoError(t, err)
				_, err = c.FindSimilar(ctx, "worker task", nil)
				assert.NoError(t, err)
				_, err = c.Status(ctx)
				assert.NoError(t, err)
				_ = c.CurrentParameters()
			}
		}(w)
	}
	wg.Wait()

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), status.TasksRecorded)
	assert.Equal(t, int64(100), status.Retrievals)
	assert.LessOrEqual(t, status.Memory.ShortTerm, 16)
}
