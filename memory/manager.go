package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/memflow/types"
)

// ManagerConfig configures the dual-tier memory manager.
type ManagerConfig struct {
	// ShortTermMax bounds the short-term tier.
	ShortTermMax int `json:"short_term_max"`
	// LongTermMax soft-bounds the long-term tier.
	LongTermMax int `json:"long_term_max"`
	// SimilarityThreshold is the default retrieval cutoff.
	SimilarityThreshold float64 `json:"similarity_threshold"`
	// ResultLimit is the default retrieval truncation.
	ResultLimit int `json:"result_limit"`
	// ConsolidationInterval drives age-based promotion and eviction.
	ConsolidationInterval time.Duration `json:"consolidation_interval"`
	// HistoryMax bounds the task-history ring.
	HistoryMax int `json:"history_max"`
	// ExperienceMax bounds the experience log.
	ExperienceMax int `json:"experience_max"`
	// SignificantKeys selects context values folded into fingerprints.
	SignificantKeys []string `json:"significant_keys"`

	// Now is used by tests. Defaults to time.Now.
	Now func() time.Time `json:"-"`
}

// DefaultManagerConfig returns the default manager configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ShortTermMax:          1000,
		LongTermMax:           5000,
		SimilarityThreshold:   0.7,
		ResultLimit:           10,
		ConsolidationInterval: time.Hour,
		HistoryMax:            5000,
		ExperienceMax:         5000,
		SignificantKeys:       []string{"category"},
	}
}

// Match pairs a retrieved record with its similarity score.
type Match struct {
	Record *types.TaskRecord `json:"record"`
	Score  float64           `json:"score"`
}

// ConsolidationResult reports one consolidation pass.
type ConsolidationResult struct {
	At           time.Time `json:"at"`
	Consolidated int       `json:"consolidated"`
	Evicted      int       `json:"evicted"`
}

// Sizes reports the element counts of every memory structure.
type Sizes struct {
	ShortTerm   int `json:"short_term"`
	LongTerm    int `json:"long_term"`
	TaskHistory int `json:"task_history"`
	Experiences int `json:"experiences"`
}

// OptimizeResult reports what an Optimize call reclaimed and the
// element counts left afterwards.
type OptimizeResult struct {
	Consolidated       int   `json:"consolidated"`
	Evicted            int   `json:"evicted"`
	HistoryTrimmed     int   `json:"history_trimmed"`
	ExperiencesTrimmed int   `json:"experiences_trimmed"`
	Sizes              Sizes `json:"sizes"`
}

// Manager owns both memory tiers. A single lock serializes every store
// mutation and similarity scan, so a consolidation pass, an eviction,
// and a retrieval can never interleave into a state where a record is
// visible in neither tier or in both.
type Manager struct {
	mu sync.RWMutex

	config        ManagerConfig
	short         ShortTermStore
	long          *longTermStore
	fingerprinter *Fingerprinter

	history     *ring[HistoryEntry]
	experiences *ring[Experience]

	// pressure limits how often an over-capacity put triggers a full
	// consolidation pass; between passes the put falls through to
	// plain FIFO eviction.
	pressure *rate.Limiter
	now      func() time.Time
	logger   *zap.Logger
}

// NewManager creates a memory manager. A nil store selects the
// in-memory short-term backend. Out-of-range config values fall back
// to defaults so the manager is operable with zero configuration.
func NewManager(config ManagerConfig, store ShortTermStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultManagerConfig()
	if config.ShortTermMax <= 0 {
		config.ShortTermMax = defaults.ShortTermMax
	}
	if config.LongTermMax <= 0 {
		config.LongTermMax = defaults.LongTermMax
	}
	if config.SimilarityThreshold < 0 || config.SimilarityThreshold > 1 {
		config.SimilarityThreshold = defaults.SimilarityThreshold
	}
	if config.ResultLimit <= 0 {
		config.ResultLimit = defaults.ResultLimit
	}
	if config.ConsolidationInterval <= 0 {
		config.ConsolidationInterval = defaults.ConsolidationInterval
	}
	if config.HistoryMax <= 0 {
		config.HistoryMax = defaults.HistoryMax
	}
	if config.ExperienceMax <= 0 {
		config.ExperienceMax = defaults.ExperienceMax
	}
	if config.SignificantKeys == nil {
		config.SignificantKeys = defaults.SignificantKeys
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if store == nil {
		store = NewInMemoryShortTerm(InMemoryShortTermConfig{}, logger)
	}

	return &Manager{
		config:        config,
		short:         store,
		long:          newLongTermStore(),
		fingerprinter: NewFingerprinter(config.SignificantKeys),
		history:       newRing[HistoryEntry](config.HistoryMax),
		experiences:   newRing[Experience](config.ExperienceMax),
		pressure:      rate.NewLimiter(rate.Every(time.Second), 1),
		now:           config.Now,
		logger:        logger.With(zap.String("component", "memory_manager")),
	}
}

// Fingerprint derives the normalized token set for a description and
// its context, using the configured significant keys.
func (m *Manager) Fingerprint(description string, context map[string]any) types.Fingerprint {
	return m.fingerprinter.Fingerprint(description, context)
}

// Store inserts a task record into the short-term tier, filling in id,
// creation time, and fingerprint when absent. Inserting beyond capacity
// first attempts a consolidation pass, then evicts the oldest
// unpromoted records until the tier fits.
func (m *Manager) Store(ctx context.Context, rec *types.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	if rec.Fingerprint == nil {
		rec.Fingerprint = m.fingerprinter.Fingerprint(rec.Description, rec.Context)
	}
	rec.StoreTier = types.TierShortTerm

	if err := m.short.Put(ctx, rec); err != nil {
		return err
	}

	m.history.append(HistoryEntry{
		ID:          rec.ID,
		Description: rec.Description,
		Success:     rec.Success,
		CreatedAt:   rec.CreatedAt,
	})

	return m.enforceShortCapacityLocked(ctx)
}

func (m *Manager) enforceShortCapacityLocked(ctx context.Context) error {
	size, err := m.short.Size(ctx)
	if err != nil {
		return err
	}
	if size <= m.config.ShortTermMax {
		return nil
	}

	if m.pressure.Allow() {
		if _, err := m.consolidateLocked(ctx); err != nil {
			m.logger.Warn("capacity-pressure consolidation aborted", zap.Error(err))
		}
		if size, err = m.short.Size(ctx); err != nil {
			return err
		}
	}

	for size > m.config.ShortTermMax {
		evicted, err := m.short.EvictOldest(ctx)
		if err != nil {
			if types.IsRecordNotFound(err) {
				return nil
			}
			return err
		}
		m.logger.Debug("short-term record evicted",
			zap.String("id", evicted.ID),
			zap.Int("access_count", evicted.AccessCount))
		size--
	}
	return nil
}

// FindSimilar ranks candidates from both tiers by Jaccard similarity
// against the query fingerprint. Results below threshold are excluded;
// survivors are ordered by score, then access count, then recency, and
// truncated to limit. Each returned record has its access count
// incremented exactly once. A negative threshold and a non-positive
// limit select the configured defaults. Returned records are copies.
func (m *Manager) FindSimilar(ctx context.Context, fp types.Fingerprint, threshold float64, limit int) ([]Match, error) {
	if threshold < 0 {
		threshold = m.config.SimilarityThreshold
	}
	if limit <= 0 {
		limit = m.config.ResultLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// An empty fingerprint matches nothing.
	if len(fp) == 0 {
		return []Match{}, nil
	}

	shortRecs, err := m.short.All(ctx)
	if err != nil {
		return nil, err
	}

	var longRecs []*types.TaskRecord
	if threshold > 0 {
		longRecs = m.long.candidates(fp)
	} else {
		longRecs = m.long.all()
	}

	candidates := make([]*types.TaskRecord, 0, len(shortRecs)+len(longRecs))
	candidates = append(candidates, shortRecs...)
	candidates = append(candidates, longRecs...)

	scores, err := scoreCandidates(ctx, fp, candidates)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0)
	for i, rec := range candidates {
		if len(rec.Fingerprint) == 0 {
			continue
		}
		if scores[i] >= threshold {
			matches = append(matches, Match{Record: rec, Score: scores[i]})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Record.AccessCount != matches[j].Record.AccessCount {
			return matches[i].Record.AccessCount > matches[j].Record.AccessCount
		}
		if !matches[i].Record.CreatedAt.Equal(matches[j].Record.CreatedAt) {
			return matches[i].Record.CreatedAt.After(matches[j].Record.CreatedAt)
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]Match, len(matches))
	for i, match := range matches {
		rec := match.Record
		rec.AccessCount++
		if rec.StoreTier == types.TierShortTerm {
			// Persist the new count through the pluggable backend.
			if err := m.short.Put(ctx, rec); err != nil {
				return nil, err
			}
		}
		out[i] = Match{Record: rec.Clone(), Score: match.Score}
	}
	return out, nil
}

// Get returns a copy of the record for id from whichever tier holds it.
// A missing id yields (nil, false, nil): probing for aged-out records
// is routine, not an error.
func (m *Manager) Get(ctx context.Context, id string) (*types.TaskRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.short.Get(ctx, id)
	if err == nil {
		return rec.Clone(), true, nil
	}
	if !types.IsRecordNotFound(err) {
		return nil, false, err
	}

	if rec, ok := m.long.get(id); ok {
		return rec.Clone(), true, nil
	}
	return nil, false, nil
}

// Remove deletes the record for id from whichever tier holds it and
// reports whether anything was removed.
func (m *Manager) Remove(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.short.Remove(ctx, id)
	if err == nil {
		return true, nil
	}
	if !types.IsRecordNotFound(err) {
		return false, err
	}

	_, ok := m.long.remove(id)
	return ok, nil
}

// ConsolidateOnce runs a single consolidation pass synchronously. It is
// the entry point for the background scheduler and for tests.
func (m *Manager) ConsolidateOnce(ctx context.Context) (ConsolidationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consolidateLocked(ctx)
}

// consolidateLocked walks the short-term tier once. Successful records
// that were retrieved at least once, or that aged past half the
// consolidation interval, move to the long-term tier. Unsuccessful,
// never-retrieved records past the same age are evicted. Store errors
// abort the pass cleanly; both tiers stay consistent for the next run.
func (m *Manager) consolidateLocked(ctx context.Context) (ConsolidationResult, error) {
	result := ConsolidationResult{At: m.now()}

	recs, err := m.short.All(ctx)
	if err != nil {
		m.logger.Error("consolidation aborted, short-term listing failed", zap.Error(err))
		return result, err
	}

	halfInterval := m.config.ConsolidationInterval / 2
	for _, rec := range recs {
		age := result.At.Sub(rec.CreatedAt)

		switch {
		case rec.Success && (rec.AccessCount >= 1 || age > halfInterval):
			// Promotion is a move: the id leaves SHORT in the same
			// pass in which it enters LONG.
			if err := m.short.Remove(ctx, rec.ID); err != nil {
				m.logger.Error("consolidation aborted, record vanished mid-pass",
					zap.String("id", rec.ID), zap.Error(err))
				return result, err
			}
			rec.StoreTier = types.TierLongTerm
			m.long.put(rec)
			result.Consolidated++

			for m.long.size() > m.config.LongTermMax {
				victim := m.long.evictLowestValue()
				if victim == nil {
					break
				}
				result.Evicted++
				m.logger.Debug("long-term record evicted",
					zap.String("id", victim.ID),
					zap.Float64("value", evictionValue(victim)))
			}

		case !rec.Success && rec.AccessCount == 0 && age > halfInterval:
			if err := m.short.Remove(ctx, rec.ID); err != nil {
				m.logger.Error("consolidation aborted, record vanished mid-pass",
					zap.String("id", rec.ID), zap.Error(err))
				return result, err
			}
			result.Evicted++
		}
	}

	m.logger.Info("consolidation pass completed",
		zap.Int("consolidated", result.Consolidated),
		zap.Int("evicted", result.Evicted))
	return result, nil
}

// Sizes reports current element counts across all memory structures.
func (m *Manager) Sizes(ctx context.Context) (Sizes, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	shortSize, err := m.short.Size(ctx)
	if err != nil {
		return Sizes{}, err
	}
	return Sizes{
		ShortTerm:   shortSize,
		LongTerm:    m.long.size(),
		TaskHistory: m.history.len(),
		Experiences: m.experiences.len(),
	}, nil
}

// Optimize consolidates, enforces every capacity bound, and reports
// what was reclaimed.
func (m *Manager) Optimize(ctx context.Context) (OptimizeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cons, err := m.consolidateLocked(ctx)
	out := OptimizeResult{Consolidated: cons.Consolidated, Evicted: cons.Evicted}
	if err != nil {
		return out, err
	}

	size, err := m.short.Size(ctx)
	if err != nil {
		return out, err
	}
	for size > m.config.ShortTermMax {
		if _, err := m.short.EvictOldest(ctx); err != nil {
			if types.IsRecordNotFound(err) {
				break
			}
			return out, err
		}
		out.Evicted++
		size--
	}

	out.HistoryTrimmed = m.history.trim(m.config.HistoryMax)
	out.ExperiencesTrimmed = m.experiences.trim(m.config.ExperienceMax)

	shortSize, err := m.short.Size(ctx)
	if err != nil {
		return out, err
	}
	out.Sizes = Sizes{
		ShortTerm:   shortSize,
		LongTerm:    m.long.size(),
		TaskHistory: m.history.len(),
		Experiences: m.experiences.len(),
	}
	return out, nil
}

// ClearShortTerm drops every short-term record and returns the count.
// Long-term records and the history/experience logs are untouched.
func (m *Manager) ClearShortTerm(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleared, err := m.short.Clear(ctx)
	if err != nil {
		return 0, err
	}
	m.logger.Info("short-term memory cleared", zap.Int("cleared", cleared))
	return cleared, nil
}

// History returns up to limit of the most recent task-history entries,
// oldest first. A non-positive limit returns everything retained.
func (m *Manager) History(limit int) []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.tail(limit)
}

// RecordExperience appends a learning note, filling in id and creation
// time when absent, and returns the stored value.
func (m *Manager) RecordExperience(exp Experience) Experience {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = m.now()
	}
	m.experiences.append(exp)
	return exp
}

// Experiences returns up to limit of the most recent experiences,
// oldest first, optionally filtered by category. An empty category
// matches everything.
func (m *Manager) Experiences(category string, limit int) []Experience {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.experiences.tail(0)
	filtered := all
	if category != "" {
		filtered = make([]Experience, 0, len(all))
		for _, exp := range all {
			if exp.Category == category {
				filtered = append(filtered, exp)
			}
		}
	}

	if limit <= 0 || limit > len(filtered) {
		limit = len(filtered)
	}
	return filtered[len(filtered)-limit:]
}

// ExportLongTerm snapshots the long-term tier as record copies in a
// stable order, for archival.
func (m *Manager) ExportLongTerm() []*types.TaskRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.long.all()
	out := make([]*types.TaskRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ImportLongTerm restores archived records into the long-term tier,
// recomputing missing fingerprints and enforcing the capacity bound.
// It returns how many records were imported.
func (m *Manager) ImportLongTerm(recs []*types.TaskRecord) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	imported := 0
	for _, rec := range recs {
		if rec == nil || rec.ID == "" {
			continue
		}
		clone := rec.Clone()
		clone.StoreTier = types.TierLongTerm
		if len(clone.Fingerprint) == 0 {
			clone.Fingerprint = m.fingerprinter.Fingerprint(clone.Description, clone.Context)
		}
		m.long.put(clone)
		imported++
	}

	for m.long.size() > m.config.LongTermMax {
		if m.long.evictLowestValue() == nil {
			break
		}
	}

	m.logger.Info("long-term memory restored", zap.Int("imported", imported))
	return imported
}
