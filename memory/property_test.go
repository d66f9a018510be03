package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/memflow/types"
)

// propertyWords deliberately excludes stop words so drawn descriptions
// always produce non-empty fingerprints.
var propertyWords = []string{
	"analyze", "sales", "data", "report", "deploy", "service", "cook",
	"dinner", "index", "catalog", "rotate", "keys", "migrate", "cluster",
	"tune", "cache", "backup", "restore", "audit", "pipeline",
}

func drawDescription(rt *rapid.T, label string) string {
	count := rapid.IntRange(1, 6).Draw(rt, label+"_count")
	words := make([]string, count)
	for i := range words {
		words[i] = rapid.SampledFrom(propertyWords).Draw(rt, fmt.Sprintf("%s_word_%d", label, i))
	}
	return strings.Join(words, " ")
}

func drawFingerprint(rt *rapid.T, label string) types.Fingerprint {
	words := rapid.SliceOfNDistinct(rapid.SampledFrom(propertyWords), 0, 8, rapid.ID[string]).Draw(rt, label)
	return NewFingerprinter(nil).Fingerprint(strings.Join(words, " "), nil)
}

func TestProperty_FingerprintNormalizedSortedUnique(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := drawDescription(rt, "description")

		// Shouting and punctuation must not change the outcome.
		noisy := base
		if rapid.Bool().Draw(rt, "upper") {
			noisy = strings.ToUpper(noisy)
		}
		separator := rapid.SampledFrom([]string{" ", ", ", "! ", " . "}).Draw(rt, "separator")
		noisy = strings.ReplaceAll(noisy, " ", separator)

		fingerprinter := NewFingerprinter(nil)
		clean := fingerprinter.Fingerprint(base, nil)
		dirty := fingerprinter.Fingerprint(noisy, nil)
		assert.Equal(rt, clean, dirty, "normalization should erase case and punctuation noise")

		require.NotEmpty(rt, clean)
		for i := 1; i < len(clean); i++ {
			assert.Less(rt, clean[i-1], clean[i], "tokens should be sorted and unique")
		}
		for _, token := range clean {
			assert.Equal(rt, strings.ToLower(token), token, "tokens should be lowercase")
			_, stop := stopWords[token]
			assert.False(rt, stop, "stop word %q leaked into the fingerprint", token)
		}
	})
}

func TestProperty_JaccardBoundsAndSymmetry(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := drawFingerprint(rt, "a")
		b := drawFingerprint(rt, "b")

		score := Jaccard(a, b)
		assert.GreaterOrEqual(rt, score, 0.0)
		assert.LessOrEqual(rt, score, 1.0)
		assert.InDelta(rt, Jaccard(b, a), score, 1e-12, "similarity should be symmetric")

		if len(a) > 0 {
			assert.InDelta(rt, 1.0, Jaccard(a, a), 1e-12, "a non-empty set matches itself exactly")
		} else {
			assert.Zero(rt, Jaccard(a, a), "an empty set matches nothing, itself included")
		}
		if len(a) == 0 || len(b) == 0 {
			assert.Zero(rt, score)
		}
	})
}

func TestProperty_FindSimilarHonorsThresholdAndRanking(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m, _ := newTestManager(t, ManagerConfig{})
		ctx := context.Background()

		inserts := rapid.IntRange(1, 20).Draw(rt, "inserts")
		for i := 0; i < inserts; i++ {
			rec := &types.TaskRecord{
				Description: drawDescription(rt, fmt.Sprintf("desc_%d", i)),
				Success:     rapid.Bool().Draw(rt, fmt.Sprintf("success_%d", i)),
			}
			require.NoError(rt, m.Store(ctx, rec))
		}

		threshold := rapid.Float64Range(0.1, 1.0).Draw(rt, "threshold")
		limit := rapid.IntRange(1, 10).Draw(rt, "limit")
		query := m.Fingerprint(drawDescription(rt, "query"), nil)

		matches, err := m.FindSimilar(ctx, query, threshold, limit)
		require.NoError(rt, err)
		assert.LessOrEqual(rt, len(matches), limit)

		seen := make(map[string]bool, len(matches))
		for i, match := range matches {
			assert.GreaterOrEqual(rt, match.Score, threshold,
				"match %d scored %.4f below threshold %.4f", i, match.Score, threshold)
			assert.LessOrEqual(rt, match.Score, 1.0)
			assert.InDelta(rt, Jaccard(query, match.Record.Fingerprint), match.Score, 1e-12,
				"reported score should equal the similarity of the stored fingerprint")
			if i > 0 {
				assert.GreaterOrEqual(rt, matches[i-1].Score, match.Score,
					"results should be ordered by descending score")
			}
			assert.False(rt, seen[match.Record.ID], "record %s returned twice", match.Record.ID)
			seen[match.Record.ID] = true
		}
	})
}

func TestProperty_ShortTermNeverExceedsBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		max := rapid.IntRange(1, 16).Draw(rt, "shortTermMax")
		m, _ := newTestManager(t, ManagerConfig{ShortTermMax: max})
		ctx := context.Background()

		inserts := rapid.IntRange(1, 60).Draw(rt, "inserts")
		for i := 0; i < inserts; i++ {
			rec := &types.TaskRecord{
				Description: drawDescription(rt, fmt.Sprintf("desc_%d", i)),
				Success:     rapid.Bool().Draw(rt, fmt.Sprintf("success_%d", i)),
			}
			require.NoError(rt, m.Store(ctx, rec))

			sizes, err := m.Sizes(ctx)
			require.NoError(rt, err)
			assert.LessOrEqual(rt, sizes.ShortTerm, max,
				"short tier exceeded its bound after insert %d", i)
		}
	})
}

func TestProperty_TiersStayDisjoint(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m, clock := newTestManager(t, ManagerConfig{
			ShortTermMax:          8,
			LongTermMax:           8,
			ConsolidationInterval: time.Hour,
		})
		ctx := context.Background()

		inserts := rapid.IntRange(1, 30).Draw(rt, "inserts")
		for i := 0; i < inserts; i++ {
			rec := &types.TaskRecord{
				Description: drawDescription(rt, fmt.Sprintf("desc_%d", i)),
				Success:     rapid.Bool().Draw(rt, fmt.Sprintf("success_%d", i)),
				AccessCount: rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("access_%d", i)),
			}
			require.NoError(rt, m.Store(ctx, rec))

			if rapid.Bool().Draw(rt, fmt.Sprintf("advance_%d", i)) {
				clock.Advance(20 * time.Minute)
			}
			if rapid.Bool().Draw(rt, fmt.Sprintf("consolidate_%d", i)) {
				_, err := m.ConsolidateOnce(ctx)
				require.NoError(rt, err)
			}
		}

		_, err := m.ConsolidateOnce(ctx)
		require.NoError(rt, err)

		shortRecs, err := m.short.All(ctx)
		require.NoError(rt, err)
		assert.LessOrEqual(rt, len(shortRecs), 8)

		shortIDs := make(map[string]bool, len(shortRecs))
		for _, rec := range shortRecs {
			assert.Equal(rt, types.TierShortTerm, rec.StoreTier)
			shortIDs[rec.ID] = true
		}

		longRecs := m.ExportLongTerm()
		assert.LessOrEqual(rt, len(longRecs), 8)
		for _, rec := range longRecs {
			assert.Equal(rt, types.TierLongTerm, rec.StoreTier)
			assert.False(rt, shortIDs[rec.ID], "record %s present in both tiers", rec.ID)
		}
	})
}
