package memory

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/memflow/types"
)

// parallelScoringThreshold is the candidate count above which scoring
// fans out across goroutines. Below it the setup cost outweighs the
// work.
const parallelScoringThreshold = 512

// scoreCandidates computes the Jaccard score of every candidate against
// the query fingerprint. Scoring is pure, so large candidate sets are
// chunked across goroutines.
func scoreCandidates(ctx context.Context, fp types.Fingerprint, candidates []*types.TaskRecord) ([]float64, error) {
	scores := make([]float64, len(candidates))

	if len(candidates) < parallelScoringThreshold {
		for i, rec := range candidates {
			scores[i] = Jaccard(fp, rec.Fingerprint)
		}
		return scores, nil
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (len(candidates) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(candidates); start += chunk {
		start := start
		end := start + chunk
		if end > len(candidates) {
			end = len(candidates)
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				scores[i] = Jaccard(fp, candidates[i].Fingerprint)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
