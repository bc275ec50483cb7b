package reconcile

import (
	"context"
	"runtime"

	"github.com/park285/cubetimer/internal/domain"
	"github.com/remeh/sizedwaitgroup"
	"go.uber.org/zap"
)

// BulkResult is the per-owner result of RecomputeAll.
type BulkResult struct {
	OwnerID  string
	Snapshot *domain.ProfileSnapshot
	Err      error
}

// RecomputeAll rebuilds many profiles with at most workers running at once.
// No record events are published. Results keep the order of owners.
func (r *Reconciler) RecomputeAll(ctx context.Context, owners []string, workers int) []BulkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]BulkResult, len(owners))
	swg := sizedwaitgroup.New(workers)
	for i, owner := range owners {
		if ctx.Err() != nil {
			results[i] = BulkResult{OwnerID: owner, Err: ctx.Err()}
			continue
		}
		swg.Add()
		go func(i int, owner string) {
			defer swg.Done()
			res := BulkResult{OwnerID: owner}
			out, err := r.Recompute(ctx, owner)
			if err != nil {
				res.Err = err
				r.logger.Warn("profile_recompute_failed", zap.String("owner_id", owner), zap.Error(err))
			} else {
				res.Snapshot = out.Snapshot
			}
			results[i] = res
		}(i, owner)
	}
	swg.Wait()
	return results
}
