package authz

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/lattice-ai/authcore/internal/policy"
)

// batchConcurrency bounds parallel ownership round trips for one batch.
const batchConcurrency = 8

// BatchItem is the outcome of one check in a batch. Err is set for
// infrastructure failures on that item only; other items are unaffected.
type BatchItem struct {
	Decision policy.Decision
	Err      error
}

// AuthorizeBatch evaluates independent checks concurrently. Items fail
// individually; a batch never short-circuits on one item's error.
func (s *Service) AuthorizeBatch(ctx context.Context, reqs []Request) []BatchItem {
	results := make([]BatchItem, len(reqs))
	g := new(errgroup.Group)
	g.SetLimit(batchConcurrency)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			dec, err := s.Authorize(ctx, req)
			results[i] = BatchItem{Decision: dec, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
