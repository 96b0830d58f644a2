package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"vetgate/internal/verification/models"
	dErrors "vetgate/pkg/domain-errors"
	platformstrings "vetgate/pkg/platform/strings"
)

// bulkParallelism bounds concurrent per-item transitions in one batch.
const bulkParallelism = 8

// BulkFailure records why one id in a batch was not transitioned.
type BulkFailure struct {
	ID     string       `json:"id"`
	Reason string       `json:"reason"`
	Code   dErrors.Code `json:"code"`
}

// BulkResult partitions the input ids exhaustively and disjointly: every
// submitted id appears in exactly one of the two lists.
type BulkResult struct {
	Successful []string      `json:"successful"`
	Failed     []BulkFailure `json:"failed"`
}

// BulkTransition applies one action to many processes, each independently:
// one item's failure never aborts the batch, and a process concurrently
// transitioned by another reviewer fails that item alone. Items run in
// bounded parallel; ordering within the batch is unspecified.
func (s *Service) BulkTransition(ctx context.Context, processIDs []string, action models.Action, params models.TransitionParams) (*BulkResult, error) {
	ctx, span := s.tracer.Start(ctx, "verification.BulkTransition")
	defer span.End()

	if len(processIDs) == 0 {
		return nil, dErrors.NewValidation("bulk transition requires at least one process id", "processIds")
	}

	ids := platformstrings.DedupeAndTrim(processIDs)
	result := &BulkResult{Successful: []string{}, Failed: []BulkFailure{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkParallelism)
	for _, id := range ids {
		g.Go(func() error {
			err := s.bulkItem(gctx, id, action, params)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				code := dErrors.CodeInternal
				var coded *dErrors.Error
				if errors.As(err, &coded) {
					code = coded.Code
				}
				result.Failed = append(result.Failed, BulkFailure{
					ID: id, Reason: err.Error(), Code: code,
				})
				s.metrics.RecordBulkItem("failed")
				return nil
			}
			result.Successful = append(result.Successful, id)
			s.metrics.RecordBulkItem("successful")
			return nil
		})
	}
	_ = g.Wait() // per-item errors land in the result, never here

	sort.Strings(result.Successful)
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].ID < result.Failed[j].ID })
	return result, nil
}

// bulkItem loads the current version and runs the single-item transition
// against it. A write that races another reviewer surfaces as
// concurrent_modification for this item only.
func (s *Service) bulkItem(ctx context.Context, id string, action models.Action, params models.TransitionParams) error {
	current, err := s.processes.Get(ctx, id)
	if err != nil {
		return translateStoreErr(err)
	}
	_, err = s.Transition(ctx, id, action, params, current.UpdatedAt)
	return err
}
