// Package fetchmerge runs one fetch per resource key on a bounded executor and
// hands the successful records to a merge step.
//
// A failed key never aborts the batch: its error is logged once and kept as a
// failed Outcome, and the merge only ever sees successful records.
package fetchmerge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/census-pipeline/internal/metrics"
)

// ErrNoRecords is returned by callers that refuse to write an empty dataset.
var ErrNoRecords = errors.New("no records fetched")

// Executor runs n indexed tasks and blocks until they have all returned.
type Executor interface {
	Run(ctx context.Context, n int, fn func(ctx context.Context, i int))
}

// FetchFunc fetches and parses the resource identified by key.
type FetchFunc[K comparable, R any] func(ctx context.Context, key K) (R, error)

// MergeFunc combines the successful records into one dataset.
type MergeFunc[R, D any] func(records []R) (D, error)

// Outcome is the explicit per-key result of one fetch.
type Outcome[K comparable, R any] struct {
	Key    K
	Record R
	Err    error
}

// OK reports whether the fetch succeeded.
func (o Outcome[K, R]) OK() bool {
	return o.Err == nil
}

// Fetch runs fetch for every key on exec and returns one Outcome per key in
// completion order. Duplicate keys are fetched once per occurrence.
func Fetch[K comparable, R any](
	ctx context.Context,
	exec Executor,
	logger *zap.Logger,
	dataset string,
	keys []K,
	fetch FetchFunc[K, R],
) []Outcome[K, R] {
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make(chan Outcome[K, R], len(keys))
	exec.Run(ctx, len(keys), func(ctx context.Context, i int) {
		key := keys[i]
		rec, err := runOne(ctx, fetch, key)
		results <- Outcome[K, R]{Key: key, Record: rec, Err: err}
	})
	close(results)

	outcomes := make([]Outcome[K, R], 0, len(keys))
	for o := range results {
		if o.Err != nil {
			metrics.ObserveFetch(dataset, "failed")
			logger.Warn("fetch failed",
				zap.String("dataset", dataset),
				zap.String("key", fmt.Sprint(o.Key)),
				zap.Error(o.Err),
			)
		} else {
			metrics.ObserveFetch(dataset, "ok")
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// FetchMerge fetches every key and merges the successful records. The merge
// runs even when nothing succeeded; whether an empty dataset is acceptable is
// the merge step's (or its caller's) decision.
func FetchMerge[K comparable, R, D any](
	ctx context.Context,
	exec Executor,
	logger *zap.Logger,
	dataset string,
	keys []K,
	fetch FetchFunc[K, R],
	merge MergeFunc[R, D],
) (D, []Outcome[K, R], error) {
	outcomes := Fetch(ctx, exec, logger, dataset, keys, fetch)
	combined, err := merge(Succeeded(outcomes))
	if err != nil {
		return combined, outcomes, fmt.Errorf("merge %s: %w", dataset, err)
	}
	return combined, outcomes, nil
}

// Succeeded returns the records of successful outcomes.
func Succeeded[K comparable, R any](outcomes []Outcome[K, R]) []R {
	out := make([]R, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			out = append(out, o.Record)
		}
	}
	return out
}

// Failed returns the outcomes whose fetch failed.
func Failed[K comparable, R any](outcomes []Outcome[K, R]) []Outcome[K, R] {
	var out []Outcome[K, R]
	for _, o := range outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// runOne converts a panic in a parser into an error for that key only.
func runOne[K comparable, R any](ctx context.Context, fetch FetchFunc[K, R], key K) (rec R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero R
			rec = zero
			err = fmt.Errorf("fetch %v panicked: %v", key, r)
		}
	}()
	return fetch(ctx, key)
}
