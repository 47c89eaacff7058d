package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// Options configures an Orchestrator.
type Options struct {
	// BatchSize is the number of texts per provider call (default 32).
	BatchSize int

	// Parallelism bounds concurrent provider calls (default 4).
	Parallelism int

	// Retry wraps each batch. Zero MaxAttempts uses errors.DefaultRetryConfig.
	Retry errors.RetryConfig

	// BreakerFailures is the number of consecutive exhausted batches after
	// which the remaining batches fail fast (default 5).
	BreakerFailures int

	// BreakerReset is how long the breaker stays open (default 30s).
	BreakerReset time.Duration

	// QueryCacheSize bounds the query embedding cache.
	QueryCacheSize int

	// Progress is called after each finished batch with texts done and total.
	Progress func(done, total int)
}

// BatchFailure records a batch that exhausted its retries.
// Start is inclusive and End exclusive, both indexes into the input texts.
type BatchFailure struct {
	Start int
	End   int
	Err   error
}

// BatchResult is the outcome of Orchestrator.Embed.
// Vectors[i] is nil when text i fell inside a failed batch.
type BatchResult struct {
	Vectors  [][]float32
	Failures []BatchFailure
}

// Failed reports whether text i has no vector.
func (r *BatchResult) Failed(i int) bool {
	return i < 0 || i >= len(r.Vectors) || r.Vectors[i] == nil
}

// FailedCount returns the number of texts without a vector.
func (r *BatchResult) FailedCount() int {
	n := 0
	for _, f := range r.Failures {
		n += f.End - f.Start
	}
	return n
}

// Err returns a partial-indexing error describing the failures, or nil.
func (r *BatchResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	first := r.Failures[0]
	return errors.New(errors.ErrCodeEmbeddingPartial,
		fmt.Sprintf("%d of %d texts were not embedded (%d failed batches)",
			r.FailedCount(), len(r.Vectors), len(r.Failures)), first.Err)
}

// Orchestrator batches texts through an Embedder with bounded parallelism,
// per-batch retries and a circuit breaker, and caches query embeddings.
type Orchestrator struct {
	embedder Embedder
	query    *CachedEmbedder
	breaker  *errors.CircuitBreaker
	opts     Options
}

// NewOrchestrator wraps embedder. The orchestrator owns it from here on.
func NewOrchestrator(embedder Embedder, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = errors.DefaultRetryConfig()
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = 30 * time.Second
	}

	return &Orchestrator{
		embedder: embedder,
		query:    NewCachedEmbedder(embedder, opts.QueryCacheSize),
		breaker: errors.NewCircuitBreaker("embed:"+embedder.ModelName(),
			errors.WithMaxFailures(opts.BreakerFailures),
			errors.WithResetTimeout(opts.BreakerReset)),
		opts: opts,
	}
}

// Embedder returns the wrapped embedder.
func (o *Orchestrator) Embedder() Embedder {
	return o.embedder
}

// ModelName returns the model identifier of the wrapped embedder.
func (o *Orchestrator) ModelName() string {
	return o.embedder.ModelName()
}

// Dimensions returns the width of the wrapped embedder's vectors.
func (o *Orchestrator) Dimensions() int {
	return o.embedder.Dimensions()
}

// WithProgress returns a shallow copy that reports progress to fn.
// The copy shares the embedder, cache and breaker.
func (o *Orchestrator) WithProgress(fn func(done, total int)) *Orchestrator {
	cp := *o
	cp.opts.Progress = fn
	return &cp
}

// Embed embeds texts preserving order. Batches that exhaust their retries on
// transient errors are reported in Failures. A permanent provider error, an
// unreachable provider, an open breaker or a cancelled context aborts the
// call and is returned as the error.
func (o *Orchestrator) Embed(ctx context.Context, texts []string) (*BatchResult, error) {
	result := &BatchResult{Vectors: make([][]float32, len(texts))}
	if len(texts) == 0 {
		return result, nil
	}

	var (
		mu   sync.Mutex
		done int
	)
	total := len(texts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Parallelism)

	for start := 0; start < total; start += o.opts.BatchSize {
		end := min(start+o.opts.BatchSize, total)

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			vecs, err := o.embedBatch(gctx, texts[start:end])
			if err != nil {
				if !errors.IsKind(err, errors.KindProviderTransient) {
					return err
				}
				slog.Warn("embed_batch_failed",
					slog.Int("start", start),
					slog.Int("end", end),
					slog.String("error", err.Error()))
				mu.Lock()
				result.Failures = append(result.Failures, BatchFailure{Start: start, End: end, Err: err})
				mu.Unlock()
				return nil
			}

			mu.Lock()
			copy(result.Vectors[start:end], vecs)
			done += end - start
			n := done
			mu.Unlock()

			if o.opts.Progress != nil {
				o.opts.Progress(n, total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Start < result.Failures[j].Start
	})
	if len(result.Failures) > 0 {
		slog.Warn("embed_partial_failure",
			slog.Int("failed_texts", result.FailedCount()),
			slog.Int("total_texts", total),
			slog.Int("failed_batches", len(result.Failures)))
	}
	return result, nil
}

// embedBatch runs one batch under the breaker and the retry policy.
func (o *Orchestrator) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !o.breaker.Allow() {
		return nil, errors.New(errors.ErrCodeProviderCircuitOpen,
			fmt.Sprintf("circuit %s is open", o.breaker.Name()), nil).
			WithSuggestion("the embedding provider kept failing; retry once it is healthy")
	}

	vecs, err := errors.RetryWithResult(ctx, o.opts.Retry, func(ctx context.Context) ([][]float32, error) {
		return o.embedder.Embed(ctx, texts)
	})
	if err != nil {
		if errors.IsKind(err, errors.KindProviderTransient) {
			o.breaker.RecordFailure()
		}
		return nil, err
	}
	o.breaker.RecordSuccess()

	if len(vecs) != len(texts) {
		return nil, errors.New(errors.ErrCodeProviderBadResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vecs)), nil)
	}
	return vecs, nil
}

// EmbedQuery embeds a single search query through the query cache.
func (o *Orchestrator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := errors.RetryWithResult(ctx, o.opts.Retry, func(ctx context.Context) ([][]float32, error) {
		return o.query.Embed(ctx, []string{text})
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, errors.New(errors.ErrCodeProviderBadResponse, "provider returned no query embedding", nil)
	}
	return vecs[0], nil
}

// Close closes the wrapped embedder.
func (o *Orchestrator) Close() error {
	return o.embedder.Close()
}
