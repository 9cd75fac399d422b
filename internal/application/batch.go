package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
	"github.com/ericfisherdev/rtprovision/internal/monitoring"
)

// DefaultBatchSize is the number of items in flight per wave.
const DefaultBatchSize = 10

// BatchOp performs the work for one domain and reports its outcome.
type BatchOp func(ctx context.Context, domain string) model.BatchItem

// BatchCoordinator applies an operation to many domains in fixed-size waves.
// Each wave runs concurrently and is awaited before the next one starts.
type BatchCoordinator struct {
	size    int
	metrics *monitoring.Metrics
	logger  *slog.Logger
}

// NewBatchCoordinator creates a BatchCoordinator. size <= 0 uses DefaultBatchSize.
func NewBatchCoordinator(size int, metrics *monitoring.Metrics, logger *slog.Logger) *BatchCoordinator {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchCoordinator{size: size, metrics: metrics, logger: logger}
}

// Run applies op to every domain. Item failures never cancel siblings. The
// result lists successes before failures, each group in input order.
func (b *BatchCoordinator) Run(ctx context.Context, domains []string, op BatchOp) model.BatchResult {
	batchID := uuid.NewString()
	items := make([]model.BatchItem, len(domains))

	indices := make([]int, len(domains))
	for i := range indices {
		indices[i] = i
	}

	waves := Chunk(indices, b.size)
	for n, wave := range waves {
		var g errgroup.Group
		for _, i := range wave {
			g.Go(func() error {
				items[i] = b.runOne(ctx, domains[i], op)
				return nil
			})
		}
		_ = g.Wait()
		b.logger.Debug("batch wave complete", "batch_id", batchID, "wave", n+1, "waves", len(waves), "items", len(wave))
	}

	result := model.BatchResult{Results: make([]model.BatchItem, 0, len(items))}
	var failures []model.BatchItem
	for _, item := range items {
		b.metrics.IncBatchItem(item.Success)
		if item.Success {
			result.Results = append(result.Results, item)
			continue
		}
		failures = append(failures, item)
	}
	result.Results = append(result.Results, failures...)
	result.Summary = model.BatchSummary{
		Total:      len(items),
		Successful: len(items) - len(failures),
		Failed:     len(failures),
	}

	b.logger.Info("batch complete",
		"batch_id", batchID,
		"total", result.Summary.Total,
		"successful", result.Summary.Successful,
		"failed", result.Summary.Failed,
	)
	return result
}

// runOne converts a panic in op into a failed item so a wave always completes.
func (b *BatchCoordinator) runOne(ctx context.Context, domain string, op BatchOp) (item model.BatchItem) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("batch item panicked", "domain", domain, "panic", r)
			item = model.BatchItem{
				Domain: domain,
				Error:  &model.APIError{Code: model.CodeAPIError, Message: fmt.Sprintf("internal error: %v", r)},
			}
		}
	}()

	item = op(ctx, domain)
	if item.Domain == "" {
		item.Domain = domain
	}
	return item
}

// Waves reports how many sequential waves Run needs for n domains.
func (b *BatchCoordinator) Waves(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + b.size - 1) / b.size
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
