package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/media-cache-proxy/pkg/audiocache"
	"github.com/Sternrassler/media-cache-proxy/pkg/broadcast"
)

// Config holds batch prefetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel downloads
	MaxConcurrency int
	// Timeout per prefetch
	Timeout time.Duration
	// Buffer size for channels
	BufferSize int
}

// DefaultConfig returns a conservative configuration for audio downloads
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        10 * time.Minute,
		BufferSize:     64,
	}
}

// Prefetcher runs a single blocking prefetch. *audiocache.Controller
// implements it.
type Prefetcher interface {
	HandlePrefetch(ctx context.Context, msg audiocache.PrefetchRequest) broadcast.Event
}

// Result is the outcome of one prefetch. Event is nil when the prefetch
// was aborted.
type Result struct {
	Request audiocache.PrefetchRequest
	Event   broadcast.Event
}

// Summary tallies the outcomes of a batch.
type Summary struct {
	Cached   int           `json:"cached"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Aborted  int           `json:"aborted"`
	Duration time.Duration `json:"duration"`
}

// Total returns the number of settled prefetches.
func (s Summary) Total() int {
	return s.Cached + s.Skipped + s.Failed + s.Aborted
}

func (s *Summary) add(ev broadcast.Event) {
	switch ev.(type) {
	case broadcast.PrefetchCached:
		s.Cached++
	case broadcast.Skipped:
		s.Skipped++
	case broadcast.PrefetchError:
		s.Failed++
	default:
		s.Aborted++
	}
}

// BatchPrefetcher handles parallel prefetching of many resources
type BatchPrefetcher struct {
	prefetcher Prefetcher
	config     Config
}

// NewBatchPrefetcher creates a new batch prefetcher
func NewBatchPrefetcher(prefetcher Prefetcher, config Config) *BatchPrefetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 64
	}

	return &BatchPrefetcher{
		prefetcher: prefetcher,
		config:     config,
	}
}

// PrefetchAll prefetches every request using the worker pool and blocks
// until all of them settle or ctx is cancelled. Requests not started before
// cancellation are counted as aborted.
func (bp *BatchPrefetcher) PrefetchAll(ctx context.Context, reqs []audiocache.PrefetchRequest) Summary {
	start := time.Now()

	log.Info().
		Int("requests", len(reqs)).
		Int("workers", bp.config.MaxConcurrency).
		Msg("Starting batch prefetch")

	queue := make(chan audiocache.PrefetchRequest, bp.config.BufferSize)
	results := make(chan Result, bp.config.BufferSize)

	go func() {
		defer close(queue)
		for _, req := range reqs {
			select {
			case queue <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < bp.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bp.worker(ctx, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var summary Summary
	for result := range results {
		summary.add(result.Event)
	}
	summary.Aborted += len(reqs) - summary.Total()
	summary.Duration = time.Since(start)

	log.Info().
		Int("cached", summary.Cached).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("aborted", summary.Aborted).
		Dur("duration", summary.Duration).
		Msg("Batch prefetch complete")

	return summary
}

// worker processes requests from the queue
func (bp *BatchPrefetcher) worker(ctx context.Context, queue <-chan audiocache.PrefetchRequest, results chan<- Result, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for req := range queue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		itemCtx, cancel := context.WithTimeout(ctx, bp.config.Timeout)
		ev := bp.prefetcher.HandlePrefetch(itemCtx, req)
		cancel()

		results <- Result{Request: req, Event: ev}
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("processed", processed).
			Msg("Worker completed")
	}
}
