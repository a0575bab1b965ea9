package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/openalex-client/pkg/query"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests
	// OpenAlex allows 10 req/s, the client limiter enforces that ceiling
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// Buffer size for channels (default: maximum offset pages)
	BufferSize int
}

// DefaultConfig returns safe default configuration for OpenAlex
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		Timeout:        30 * time.Second,
		BufferSize:     MaxOffsetResults,
	}
}

// pageResult represents the result of fetching a single page
type pageResult[T any] struct {
	PageNumber int
	Items      []T
	Error      error
}

// BatchFetcher fetches all pages of an offset-paged collection in parallel
type BatchFetcher[T any] struct {
	fetch  FetchFunc[T]
	config Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[T any](fetch FetchFunc[T], config Config) *BatchFetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.BufferSize <= 0 {
		config.BufferSize = MaxOffsetResults
	}

	return &BatchFetcher[T]{
		fetch:  fetch,
		config: config,
	}
}

// FetchAll fetches up to nMax records (0 = DefaultNMax, Unbounded = all the
// service allows) using offset paging with perPage records per page.
// Records are returned in page order. On a worker error the records of the
// pages fetched so far are returned together with the error.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context, perPage, nMax int) ([]T, error) {
	start := time.Now()

	opts, err := Options{Method: MethodPage, PerPage: perPage, NMax: nMax}.withDefaults()
	if err != nil {
		return nil, err
	}
	perPage = opts.PerPage

	// Fetch first page to get total count
	first, err := bf.fetch(ctx, query.Paging{Page: 1, PerPage: perPage})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}
	pagesFetchedTotal.WithLabelValues(string(MethodPage)).Inc()

	if first.Meta.Count == 0 && len(first.Items) > 0 {
		return bf.fetchSequential(ctx, first, opts, start)
	}

	limit := first.Meta.Count
	if limit > MaxOffsetResults {
		limit = MaxOffsetResults
	}
	if opts.NMax != Unbounded && limit > opts.NMax {
		limit = opts.NMax
	}
	totalPages := (limit + perPage - 1) / perPage

	log.Info().
		Int("count", first.Meta.Count).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	// Single page optimization
	if totalPages <= 1 || len(first.Items) < perPage {
		items := truncate(first.Items, limit)
		log.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return items, nil
	}

	// Release the queue filler if every worker stops early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Create result map with first page
	results := make(map[int][]T, totalPages)
	results[1] = first.Items
	resultsMutex := sync.Mutex{}

	bufferSize := bf.config.BufferSize
	if bufferSize > totalPages {
		bufferSize = totalPages
	}

	// Create channels
	pageQueue := make(chan int, bufferSize)
	pageResults := make(chan pageResult[T], bufferSize)
	errors := make(chan error, bf.config.MaxConcurrency)

	// Fill page queue (skip page 1, already fetched)
	go func() {
		defer close(pageQueue)
		for page := 2; page <= totalPages; page++ {
			select {
			case pageQueue <- page:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bf.worker(ctx, perPage, pageQueue, pageResults, errors, &wg, i)
	}

	// Close results channel when all workers done
	go func() {
		wg.Wait()
		close(pageResults)
		close(errors)
	}()

	// Collect results
	fetchedPages := 1 // First page already fetched
	for result := range pageResults {
		resultsMutex.Lock()
		results[result.PageNumber] = result.Items
		fetchedPages++
		resultsMutex.Unlock()

		// Progress logging every 10 pages
		if fetchedPages%10 == 0 {
			log.Info().
				Int("fetched", fetchedPages).
				Int("total", totalPages).
				Float64("progress_pct", float64(fetchedPages)/float64(totalPages)*100).
				Msg("Fetch progress")
		}
	}

	items := assemble(results, totalPages, limit)

	// Check for errors
	if err := <-errors; err != nil {
		log.Warn().
			Err(err).
			Int("fetched_pages", fetchedPages).
			Int("total_pages", totalPages).
			Msg("Worker error - returning partial results")
		return items, fmt.Errorf("worker error (partial data: %d/%d pages): %w", fetchedPages, totalPages, err)
	}
	if err := ctx.Err(); err != nil {
		return items, err
	}

	log.Info().
		Int("pages", fetchedPages).
		Int("total", totalPages).
		Int("records", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return items, nil
}

// fetchSequential continues page by page when the first page carries no
// count to plan the parallel fetch with.
func (bf *BatchFetcher[T]) fetchSequential(ctx context.Context, first Page[T], opts Options, start time.Time) ([]T, error) {
	items := truncate(first.Items, opts.NMax)
	if len(first.Items) < opts.PerPage || len(items) == opts.NMax {
		return items, nil
	}

	log.Warn().
		Int("first_page", len(first.Items)).
		Msg("Response carries no count, fetching remaining pages sequentially")

	remaining := Unbounded
	if opts.NMax != Unbounded {
		remaining = opts.NMax - len(items)
	}
	p, err := New(bf.fetch, Options{Method: MethodPage, PerPage: opts.PerPage, NMax: remaining, StartPage: 2})
	if err != nil {
		return items, err
	}
	rest, err := p.Collect(ctx)
	items = append(items, rest...)
	if err != nil {
		return items, err
	}

	log.Info().
		Int("records", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete (sequential)")
	return items, nil
}

// worker processes pages from the queue
func (bf *BatchFetcher[T]) worker(ctx context.Context, perPage int, pageQueue <-chan int, results chan<- pageResult[T], errors chan<- error, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		// Check context cancellation
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		// Fetch page with timeout
		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		page, err := bf.fetch(pageCtx, query.Paging{Page: pageNum, PerPage: perPage})
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")

			// Non-blocking error send
			select {
			case errors <- err:
			default:
			}
			return
		}
		pagesFetchedTotal.WithLabelValues(string(MethodPage)).Inc()

		// Send result
		select {
		case results <- pageResult[T]{
			PageNumber: pageNum,
			Items:      page.Items,
		}:
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled after fetch)")
			return
		}

		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

// assemble concatenates pages in order, stopping at the first missing page.
func assemble[T any](pages map[int][]T, totalPages, limit int) []T {
	var out []T
	for page := 1; page <= totalPages; page++ {
		items, ok := pages[page]
		if !ok {
			break
		}
		out = append(out, items...)
	}
	return truncate(out, limit)
}

func truncate[T any](items []T, limit int) []T {
	if limit >= 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
