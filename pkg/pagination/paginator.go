package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/openalex-client/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_pages_fetched_total",
		Help: "Total pages fetched by paging method",
	}, []string{"method"})

	recordsYieldedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_records_yielded_total",
		Help: "Total records handed to consumers by paging method",
	}, []string{"method"})
)

// Method selects the paging strategy.
type Method string

const (
	// MethodCursor follows meta.next_cursor. It has no depth limit.
	MethodCursor Method = "cursor"

	// MethodPage increments the page number. The service caps it at 10,000 results.
	MethodPage Method = "page"
)

const (
	// DefaultPerPage is the page size used when Options.PerPage is zero.
	DefaultPerPage = query.MaxPerPage

	// DefaultNMax is the record cap used when Options.NMax is zero.
	DefaultNMax = 10000

	// Unbounded disables the record cap.
	Unbounded = -1

	// MaxOffsetResults is the deepest offset the service serves.
	MaxOffsetResults = 10000
)

var (
	// ErrConsumed is yielded when a Paginator is iterated a second time.
	ErrConsumed = errors.New("paginator already consumed")

	// ErrSampleWithCursor is returned when cursor paging a sampled query.
	ErrSampleWithCursor = errors.New("cursor paging is not supported for sampled queries, use page paging")

	// ErrCursorWithStartPage is returned when a start page is given for cursor paging.
	ErrCursorWithStartPage = errors.New("cursor paging always starts at the first page, use page paging for a start page")
)

// Meta is the paging part of a response's metadata.
type Meta struct {
	Count   int
	Page    int
	PerPage int
	// NextCursor is nil when the service sent no cursor.
	NextCursor *string
}

// Page is one fetched page.
type Page[T any] struct {
	Items []T
	Meta  Meta
}

// FetchFunc fetches a single page.
type FetchFunc[T any] func(ctx context.Context, paging query.Paging) (Page[T], error)

// Options configures a Paginator.
type Options struct {
	// Method defaults to MethodCursor, or to MethodPage when StartPage is set.
	Method Method

	// PerPage defaults to DefaultPerPage and must be within 1..200.
	PerPage int

	// NMax caps the number of records; 0 means DefaultNMax, Unbounded means no cap.
	NMax int

	// StartPage is the first page of an offset walk (default 1). It cannot be
	// combined with MethodCursor.
	StartPage int

	// Sampled marks a sampled query, which cannot be cursor paged.
	Sampled bool
}

func (o Options) withDefaults() (Options, error) {
	if o.Method == "" {
		o.Method = MethodCursor
		if o.StartPage > 0 {
			o.Method = MethodPage
		}
	}
	if o.Method != MethodCursor && o.Method != MethodPage {
		return o, fmt.Errorf("unknown paging method %q", o.Method)
	}
	if o.Method == MethodCursor && o.StartPage > 0 {
		return o, ErrCursorWithStartPage
	}
	if o.PerPage == 0 {
		o.PerPage = DefaultPerPage
	}
	if err := (query.Paging{PerPage: o.PerPage}).Validate(); err != nil {
		return o, err
	}
	if o.NMax == 0 {
		o.NMax = DefaultNMax
	}
	if o.NMax < 0 {
		o.NMax = Unbounded
	}
	if o.StartPage <= 0 {
		o.StartPage = 1
	}
	if o.Method == MethodCursor && o.Sampled {
		return o, ErrSampleWithCursor
	}
	return o, nil
}

// Paginator is a forward-only walk over a paginated collection. It can be
// iterated once.
type Paginator[T any] struct {
	fetch    FetchFunc[T]
	opts     Options
	consumed atomic.Bool
	logger   zerolog.Logger
}

// New creates a Paginator over fetch.
func New[T any](fetch FetchFunc[T], opts Options) (*Paginator[T], error) {
	if fetch == nil {
		return nil, fmt.Errorf("fetch function is required")
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Paginator[T]{
		fetch:  fetch,
		opts:   opts,
		logger: log.With().Str("component", "paginator").Str("method", string(opts.Method)).Logger(),
	}, nil
}

// Method returns the paging strategy in use.
func (p *Paginator[T]) Method() Method { return p.opts.Method }

// PerPage returns the page size in use.
func (p *Paginator[T]) PerPage() int { return p.opts.PerPage }

// NMax returns the record cap, or Unbounded.
func (p *Paginator[T]) NMax() int { return p.opts.NMax }

// Pages yields one slice per fetched page. A fetch error is yielded once and
// ends the walk. The final page is truncated so that no more than NMax
// records are yielded in total.
func (p *Paginator[T]) Pages(ctx context.Context) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		if !p.consumed.CompareAndSwap(false, true) {
			yield(nil, ErrConsumed)
			return
		}

		paging := query.Paging{PerPage: p.opts.PerPage}
		if p.opts.Method == MethodCursor {
			paging.Cursor = query.StartCursor
		} else {
			paging.Page = p.opts.StartPage
		}

		method := string(p.opts.Method)
		yielded, pages := 0, 0
		start := time.Now()

		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := p.fetch(ctx, paging)
			if err != nil {
				p.logger.Debug().Err(err).Int("yielded", yielded).Msg("Page fetch failed")
				yield(nil, err)
				return
			}
			pagesFetchedTotal.WithLabelValues(method).Inc()
			pages++

			items := page.Items
			if len(items) == 0 {
				p.logComplete("empty page", yielded, pages, start)
				return
			}

			last := false
			if p.opts.NMax != Unbounded && yielded+len(items) >= p.opts.NMax {
				items = items[:p.opts.NMax-yielded]
				last = true
			}
			yielded += len(items)
			recordsYieldedTotal.WithLabelValues(method).Add(float64(len(items)))

			if !yield(items, nil) {
				return
			}
			if last {
				p.logComplete("record cap", yielded, pages, start)
				return
			}

			if !p.advance(&paging, page) {
				p.logComplete("last page", yielded, pages, start)
				return
			}
		}
	}
}

func (p *Paginator[T]) logComplete(reason string, records, pages int, start time.Time) {
	p.logger.Info().
		Str("reason", reason).
		Int("records", records).
		Int("pages", pages).
		Dur("duration", time.Since(start)).
		Msg("Walk complete")
}

// advance moves paging to the next page. It returns false at the end of the
// collection.
func (p *Paginator[T]) advance(paging *query.Paging, page Page[T]) bool {
	switch p.opts.Method {
	case MethodCursor:
		// a missing cursor ends the walk
		if page.Meta.NextCursor == nil || *page.Meta.NextCursor == "" {
			return false
		}
		paging.Cursor = *page.Meta.NextCursor
		return true
	default:
		if len(page.Items) < p.opts.PerPage {
			return false
		}
		if page.Meta.Count > 0 && paging.Page*p.opts.PerPage >= page.Meta.Count {
			return false
		}
		paging.Page++
		return true
	}
}

// Items yields records one by one across pages.
func (p *Paginator[T]) Items(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for page, err := range p.Pages(ctx) {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Collect drains the paginator. On error it returns the records collected so far.
func (p *Paginator[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for page, err := range p.Pages(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, page...)
	}
	return out, nil
}
