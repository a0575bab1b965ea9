package openalex

import (
	"context"
	"fmt"

	"github.com/Sternrassler/openalex-client/pkg/pagination"
	"github.com/Sternrassler/openalex-client/pkg/query"
)

// MaxLookupBatch is the number of ids LookupMany puts into one request.
const MaxLookupBatch = 100

// Collection is a query bound to an entity type. It is immutable.
type Collection struct {
	api    *OpenAlex
	entity Entity
	query  *query.Query
}

// PageOptions overrides the paging of a single-page request. Zero fields
// leave the service defaults in place.
type PageOptions struct {
	Page    int
	PerPage int
	Cursor  string
}

// PaginateOptions configures Paginate. Zero values pick the paginator defaults.
type PaginateOptions struct {
	Method    pagination.Method
	PerPage   int
	NMax      int
	StartPage int
}

func (c *Collection) with(q *query.Query) *Collection {
	return &Collection{api: c.api, entity: c.entity, query: q}
}

// Entity returns the entity type of the collection.
func (c *Collection) Entity() Entity { return c.entity }

// Query returns the accumulated query.
func (c *Collection) Query() *query.Query { return c.query }

// WithQuery returns a collection of the same entity running q.
func (c *Collection) WithQuery(q *query.Query) *Collection { return c.with(q) }

// Filter adds AND filters. See query.Query.Filter.
func (c *Collection) Filter(f query.Filters) *Collection { return c.with(c.query.Filter(f)) }

// FilterOr adds filters whose list values match any element.
func (c *Collection) FilterOr(f query.Filters) *Collection { return c.with(c.query.FilterOr(f)) }

// FilterNot adds negated filters.
func (c *Collection) FilterNot(f query.Filters) *Collection { return c.with(c.query.FilterNot(f)) }

// FilterGt adds greater-than filters.
func (c *Collection) FilterGt(f query.Filters) *Collection { return c.with(c.query.FilterGt(f)) }

// FilterLt adds less-than filters.
func (c *Collection) FilterLt(f query.Filters) *Collection { return c.with(c.query.FilterLt(f)) }

// Search sets the full-text search term.
func (c *Collection) Search(term string) *Collection { return c.with(c.query.Search(term)) }

// Similar sets the semantic search text.
func (c *Collection) Similar(text string) *Collection { return c.with(c.query.Similar(text)) }

// Select limits the returned fields.
func (c *Collection) Select(fields ...string) *Collection { return c.with(c.query.Select(fields...)) }

// GroupBy requests group counts for field instead of records.
func (c *Collection) GroupBy(field string) *Collection { return c.with(c.query.GroupBy(field)) }

// SearchFilter adds field-scoped searches such as title.search.
func (c *Collection) SearchFilter(terms map[string]string) *Collection {
	return c.with(c.query.SearchFilter(terms))
}

// Sort adds a sort key.
func (c *Collection) Sort(field string, direction query.Direction) *Collection {
	return c.with(c.query.Sort(field, direction))
}

// Sample requests a random sample of n records, seeded when seed is given.
func (c *Collection) Sample(n int, seed ...int) *Collection {
	return c.with(c.query.Sample(n, seed...))
}

// String renders the query for diagnostics.
func (c *Collection) String() string {
	if s := c.query.String(); s != "" {
		return string(c.entity) + "?" + s
	}
	return string(c.entity)
}

// Get fetches one page of records.
func (c *Collection) Get(ctx context.Context, opts PageOptions) ([]Record, error) {
	records, _, err := c.GetWithMeta(ctx, opts)
	return records, err
}

// GetWithMeta fetches one page of records together with the response meta.
// Group-by queries return one record per group (key, key_display_name, count).
func (c *Collection) GetWithMeta(ctx context.Context, opts PageOptions) ([]Record, Meta, error) {
	if opts.Cursor != "" && c.query.IsSampled() {
		return nil, Meta{}, pagination.ErrSampleWithCursor
	}
	operationsTotal.WithLabelValues(string(c.entity), "get").Inc()

	page, err := c.fetchPage(ctx, query.Paging{Page: opts.Page, PerPage: opts.PerPage, Cursor: opts.Cursor})
	if err != nil {
		return nil, Meta{}, err
	}
	recordsReturnedTotal.WithLabelValues(string(c.entity)).Add(float64(len(page.Items)))
	return page.Items, page.meta, nil
}

// fetchedPage is a pagination.Page that keeps the full response meta.
type fetchedPage struct {
	pagination.Page[Record]
	meta Meta
}

func (c *Collection) fetchPage(ctx context.Context, paging query.Paging) (fetchedPage, error) {
	params, err := c.query.Render()
	if err != nil {
		return fetchedPage{}, err
	}
	params, err = paging.Apply(params)
	if err != nil {
		return fetchedPage{}, err
	}

	c.api.logger.Debug().
		Str("entity", string(c.entity)).
		Str("params", query.String(params)).
		Msg("Fetching page")

	resp, err := c.api.fetcher.FetchPage(ctx, string(c.entity), params)
	if err != nil {
		return fetchedPage{}, err
	}

	items := resp.Results
	if c.query.IsGrouped() {
		items = resp.GroupBy
	}
	return fetchedPage{
		Page: pagination.Page[Record]{
			Items: toRecords(items),
			Meta: pagination.Meta{
				Count:      resp.Meta.Count,
				Page:       resp.Meta.Page,
				PerPage:    resp.Meta.PerPage,
				NextCursor: resp.Meta.NextCursor,
			},
		},
		meta: resp.Meta,
	}, nil
}

// fetchFunc adapts the collection to the paginator contract.
func (c *Collection) fetchFunc() pagination.FetchFunc[Record] {
	return func(ctx context.Context, paging query.Paging) (pagination.Page[Record], error) {
		page, err := c.fetchPage(ctx, paging)
		if err != nil {
			return pagination.Page[Record]{}, err
		}
		return page.Page, nil
	}
}

// Random fetches one random record of the entity. The query is ignored.
func (c *Collection) Random(ctx context.Context) (Record, error) {
	operationsTotal.WithLabelValues(string(c.entity), "random").Inc()
	rec, err := c.api.fetcher.FetchRandom(ctx, string(c.entity))
	if err != nil {
		return nil, err
	}
	return Record(rec), nil
}

// Lookup fetches one record by OpenAlex ID, OpenAlex URL or external id
// (DOI, ORCID, ROR, PMID). See NormalizeID.
func (c *Collection) Lookup(ctx context.Context, id string) (Record, error) {
	normalized := NormalizeID(id)
	if normalized == "" {
		return nil, fmt.Errorf("lookup %s: empty id", c.entity)
	}
	operationsTotal.WithLabelValues(string(c.entity), "lookup").Inc()

	rec, err := c.api.fetcher.FetchSingle(ctx, string(c.entity), normalized)
	if err != nil {
		return nil, err
	}
	return Record(rec), nil
}

// LookupMany fetches records by OpenAlex ID in batches of MaxLookupBatch.
// Records come back in the order the service returns them; unknown ids are
// absent from the result.
func (c *Collection) LookupMany(ctx context.Context, ids []string) ([]Record, error) {
	short := make([]string, 0, len(ids))
	for _, id := range ids {
		if s := ShortID(id); s != "" {
			short = append(short, s)
		}
	}
	operationsTotal.WithLabelValues(string(c.entity), "lookup_many").Inc()

	var out []Record
	for start := 0; start < len(short); start += MaxLookupBatch {
		batch := short[start:min(start+MaxLookupBatch, len(short))]
		scoped := c.with(c.query.FilterOr(query.Filters{"openalex_id": batch}))

		page, err := scoped.fetchPage(ctx, query.Paging{PerPage: len(batch)})
		if err != nil {
			return out, fmt.Errorf("lookup batch at %d: %w", start, err)
		}
		out = append(out, page.Items...)
	}
	return out, nil
}

// Count returns the number of records matching the query.
func (c *Collection) Count(ctx context.Context) (int, error) {
	operationsTotal.WithLabelValues(string(c.entity), "count").Inc()
	page, err := c.fetchPage(ctx, query.Paging{PerPage: 1})
	if err != nil {
		return 0, err
	}
	return page.meta.Count, nil
}

// Autocomplete returns typeahead matches for q within the entity, narrowed
// by the collection's filters.
func (c *Collection) Autocomplete(ctx context.Context, q string) ([]Record, error) {
	params, err := c.query.Render()
	if err != nil {
		return nil, err
	}
	return c.api.autocomplete(ctx, c.entity, params, q)
}

// Ngrams returns the n-grams of a work. Only works have n-grams.
func (c *Collection) Ngrams(ctx context.Context, workID string) ([]Record, error) {
	if c.entity != Works {
		return nil, fmt.Errorf("ngrams on %s: %w", c.entity, ErrNotSupported)
	}
	nf, ok := c.api.fetcher.(NgramFetcher)
	if !ok {
		return nil, fmt.Errorf("ngrams: %w", ErrNotSupported)
	}
	id := ShortID(workID)
	if id == "" {
		return nil, fmt.Errorf("ngrams: empty work id")
	}
	operationsTotal.WithLabelValues(string(c.entity), "ngrams").Inc()

	resp, err := nf.Ngrams(ctx, id)
	if err != nil {
		return nil, err
	}
	return toRecords(resp.Ngrams), nil
}

// Paginate returns a lazy walk over the whole result set. The query is
// rendered up front so malformed filters fail here and not mid-walk.
func (c *Collection) Paginate(opts PaginateOptions) (*pagination.Paginator[Record], error) {
	if _, err := c.query.Render(); err != nil {
		return nil, err
	}
	operationsTotal.WithLabelValues(string(c.entity), "paginate").Inc()

	return pagination.New(c.fetchFunc(), pagination.Options{
		Method:    opts.Method,
		PerPage:   opts.PerPage,
		NMax:      opts.NMax,
		StartPage: opts.StartPage,
		Sampled:   c.query.IsSampled(),
	})
}

// FetchAll fetches up to nMax records with parallel offset paging.
func (c *Collection) FetchAll(ctx context.Context, perPage, nMax int, config pagination.Config) ([]Record, error) {
	if _, err := c.query.Render(); err != nil {
		return nil, err
	}
	operationsTotal.WithLabelValues(string(c.entity), "fetch_all").Inc()
	return pagination.NewBatchFetcher(c.fetchFunc(), config).FetchAll(ctx, perPage, nMax)
}
