// Package openalex binds queries to OpenAlex entity types and runs them.
//
// A Collection carries an immutable query.Query. Builder methods return new
// collections, terminal methods (Get, GetWithMeta, Random, Lookup, LookupMany,
// Count, Autocomplete, Ngrams, Paginate) render the query and hand it to a
// Fetcher, normally a *client.Client.
//
//	api := openalex.New(c)
//	works, meta, err := api.Works().
//		Filter(query.Filters{"publication_year": 2020}).
//		Sort("cited_by_count", query.Desc).
//		GetWithMeta(ctx, openalex.PageOptions{PerPage: 50})
package openalex

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/Sternrassler/openalex-client/pkg/client"
	"github.com/Sternrassler/openalex-client/pkg/logging"
	"github.com/Sternrassler/openalex-client/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for terminal operations.
var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_operations_total",
		Help: "Terminal operations by entity and operation",
	}, []string{"entity", "operation"})

	recordsReturnedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_records_returned_total",
		Help: "Records returned by single-page terminal operations",
	}, []string{"entity"})
)

// ErrNotSupported is returned when the Fetcher lacks an optional endpoint.
var ErrNotSupported = errors.New("operation not supported by fetcher")

// Entity is an OpenAlex record type.
type Entity string

// Entity types, named after their API collection paths.
const (
	Works        Entity = "works"
	Authors      Entity = "authors"
	Sources      Entity = "sources"
	Institutions Entity = "institutions"
	Concepts     Entity = "concepts"
	Publishers   Entity = "publishers"
	Funders      Entity = "funders"
	Topics       Entity = "topics"
	Keywords     Entity = "keywords"
	Domains      Entity = "domains"
	Fields       Entity = "fields"
	Subfields    Entity = "subfields"
)

// Entities lists every entity type in API order.
var Entities = []Entity{
	Works, Authors, Sources, Institutions, Concepts, Publishers, Funders,
	Topics, Keywords, Domains, Fields, Subfields,
}

// ParseEntity returns the entity named s.
func ParseEntity(s string) (Entity, error) {
	for _, e := range Entities {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown entity %q", s)
}

// Fetcher performs the requests behind terminal operations.
type Fetcher interface {
	FetchPage(ctx context.Context, entity string, params url.Values) (client.PageResponse, error)
	FetchSingle(ctx context.Context, entity, id string) (map[string]any, error)
	FetchRandom(ctx context.Context, entity string) (map[string]any, error)
}

// Autocompleter is implemented by fetchers that serve the autocomplete endpoint.
type Autocompleter interface {
	Autocomplete(ctx context.Context, entity string, params url.Values) (client.PageResponse, error)
}

// NgramFetcher is implemented by fetchers that serve work n-grams.
type NgramFetcher interface {
	Ngrams(ctx context.Context, workID string) (client.NgramsResponse, error)
}

// OpenAlex is the entry point for building entity collections.
type OpenAlex struct {
	fetcher Fetcher
	logger  zerolog.Logger
}

// New returns an OpenAlex bound to fetcher.
func New(fetcher Fetcher) *OpenAlex {
	return &OpenAlex{
		fetcher: fetcher,
		logger:  logging.NewLogger("openalex"),
	}
}

// Collection returns an unfiltered collection of entity.
func (o *OpenAlex) Collection(entity Entity) *Collection {
	return &Collection{api: o, entity: entity, query: query.New()}
}

// Works returns the works collection.
func (o *OpenAlex) Works() *Collection { return o.Collection(Works) }

// Authors returns the authors collection.
func (o *OpenAlex) Authors() *Collection { return o.Collection(Authors) }

// Sources returns the sources collection.
func (o *OpenAlex) Sources() *Collection { return o.Collection(Sources) }

// Institutions returns the institutions collection.
func (o *OpenAlex) Institutions() *Collection { return o.Collection(Institutions) }

// Concepts returns the concepts collection.
func (o *OpenAlex) Concepts() *Collection { return o.Collection(Concepts) }

// Publishers returns the publishers collection.
func (o *OpenAlex) Publishers() *Collection { return o.Collection(Publishers) }

// Funders returns the funders collection.
func (o *OpenAlex) Funders() *Collection { return o.Collection(Funders) }

// Topics returns the topics collection.
func (o *OpenAlex) Topics() *Collection { return o.Collection(Topics) }

// Keywords returns the keywords collection.
func (o *OpenAlex) Keywords() *Collection { return o.Collection(Keywords) }

// Domains returns the domains collection.
func (o *OpenAlex) Domains() *Collection { return o.Collection(Domains) }

// Fields returns the fields collection.
func (o *OpenAlex) Fields() *Collection { return o.Collection(Fields) }

// Subfields returns the subfields collection.
func (o *OpenAlex) Subfields() *Collection { return o.Collection(Subfields) }

// Autocomplete searches across all entity types.
func (o *OpenAlex) Autocomplete(ctx context.Context, q string) ([]Record, error) {
	return o.autocomplete(ctx, "", url.Values{}, q)
}

func (o *OpenAlex) autocomplete(ctx context.Context, entity Entity, params url.Values, q string) ([]Record, error) {
	ac, ok := o.fetcher.(Autocompleter)
	if !ok {
		return nil, fmt.Errorf("autocomplete: %w", ErrNotSupported)
	}
	params.Set("q", q)

	label := string(entity)
	if label == "" {
		label = "all"
	}
	operationsTotal.WithLabelValues(label, "autocomplete").Inc()

	resp, err := ac.Autocomplete(ctx, string(entity), params)
	if err != nil {
		return nil, err
	}
	return toRecords(resp.Results), nil
}
