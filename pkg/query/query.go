package query

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Direction is a sort direction.
type Direction string

const (
	// Asc sorts ascending.
	Asc Direction = "asc"

	// Desc sorts descending.
	Desc Direction = "desc"
)

// Request parameter keys produced by Render.
const (
	ParamFilter         = "filter"
	ParamSearch         = "search"
	ParamSemanticSearch = "search.semantic"
	ParamSort           = "sort"
	ParamSelect         = "select"
	ParamSample         = "sample"
	ParamSeed           = "seed"
	ParamGroupBy        = "group_by"
)

// renderOrder fixes the key order of String.
var renderOrder = []string{
	ParamFilter, ParamSearch, ParamSemanticSearch, ParamSort, ParamSelect,
	ParamSample, ParamSeed, ParamGroupBy, ParamPage, ParamPerPage, ParamCursor,
}

type filterEntry struct {
	key    string
	value  any
	nested bool
}

type fieldTerm struct {
	field string
	term  string
}

type sortKey struct {
	field     string
	direction Direction
}

// Query is the accumulated intent of a list request. The zero value is an
// empty query matching all records.
type Query struct {
	filters       []filterEntry
	search        string
	similar       string
	searchFilters []fieldTerm
	sort          []sortKey
	fields        []string
	sample        int
	seed          *int
	groupBy       string
}

// New returns an empty query.
func New() *Query {
	return &Query{}
}

func (q *Query) clone() *Query {
	if q == nil {
		return &Query{}
	}
	c := *q
	c.filters = append([]filterEntry(nil), q.filters...)
	c.searchFilters = append([]fieldTerm(nil), q.searchFilters...)
	c.sort = append([]sortKey(nil), q.sort...)
	c.fields = append([]string(nil), q.fields...)
	if q.seed != nil {
		seed := *q.seed
		c.seed = &seed
	}
	return &c
}

// Filter merges filters into the query. Dotted keys and nested mappings are
// equivalent. Keys of a single call are applied in sorted order.
func (q *Query) Filter(f Filters) *Query {
	c := q.clone()
	for _, key := range sortedKeys(f) {
		c.addFilter(strings.Split(key, "."), f[key])
	}
	return c
}

// FilterOr is Filter with every list value combined by OR.
func (q *Query) FilterOr(f Filters) *Query {
	return q.Filter(mapLeaves(f, func(v any) any {
		if items, ok := asList(v); ok {
			return AnyOf(items)
		}
		return v
	}))
}

// FilterNot is Filter with every value negated.
func (q *Query) FilterNot(f Filters) *Query {
	return q.Filter(mapLeaves(f, func(v any) any { return Not(v) }))
}

// FilterGt is Filter with every value turned into a greater-than constraint.
func (q *Query) FilterGt(f Filters) *Query {
	return q.Filter(mapLeaves(f, func(v any) any { return Gt(v) }))
}

// FilterLt is Filter with every value turned into a less-than constraint.
func (q *Query) FilterLt(f Filters) *Query {
	return q.Filter(mapLeaves(f, func(v any) any { return Lt(v) }))
}

func (q *Query) addFilter(path []string, value any) {
	if m, ok := asMapping(value); ok && len(m) > 0 {
		for _, sub := range sortedKeys(m) {
			q.addFilter(append(append([]string(nil), path...), strings.Split(sub, ".")...), m[sub])
		}
		return
	}

	entry := filterEntry{
		key:    strings.Join(path, "."),
		value:  value,
		nested: len(path) > 1,
	}

	for i, existing := range q.filters {
		if existing.key != entry.key || existing.nested != entry.nested {
			continue
		}
		if !entry.nested {
			q.filters[i] = entry
			return
		}
		if reflect.DeepEqual(existing.value, entry.value) {
			return
		}
	}
	q.filters = append(q.filters, entry)
}

// Search sets the full-text search term.
func (q *Query) Search(term string) *Query {
	c := q.clone()
	c.search = term
	return c
}

// Similar sets the text for semantic similarity search.
func (q *Query) Similar(text string) *Query {
	c := q.clone()
	c.similar = text
	return c
}

// SearchFilter sets per-field search terms, e.g. {"display_name": "einstein"}.
func (q *Query) SearchFilter(terms map[string]string) *Query {
	c := q.clone()
	fields := make([]string, 0, len(terms))
	for f := range terms {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		replaced := false
		for i := range c.searchFilters {
			if c.searchFilters[i].field == field {
				c.searchFilters[i].term = terms[field]
				replaced = true
				break
			}
		}
		if !replaced {
			c.searchFilters = append(c.searchFilters, fieldTerm{field: field, term: terms[field]})
		}
	}
	return c
}

// Sort sorts by field. Sorting by the same field again replaces its direction.
func (q *Query) Sort(field string, direction Direction) *Query {
	c := q.clone()
	for i := range c.sort {
		if c.sort[i].field == field {
			c.sort[i].direction = direction
			return c
		}
	}
	c.sort = append(c.sort, sortKey{field: field, direction: direction})
	return c
}

// Select limits the returned fields.
func (q *Query) Select(fields ...string) *Query {
	c := q.clone()
	c.fields = append([]string(nil), fields...)
	return c
}

// Sample requests n random records. An optional seed makes the sample reproducible.
func (q *Query) Sample(n int, seed ...int) *Query {
	c := q.clone()
	c.sample = n
	c.seed = nil
	if len(seed) > 0 {
		s := seed[0]
		c.seed = &s
	}
	return c
}

// GroupBy aggregates results by field; the response then holds group counts.
func (q *Query) GroupBy(field string) *Query {
	c := q.clone()
	c.groupBy = field
	return c
}

// IsSampled reports whether Sample was set.
func (q *Query) IsSampled() bool { return q != nil && q.sample > 0 }

// IsGrouped reports whether GroupBy was set.
func (q *Query) IsGrouped() bool { return q != nil && q.groupBy != "" }

// Render serializes the query into request parameters. It fails for filter
// values that cannot be expressed in the filter grammar.
func (q *Query) Render() (url.Values, error) {
	params := url.Values{}
	if q == nil {
		return params, nil
	}

	parts := make([]string, 0, len(q.filters)+len(q.searchFilters))
	for _, f := range q.filters {
		v, err := renderValue(f.value)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", f.key, err)
		}
		parts = append(parts, f.key+":"+v)
	}
	for _, sf := range q.searchFilters {
		parts = append(parts, sf.field+".search:"+sf.term)
	}
	if len(parts) > 0 {
		params.Set(ParamFilter, strings.Join(parts, ","))
	}

	if q.search != "" {
		params.Set(ParamSearch, q.search)
	}
	if q.similar != "" {
		params.Set(ParamSemanticSearch, q.similar)
	}

	if len(q.sort) > 0 {
		keys := make([]string, len(q.sort))
		for i, s := range q.sort {
			if s.direction != Asc && s.direction != Desc {
				return nil, fmt.Errorf("sort %q: %w: %q", s.field, ErrInvalidSortDirection, s.direction)
			}
			keys[i] = s.field + ":" + string(s.direction)
		}
		params.Set(ParamSort, strings.Join(keys, ","))
	}

	if len(q.fields) > 0 {
		params.Set(ParamSelect, strings.Join(q.fields, ","))
	}
	if q.sample > 0 {
		params.Set(ParamSample, strconv.Itoa(q.sample))
		if q.seed != nil {
			params.Set(ParamSeed, strconv.Itoa(*q.seed))
		}
	}
	if q.groupBy != "" {
		params.Set(ParamGroupBy, q.groupBy)
	}

	log.Debug().
		Str("component", "query").
		Int("filters", len(q.filters)).
		Msg("Query rendered")

	return params, nil
}

// String renders params in a fixed key order without escaping, for logs and
// error messages.
func String(params url.Values) string {
	parts := make([]string, 0, len(params))
	seen := make(map[string]bool, len(renderOrder))
	for _, key := range renderOrder {
		seen[key] = true
		if v := params.Get(key); v != "" {
			parts = append(parts, key+"="+v)
		}
	}

	var rest []string
	for key := range params {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		parts = append(parts, key+"="+params.Get(key))
	}
	return strings.Join(parts, "&")
}

// String returns the rendered query, or the render error.
func (q *Query) String() string {
	params, err := q.Render()
	if err != nil {
		return "invalid query: " + err.Error()
	}
	return String(params)
}
