package main

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/openalex-client/pkg/openalex"
	"github.com/Sternrassler/openalex-client/pkg/pagination"
	"github.com/Sternrassler/openalex-client/pkg/query"
	"github.com/spf13/cobra"
)

type entityOptions struct {
	filters       []string
	filtersOr     []string
	filtersNot    []string
	searchFilters []string
	sorts         []string
	selects       []string
	search        string
	similar       string
	sample        int
	seed          int
	groupBy       string
	page          int
	perPage       int
	all           bool
	nMax          int
	method        string
	count         bool
	random        bool
	output        string
}

func newEntityCmd(a *app, entity openalex.Entity) *cobra.Command {
	opts := &entityOptions{}
	cmd := &cobra.Command{
		Use:   string(entity) + " [id]",
		Short: "Retrieve OpenAlex " + string(entity),
		Long: "Without an id, lists " + string(entity) + " matching the query flags. " +
			"With an id (OpenAlex ID, URL, DOI, ORCID, ROR or PMID) fetches that record.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newRecordWriter(cmd.OutOrStdout(), opts.output)
			if err != nil {
				return err
			}
			coll := a.api.Collection(entity)

			if len(args) == 1 {
				rec, err := coll.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return w.one(rec)
			}
			if opts.random {
				rec, err := coll.Random(cmd.Context())
				if err != nil {
					return err
				}
				return w.one(rec)
			}

			coll, err = opts.apply(cmd, coll)
			if err != nil {
				return err
			}
			a.logger.Debug().Str("query", coll.String()).Msg("Running query")

			switch {
			case opts.count:
				n, err := coll.Count(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			case opts.all:
				return runPaginated(cmd, w, coll, opts)
			}

			records, err := coll.Get(cmd.Context(), openalex.PageOptions{Page: opts.page, PerPage: opts.perPage})
			if err != nil {
				return err
			}
			return w.many(records)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&opts.filters, "filter", nil, "filter key=value, dotted keys for nested fields (repeatable)")
	f.StringArrayVar(&opts.filtersOr, "filter-or", nil, "filter key=v1,v2 matching any value (repeatable)")
	f.StringArrayVar(&opts.filtersNot, "filter-not", nil, "filter key=value excluding the value (repeatable)")
	f.StringArrayVar(&opts.searchFilters, "search-filter", nil, "field-scoped search field=term (repeatable)")
	f.StringArrayVar(&opts.sorts, "sort", nil, "sort field[=asc|desc] (repeatable)")
	f.StringSliceVar(&opts.selects, "select", nil, "fields to return")
	f.StringVar(&opts.search, "search", "", "full-text search")
	f.StringVar(&opts.similar, "similar", "", "semantic search text")
	f.IntVar(&opts.sample, "sample", 0, "random sample size")
	f.IntVar(&opts.seed, "seed", 0, "sample seed")
	f.StringVar(&opts.groupBy, "group-by", "", "group counts by field")
	f.IntVar(&opts.page, "page", 0, "page number")
	f.IntVar(&opts.perPage, "per-page", 0, "records per page (1-200)")
	f.BoolVar(&opts.all, "all", false, "walk every page")
	f.IntVar(&opts.nMax, "n-max", 0, "record cap with --all (default 10000, -1 for no cap)")
	f.StringVar(&opts.method, "method", "", "paging method with --all: cursor or page (default cursor, page with --page or --sample)")
	f.BoolVar(&opts.count, "count", false, "print the number of matching records")
	f.BoolVar(&opts.random, "random", false, "fetch one random record")
	f.StringVarP(&opts.output, "output-type", "o", formatYAML, "output type: yaml or json")

	cmd.MarkFlagsMutuallyExclusive("count", "all", "random")
	return cmd
}

// apply turns the flags into builder calls on coll.
func (o *entityOptions) apply(cmd *cobra.Command, coll *openalex.Collection) (*openalex.Collection, error) {
	for _, raw := range o.filters {
		f, err := parseFilter(raw)
		if err != nil {
			return nil, err
		}
		coll = coll.Filter(f)
	}
	for _, raw := range o.filtersOr {
		key, value, err := splitPair(raw)
		if err != nil {
			return nil, err
		}
		coll = coll.FilterOr(query.Filters{key: strings.Split(value, ",")})
	}
	for _, raw := range o.filtersNot {
		f, err := parseFilter(raw)
		if err != nil {
			return nil, err
		}
		coll = coll.FilterNot(f)
	}
	if len(o.searchFilters) > 0 {
		terms := make(map[string]string, len(o.searchFilters))
		for _, raw := range o.searchFilters {
			key, value, err := splitPair(raw)
			if err != nil {
				return nil, err
			}
			terms[key] = value
		}
		coll = coll.SearchFilter(terms)
	}
	for _, raw := range o.sorts {
		field, dir, err := parseSort(raw)
		if err != nil {
			return nil, err
		}
		coll = coll.Sort(field, dir)
	}
	if len(o.selects) > 0 {
		coll = coll.Select(o.selects...)
	}
	if o.search != "" {
		coll = coll.Search(o.search)
	}
	if o.similar != "" {
		coll = coll.Similar(o.similar)
	}
	if o.sample > 0 {
		if cmd.Flags().Changed("seed") {
			coll = coll.Sample(o.sample, o.seed)
		} else {
			coll = coll.Sample(o.sample)
		}
	}
	if o.groupBy != "" {
		coll = coll.GroupBy(o.groupBy)
	}
	return coll, nil
}

func runPaginated(cmd *cobra.Command, w *recordWriter, coll *openalex.Collection, opts *entityOptions) error {
	method := pagination.Method(opts.method)
	if method == "" && coll.Query().IsSampled() {
		method = pagination.MethodPage
	}

	p, err := coll.Paginate(openalex.PaginateOptions{
		Method:    method,
		PerPage:   opts.perPage,
		NMax:      opts.nMax,
		StartPage: opts.page,
	})
	if err != nil {
		return err
	}

	if w.format == formatJSON {
		records, err := p.Collect(cmd.Context())
		if err != nil {
			return err
		}
		return w.many(records)
	}
	for rec, err := range p.Items(cmd.Context()) {
		if err != nil {
			return err
		}
		if err := w.stream(rec); err != nil {
			return err
		}
	}
	return nil
}

func newAutocompleteCmd(a *app) *cobra.Command {
	var (
		entity  string
		filters []string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "autocomplete <text>",
		Short: "Typeahead search across entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newRecordWriter(cmd.OutOrStdout(), output)
			if err != nil {
				return err
			}
			if entity == "" {
				if len(filters) > 0 {
					return fmt.Errorf("--filter needs --entity")
				}
				records, err := a.api.Autocomplete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return w.many(records)
			}

			e, err := openalex.ParseEntity(entity)
			if err != nil {
				return err
			}
			coll := a.api.Collection(e)
			for _, raw := range filters {
				f, err := parseFilter(raw)
				if err != nil {
					return err
				}
				coll = coll.Filter(f)
			}
			records, err := coll.Autocomplete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return w.many(records)
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "limit to one entity type")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "filter key=value (needs --entity)")
	cmd.Flags().StringVarP(&output, "output-type", "o", formatYAML, "output type: yaml or json")
	return cmd
}

func newNgramsCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "ngrams <work-id>",
		Short: "List the n-grams of a work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newRecordWriter(cmd.OutOrStdout(), output)
			if err != nil {
				return err
			}
			ngrams, err := a.api.Works().Ngrams(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return w.many(ngrams)
		},
	}
	cmd.Flags().StringVarP(&output, "output-type", "o", formatYAML, "output type: yaml or json")
	return cmd
}
