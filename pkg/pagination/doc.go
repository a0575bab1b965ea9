// Package pagination walks paginated OpenAlex list endpoints.
//
// OpenAlex supports two paging strategies: cursor paging (cursor=* then the
// meta.next_cursor of each response) and basic offset paging (page=1,2,...),
// which the service caps at 10,000 results. A Paginator wraps a single-page
// FetchFunc and exposes the walk as a lazy, forward-only iterator:
//
//	p, err := pagination.New(fetch, pagination.Options{PerPage: 200, NMax: 1000})
//	if err != nil {
//		return err
//	}
//	for page, err := range p.Pages(ctx) {
//		if err != nil {
//			return err
//		}
//		process(page)
//	}
//
// Each page is fetched only when the consumer asks for it; breaking out of
// the loop stops the walk. NMax caps the total number of records and
// truncates the final page to the remaining budget.
//
// BatchFetcher is the eager alternative for offset paging: it fetches the
// first page to learn the total count and then fetches the remaining pages
// with a bounded worker pool.
package pagination
