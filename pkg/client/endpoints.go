package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// PageMeta is the meta object of a list response.
type PageMeta struct {
	Count            int     `json:"count"`
	DBResponseTimeMS int     `json:"db_response_time_ms"`
	Page             int     `json:"page"`
	PerPage          int     `json:"per_page"`
	NextCursor       *string `json:"next_cursor"`
	GroupsCount      *int    `json:"groups_count"`
}

// PageResponse is one page of a list, group-by or autocomplete response.
type PageResponse struct {
	Meta    PageMeta         `json:"meta"`
	Results []map[string]any `json:"results"`
	GroupBy []map[string]any `json:"group_by"`
}

// NgramsResponse is the response of the work n-grams endpoint.
type NgramsResponse struct {
	Meta   map[string]any   `json:"meta"`
	Ngrams []map[string]any `json:"ngrams"`
}

// ContentFormat selects a full-text download.
type ContentFormat string

const (
	ContentPDF       ContentFormat = "pdf"
	ContentGrobidXML ContentFormat = "grobid-xml"
)

// FetchPage fetches one page of an entity list with the rendered params.
func (c *Client) FetchPage(ctx context.Context, entity string, params url.Values) (PageResponse, error) {
	var page PageResponse
	if err := c.getJSON(ctx, "/"+entity, params, &page); err != nil {
		return PageResponse{}, err
	}
	return page, nil
}

// FetchSingle fetches one record by id. The id may be an OpenAlex ID or any
// external id the service resolves (doi:, orcid:, ror:, pmid: or a full URL).
func (c *Client) FetchSingle(ctx context.Context, entity, id string) (map[string]any, error) {
	if id == "" {
		return nil, fmt.Errorf("%s: empty id", entity)
	}
	var record map[string]any
	if err := c.getJSON(ctx, "/"+entity+"/"+id, nil, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// FetchRandom fetches a random record of an entity.
func (c *Client) FetchRandom(ctx context.Context, entity string) (map[string]any, error) {
	return c.FetchSingle(ctx, entity, "random")
}

// Autocomplete queries the autocomplete endpoint. An empty entity searches
// across all entity types.
func (c *Client) Autocomplete(ctx context.Context, entity string, params url.Values) (PageResponse, error) {
	path := "/autocomplete"
	if entity != "" {
		path += "/" + entity
	}
	var page PageResponse
	if err := c.getJSON(ctx, path, params, &page); err != nil {
		return PageResponse{}, err
	}
	return page, nil
}

// Ngrams fetches the n-grams of a work.
func (c *Client) Ngrams(ctx context.Context, workID string) (NgramsResponse, error) {
	var resp NgramsResponse
	if err := c.getJSON(ctx, "/works/"+workID+"/ngrams", nil, &resp); err != nil {
		return NgramsResponse{}, err
	}
	return resp, nil
}

// ContentURL returns the download URL of a work's full text.
func (c *Client) ContentURL(workID string, format ContentFormat) string {
	return fmt.Sprintf("%s/works/%s.%s", c.config.ContentURL, workID, format)
}

// DownloadContent streams a work's full text into w and returns the bytes written.
func (c *Client) DownloadContent(ctx context.Context, workID string, format ContentFormat, w io.Writer) (int64, error) {
	if format != ContentPDF && format != ContentGrobidXML {
		return 0, fmt.Errorf("unknown content format %q", format)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ContentURL(strings.TrimSpace(workID), format), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", format, err)
	}
	return n, nil
}
