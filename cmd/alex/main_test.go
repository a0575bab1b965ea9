package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/openalex-client/internal/testutil"
	"github.com/Sternrassler/openalex-client/pkg/client"
	"github.com/Sternrassler/openalex-client/pkg/query"
	"github.com/google/go-cmp/cmp"
)

// runAlex runs the CLI against mock and returns stdout.
func runAlex(t *testing.T, mock *testutil.MockOpenAlex, args ...string) (string, error) {
	t.Helper()

	t.Setenv("OPENALEX_BASE_URL", mock.URL())
	t.Setenv("OPENALEX_CONTENT_URL", mock.URL())
	t.Setenv("OPENALEX_REQUESTS_PER_SECOND", "0")
	t.Setenv("OPENALEX_RETRY_BACKOFF", "10ms")

	envFile := filepath.Join(t.TempDir(), ".env")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"--env-file", envFile}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func newMock(t *testing.T, works int) *testutil.MockOpenAlex {
	t.Helper()
	mock := testutil.NewMockOpenAlex()
	t.Cleanup(mock.Close)
	mock.SetRecords("works", testutil.MakeWorks(works))
	return mock
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		raw     string
		want    query.Filters
		wantErr bool
	}{
		{raw: "publication_year=2020", want: query.Filters{"publication_year": "2020"}},
		{raw: "institutions.country_code=fr", want: query.Filters{"institutions.country_code": "fr"}},
		{raw: "cited_by_count=>100", want: query.Filters{"cited_by_count": ">100"}},
		{raw: "type=!paratext", want: query.Filters{"type": "!paratext"}},
		{raw: "title.search=a=b", want: query.Filters{"title.search": "a=b"}},
		{raw: "is_oa", wantErr: true},
		{raw: "=true", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseFilter(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFilter(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseFilter(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		raw       string
		wantField string
		wantDir   query.Direction
		wantErr   bool
	}{
		{raw: "cited_by_count", wantField: "cited_by_count", wantDir: query.Asc},
		{raw: "cited_by_count=desc", wantField: "cited_by_count", wantDir: query.Desc},
		{raw: "publication_date:DESC", wantField: "publication_date", wantDir: query.Desc},
		{raw: "display_name=", wantField: "display_name", wantDir: query.Asc},
		{raw: "cited_by_count=up", wantErr: true},
		{raw: "=desc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			field, dir, err := parseSort(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSort(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if field != tt.wantField || dir != tt.wantDir {
				t.Errorf("parseSort(%q) = %q, %q, want %q, %q", tt.raw, field, dir, tt.wantField, tt.wantDir)
			}
		})
	}
}

func TestRun_ListYAML(t *testing.T) {
	mock := newMock(t, 3)

	out, err := runAlex(t, mock, "works",
		"--filter", "publication_year=2020",
		"--sort", "cited_by_count=desc",
		"--select", "id,display_name",
		"--per-page", "2",
		"--email", "me@example.com")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if got := strings.Count(out, "---\n"); got != 2 {
		t.Errorf("YAML documents = %d, want 2\n%s", got, out)
	}
	if !strings.Contains(out, "display_name: Work 1") {
		t.Errorf("output missing first record:\n%s", out)
	}

	q := mock.LastRequest().Query
	want := map[string]string{
		"filter":   "publication_year:2020",
		"sort":     "cited_by_count:desc",
		"select":   "id,display_name",
		"per_page": "2",
		"mailto":   "me@example.com",
	}
	for key, value := range want {
		if got := q.Get(key); got != value {
			t.Errorf("%s = %q, want %q", key, got, value)
		}
	}
}

func TestRun_LookupJSON(t *testing.T) {
	mock := newMock(t, 3)

	out, err := runAlex(t, mock, "works", "https://openalex.org/W2", "-o", "json")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("output is not a JSON object: %v\n%s", err, out)
	}
	if rec["display_name"] != "Work 2" {
		t.Errorf("display_name = %v, want Work 2", rec["display_name"])
	}
	if got := mock.LastRequest().Path; got != "/works/W2" {
		t.Errorf("path = %q, want /works/W2", got)
	}
}

func TestRun_Count(t *testing.T) {
	mock := newMock(t, 7)

	out, err := runAlex(t, mock, "works", "--count", "--filter", "is_oa=true")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if out != "7\n" {
		t.Errorf("output = %q, want 7", out)
	}
}

func TestRun_AllWithNMax(t *testing.T) {
	mock := newMock(t, 25)

	out, err := runAlex(t, mock, "works", "--all", "--per-page", "10", "--n-max", "15", "-o", "json")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(records) != 15 {
		t.Errorf("records = %d, want 15", len(records))
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if got := mock.GetRequests()[0].Query.Get("cursor"); got != query.StartCursor {
		t.Errorf("first cursor = %q, want %q", got, query.StartCursor)
	}
}

func TestRun_SampledWalkUsesPages(t *testing.T) {
	mock := newMock(t, 12)

	out, err := runAlex(t, mock, "works", "--all", "--sample", "12", "--seed", "42", "--per-page", "5")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if got := strings.Count(out, "---\n"); got != 12 {
		t.Errorf("YAML documents = %d, want 12", got)
	}
	for _, req := range mock.GetRequests() {
		if req.Query.Has("cursor") {
			t.Errorf("sampled walk sent cursor %q", req.Query.Get("cursor"))
		}
		if req.Query.Get("sample") != "12" || req.Query.Get("seed") != "42" {
			t.Errorf("request lost sample/seed: %v", req.Query)
		}
	}
}

func TestRun_AllFromStartPage(t *testing.T) {
	mock := newMock(t, 25)

	out, err := runAlex(t, mock, "works", "--all", "--page", "2", "--per-page", "10", "-o", "json")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(records) != 15 {
		t.Errorf("records = %d, want 15", len(records))
	}
	first := mock.GetRequests()[0].Query
	if first.Get("page") != "2" || first.Has("cursor") {
		t.Errorf("first request = %v, want page 2 without cursor", first)
	}
}

func TestRun_QueryError(t *testing.T) {
	mock := newMock(t, 1)
	mock.SetResponse("/works", testutil.NewQueryErrorResponse("publication_year_error is not a valid field"))

	_, err := runAlex(t, mock, "works", "--filter", "publication_year_error=2020")
	if !errors.Is(err, client.ErrQuery) {
		t.Fatalf("run() error = %v, want ErrQuery", err)
	}
	if !strings.Contains(err.Error(), "not a valid field") {
		t.Errorf("error %q lacks the service message", err)
	}
}

func TestRun_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad output type", []string{"works", "-o", "xml"}},
		{"bad filter", []string{"works", "--filter", "is_oa"}},
		{"bad sort", []string{"works", "--sort", "year=up"}},
		{"count with all", []string{"works", "--count", "--all"}},
		{"cursor from start page", []string{"works", "--all", "--page", "2", "--method", "cursor"}},
		{"too many ids", []string{"works", "W1", "W2"}},
		{"bad log level", []string{"works", "--log-level", "chatty"}},
		{"unknown autocomplete entity", []string{"autocomplete", "--entity", "papers", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t, 1)
			if _, err := runAlex(t, mock, tt.args...); err == nil {
				t.Errorf("run(%v) should fail", tt.args)
			}
		})
	}
}

func TestRun_Autocomplete(t *testing.T) {
	mock := newMock(t, 0)
	mock.SetAutocomplete("institutions", []map[string]any{
		{"id": "https://openalex.org/I27837315", "display_name": "University of Michigan"},
	})

	out, err := runAlex(t, mock, "autocomplete", "--entity", "institutions", "--filter", "country_code=us", "mich", "-o", "json")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out, "University of Michigan") {
		t.Errorf("output = %s", out)
	}

	last := mock.LastRequest()
	if last.Path != "/autocomplete/institutions" || last.Query.Get("q") != "mich" || last.Query.Get("filter") != "country_code:us" {
		t.Errorf("request = %s %v", last.Path, last.Query)
	}
}

func TestRun_Ngrams(t *testing.T) {
	mock := newMock(t, 0)

	out, err := runAlex(t, mock, "ngrams", "W2023271753")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out, "ngram: test ngram") {
		t.Errorf("output = %s", out)
	}
}

func TestRun_Download(t *testing.T) {
	mock := newMock(t, 0)
	mock.SetResponse("/works/W1.pdf", testutil.MockResponse{StatusCode: 200, Body: "%PDF-1.4 test"})

	path := filepath.Join(t.TempDir(), "W1.pdf")
	if _, err := runAlex(t, mock, "download", "https://openalex.org/W1", "-O", path); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != "%PDF-1.4 test" {
		t.Errorf("content = %q", data)
	}
}

func TestRun_Version(t *testing.T) {
	mock := newMock(t, 0)

	out, err := runAlex(t, mock, "--version")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out, client.Version) {
		t.Errorf("output = %q, want version %s", out, client.Version)
	}
	if mock.GetRequestCount() != 0 {
		t.Error("--version should not call the API")
	}
}
