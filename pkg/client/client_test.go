package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Sternrassler/openalex-client/internal/testutil"
	"github.com/Sternrassler/openalex-client/pkg/ratelimit"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

// newTestClient creates a client against the mock with fast retries and no rate ceiling.
func newTestClient(t *testing.T, mock *testutil.MockOpenAlex, mutate ...func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig("test@example.com")
	cfg.BaseURL = mock.URL()
	cfg.ContentURL = mock.URL()
	cfg.RequestsPerSecond = 0
	cfg.InitialBackoff = 10 * time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	valid := DefaultConfig("test@example.com")

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "no email", mutate: func(c *Config) { c.Email = "" }},
		{name: "missing base url", mutate: func(c *Config) { c.BaseURL = "" }, expectError: true},
		{name: "malformed base url", mutate: func(c *Config) { c.BaseURL = "not a url" }, expectError: true},
		{name: "malformed email", mutate: func(c *Config) { c.Email = "nobody" }, expectError: true},
		{name: "empty user agent", mutate: func(c *Config) { c.UserAgent = "" }, expectError: true},
		{name: "negative retries", mutate: func(c *Config) { c.MaxRetries = -1 }, expectError: true},
		{name: "too many retries", mutate: func(c *Config) { c.MaxRetries = 50 }, expectError: true},
		{name: "negative rate", mutate: func(c *Config) { c.RequestsPerSecond = -1 }, expectError: true},
		{name: "success status in retry list", mutate: func(c *Config) { c.RetryHTTPCodes = []int{200} }, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			client, err := New(cfg)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				var verrs validator.ValidationErrors
				if !errors.As(err, &verrs) {
					t.Errorf("error = %v, want validator.ValidationErrors", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("test@example.com")

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.Email != "test@example.com" {
		t.Errorf("Email = %q", cfg.Email)
	}
	if cfg.RequestsPerSecond != 10 {
		t.Errorf("RequestsPerSecond = %v, want 10", cfg.RequestsPerSecond)
	}
	want := []int{429, 500, 503}
	if len(cfg.RetryHTTPCodes) != len(want) {
		t.Fatalf("RetryHTTPCodes = %v, want %v", cfg.RetryHTTPCodes, want)
	}
	for i := range want {
		if cfg.RetryHTTPCodes[i] != want[i] {
			t.Errorf("RetryHTTPCodes = %v, want %v", cfg.RetryHTTPCodes, want)
		}
	}
	if cfg.Redis != nil {
		t.Error("Redis should be optional and nil by default")
	}
}

func TestClassifyError(t *testing.T) {
	client := &Client{logger: zerolog.Nop()}

	tests := []struct {
		name       string
		statusCode int
		err        error
		expected   ErrorClass
	}{
		{name: "network error", err: io.EOF, expected: ErrorClassNetwork},
		{name: "bad request 400", statusCode: 400, expected: ErrorClassClient},
		{name: "forbidden 403", statusCode: 403, expected: ErrorClassClient},
		{name: "not found 404", statusCode: 404, expected: ErrorClassNotFound},
		{name: "rate limit 429", statusCode: 429, expected: ErrorClassRateLimit},
		{name: "server error 500", statusCode: 500, expected: ErrorClassServer},
		{name: "unavailable 503", statusCode: 503, expected: ErrorClassServer},
		{name: "success 200", statusCode: 200, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode > 0 {
				resp = &http.Response{StatusCode: tt.statusCode}
			}

			result := client.classifyError(resp, tt.err)
			if result != tt.expected {
				t.Errorf("classifyError() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestDo_HeadersAndCredentials(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetRecords("works", testutil.MakeWorks(3))

	client := newTestClient(t, mock, func(c *Config) {
		c.APIKey = "secret"
		c.UserAgent = "TestApp/1.0.0"
	})

	if _, err := client.FetchPage(context.Background(), "works", url.Values{"filter": {"publication_year:2020"}}); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	req := mock.LastRequest()
	if ua := req.Header.Get("User-Agent"); ua != "TestApp/1.0.0" {
		t.Errorf("User-Agent = %q, want %q", ua, "TestApp/1.0.0")
	}
	if got := req.Query.Get("mailto"); got != "test@example.com" {
		t.Errorf("mailto = %q, want test@example.com", got)
	}
	if got := req.Query.Get("api_key"); got != "secret" {
		t.Errorf("api_key = %q, want secret", got)
	}
	if got := req.Query.Get("filter"); got != "publication_year:2020" {
		t.Errorf("filter = %q, want publication_year:2020", got)
	}
}

func TestDo_NoCredentials(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()

	client := newTestClient(t, mock, func(c *Config) { c.Email = "" })
	if _, err := client.FetchPage(context.Background(), "works", nil); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	q := mock.LastRequest().Query
	if q.Has("mailto") || q.Has("api_key") {
		t.Errorf("query = %v, want no credentials", q)
	}
}

func TestFetchPage(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetRecords("works", testutil.MakeWorks(30))

	client := newTestClient(t, mock)
	page, err := client.FetchPage(context.Background(), "works", url.Values{"page": {"2"}, "per_page": {"10"}})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if len(page.Results) != 10 {
		t.Errorf("len(Results) = %d, want 10", len(page.Results))
	}
	if page.Results[0]["id"] != "https://openalex.org/W11" {
		t.Errorf("first id = %v, want W11", page.Results[0]["id"])
	}
	if page.Meta.Count != 30 || page.Meta.Page != 2 || page.Meta.PerPage != 10 {
		t.Errorf("Meta = %+v", page.Meta)
	}
	if page.Meta.NextCursor != nil {
		t.Errorf("NextCursor = %v, want nil for offset paging", *page.Meta.NextCursor)
	}
}

func TestFetchPage_Cursor(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetRecords("authors", testutil.MakeWorks(15))

	client := newTestClient(t, mock)
	page, err := client.FetchPage(context.Background(), "authors", url.Values{"cursor": {"*"}, "per_page": {"10"}})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.Meta.NextCursor == nil || *page.Meta.NextCursor != "10" {
		t.Fatalf("NextCursor = %v, want 10", page.Meta.NextCursor)
	}

	page, err = client.FetchPage(context.Background(), "authors", url.Values{"cursor": {"10"}, "per_page": {"10"}})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Results) != 5 || page.Meta.NextCursor != nil {
		t.Errorf("last page = %d results, cursor %v; want 5 and nil", len(page.Results), page.Meta.NextCursor)
	}
}

func TestFetchPage_GroupBy(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetGroups("works", []map[string]any{
		{"key": "2020", "key_display_name": "2020", "count": 12},
		{"key": "2021", "key_display_name": "2021", "count": 7},
	})

	client := newTestClient(t, mock)
	page, err := client.FetchPage(context.Background(), "works", url.Values{"group_by": {"publication_year"}})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.GroupBy) != 2 {
		t.Errorf("len(GroupBy) = %d, want 2", len(page.GroupBy))
	}
	if page.Meta.GroupsCount == nil || *page.Meta.GroupsCount != 2 {
		t.Errorf("GroupsCount = %v, want 2", page.Meta.GroupsCount)
	}
}

func TestFetchSingle(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetRecords("works", testutil.MakeWorks(3))

	client := newTestClient(t, mock)
	record, err := client.FetchSingle(context.Background(), "works", "W2")
	if err != nil {
		t.Fatalf("FetchSingle() error = %v", err)
	}
	if record["display_name"] != "Work 2" {
		t.Errorf("display_name = %v, want Work 2", record["display_name"])
	}

	if _, err := client.FetchSingle(context.Background(), "works", ""); err == nil {
		t.Error("FetchSingle() with empty id should fail")
	}
}

func TestFetchSingle_NotFound(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()

	client := newTestClient(t, mock)
	_, err := client.FetchSingle(context.Background(), "works", "W0")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *APIError", err)
	}
	if apiErr.StatusCode != 404 || apiErr.ErrorClass != ErrorClassNotFound {
		t.Errorf("APIError = %+v", apiErr)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1 (404 is not retried)", mock.GetRequestCount())
	}
}

func TestFetchSingle_ExternalIDPath(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetResponse("/works/doi:10.1207/s15327809jls0703&4_2", testutil.NewHealthyResponse(`{"id": "https://openalex.org/W42"}`))

	client := newTestClient(t, mock)
	record, err := client.FetchSingle(context.Background(), "works", "doi:10.1207/s15327809jls0703&4_2")
	if err != nil {
		t.Fatalf("FetchSingle() error = %v", err)
	}
	if record["id"] != "https://openalex.org/W42" {
		t.Errorf("id = %v", record["id"])
	}
}

func TestFetchRandom(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetRecords("institutions", testutil.MakeWorks(2))

	client := newTestClient(t, mock)
	record, err := client.FetchRandom(context.Background(), "institutions")
	if err != nil {
		t.Fatalf("FetchRandom() error = %v", err)
	}
	if record["id"] == nil {
		t.Error("random record has no id")
	}
	if path := mock.LastRequest().Path; path != "/institutions/random" {
		t.Errorf("path = %q, want /institutions/random", path)
	}
}

func TestDo_QueryError(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetResponse("/works", testutil.NewQueryErrorResponse("publication_year_error is not a valid field."))

	client := newTestClient(t, mock)
	_, err := client.FetchPage(context.Background(), "works", url.Values{"filter": {"publication_year_error:2020"}})

	if !errors.Is(err, ErrQuery) {
		t.Fatalf("error = %v, want ErrQuery", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "Invalid query parameters error. publication_year_error is not a valid field." {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.GetRequestCount())
	}
}

func TestDo_RetryStatusCodes(t *testing.T) {
	tests := []struct {
		name         string
		first        testutil.MockResponse
		wantErr      bool
		wantRequests int
	}{
		{name: "429 is retried", first: testutil.NewRateLimitResponse(""), wantRequests: 2},
		{name: "500 is retried", first: testutil.NewServerErrorResponse(500), wantRequests: 2},
		{name: "503 is retried", first: testutil.NewServerErrorResponse(503), wantRequests: 2},
		{name: "502 is not retried", first: testutil.NewServerErrorResponse(502), wantErr: true, wantRequests: 1},
		{name: "504 is not retried", first: testutil.NewServerErrorResponse(504), wantErr: true, wantRequests: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockOpenAlex()
			defer mock.Close()
			mock.SetSequence("/works", tt.first, testutil.NewHealthyResponse(`{"meta": {"count": 0}, "results": []}`))

			client := newTestClient(t, mock)
			_, err := client.FetchPage(context.Background(), "works", nil)

			if tt.wantErr && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if mock.GetRequestCount() != tt.wantRequests {
				t.Errorf("requests = %d, want %d", mock.GetRequestCount(), tt.wantRequests)
			}
		})
	}
}

func TestDo_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetResponse("/works", testutil.NewServerErrorResponse(500))

	client := newTestClient(t, mock, func(c *Config) { c.MaxRetries = 2 })
	_, err := client.FetchPage(context.Background(), "works", nil)

	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Errorf("last error = %v, want the 500 APIError", apiErr)
	}
	if mock.GetRequestCount() != 3 {
		t.Errorf("requests = %d, want 3", mock.GetRequestCount())
	}
}

func TestDo_RetryAfterBlocksFollowingRequests(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetResponse("/works", testutil.NewRateLimitResponse("30"))

	client := newTestClient(t, mock, func(c *Config) { c.MaxRetries = 0 })
	if _, err := client.FetchPage(context.Background(), "works", nil); err == nil {
		t.Fatal("Expected 429 error")
	}

	// the Retry-After window now blocks requests before they are sent
	_, err := client.FetchPage(context.Background(), "works", nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.GetRequestCount())
	}
}

func TestDo_RateLimitBlock(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()

	client := newTestClient(t, mock)
	headers := http.Header{}
	headers.Set(ratelimit.HeaderRemaining, "0")
	headers.Set(ratelimit.HeaderReset, "60")
	if err := client.RateLimiter().UpdateFromHeaders(context.Background(), headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	_, err := client.FetchPage(context.Background(), "works", nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("requests = %d, want 0", mock.GetRequestCount())
	}
}

func TestDo_RateLimitBlock_SharedRedis(t *testing.T) {
	redisClient := setupTestRedis(t)

	ctx := context.Background()
	now := time.Now()
	redisClient.Set(ctx, ratelimit.RedisKeyRemaining, 0, 0)
	redisClient.Set(ctx, ratelimit.RedisKeyResetTimestamp, now.Add(60*time.Second).Unix(), 0)
	lastUpdateJSON, _ := json.Marshal(now)
	redisClient.Set(ctx, ratelimit.RedisKeyLastUpdate, lastUpdateJSON, 0)

	mock := testutil.NewMockOpenAlex()
	defer mock.Close()

	client := newTestClient(t, mock, func(c *Config) { c.Redis = redisClient })
	_, err := client.FetchPage(ctx, "works", nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
}

func TestDo_CircuitBreakerOpens(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetResponse("/works", testutil.NewServerErrorResponse(500))

	client := newTestClient(t, mock, func(c *Config) { c.MaxRetries = 0 })
	for i := 0; i < 5; i++ {
		if _, err := client.FetchPage(context.Background(), "works", nil); err == nil {
			t.Fatalf("request %d: expected error", i)
		}
	}

	_, err := client.FetchPage(context.Background(), "works", nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want gobreaker.ErrOpenState", err)
	}
	if mock.GetRequestCount() != 5 {
		t.Errorf("requests = %d, want 5", mock.GetRequestCount())
	}
}

func TestDo_NotFoundDoesNotTripBreaker(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()

	client := newTestClient(t, mock)
	for i := 0; i < 8; i++ {
		if _, err := client.FetchSingle(context.Background(), "works", "W0"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("request %d: error = %v, want ErrNotFound", i, err)
		}
	}
	if mock.GetRequestCount() != 8 {
		t.Errorf("requests = %d, want 8", mock.GetRequestCount())
	}
}

func TestAutocomplete(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetAutocomplete("", []map[string]any{{"id": "https://openalex.org/I1", "display_name": "Stockholm University"}})
	mock.SetAutocomplete("works", []map[string]any{{"id": "https://openalex.org/W1"}, {"id": "https://openalex.org/W2"}})

	client := newTestClient(t, mock)

	all, err := client.Autocomplete(context.Background(), "", url.Values{"q": {"stockholm"}})
	if err != nil {
		t.Fatalf("Autocomplete() error = %v", err)
	}
	if len(all.Results) != 1 || mock.LastRequest().Path != "/autocomplete" {
		t.Errorf("results = %d, path = %q", len(all.Results), mock.LastRequest().Path)
	}

	works, err := client.Autocomplete(context.Background(), "works", url.Values{"q": {"planetary"}, "filter": {"publication_year:2023"}})
	if err != nil {
		t.Fatalf("Autocomplete() error = %v", err)
	}
	if len(works.Results) != 2 {
		t.Errorf("results = %d, want 2", len(works.Results))
	}
	last := mock.LastRequest()
	if last.Path != "/autocomplete/works" || last.Query.Get("q") != "planetary" || last.Query.Get("filter") != "publication_year:2023" {
		t.Errorf("request = %s?%v", last.Path, last.Query)
	}
}

func TestNgrams(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()

	client := newTestClient(t, mock)
	resp, err := client.Ngrams(context.Background(), "W2023271753")
	if err != nil {
		t.Fatalf("Ngrams() error = %v", err)
	}
	if len(resp.Ngrams) != 1 || resp.Meta["count"] == nil {
		t.Errorf("response = %+v", resp)
	}
	if path := mock.LastRequest().Path; path != "/works/W2023271753/ngrams" {
		t.Errorf("path = %q", path)
	}
}

func TestDownloadContent(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetResponse("/works/W4412002745.pdf", testutil.MockResponse{StatusCode: http.StatusOK, Body: "%PDF-1.7 test"})

	client := newTestClient(t, mock, func(c *Config) { c.APIKey = "secret" })

	if got := client.ContentURL("W4412002745", ContentGrobidXML); got != mock.URL()+"/works/W4412002745.grobid-xml" {
		t.Errorf("ContentURL() = %q", got)
	}

	var buf bytes.Buffer
	n, err := client.DownloadContent(context.Background(), "W4412002745", ContentPDF, &buf)
	if err != nil {
		t.Fatalf("DownloadContent() error = %v", err)
	}
	if n != int64(len("%PDF-1.7 test")) || buf.String() != "%PDF-1.7 test" {
		t.Errorf("downloaded %d bytes: %q", n, buf.String())
	}
	if mock.LastRequest().Query.Get("api_key") != "secret" {
		t.Error("content download should carry the api key")
	}

	if _, err := client.DownloadContent(context.Background(), "W1", "docx", &buf); err == nil {
		t.Error("DownloadContent() with unknown format should fail")
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"/works":                     "/works",
		"/works/W123":                "/works",
		"/works/doi:10.1/x":          "/works",
		"/autocomplete/institutions": "/autocomplete",
		"":                           "/",
	}
	for in, want := range tests {
		if got := endpointLabel(in); got != want {
			t.Errorf("endpointLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactedQuery(t *testing.T) {
	u, _ := url.Parse("https://api.openalex.org/works?api_key=secret&filter=publication_year:2020")
	got := redactedQuery(u)
	want := "api_key=REDACTED&filter=publication_year:2020"
	if got != want {
		t.Errorf("redactedQuery() = %q, want %q", got, want)
	}
}

func TestGet(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetRecords("works", testutil.MakeWorks(3))

	client := newTestClient(t, mock)
	resp, err := client.Get(context.Background(), "/works", url.Values{"per_page": {"2"}})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	var page PageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Results) != 2 {
		t.Errorf("len(Results) = %d, want 2", len(page.Results))
	}

	last := mock.LastRequest()
	if last.Path != "/works" || last.Query.Get("per_page") != "2" || last.Query.Get("mailto") != "test@example.com" {
		t.Errorf("request = %s %v", last.Path, last.Query)
	}
}

// countingTransport counts round trips before handing them to http.DefaultTransport.
type countingTransport struct {
	trips int
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.trips++
	return http.DefaultTransport.RoundTrip(req)
}

func TestSetHTTPClient(t *testing.T) {
	mock := testutil.NewMockOpenAlex()
	defer mock.Close()
	mock.SetRecords("works", testutil.MakeWorks(1))

	client := newTestClient(t, mock)
	transport := &countingTransport{}
	client.SetHTTPClient(&http.Client{Transport: transport, Timeout: 5 * time.Second})

	if _, err := client.FetchPage(context.Background(), "works", nil); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if transport.trips != 1 {
		t.Errorf("round trips = %d, want 1", transport.trips)
	}
}
