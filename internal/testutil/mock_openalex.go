// Package testutil provides testing utilities for the OpenAlex client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPerPage is what OpenAlex uses when per_page is absent.
const DefaultPerPage = 25

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request received by the mock.
type RecordedRequest struct {
	Path   string
	Query  url.Values
	Header http.Header
}

// MockOpenAlex is a configurable in-memory OpenAlex server for testing.
// Entity lists support page, per_page, cursor and group_by; single records
// are served by id and /random returns the first record.
type MockOpenAlex struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	records      map[string][]map[string]any
	groups       map[string][]map[string]any
	autocomplete map[string][]map[string]any

	// Tracking
	RequestCount int
	Requests     []RecordedRequest
}

// NewMockOpenAlex creates and starts a new mock server.
func NewMockOpenAlex() *MockOpenAlex {
	mock := &MockOpenAlex{
		handlers:     make(map[string]func(w http.ResponseWriter, r *http.Request)),
		records:      make(map[string][]map[string]any),
		groups:       make(map[string][]map[string]any),
		autocomplete: make(map[string][]map[string]any),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Requests = append(mock.Requests, RecordedRequest{
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockOpenAlex) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOpenAlex) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockOpenAlex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Requests = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOpenAlex) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockOpenAlex) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetSequence serves the responses for a path in order, repeating the last one.
func (m *MockOpenAlex) SetSequence(path string, responses ...MockResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetRecords sets the records of an entity list.
func (m *MockOpenAlex) SetRecords(entity string, records []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[entity] = records
}

// SetGroups sets the group_by buckets returned for an entity.
func (m *MockOpenAlex) SetGroups(entity string, groups []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[entity] = groups
}

// SetAutocomplete sets the autocomplete results for an entity ("" for all).
func (m *MockOpenAlex) SetAutocomplete(entity string, results []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autocomplete[entity] = results
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockOpenAlex) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequests returns a copy of the recorded requests.
func (m *MockOpenAlex) GetRequests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.Requests))
	copy(out, m.Requests)
	return out
}

// LastRequest returns the most recent request.
func (m *MockOpenAlex) LastRequest() RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.Requests) == 0 {
		return RecordedRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

// MakeWorks builds n work records with ids W1..Wn.
func MakeWorks(n int) []map[string]any {
	works := make([]map[string]any, n)
	for i := range works {
		id := strconv.Itoa(i + 1)
		works[i] = map[string]any{
			"id":               "https://openalex.org/W" + id,
			"display_name":     "Work " + id,
			"publication_year": 2020,
		}
	}
	return works
}

// defaultHandler serves OpenAlex-like responses from the configured data.
func (m *MockOpenAlex) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-RateLimit-Limit", "100000")
	w.Header().Set("X-RateLimit-Remaining", "99999")
	w.Header().Set("X-RateLimit-Reset", "3600")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case parts[0] == "autocomplete":
		entity := ""
		if len(parts) > 1 {
			entity = parts[1]
		}
		m.mu.RLock()
		results := m.autocomplete[entity]
		m.mu.RUnlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"meta":    map[string]any{"count": len(results), "page": 1, "per_page": 10},
			"results": nonNil(results),
		})
	case len(parts) == 1:
		m.listHandler(w, r, parts[0])
	case len(parts) == 2:
		m.singleHandler(w, parts[0], parts[1])
	case len(parts) == 3 && parts[2] == "ngrams":
		writeJSON(w, http.StatusOK, map[string]any{
			"meta":   map[string]any{"count": 1, "openalex_id": "https://openalex.org/" + parts[1]},
			"ngrams": []map[string]any{{"ngram": "test ngram", "ngram_count": 2}},
		})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Not found"})
	}
}

func (m *MockOpenAlex) listHandler(w http.ResponseWriter, r *http.Request, entity string) {
	q := r.URL.Query()

	m.mu.RLock()
	records := m.records[entity]
	groups := m.groups[entity]
	m.mu.RUnlock()

	perPage := DefaultPerPage
	if v := q.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "Invalid query parameters error.",
				"message": "per_page is not a valid value",
			})
			return
		}
		perPage = n
	}

	meta := map[string]any{
		"count":               len(records),
		"db_response_time_ms": 3,
		"per_page":            perPage,
	}

	if q.Has("group_by") {
		meta["count"] = len(groups)
		meta["groups_count"] = len(groups)
		meta["page"] = 1
		writeJSON(w, http.StatusOK, map[string]any{
			"meta":     meta,
			"results":  []any{},
			"group_by": nonNil(groups),
		})
		return
	}

	offset := 0
	cursor := q.Get("cursor")
	if cursor != "" {
		if cursor != "*" {
			n, err := strconv.Atoi(cursor)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid cursor"})
				return
			}
			offset = n
		}
		meta["page"] = nil
	} else {
		page := 1
		if v := q.Get("page"); v != "" {
			page, _ = strconv.Atoi(v)
		}
		offset = (page - 1) * perPage
		meta["page"] = page
	}

	end := min(offset+perPage, len(records))
	var results []map[string]any
	if offset < len(records) {
		results = records[offset:end]
	}

	if cursor != "" {
		if end < len(records) {
			meta["next_cursor"] = strconv.Itoa(end)
		} else {
			meta["next_cursor"] = nil
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"meta":     meta,
		"results":  nonNil(results),
		"group_by": []any{},
	})
}

func (m *MockOpenAlex) singleHandler(w http.ResponseWriter, entity, id string) {
	m.mu.RLock()
	records := m.records[entity]
	m.mu.RUnlock()

	if id == "random" && len(records) > 0 {
		writeJSON(w, http.StatusOK, records[0])
		return
	}
	for _, rec := range records {
		recID, _ := rec["id"].(string)
		if recID == id || strings.HasSuffix(recID, "/"+id) {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "Not found", "message": id + " does not exist"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func nonNil(items []map[string]any) []map[string]any {
	if items == nil {
		return []map[string]any{}
	}
	return items
}

// NewHealthyResponse creates a standard 200 OK response with rate limit headers.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "99999",
			"X-RateLimit-Reset":     "3600",
			"Content-Type":          "application/json",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if retryAfter != "" {
		headers["Retry-After"] = retryAfter
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates an error response with a 5xx status.
func NewServerErrorResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewQueryErrorResponse creates a 400 response like the one OpenAlex sends for unknown filters.
func NewQueryErrorResponse(message string) MockResponse {
	body, _ := json.Marshal(map[string]string{
		"error":   "Invalid query parameters error.",
		"message": message,
	})
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}
