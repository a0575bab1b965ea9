package main

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/openalex-client/pkg/query"
)

// splitPair splits "key=value" at the first '='.
func splitPair(raw string) (string, string, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", raw)
	}
	return key, value, nil
}

// parseFilter reads "key=value". Dotted keys address nested fields and the
// value is passed through verbatim, so "!x", ">x", "<x" and "a|b" keep their
// filter meaning.
func parseFilter(raw string) (query.Filters, error) {
	key, value, err := splitPair(raw)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return query.Filters{key: value}, nil
}

// parseSort reads "field", "field=desc" or "field:desc".
func parseSort(raw string) (string, query.Direction, error) {
	field, dir, found := strings.Cut(raw, "=")
	if !found {
		field, dir, found = strings.Cut(raw, ":")
	}
	field = strings.TrimSpace(field)
	if field == "" {
		return "", "", fmt.Errorf("sort: missing field in %q", raw)
	}
	if !found || dir == "" {
		return field, query.Asc, nil
	}

	switch d := query.Direction(strings.ToLower(strings.TrimSpace(dir))); d {
	case query.Asc, query.Desc:
		return field, d, nil
	default:
		return "", "", fmt.Errorf("sort %s: %w: %q", field, query.ErrInvalidSortDirection, dir)
	}
}
