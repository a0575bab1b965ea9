package openalex

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Sternrassler/openalex-client/pkg/client"
)

// Meta is the meta object of a list response.
type Meta = client.PageMeta

// Record is a decoded OpenAlex record, group or n-gram.
type Record map[string]any

// ID returns the record's "id" field, usually an OpenAlex URL.
func (r Record) ID() string {
	return r.String("id")
}

// ShortID returns the record id without the OpenAlex URL prefix (W123...).
func (r Record) ShortID() string {
	return ShortID(r.ID())
}

// String returns a field as a string, or "" when absent or null.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Abstract rebuilds a work's abstract from abstract_inverted_index.
func (r Record) Abstract() string {
	raw, ok := r["abstract_inverted_index"].(map[string]any)
	if !ok {
		return ""
	}
	index := make(map[string][]int, len(raw))
	for word, positions := range raw {
		list, ok := positions.([]any)
		if !ok {
			continue
		}
		for _, p := range list {
			switch n := p.(type) {
			case float64:
				index[word] = append(index[word], int(n))
			case int:
				index[word] = append(index[word], n)
			}
		}
	}
	return InvertAbstract(index)
}

// InvertAbstract turns an inverted index (word -> positions) back into text.
func InvertAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	type placed struct {
		word string
		pos  int
	}
	var words []placed
	for w, positions := range index {
		for _, p := range positions {
			words = append(words, placed{w, p})
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].pos != words[j].pos {
			return words[i].pos < words[j].pos
		}
		return words[i].word < words[j].word
	})

	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.word
	}
	return strings.Join(parts, " ")
}

var (
	openalexURL = regexp.MustCompile(`^https?://(?:api\.)?openalex\.org/(?:[a-z]+/)?([A-Za-z]\d+)$`)
	bareORCID   = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)
)

// ShortID strips the OpenAlex URL prefix from an id. Other ids are returned
// trimmed but otherwise unchanged.
func ShortID(id string) string {
	id = strings.TrimSpace(id)
	if m := openalexURL.FindStringSubmatch(id); m != nil {
		return strings.ToUpper(m[1][:1]) + m[1][1:]
	}
	return id
}

// NormalizeID maps the id forms the single-record endpoint accepts onto one
// path segment:
//
//	https://openalex.org/W2741809807 -> W2741809807
//	10.7717/peerj.4375               -> doi:10.7717/peerj.4375
//	0000-0002-1825-0097              -> orcid:0000-0002-1825-0097
//
// Prefixed ids (doi:, orcid:, ror:, pmid:, mag:) and full external URLs pass
// through unchanged.
func NormalizeID(id string) string {
	id = ShortID(id)
	switch {
	case strings.HasPrefix(id, "10."):
		return "doi:" + id
	case bareORCID.MatchString(id):
		return "orcid:" + id
	}
	return id
}

func toRecords(items []map[string]any) []Record {
	out := make([]Record, len(items))
	for i, item := range items {
		out[i] = Record(item)
	}
	return out
}
