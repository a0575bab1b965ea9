// Package query builds OpenAlex list requests from a fluent chain of filter,
// search, sort, select, sample and group-by calls.
//
// A Query is immutable: every modifier returns a new Query carrying the
// accumulated state, so a base query can be shared and extended freely.
// Nothing is serialized until Render is called.
//
// # Basic Usage
//
//	q := query.New().
//		Filter(query.Filters{
//			"publication_year": 2020,
//			"institutions":     query.Filters{"country_code": "fr"},
//		}).
//		Search("machine learning").
//		Sort("cited_by_count", query.Desc).
//		Select("id", "doi", "display_name")
//
//	params, err := q.Render()
//	// filter=institutions.country_code:fr,publication_year:2020
//	// search=machine learning
//	// sort=cited_by_count:desc
//	// select=id,doi,display_name
//
// # Filter Values
//
// Filter values are scalars (string, bool, numbers), lists (OR across the
// values, rendered "a|b"), or nested mappings that flatten into dotted keys.
// Strings starting with "!", ">" or "<" are passed through verbatim; the
// service defines their meaning. The helpers Not, Gt, Lt, Or and And build
// the same expressions explicitly.
//
// # Merge Rules
//
//   - A top-level key set twice keeps only the last value.
//   - A nested (dotted) key set twice produces two constraints (logical AND).
//   - Search filters, sort fields and the remaining settings overwrite.
package query
