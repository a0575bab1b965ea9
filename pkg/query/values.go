package query

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrInvalidFilterValue is returned by Render when a filter value cannot
	// be expressed in the filter grammar.
	ErrInvalidFilterValue = errors.New("invalid filter value")

	// ErrInvalidSortDirection is returned by Render for directions other than asc/desc.
	ErrInvalidSortDirection = errors.New("invalid sort direction")
)

// Filters maps filter keys to values. Keys may be dotted paths; values may be
// nested Filters.
type Filters map[string]any

// Negated wraps a value that must not match.
type Negated struct {
	Value any
}

// Comparison is an inequality constraint such as ">2020".
type Comparison struct {
	Op    string
	Value any
}

// AnyOf matches records having any of the values (rendered "a|b").
type AnyOf []any

// AllOf matches records having all of the values (rendered "a+b").
type AllOf []any

// Not negates v. A list is negated element-wise and combined with AND.
func Not(v any) Negated { return Negated{Value: v} }

// Gt builds a greater-than constraint.
func Gt(v any) Comparison { return Comparison{Op: ">", Value: v} }

// Lt builds a less-than constraint.
func Lt(v any) Comparison { return Comparison{Op: "<", Value: v} }

// Or builds an OR list.
func Or(values ...any) AnyOf { return AnyOf(values) }

// And builds an AND list.
func And(values ...any) AllOf { return AllOf(values) }

// asMapping reports whether v is a mapping with string keys.
func asMapping(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Filters:
		return m, true
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asList reports whether v is a plain slice or array (OR semantics).
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case string, []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mapLeaves returns a copy of f with fn applied to every non-mapping value.
func mapLeaves(f Filters, fn func(any) any) Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		if m, ok := asMapping(v); ok {
			out[k] = mapLeaves(m, fn)
			continue
		}
		out[k] = fn(v)
	}
	return out
}

// renderValue serializes a filter value into the filter grammar.
func renderValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: nil", ErrInvalidFilterValue)
	case Negated:
		if items, ok := listItems(val.Value); ok {
			return joinItems(items, "+", func(item any) (string, error) {
				s, err := renderScalar(item)
				return "!" + s, err
			})
		}
		s, err := renderScalar(val.Value)
		if err != nil {
			return "", err
		}
		return "!" + s, nil
	case Comparison:
		if val.Op != ">" && val.Op != "<" {
			return "", fmt.Errorf("%w: unknown operator %q", ErrInvalidFilterValue, val.Op)
		}
		s, err := renderScalar(val.Value)
		if err != nil {
			return "", err
		}
		return val.Op + s, nil
	case AllOf:
		return joinItems(val, "+", renderScalar)
	case AnyOf:
		return joinItems(val, "|", renderScalar)
	}

	if _, ok := asMapping(v); ok {
		return "", fmt.Errorf("%w: nested mapping must contain at least one key", ErrInvalidFilterValue)
	}
	if items, ok := asList(v); ok {
		return joinItems(items, "|", renderScalar)
	}
	return renderScalar(v)
}

func listItems(v any) ([]any, bool) {
	switch l := v.(type) {
	case AnyOf:
		return l, true
	case AllOf:
		return l, true
	}
	return asList(v)
}

func joinItems(items []any, sep string, render func(any) (string, error)) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("%w: empty list", ErrInvalidFilterValue)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		s, err := render(item)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, sep), nil
}

// renderScalar serializes a single list element or plain value.
func renderScalar(v any) (string, error) {
	if isNilValue(v) {
		return "", fmt.Errorf("%w: nil", ErrInvalidFilterValue)
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		// the service only understands lowercase booleans
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(val).Int(), 10), nil
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(val).Uint(), 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case Negated:
		s, err := renderScalar(val.Value)
		if err != nil {
			return "", err
		}
		return "!" + s, nil
	case Comparison:
		return renderValue(val)
	case fmt.Stringer:
		return val.String(), nil
	}
	return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidFilterValue, v)
}

// isNilValue reports an untyped nil or a nil pointer, map, slice or interface.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
