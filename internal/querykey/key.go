// Package querykey derives canonical cache keys from a resource path and its
// query parameters.
package querykey

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"

	"github.com/google/go-querystring/query"
)

// Build returns path when params is empty, otherwise path + "?" + the sorted
// query-string encoding of params. Two parameter sets holding the same pairs
// always produce the same key, whatever order they were built in.
func Build(path string, params any) string {
	encoded := Values(params).Encode()
	if encoded == "" {
		return path
	}
	if path == "" {
		return encoded
	}
	return path + "?" + encoded
}

// Values converts params into url.Values. Supported inputs are nil, url.Values,
// maps keyed by string and structs (or pointers to structs) tagged for
// go-querystring (`url:"name,omitempty"`).
// Anything else is encoded with fmt.Sprint under the key "value".
func Values(params any) url.Values {
	switch p := params.(type) {
	case nil:
		return url.Values{}
	case url.Values:
		return cloneValues(p)
	case map[string]string:
		out := make(url.Values, len(p))
		for k, v := range p {
			out.Set(k, v)
		}
		return out
	case map[string][]string:
		return cloneValues(url.Values(p))
	case map[string]any:
		out := make(url.Values, len(p))
		for _, k := range sortedKeys(p) {
			addAny(out, k, p[k])
		}
		return out
	}

	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return url.Values{}
		}
		rv = rv.Elem()
	}

	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		out := make(url.Values, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			addAny(out, iter.Key().String(), iter.Value().Interface())
		}
		return out
	}

	if rv.Kind() == reflect.Struct {
		v, err := query.Values(rv.Interface())
		if err == nil {
			return v
		}
	}

	return url.Values{"value": {fmt.Sprint(rv.Interface())}}
}

func addAny(out url.Values, key string, v any) {
	if v == nil {
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			out.Add(key, fmt.Sprint(v))
			return
		}
		for i := 0; i < rv.Len(); i++ {
			out.Add(key, fmt.Sprint(rv.Index(i).Interface()))
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return
		}
		addAny(out, key, rv.Elem().Interface())
	default:
		out.Add(key, fmt.Sprint(v))
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
