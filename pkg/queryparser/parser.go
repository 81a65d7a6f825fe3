// Package queryparser decodes URL query parameters into structs tagged with
// `query:"name"`.
package queryparser

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTarget = errors.New("target must be a pointer to struct")

var durationType = reflect.TypeOf(time.Duration(0))

// ParseQueryParams fills the tagged fields of target from values. Missing or
// empty parameters leave the field untouched, so defaults set beforehand
// survive. Slice fields accept repeated keys and comma-separated lists.
func ParseQueryParams(values url.Values, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrInvalidTarget
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := range rt.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		name := sf.Tag.Get("query")
		if name == "" || name == "-" || !field.CanSet() {
			continue
		}

		raw, ok := values[name]
		if !ok || len(raw) == 0 {
			continue
		}

		if field.Kind() == reflect.Slice {
			if err := setSlice(field, raw); err != nil {
				return fmt.Errorf("query %q: %w", name, err)
			}
			continue
		}

		if raw[0] == "" {
			continue
		}
		if err := setScalar(field, raw[0]); err != nil {
			return fmt.Errorf("query %q: %w", name, err)
		}
	}

	return nil
}

func setSlice(field reflect.Value, raw []string) error {
	var items []string
	for _, r := range raw {
		for _, item := range strings.Split(r, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
	}

	out := reflect.MakeSlice(field.Type(), len(items), len(items))
	for i, item := range items {
		if err := setScalar(out.Index(i), item); err != nil {
			return err
		}
	}
	field.Set(out)
	return nil
}

func setScalar(v reflect.Value, s string) error {
	if v.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q", s)
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", s)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", s)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer %q", s)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}
