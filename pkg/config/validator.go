package config

import (
	"fmt"
	"reflect"
	"strings"
)

// NotEmpty fails validation if any of the named fields (dot-separated
// for nested structs, e.g. "TLS.CertPath") holds its zero value.
func NotEmpty(fields ...string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		root, err := structValue(config)
		if err != nil {
			return err
		}

		var blank []string
		for _, path := range fields {
			fv := lookup(root, path)
			if !fv.IsValid() {
				return fmt.Errorf("config: field %s not found", path)
			}
			if zeroValue(fv) {
				blank = append(blank, path)
			}
		}
		if len(blank) > 0 {
			return fmt.Errorf("config: required fields are empty: %s", strings.Join(blank, ", "))
		}
		return nil
	})
}

func zeroValue(val reflect.Value) bool {
	switch val.Kind() {
	case reflect.String:
		return val.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return val.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return val.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return val.Float() == 0
	case reflect.Bool:
		return !val.Bool()
	case reflect.Slice, reflect.Map, reflect.Array:
		return val.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return val.IsNil()
	default:
		return false
	}
}

// InRange fails validation if the named numeric field falls outside
// [min, max] — e.g. bounding a worker-pool queue size read from config.
func InRange(field string, min, max float64) Validator {
	return ValidatorFunc(func(config interface{}) error {
		root, err := structValue(config)
		if err != nil {
			return err
		}

		fv := lookup(root, field)
		if !fv.IsValid() {
			return fmt.Errorf("config: field %s not found", field)
		}

		n, ok := numeric(fv)
		if !ok {
			return fmt.Errorf("config: field %s is not numeric", field)
		}
		if n < min || n > max {
			return fmt.Errorf("config: field %s = %v, want in [%v, %v]", field, n, min, max)
		}
		return nil
	})
}

func numeric(val reflect.Value) (float64, bool) {
	switch val.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(val.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(val.Uint()), true
	case reflect.Float32, reflect.Float64:
		return val.Float(), true
	default:
		return 0, false
	}
}

// lookup resolves a dot-separated field path against val, descending
// through nested structs and pointer-to-struct fields.
func lookup(val reflect.Value, path string) reflect.Value {
	current := val
	for _, part := range strings.Split(path, ".") {
		if current.Kind() == reflect.Ptr {
			current = current.Elem()
		}
		if current.Kind() != reflect.Struct {
			return reflect.Value{}
		}
		current = current.FieldByName(part)
		if !current.IsValid() {
			return reflect.Value{}
		}
	}
	return current
}

func structValue(config interface{}) (reflect.Value, error) {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("config: expected a struct, got %s", val.Kind())
	}
	return val, nil
}

// StringLength fails validation if the named string field's length is
// outside [min, max].
func StringLength(field string, min, max int) Validator {
	return ValidatorFunc(func(config interface{}) error {
		root, err := structValue(config)
		if err != nil {
			return err
		}

		fv := lookup(root, field)
		if !fv.IsValid() {
			return fmt.Errorf("config: field %s not found", field)
		}
		if fv.Kind() != reflect.String {
			return fmt.Errorf("config: field %s is not a string", field)
		}

		n := len(fv.String())
		if n < min || n > max {
			return fmt.Errorf("config: field %s length %d, want in [%d, %d]", field, n, min, max)
		}
		return nil
	})
}

// OneOf fails validation unless the named field equals one of allowed.
// cmd/relayserver uses this to bound -network/-codec to the values the
// rest of the binary actually knows how to construct.
func OneOf(field string, allowed ...interface{}) Validator {
	return ValidatorFunc(func(config interface{}) error {
		root, err := structValue(config)
		if err != nil {
			return err
		}

		fv := root.FieldByName(field)
		if !fv.IsValid() {
			return fmt.Errorf("config: field %s not found", field)
		}

		got := fv.Interface()
		for _, want := range allowed {
			if reflect.DeepEqual(got, want) {
				return nil
			}
		}
		return fmt.Errorf("config: field %s = %v, want one of %v", field, got, allowed)
	})
}
