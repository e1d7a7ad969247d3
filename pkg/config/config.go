// Package config loads relayserver configuration from YAML or
// JSON files, with environment-variable overrides applied on top — the
// same two-stage Load-then-override flow used for ServerConfig in
// cmd/relayserver.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
)

// Source loads configuration from some backing store into target.
// LoadYAML and LoadJSON both satisfy this.
type Source interface {
	Load(path string, target interface{}) error
}

// Registry pairs a loaded configuration value with the Validators that
// must pass before a caller treats it as usable.
type Registry struct {
	value      interface{}
	validators []Validator
}

// Validator checks a loaded configuration value and returns a non-nil
// error describing what is wrong.
type Validator interface {
	Validate(config interface{}) error
}

// ValidatorFunc adapts a plain func to Validator.
type ValidatorFunc func(config interface{}) error

func (f ValidatorFunc) Validate(config interface{}) error {
	return f(config)
}

// Load reads path into target, picking YAML or JSON by file extension
// (".json" selects JSON; anything else, including no extension, is
// treated as YAML — relayserver's own config.yaml included).
func Load(path string, target interface{}) error {
	if strings.HasSuffix(path, ".json") {
		return LoadJSON(path, target)
	}
	return LoadYAML(path, target)
}

// LoadWithEnv loads path into target and then applies environment
// overrides named PREFIX_FIELD (nested structs add another
// underscore-joined segment), e.g. RELAY_NETWORK or
// RELAY_METRICSADDR for cmd/relayserver's ServerConfig.
func LoadWithEnv(path string, prefix string, target interface{}) error {
	if err := Load(path, target); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	if err := ApplyEnvOverrides(prefix, target); err != nil {
		return fmt.Errorf("config: env overrides for %s: %w", prefix, err)
	}
	return nil
}

// ApplyEnvOverrides walks target's exported fields and overwrites any
// whose PREFIX_FIELDNAME environment variable is set. target must be a
// pointer to a struct.
func ApplyEnvOverrides(prefix string, target interface{}) error {
	if prefix == "" {
		prefix = "RELAY"
	}

	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: ApplyEnvOverrides: target must be a pointer to a struct, got %T", target)
	}

	return overrideStruct(prefix, val.Elem())
}

func overrideStruct(prefix string, val reflect.Value) error {
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		envKey := strings.ReplaceAll(prefix+"_"+strings.ToUpper(fieldType.Name), "-", "_")

		if field.Kind() == reflect.Struct {
			if err := overrideStruct(envKey, field); err != nil {
				return err
			}
			continue
		}

		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			if err := overrideStruct(envKey, field.Elem()); err != nil {
				return err
			}
			continue
		}

		raw, set := os.LookupEnv(envKey)
		if !set {
			continue
		}
		if err := assignEnv(field, raw); err != nil {
			return fmt.Errorf("config: field %s from %s: %w", fieldType.Name, envKey, err)
		}
	}

	return nil
}

// assignEnv parses raw into field according to field's kind. Slices are
// comma-separated lists of scalar elements.
func assignEnv(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
			return fmt.Errorf("not an integer: %q", raw)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
			return fmt.Errorf("not an unsigned integer: %q", raw)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		var f float64
		if _, err := fmt.Sscanf(raw, "%f", &f); err != nil {
			return fmt.Errorf("not a float: %q", raw)
		}
		field.SetFloat(f)
	case reflect.Bool:
		field.SetBool(raw == "1" || strings.EqualFold(raw, "true"))
	case reflect.Slice:
		parts := strings.Split(raw, ",")
		elemType := field.Type().Elem()
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, part := range parts {
			elem := reflect.New(elemType).Elem()
			if err := assignEnv(elem, strings.TrimSpace(part)); err != nil {
				return err
			}
			slice.Index(i).Set(elem)
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// Validate runs every validator against config, stopping at the first
// failure.
func Validate(config interface{}, validators ...Validator) error {
	for _, v := range validators {
		if err := v.Validate(config); err != nil {
			return fmt.Errorf("config: validation failed: %w", err)
		}
	}
	return nil
}

// NewRegistry wraps an already-loaded configuration value so validators
// can be attached and re-run against it.
func NewRegistry(value interface{}) *Registry {
	return &Registry{value: value}
}

// Use appends a Validator to the registry.
func (r *Registry) Use(v Validator) {
	r.validators = append(r.validators, v)
}

// Validate runs every registered validator against the held value.
func (r *Registry) Validate() error {
	return Validate(r.value, r.validators...)
}

// Value returns the held configuration value.
func (r *Registry) Value() interface{} {
	return r.value
}

// As type-asserts config to T, for call sites that load configuration
// as interface{} (e.g. out of a Registry) and need a concrete type back.
func As[T any](config interface{}) (T, error) {
	var zero T
	v, ok := config.(T)
	if !ok {
		return zero, fmt.Errorf("config: type mismatch: want %T, got %T", zero, config)
	}
	return v, nil
}

// MustAs is As but panics on mismatch, for call sites that already know
// the type is right (e.g. immediately after NewRegistry(typed value)).
func MustAs[T any](config interface{}) T {
	v, err := As[T](config)
	if err != nil {
		panic(err)
	}
	return v
}
