// Package convert turns raw request values into typed handler parameters.
//
// Converters are looked up by the declared Go type of a parameter unless
// the handler declares an override. Types are keyed by import path rather
// than by the name a file gives the package: "*int", "[]string",
// "*time.Time", "*github.com/google/uuid.UUID".
package convert

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Converter converts the raw values of one request parameter
type Converter interface {
	Convert(values []string) (any, error)
}

// Func adapts a function to Converter
type Func func(values []string) (any, error)

// Convert implements Converter
func (f Func) Convert(values []string) (any, error) {
	return f(values)
}

// Error reports a value that could not be converted
type Error struct {
	Type  string
	Value string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot convert %q to %s: %v", e.Value, e.Type, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UUIDType is the key of uuid.UUID from github.com/google/uuid
const UUIDType = "github.com/google/uuid.UUID"

// Registry maps declared type keys to converters. It is filled once at
// startup and read concurrently afterwards.
type Registry struct {
	mu         sync.RWMutex
	converters map[string]Converter
}

// NewRegistry returns a registry holding the default converters
func NewRegistry() *Registry {
	r := &Registry{converters: make(map[string]Converter)}
	registerDefaults(r)
	return r
}

// Register binds a converter to a declared type name, replacing any
// previous binding
func (r *Registry) Register(typeName string, c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[normalize(typeName)] = c
}

// Lookup returns the converter for a declared type name
func (r *Registry) Lookup(typeName string) (Converter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.converters[normalize(typeName)]
	return c, ok
}

// Types returns the registered type names in sorted order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.converters))
	for k := range r.converters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(typeName string) string {
	return strings.ReplaceAll(typeName, " ", "")
}

// Scalar builds a converter for *T from the first raw value. No value, or
// a blank one as sent by an empty form field, yields a nil *T.
func Scalar[T any](typeName string, parse func(string) (T, error)) Converter {
	return Func(func(values []string) (any, error) {
		if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
			return (*T)(nil), nil
		}
		v, err := parse(strings.TrimSpace(values[0]))
		if err != nil {
			return nil, &Error{Type: typeName, Value: values[0], Err: err}
		}
		return &v, nil
	})
}

// List builds a converter for []T from every raw value
func List[T any](typeName string, parse func(string) (T, error)) Converter {
	return Func(func(values []string) (any, error) {
		out := make([]T, 0, len(values))
		for _, raw := range values {
			v, err := parse(strings.TrimSpace(raw))
			if err != nil {
				return nil, &Error{Type: typeName, Value: raw, Err: err}
			}
			out = append(out, v)
		}
		return out, nil
	})
}

func registerDefaults(r *Registry) {
	str := func(s string) (string, error) { return s, nil }

	r.Register("*string", Func(func(values []string) (any, error) {
		if len(values) == 0 {
			return (*string)(nil), nil
		}
		v := values[0]
		return &v, nil
	}))
	r.Register("[]string", List("[]string", str))

	r.Register("*int", Scalar("*int", castInt))
	r.Register("*int64", Scalar("*int64", castInt64))
	r.Register("*int32", Scalar("*int32", castInt32))
	r.Register("*uint", Scalar("*uint", castUint))
	r.Register("*float64", Scalar("*float64", func(s string) (float64, error) { return cast.ToFloat64E(s) }))
	r.Register("*float32", Scalar("*float32", func(s string) (float32, error) { return cast.ToFloat32E(s) }))
	r.Register("*bool", Scalar("*bool", castBool))
	r.Register("[]int", List("[]int", castInt))
	r.Register("[]int64", List("[]int64", castInt64))
	r.Register("[]float64", List("[]float64", func(s string) (float64, error) { return cast.ToFloat64E(s) }))
	r.Register("[]bool", List("[]bool", castBool))

	r.Register("*time.Time", Scalar("*time.Time", func(s string) (time.Time, error) { return cast.ToTimeE(s) }))
	r.Register("*time.Duration", Scalar("*time.Duration", func(s string) (time.Duration, error) { return cast.ToDurationE(s) }))

	r.Register("*"+UUIDType, Scalar("*uuid.UUID", uuid.Parse))
	r.Register("[]"+UUIDType, List("[]uuid.UUID", uuid.Parse))
	r.Register(UUIDType, Func(func(values []string) (any, error) {
		if len(values) == 0 {
			return uuid.Nil, nil
		}
		id, err := uuid.Parse(strings.TrimSpace(values[0]))
		if err != nil {
			return nil, &Error{Type: "uuid.UUID", Value: values[0], Err: err}
		}
		return id, nil
	}))
}

func castInt(s string) (int, error) {
	d, err := decimal(s)
	if err != nil {
		return 0, err
	}
	return cast.ToIntE(d)
}

func castInt64(s string) (int64, error) {
	d, err := decimal(s)
	if err != nil {
		return 0, err
	}
	return cast.ToInt64E(d)
}

func castInt32(s string) (int32, error) {
	d, err := decimal(s)
	if err != nil {
		return 0, err
	}
	return cast.ToInt32E(d)
}

func castUint(s string) (uint, error) {
	d, err := decimal(s)
	if err != nil {
		return 0, err
	}
	return cast.ToUintE(d)
}

// decimal accepts an optionally signed run of base-10 digits and drops
// leading zeros. cast reads strings as Go literals, where "010" is octal
// and "0x10" is hex.
func decimal(s string) (string, error) {
	sign, digits := "", s
	if digits != "" && (digits[0] == '+' || digits[0] == '-') {
		sign, digits = digits[:1], digits[1:]
	}
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return "", fmt.Errorf("%q is not a decimal integer", s)
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}
	if sign == "+" {
		sign = ""
	}
	return sign + digits, nil
}

// castBool accepts the usual HTML form spellings on top of strconv's
func castBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes", "y":
		return true, nil
	case "off", "no", "n", "":
		return false, nil
	}
	return cast.ToBoolE(s)
}
