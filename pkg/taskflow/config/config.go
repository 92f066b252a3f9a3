package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config is a read-only view over decoded configuration values.
// Every accessor takes a fallback that is returned when the key is absent
// or holds a value of the wrong shape, so callers never handle errors for
// optional settings.
type Config struct {
	values map[string]any
}

// New wraps values. A nil map yields an empty Config.
func New(values map[string]any) Config {
	if values == nil {
		values = map[string]any{}
	}
	return Config{values: values}
}

func (c Config) lookup(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// String returns the string stored at key.
func (c Config) String(key, fallback string) string {
	if s, ok := get[string](c, key); ok {
		return s
	}
	return fallback
}

// Bool returns the bool stored at key.
func (c Config) Bool(key string, fallback bool) bool {
	if b, ok := get[bool](c, key); ok {
		return b
	}
	return fallback
}

// Int returns the integer stored at key. Floats are accepted only when they
// have no fractional part, which is how JSON delivers whole numbers.
func (c Config) Int(key string, fallback int) int {
	v, ok := c.lookup(key)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == float64(int(n)) {
			return int(n)
		}
	}
	return fallback
}

// Float returns the number stored at key as a float64.
func (c Config) Float(key string, fallback float64) float64 {
	v, ok := c.lookup(key)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return fallback
}

// Duration returns the duration stored at key. Strings go through
// time.ParseDuration and bare numbers are read as seconds.
func (c Config) Duration(key string, fallback time.Duration) time.Duration {
	v, ok := c.lookup(key)
	if !ok {
		return fallback
	}
	switch d := v.(type) {
	case time.Duration:
		return d
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed
		}
	case int:
		return time.Duration(d) * time.Second
	case int64:
		return time.Duration(d) * time.Second
	case float64:
		return time.Duration(d * float64(time.Second))
	}
	return fallback
}

// StringSlice returns the list of strings stored at key. A list holding any
// non-string element yields fallback.
func (c Config) StringSlice(key string, fallback []string) []string {
	v, ok := c.lookup(key)
	if !ok {
		return fallback
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return fallback
			}
			out = append(out, s)
		}
		return out
	}
	return fallback
}

// Sub returns the nested section stored at key, or an empty Config.
func (c Config) Sub(key string) Config {
	v, ok := c.lookup(key)
	if !ok {
		return New(nil)
	}
	switch m := v.(type) {
	case map[string]any:
		return New(m)
	case Config:
		return m
	case map[any]any:
		converted := make(map[string]any, len(m))
		for k, val := range m {
			converted[fmt.Sprint(k)] = val
		}
		return New(converted)
	}
	return New(nil)
}

// Path resolves a dotted key such as "run.max_steps" through nested sections
// and returns the section holding the last segment plus that segment.
func (c Config) Path(dotted string) (Config, string) {
	parts := strings.Split(dotted, ".")
	section := c
	for _, p := range parts[:len(parts)-1] {
		section = section.Sub(p)
	}
	return section, parts[len(parts)-1]
}

// Any returns the raw value stored at key.
func (c Config) Any(key string, fallback any) any {
	if v, ok := c.lookup(key); ok {
		return v
	}
	return fallback
}

// Has reports whether key is present.
func (c Config) Has(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// Keys returns the top-level keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw exposes the underlying map. Do not modify it.
func (c Config) Raw() map[string]any {
	return c.values
}

func get[T any](c Config, key string) (T, bool) {
	var zero T
	v, ok := c.lookup(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
