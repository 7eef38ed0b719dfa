// Package environment applies environment-variable overrides on top of
// values loaded from a config file.
//
// Every Override helper leaves the destination untouched when none of the
// named variables is set to a non-empty value. Parse failures are returned
// as errors naming the variable instead of being silently ignored.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// First returns the value of the first variable in names that is set and
// non-empty, and the name it came from.
func First(names ...string) (value, name string, ok bool) {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v, n, true
		}
	}
	return "", "", false
}

// Override sets *dst from the first non-empty variable in names. Later names
// are aliases, e.g. Override(&key, "LLM_API_KEY", "OPENAI_API_KEY").
func Override(dst *string, names ...string) {
	if v, _, ok := First(names...); ok {
		*dst = v
	}
}

// OverrideInt sets *dst from the decimal integer in name.
func OverrideInt(dst *int, name string) error {
	return overrideWith(dst, name, strconv.Atoi)
}

// OverrideInt64 sets *dst from the decimal integer in name.
func OverrideInt64(dst *int64, name string) error {
	return overrideWith(dst, name, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

// OverrideBool sets *dst from name using strconv.ParseBool syntax.
func OverrideBool(dst *bool, name string) error {
	return overrideWith(dst, name, strconv.ParseBool)
}

// OverrideDuration sets *dst from a time.ParseDuration string in name.
func OverrideDuration(dst *time.Duration, name string) error {
	return overrideWith(dst, name, time.ParseDuration)
}

// OverrideList sets *dst from a comma-separated list in name. Blank elements
// are dropped; an all-blank list leaves *dst untouched.
func OverrideList(dst *[]string, name string) {
	v, _, ok := First(name)
	if !ok {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func overrideWith[T any](dst *T, name string, parse func(string) (T, error)) error {
	v, _, ok := First(name)
	if !ok {
		return nil
	}
	parsed, err := parse(v)
	if err != nil {
		return fmt.Errorf("environment variable %s=%q: %w", name, v, err)
	}
	*dst = parsed
	return nil
}
