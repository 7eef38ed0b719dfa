// Package redact strips credentials from values before they reach a log line
// or an audit row.
//
// Two things carry secrets through a turn: the caller's bearer credential and
// the password arguments of the signup/signin operations. Neither may be
// written anywhere outside the outbound backend request.
package redact

import (
	"strings"
)

// Placeholder replaces every redacted value.
const Placeholder = "[REDACTED]"

// sensitiveWords are substrings of argument names whose values are secret.
var sensitiveWords = []string{"password", "passwd", "token", "secret", "credential", "authorization"}

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, Placeholder)
	}
	return s
}

// Args returns a copy of an operation argument bag with every value whose key
// looks sensitive replaced by [REDACTED]. Nested maps are redacted
// recursively; other values are copied as-is.
func Args(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if IsSensitiveKey(k) {
			out[k] = Placeholder
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Args(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Credential returns a short, loggable fingerprint of a bearer credential:
// "" for an empty credential, otherwise the last four characters behind the
// placeholder.
func Credential(cred string) string {
	if cred == "" {
		return ""
	}
	if len(cred) <= 8 {
		return Placeholder
	}
	return Placeholder + "…" + cred[len(cred)-4:]
}

// IsSensitiveKey reports whether an argument name suggests it holds a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range sensitiveWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
