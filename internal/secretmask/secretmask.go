// Package secretmask implements the one masking rule every component
// that might log or render a credential must use: show the first 4
// and last 4 characters of any secret 9 characters or longer,
// otherwise replace it entirely with fixed asterisks. This is a
// security-visible contract, so it
// lives in its own tiny package rather than being reimplemented per
// caller.
package secretmask

import "strings"

// Mask redacts s per the documented rule. An empty string masks to
// empty (nothing to hide).
func Mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) < 9 {
		return "********"
	}
	return s[:4] + strings.Repeat("*", 4) + s[len(s)-4:]
}

// MaskInText scans text for any occurrence of secret and replaces it
// with its masked form. Used before a command string, log line, or
// transcript entry is recorded anywhere durable.
func MaskInText(text, secret string) string {
	if secret == "" || text == "" {
		return text
	}
	return strings.ReplaceAll(text, secret, Mask(secret))
}

// MaskAllInText applies MaskInText for every secret in secrets, in
// order, so a single call can scrub a command line built from several
// credential-bearing environment overrides.
func MaskAllInText(text string, secrets ...string) string {
	for _, s := range secrets {
		text = MaskInText(text, s)
	}
	return text
}
