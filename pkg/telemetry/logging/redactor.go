package logging

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Mask replaces values of sensitive attributes.
const Mask = "***"

// Redactor masks upstream credentials in log output: bearer tokens, access
// token JWTs, fe_* cookie values and email local parts.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternBearerToken = "bearer_token"
	PatternJWT         = "jwt"
	PatternCookie      = "cookie"
	PatternEmail       = "email"
)

// sensitiveKeys are attribute keys whose values are always masked.
var sensitiveKeys = []string{
	"token",
	"access_token",
	"refresh_token",
	"authorization",
	"cookie",
	"cookies",
	"silent_cookies",
	"password",
	"secret",
	"admin_password",
}

// NewRedactor returns a Redactor with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: []redactPattern{
		{
			name:        PatternBearerToken,
			regex:       regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
			replacement: "Bearer " + Mask,
		},
		{
			name:        PatternJWT,
			regex:       regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`),
			replacement: "eyJ" + Mask,
		},
		{
			name:        PatternCookie,
			regex:       regexp.MustCompile(`(fe_[A-Za-z0-9_]+)=[^;\s"]+`),
			replacement: "$1=" + Mask,
		},
		{
			name:        PatternEmail,
			regex:       regexp.MustCompile(`([A-Za-z0-9])[A-Za-z0-9._%+-]*@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`),
			replacement: "$1" + Mask + "@$2",
		},
	}}
}

// RedactString masks credentials found in value. A nil Redactor returns
// value unchanged.
func (r *Redactor) RedactString(value string) string {
	if r == nil || value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr masks a single attribute, descending into groups.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if r == nil {
		return a
	}

	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		group := v.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	if isSensitiveKey(a.Key) {
		if v.Kind() == slog.KindString && v.String() == "" {
			return slog.String(a.Key, "")
		}
		return slog.String(a.Key, Mask)
	}

	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindAny:
		switch val := v.Any().(type) {
		case error:
			return slog.String(a.Key, r.RedactString(val.Error()))
		case fmt.Stringer:
			return slog.String(a.Key, r.RedactString(val.String()))
		case map[string]string:
			return slog.Any(a.Key, r.redactMap(val))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// redactMap masks cookie-like maps: keys are kept, values are replaced.
func (r *Redactor) redactMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if strings.HasPrefix(k, "fe_") || isSensitiveKey(k) {
			out[k] = Mask
			continue
		}
		out[k] = r.RedactString(v)
	}
	return out
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if k == s || strings.HasSuffix(k, "_"+s) {
			return true
		}
	}
	return false
}
