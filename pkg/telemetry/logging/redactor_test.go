package logging

import (
	"log/slog"
	"testing"
)

func TestRedactor_RedactString(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain", in: "chat created", want: "chat created"},
		{name: "bearer", in: "Authorization: Bearer tok_123", want: "Authorization: Bearer ***"},
		{name: "jwt", in: "got eyJhbGciOi.eyJzdWIi.c2ln back", want: "got eyJ*** back"},
		{name: "cookie header", in: "fe_refresh_a=r1; fe_device_b=d2", want: "fe_refresh_a=***; fe_device_b=***"},
		{name: "email", in: "account alice@example.com", want: "account a***@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.in); got != tt.want {
				t.Errorf("RedactString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactor_Nil(t *testing.T) {
	var r *Redactor
	if got := r.RedactString("Bearer abc"); got != "Bearer abc" {
		t.Errorf("nil redactor changed value: %q", got)
	}
	a := slog.String("token", "abc")
	if got := r.RedactAttr(a); got.Value.String() != "abc" {
		t.Errorf("nil redactor changed attr: %v", got)
	}
}

func TestRedactor_RedactAttr(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{name: "sensitive key", attr: slog.String("password", "hunter2"), want: Mask},
		{name: "suffix key", attr: slog.String("admin_password", "x"), want: Mask},
		{name: "empty sensitive value", attr: slog.String("token", ""), want: ""},
		{name: "non-string sensitive", attr: slog.Int("token", 5), want: Mask},
		{name: "ordinary key", attr: slog.String("model", "gpt-5"), want: "gpt-5"},
		{name: "token counts untouched", attr: slog.Int("prompt_tokens", 12), want: "12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactAttr(tt.attr).Value.String(); got != tt.want {
				t.Errorf("RedactAttr(%v) = %q, want %q", tt.attr, got, tt.want)
			}
		})
	}
}

func TestRedactor_Maps(t *testing.T) {
	r := NewRedactor()

	got := r.RedactAttr(slog.Any("cookies_seen", map[string]string{
		"fe_refresh_1": "r",
		"lang":         "en",
	}))

	m, ok := got.Value.Any().(map[string]string)
	if !ok {
		t.Fatalf("expected map value, got %T", got.Value.Any())
	}
	if m["fe_refresh_1"] != Mask {
		t.Errorf("fe_ cookie not masked: %q", m["fe_refresh_1"])
	}
	if m["lang"] != "en" {
		t.Errorf("ordinary cookie changed: %q", m["lang"])
	}
}
