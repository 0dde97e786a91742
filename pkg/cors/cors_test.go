package cors

import (
	"net/http"
	"testing"
)

const corsTestPrefix = "cors:cors_test"

func TestBuild_Default(t *testing.T) {
	for name, p := range map[string]*Policy{"nil": nil, "zero": Default()} {
		t.Run(name, func(t *testing.T) {
			h := Build(p, "https://a.com")
			want := map[string]string{
				"Content-Type":                 "application/json",
				"Access-Control-Allow-Origin":  "*",
				"Access-Control-Allow-Methods": "POST, OPTIONS",
				"Access-Control-Allow-Headers": "Content-Type, Authorization",
				"Access-Control-Max-Age":       "86400",
			}
			if len(h) != len(want) {
				t.Errorf("%s - got %d headers, want %d: %v", corsTestPrefix, len(h), len(want), h)
			}
			for k, v := range want {
				if h[k] != v {
					t.Errorf("%s - %s = %q, want %q", corsTestPrefix, k, h[k], v)
				}
			}
		})
	}
}

func TestBuild_Disabled(t *testing.T) {
	h := Build(Disabled(), "https://a.com")
	if len(h) != 0 {
		t.Errorf("%s - expected no headers, got %v", corsTestPrefix, h)
	}
}

func TestBuild_OriginAllowList(t *testing.T) {
	p := &Policy{AllowedOrigins: []string{"https://a.com"}}

	tests := []struct {
		name   string
		origin string
		want   string
		ok     bool
	}{
		{"listed origin echoed", "https://a.com", "https://a.com", true},
		{"unlisted origin omitted", "https://b.com", "", false},
		{"missing origin omitted", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Build(p, tt.origin)
			got, ok := h["Access-Control-Allow-Origin"]
			if ok != tt.ok || got != tt.want {
				t.Errorf("%s - Allow-Origin = %q (present=%v), want %q (present=%v)", corsTestPrefix, got, ok, tt.want, tt.ok)
			}
			if h["Access-Control-Allow-Methods"] == "" {
				t.Errorf("%s - expected Allow-Methods even when origin is not shared", corsTestPrefix)
			}
		})
	}
}

func TestBuild_SingleOriginAlwaysEmitted(t *testing.T) {
	h := Build(&Policy{Origin: "https://a.com"}, "https://b.com")
	if h["Access-Control-Allow-Origin"] != "https://a.com" {
		t.Errorf("%s - Allow-Origin = %q", corsTestPrefix, h["Access-Control-Allow-Origin"])
	}
}

func TestBuild_Explicit(t *testing.T) {
	p := &Policy{
		Origin:        "https://app.example.com",
		Methods:       []string{"GET", "POST"},
		Headers:       []string{"X-API-Key"},
		ExposeHeaders: []string{"X-Request-Id", "X-Trace"},
		Credentials:   true,
		MaxAge:        600,
	}
	h := Build(p, "")

	checks := map[string]string{
		"Access-Control-Allow-Methods":     "GET, POST",
		"Access-Control-Allow-Headers":     "X-API-Key",
		"Access-Control-Expose-Headers":    "X-Request-Id, X-Trace",
		"Access-Control-Allow-Credentials": "true",
		"Access-Control-Max-Age":           "600",
	}
	for k, v := range checks {
		if h[k] != v {
			t.Errorf("%s - %s = %q, want %q", corsTestPrefix, k, h[k], v)
		}
	}
}

func TestApply(t *testing.T) {
	h := http.Header{}
	Apply(h, Build(nil, ""))
	if h.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("%s - Apply did not set Allow-Origin", corsTestPrefix)
	}
}
