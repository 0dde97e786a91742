package catalog

import "testing"

const typesTestPrefix = "catalog:types_test"

func TestAuthEntry_VersionConstraint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  ", ""},
		{"1.4.0", ">= 1.4.0"},
		{" v2.1 ", ">= v2.1"},
		{">= 1.2.0", ">= 1.2.0"},
		{"~1.4", "~1.4"},
		{"1.2.0 - 2.0.0", "1.2.0 - 2.0.0"},
		{"^1.2 || >= 2.1", "^1.2 || >= 2.1"},
	}
	for _, tt := range tests {
		a := &AuthEntry{MinClientVersion: tt.in}
		if got := a.VersionConstraint(); got != tt.want {
			t.Errorf("%s - VersionConstraint(%q) = %q, want %q", typesTestPrefix, tt.in, got, tt.want)
		}
	}
}
