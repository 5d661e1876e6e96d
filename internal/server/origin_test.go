package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func makeUpgradeRequest(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ws/query", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestOriginChecking(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{
			name:    "default allows localhost 3000",
			allowed: nil,
			origin:  "http://localhost:3000",
			want:    true,
		},
		{
			name:    "default allows localhost 5173",
			allowed: nil,
			origin:  "http://localhost:5173",
			want:    true,
		},
		{
			name:    "default blocks other local port",
			allowed: nil,
			origin:  "http://localhost:8081",
			want:    false,
		},
		{
			name:    "default blocks external host",
			allowed: nil,
			origin:  "http://evil.example.com",
			want:    false,
		},
		{
			name:    "no origin header always passes",
			allowed: nil,
			origin:  "",
			want:    true,
		},
		{
			name:    "wildcard allows anything",
			allowed: []string{"*"},
			origin:  "http://anything.example.com",
			want:    true,
		},
		{
			name:    "explicit origin match",
			allowed: []string{"https://app.insurelens.example"},
			origin:  "https://app.insurelens.example",
			want:    true,
		},
		{
			name:    "explicit origin mismatch",
			allowed: []string{"https://app.insurelens.example"},
			origin:  "https://other.example.com",
			want:    false,
		},
		{
			name:    "match is case insensitive",
			allowed: []string{"https://App.InsureLens.Example"},
			origin:  "https://app.insurelens.example",
			want:    true,
		},
		{
			name:    "wildcard mixed with explicit origins",
			allowed: []string{"https://app.insurelens.example", "*"},
			origin:  "https://other.example.com",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpgrader(tt.allowed)
			if got := up.CheckOrigin(makeUpgradeRequest(tt.origin)); got != tt.want {
				t.Errorf("CheckOrigin(%q) with allowed %v = %v, want %v",
					tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}
