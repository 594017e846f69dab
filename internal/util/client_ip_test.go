package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", "2001:db8::/32"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trusted    *TrustedProxies
		want       string
	}{
		{
			name:       "untrusted peer ignores forwarded headers",
			remoteAddr: "198.51.100.10:41002",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5", "X-Real-IP": "203.0.113.6"},
			trusted:    trusted,
			want:       "198.51.100.10",
		},
		{
			name:       "nil allowlist trusts nobody",
			remoteAddr: "10.0.0.20:41002",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			want:       "10.0.0.20",
		},
		{
			name:       "trusted peer takes forwarded client",
			remoteAddr: "10.0.0.20:41002",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "walk stops at first untrusted hop",
			remoteAddr: "10.0.0.20:41002",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.10"},
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "fully trusted chain keeps leftmost hop",
			remoteAddr: "10.0.0.20:41002",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.5, 10.0.0.10"},
			trusted:    trusted,
			want:       "10.0.0.5",
		},
		{
			name:       "x-real-ip fallback when forwarded chain unusable",
			remoteAddr: "10.0.0.20:41002",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip", "X-Real-IP": "203.0.113.7"},
			trusted:    trusted,
			want:       "203.0.113.7",
		},
		{
			name:       "ipv6 peer",
			remoteAddr: "[2001:db8::9]:41002",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			trusted:    trusted,
			want:       "203.0.113.5",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://example.com/", nil)
			req.RemoteAddr = tc.remoteAddr
			for name, value := range tc.headers {
				req.Header.Set(name, value)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	if tp, err := NewTrustedProxies(nil); err != nil || tp != nil {
		t.Fatalf("empty input should yield nil allowlist, got %v, %v", tp, err)
	}
	if _, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"}); err != nil {
		t.Fatalf("valid entries rejected: %v", err)
	}
	if _, err := NewTrustedProxies([]string{"bad-entry"}); err == nil {
		t.Fatal("expected parse error for invalid entry")
	}
}
