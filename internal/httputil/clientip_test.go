package httputil

import (
	"net/http"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trust      bool
		xff, xri   string
		remoteAddr string
		want       string
	}{
		{name: "remote ipv4 with port", remoteAddr: "192.0.2.10:5000", want: "192.0.2.10"},
		{name: "remote ipv6 with port", remoteAddr: "[2001:db8::1]:5000", want: "2001:db8::1"},
		{name: "remote without port", remoteAddr: "192.0.2.10", want: "192.0.2.10"},
		{name: "mapped ipv4 unmapped", remoteAddr: "[::ffff:192.0.2.10]:5000", want: "192.0.2.10"},
		{name: "zone dropped", remoteAddr: "[fe80::1%eth0]:5000", want: "fe80::1"},
		{name: "unparseable remote returned as is", remoteAddr: "pipe", want: "pipe"},
		{
			name: "headers ignored when untrusted", xff: "198.51.100.7", xri: "198.51.100.8",
			remoteAddr: "10.0.0.1:1234", want: "10.0.0.1",
		},
		{
			name: "leftmost forwarded entry", trust: true, xff: "198.51.100.7, 10.0.0.2, 10.0.0.3",
			remoteAddr: "10.0.0.1:1234", want: "198.51.100.7",
		},
		{
			name: "forwarded entry with port", trust: true, xff: "198.51.100.7:8443",
			remoteAddr: "10.0.0.1:1234", want: "198.51.100.7",
		},
		{
			name: "forwarded wins over real ip", trust: true, xff: "198.51.100.7", xri: "198.51.100.8",
			remoteAddr: "10.0.0.1:1234", want: "198.51.100.7",
		},
		{
			name: "malformed forwarded falls back to real ip", trust: true, xff: "unknown", xri: " 198.51.100.8 ",
			remoteAddr: "10.0.0.1:1234", want: "198.51.100.8",
		},
		{
			name: "malformed headers fall back to remote", trust: true, xff: "garbage", xri: "also garbage",
			remoteAddr: "10.0.0.1:1234", want: "10.0.0.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, tt.trust); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
