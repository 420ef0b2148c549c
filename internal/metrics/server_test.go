package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParsePrefix(t *testing.T) {
	tests := []struct {
		entry   string
		want    string
		wantErr bool
	}{
		{entry: "192.168.1.1", want: "192.168.1.1/32"},
		{entry: "::1", want: "::1/128"},
		{entry: "10.1.2.3/8", want: "10.0.0.0/8"},
		{entry: "fe80::1/10", want: "fe80::/10"},
		{entry: "10.0.0.0/33", wantErr: true},
		{entry: "localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			p, err := parsePrefix(tt.entry)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parsePrefix(%q) expected error", tt.entry)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePrefix(%q) error = %v", tt.entry, err)
			}
			if p.String() != tt.want {
				t.Errorf("parsePrefix(%q) = %s, want %s", tt.entry, p, tt.want)
			}
		})
	}
}

func TestNewServerSkipsInvalidEntries(t *testing.T) {
	s := NewServer(New(), "", "", []string{"192.168.1.1", " ", "invalid", "10.0.0.0/8", "fe80::/10"}, discardLogger())

	if len(s.allowed) != 3 {
		t.Errorf("expected 3 allowed networks, got %d", len(s.allowed))
	}
	if s.addr != ":9090" {
		t.Errorf("addr = %q, want :9090", s.addr)
	}
	if s.path != "/metrics" {
		t.Errorf("path = %q, want /metrics", s.path)
	}
}

func TestIsAllowed(t *testing.T) {
	s := NewServer(New(), ":9090", "/metrics", []string{"192.168.1.100", "172.16.0.0/12", "fe80::/10"}, discardLogger())

	tests := map[string]bool{
		"192.168.1.100":        true,
		"192.168.1.101":        false,
		"172.31.255.255":       true,
		"172.32.0.1":           false,
		"fe80::1":              true,
		"2001:db8::1":          false,
		"::ffff:192.168.1.100": true,
	}

	for ip, want := range tests {
		t.Run(ip, func(t *testing.T) {
			if got := s.isAllowed(netip.MustParseAddr(ip)); got != want {
				t.Errorf("isAllowed(%s) = %v, want %v", ip, got, want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		header     http.Header
		want       string
		wantOK     bool
	}{
		{"remote addr", "192.168.1.100:12345", nil, "192.168.1.100", true},
		{"remote addr without port", "192.168.1.100", nil, "192.168.1.100", true},
		{"first forwarded hop", "127.0.0.1:1", http.Header{"X-Forwarded-For": {"10.0.0.1, 192.168.1.1"}}, "10.0.0.1", true},
		{"real ip", "127.0.0.1:1", http.Header{"X-Real-Ip": {"172.16.0.1"}}, "172.16.0.1", true},
		{"garbage forwarded falls through", "127.0.0.1:1", http.Header{"X-Forwarded-For": {"nope"}}, "127.0.0.1", true},
		{"unparseable", "pipe", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.header {
				req.Header[k] = v
			}

			ip, ok := clientIP(req)
			if ok != tt.wantOK {
				t.Fatalf("clientIP() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && ip.String() != tt.want {
				t.Errorf("clientIP() = %s, want %s", ip, tt.want)
			}
		})
	}
}

func TestServerHandler(t *testing.T) {
	m := New()
	m.JobsStartedTotal.WithLabelValues("send").Inc()

	h := NewServer(m, "", "", []string{"127.0.0.1"}, discardLogger()).Handler()

	get := func(path, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/metrics", "127.0.0.1:5000")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `mailpilot_jobs_started_total{kind="send"} 1`) {
		t.Error("metrics output missing mailpilot_jobs_started_total")
	}

	if rec := get("/metrics", "10.1.1.1:5000"); rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d for a denied client, got %d", http.StatusForbidden, rec.Code)
	}
	if rec := get("/health", "10.1.1.1:5000"); rec.Code != http.StatusOK {
		t.Errorf("health should not be filtered, got %d", rec.Code)
	}
}

func TestServerHandlerOpen(t *testing.T) {
	h := NewServer(New(), "", "/prom", nil, discardLogger()).Handler()

	req := httptest.NewRequest("GET", "/prom", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}
