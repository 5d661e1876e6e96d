package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, nil)
	defer rl.Stop()
	h := rl.Wrap(okHandler())

	for i := 0; i < 3; i++ {
		if w := doRequest(t, h, "10.0.0.1:4000"); w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i+1, w.Code)
		}
	}

	w := doRequest(t, h, "10.0.0.1:4000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request over limit: got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
	if body := w.Body.String(); body == "" || w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON error body, got %q", body)
	}
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, nil)
	defer rl.Stop()
	h := rl.Wrap(okHandler())

	if w := doRequest(t, h, "10.0.0.1:4000"); w.Code != http.StatusOK {
		t.Fatalf("first client: got %d, want 200", w.Code)
	}
	if w := doRequest(t, h, "10.0.0.1:4001"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("same IP, new port: got %d, want 429 (port must not split the bucket)", w.Code)
	}
	if w := doRequest(t, h, "10.0.0.2:4000"); w.Code != http.StatusOK {
		t.Fatalf("different IP: got %d, want 200", w.Code)
	}
}

func TestRateLimiter_ZeroDisablesLimit(t *testing.T) {
	rl := NewRateLimiter(0, nil)
	defer rl.Stop()
	h := rl.Wrap(okHandler())

	for i := 0; i < 50; i++ {
		if w := doRequest(t, h, "10.0.0.1:4000"); w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d with limiting disabled", i+1, w.Code)
		}
	}
}

func TestRateLimiter_WebSocketUpgradeBypasses(t *testing.T) {
	rl := NewRateLimiter(1, nil)
	defer rl.Stop()
	h := rl.Wrap(okHandler())

	// Exhaust the bucket.
	doRequest(t, h, "10.0.0.1:4000")

	req := httptest.NewRequest(http.MethodGet, "/ws/query", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upgrade request: got %d, want 200", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.7:55123"
	if got := clientIP(r); got != "192.168.1.7" {
		t.Errorf("clientIP = %q, want 192.168.1.7", got)
	}

	r.RemoteAddr = "no-port-here"
	if got := clientIP(r); got != "no-port-here" {
		t.Errorf("clientIP without port = %q, want raw value", got)
	}
}

func TestAccessLog_PassesThrough(t *testing.T) {
	h := AccessLog(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	w := doRequest(t, h, "10.0.0.1:4000")
	if w.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
	if w.Body.String() != "short and stout" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/api/v1/query":                        "/api/v1/query",
		"/api/v1/products":                     "/api/v1/products",
		"/api/v1/products/Arogya%20Sanjeevani": "/api/v1/products/:id",
		"/api/v1/sessions/abc-123":             "/api/v1/sessions/:id",
		"/api/v1/reasoning/executions/xyz":     "/api/v1/reasoning/executions/:id",
		"/health":                              "/health",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
