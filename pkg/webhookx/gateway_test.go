package webhookx

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

func TestSecretTokenRequired(t *testing.T) {
	h := RequireSecretToken("s3cret", okHandler())

	req := httptest.NewRequest(http.MethodPost, "/hooks/b", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("missing token: status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/hooks/b", nil)
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("wrong token: status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/hooks/b", nil)
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("correct token: status = %d", rr.Code)
	}
}

func TestEmptyTokenDisablesCheck(t *testing.T) {
	h := RequireSecretToken("", okHandler())
	req := httptest.NewRequest(http.MethodPost, "/hooks/b", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestIPWhitelist(t *testing.T) {
	h := Middleware(SecConfig{IPWhitelist: []string{"10.0.0.1", "149.154.160.0/20"}})(okHandler())

	cases := []struct {
		remote string
		want   int
	}{
		{"10.0.0.1:5000", http.StatusOK},
		{"149.154.167.99:443", http.StatusOK},
		{"192.0.2.1:5000", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/hooks/b", nil)
		req.RemoteAddr = tc.remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.remote, rr.Code, tc.want)
		}
	}
}

func TestProbesExemptFromWhitelist(t *testing.T) {
	h := Middleware(SecConfig{IPWhitelist: []string{"10.0.0.1"}})(okHandler())

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.1:5000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rr.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	h := Middleware(SecConfig{RPS: 1, Burst: 2})(okHandler())

	var throttled bool
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/hooks/b", nil)
		req.RemoteAddr = "203.0.113.7:1000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			throttled = true
		}
	}
	if !throttled {
		t.Fatalf("burst of 10 never throttled at rps=1 burst=2")
	}
}

func TestRateLimitIsPerSource(t *testing.T) {
	h := Middleware(SecConfig{RPS: 1, Burst: 1})(okHandler())

	// Exhaust one source, then a different source must still pass.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/hooks/b", nil)
		req.RemoteAddr = "203.0.113.7:1000"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	req := httptest.NewRequest(http.MethodPost, "/hooks/b", nil)
	req.RemoteAddr = "198.51.100.9:1000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("fresh source throttled: status = %d", rr.Code)
	}
}
