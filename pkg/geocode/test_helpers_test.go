package geocode

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"golang.org/x/time/rate"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newTestServer serves body with status and counts requests.
func newTestServer(t *testing.T, status int, body string, hits *atomic.Int32, check func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, opts ...Option) *nominatim {
	n := NewClient(append([]Option{WithBaseURL(srv.URL), WithHTTPClient(srv.Client())}, opts...)...).(*nominatim)
	n.limiter = newTestLimiter()
	return n
}
