package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/2cloudlabs/yolo-transcript/internal/config"
)

func newTestRouter(cfg *config.Config) http.Handler {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":0"
	}
	s := NewServer(cfg, Deps{Version: "test", StartTime: time.Now()}, zerolog.Nop())
	return s.http.Handler
}

func TestServerRateLimiting(t *testing.T) {
	h := newTestRouter(&config.Config{RateLimitRPS: 1, RateLimitBurst: 1})

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest("GET", "/nope", nil))
	if first.Code == http.StatusTooManyRequests {
		t.Fatal("first request must pass the limiter")
	}

	// httptest requests share a RemoteAddr, so the bucket is exhausted.
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest("GET", "/nope", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") != "1" {
		t.Error("429 response must carry Retry-After")
	}
}

func TestServerRateLimitingDisabled(t *testing.T) {
	h := newTestRouter(&config.Config{})
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d rate-limited while limiting is disabled", i)
		}
	}
}
