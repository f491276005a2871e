package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/0x-b4r47h/project-guardian/internal/config"
	"github.com/0x-b4r47h/project-guardian/internal/logger"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.Server.RateLimit.Enabled = false

	s, err := New(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleAnalyze(t *testing.T) {
	s := newTestServer(t)

	t.Run("standalone phone flagged and masked", func(t *testing.T) {
		rec := postJSON(t, s, "/v1/analyze", map[string]interface{}{
			"record_id": "r1",
			"data":      map[string]string{"phone": "9876543210"},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var resp AnalyzeResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response: %v", err)
		}
		if !resp.HasPII {
			t.Error("expected is_pii = true")
		}
		if resp.RecordID != "r1" {
			t.Errorf("record_id = %q", resp.RecordID)
		}
		if v, _ := resp.Redacted.Get("phone"); v.Str != "98XXXXXX10" {
			t.Errorf("redacted phone = %q", v.Str)
		}
	})

	t.Run("clean record not flagged", func(t *testing.T) {
		rec := postJSON(t, s, "/v1/analyze", map[string]interface{}{
			"data": map[string]string{"product": "laptop"},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp AnalyzeResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.HasPII {
			t.Error("clean record flagged")
		}
	})

	t.Run("missing data field rejected", func(t *testing.T) {
		rec := postJSON(t, s, "/v1/analyze", map[string]interface{}{"record_id": "x"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("non-object data rejected", func(t *testing.T) {
		rec := postJSON(t, s, "/v1/analyze", map[string]interface{}{
			"data": []string{"not", "an", "object"},
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("invalid body rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader([]byte("{broken")))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleAnalyzeBatch(t *testing.T) {
	s := newTestServer(t)

	t.Run("mixed batch", func(t *testing.T) {
		rec := postJSON(t, s, "/v1/analyze/batch", map[string]interface{}{
			"records": []map[string]interface{}{
				{"record_id": "a", "data": map[string]string{"aadhar": "234567890123"}},
				{"record_id": "b", "data": map[string]string{"city": "Mumbai"}},
			},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var resp BatchAnalyzeResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Total != 2 || resp.Flagged != 1 {
			t.Errorf("total/flagged = %d/%d, want 2/1", resp.Total, resp.Flagged)
		}
		if v, _ := resp.Results[0].Redacted.Get("aadhar"); v.Str != "XXXXXXXX0123" {
			t.Errorf("redacted aadhar = %q", v.Str)
		}
		if resp.Results[1].HasPII {
			t.Error("city alone should not be flagged")
		}
	})

	t.Run("empty batch rejected", func(t *testing.T) {
		rec := postJSON(t, s, "/v1/analyze/batch", map[string]interface{}{"records": []string{}})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleHealthAndInfo(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/info", "/stats"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("GET %s content type = %q", path, ct)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Server.RateLimit.RequestsPerSec = 1
	cfg.Server.RateLimit.Burst = 2

	s, err := New(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	body := []byte(`{"data":{"a":"b"}}`)
	var lastCode int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(body))
		req.RemoteAddr = "203.0.113.9:1234"
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Errorf("burst exhausted status = %d, want 429", lastCode)
	}

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.10:1234"
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("fresh client status = %d, want 200", rec.Code)
	}
}
