package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"montage/internal/pkg/errors"
	"montage/internal/pkg/logger"
)

func newLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Config{Level: "debug", Format: "json", Output: buf})
}

// records decodes the JSON log lines written to buf.
func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFrom(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		check  func(t *testing.T, got string)
	}{
		{
			name: "generates a uuid",
			check: func(t *testing.T, got string) {
				if _, err := uuid.Parse(got); err != nil {
					t.Errorf("expected a uuid request ID, got %q", got)
				}
			},
		},
		{
			name:   "keeps the caller's id",
			header: "render-batch-7",
			check: func(t *testing.T, got string) {
				if got != "render-batch-7" {
					t.Errorf("got %q", got)
				}
			},
		},
		{
			name:   "replaces an oversized id",
			header: strings.Repeat("a", 500),
			check: func(t *testing.T, got string) {
				if len(got) != 36 {
					t.Errorf("expected a fresh uuid, got %d chars", len(got))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			tt.check(t, got)
			if seen != got {
				t.Errorf("context id %q differs from header %q", seen, got)
			}
		})
	}
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		level  string
	}{
		{"accepted job logs info", "/jobs", http.StatusAccepted, "INFO"},
		{"status poll is quiet", "/jobs/abc", http.StatusOK, "DEBUG"},
		{"health probe is quiet", "/health", http.StatusOK, "DEBUG"},
		{"missing job warns", "/jobs/abc", http.StatusNotFound, "WARN"},
		{"server error", "/jobs", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := Logging(newLogger(&buf), "/health", "/jobs/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("ok"))
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			recs := records(t, &buf)
			if len(recs) != 1 {
				t.Fatalf("expected one record, got %d", len(recs))
			}
			r := recs[0]
			if r["level"] != tt.level {
				t.Errorf("level = %v, want %s", r["level"], tt.level)
			}
			if r["msg"] != "request completed" || r["path"] != tt.path {
				t.Errorf("unexpected record %v", r)
			}
			if r["size"] != float64(2) {
				t.Errorf("size = %v, want 2", r["size"])
			}
			if _, ok := r["duration_ms"]; !ok {
				t.Error("expected duration_ms")
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	handler := Recovery(newLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("compiler blew up")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("expected INTERNAL_ERROR in body, got: %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "compiler blew up") {
		t.Errorf("panic value leaked to client: %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") || !strings.Contains(buf.String(), "compiler blew up") {
		t.Errorf("expected panic to be logged, got: %s", buf.String())
	}
}

func TestResponseWriter(t *testing.T) {
	rw := wrapResponseWriter(httptest.NewRecorder())
	if rw.status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", rw.status)
	}

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("hello world"))

	if rw.status != http.StatusAccepted {
		t.Errorf("expected first status to stick, got %d", rw.status)
	}
	if rw.size != 11 {
		t.Errorf("expected size 11, got %d", rw.size)
	}
}

func TestWrapHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
		hidden     string
	}{
		{name: "success", wantStatus: http.StatusOK},
		{name: "not found", err: errors.NotFound("job", "j1"), wantStatus: 404, wantCode: "NOT_FOUND", wantMsg: "request error"},
		{name: "validation", err: errors.ValidationField("jobId", "jobId is required"), wantStatus: 400, wantCode: "VALIDATION_ERROR", wantMsg: "request error"},
		{name: "capacity is backpressure", err: errors.Capacity(5, 5), wantStatus: 503, wantCode: "CAPACITY_EXCEEDED", wantMsg: "request refused"},
		{name: "internal hides message", err: errors.Internal("db password is hunter2"), wantStatus: 500, wantCode: "INTERNAL_ERROR", wantMsg: "request failed", hidden: "hunter2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := WrapHandler(newLogger(&buf), func(w http.ResponseWriter, r *http.Request) error {
				if tt.err != nil {
					return tt.err
				}
				w.WriteHeader(http.StatusOK)
				return nil
			})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/j1", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.err == nil {
				if buf.Len() != 0 {
					t.Errorf("success must not log, got %s", buf.String())
				}
				return
			}
			if !strings.Contains(rec.Body.String(), tt.wantCode) {
				t.Errorf("expected %s in body, got %s", tt.wantCode, rec.Body.String())
			}
			if tt.hidden != "" && strings.Contains(rec.Body.String(), tt.hidden) {
				t.Errorf("internal message leaked: %s", rec.Body.String())
			}
			if !strings.Contains(buf.String(), tt.wantMsg) {
				t.Errorf("expected log %q, got %s", tt.wantMsg, buf.String())
			}
		})
	}
}
