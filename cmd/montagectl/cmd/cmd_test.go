package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"montage/internal/jobs"
	"montage/internal/storage"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("MONTAGE")
	viper.AutomaticEnv()
}

func resetSubmitFlags() {
	_ = submitCmd.Flags().Set("file", "")
	_ = submitCmd.Flags().Set("wait", "false")
	_ = submitCmd.Flags().Set("interval", "2s")
	_ = submitCmd.Flags().Set("timeout", "0")
}

func writeJobFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeJob(w http.ResponseWriter, status int, job jobs.Job) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"job": job})
}

func TestSubmitCommand_Success(t *testing.T) {
	resetViper()
	resetSubmitFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["jobId"] != "job-1" {
			t.Errorf("expected jobId=job-1, got %v", body["jobId"])
		}
		writeJob(w, http.StatusAccepted, jobs.Job{ID: "job-1", Mode: jobs.ModeFlat, State: jobs.StateQueued})
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	file := writeJobFile(t, `{"jobId":"job-1","videoUrl":"http://v","audioUrl":"http://a"}`)
	out, err := execute(t, "submit", "-f", file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Job submitted") || !strings.Contains(out, "job-1") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestSubmitCommand_Wait(t *testing.T) {
	resetViper()
	resetSubmitFlags()

	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJob(w, http.StatusAccepted, jobs.Job{ID: "job-2", State: jobs.StateQueued})
			return
		}
		if polls.Add(1) < 3 {
			writeJob(w, http.StatusOK, jobs.Job{ID: "job-2", State: jobs.StateRendering, Progress: 30})
			return
		}
		writeJob(w, http.StatusOK, jobs.Job{
			ID:       "job-2",
			State:    jobs.StateDone,
			Progress: 100,
			Result:   &jobs.Result{URL: "http://cdn/out.mp4"},
		})
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	file := writeJobFile(t, `{"jobId":"job-2"}`)
	out, err := execute(t, "submit", "-f", file, "--wait", "--interval", "10ms")
	if err != nil {
		t.Fatalf("unexpected error: %v (%s)", err, out)
	}
	if !strings.Contains(out, "http://cdn/out.mp4") {
		t.Errorf("expected result URL in output, got: %s", out)
	}
	if strings.Count(out, "rendering") != 1 {
		t.Errorf("expected one progress line per change, got: %s", out)
	}
}

func TestSubmitCommand_WaitFailedJob(t *testing.T) {
	resetViper()
	resetSubmitFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJob(w, http.StatusAccepted, jobs.Job{ID: "job-3", State: jobs.StateQueued})
			return
		}
		writeJob(w, http.StatusOK, jobs.Job{ID: "job-3", State: jobs.StateError, Error: "encoder exited 1"})
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	file := writeJobFile(t, `{"jobId":"job-3"}`)
	out, err := execute(t, "submit", "-f", file, "--wait", "--interval", "10ms")
	if err == nil {
		t.Fatal("expected an error for a failed job")
	}
	if !strings.Contains(out, "encoder exited 1") {
		t.Errorf("expected job error in output, got: %s", out)
	}
}

func TestSubmitCommand_Rejected(t *testing.T) {
	resetViper()
	resetSubmitFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"CAPACITY_EXCEEDED","message":"capacity"}}`))
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	file := writeJobFile(t, `{"jobId":"job-4"}`)
	_, err := execute(t, "submit", "-f", file)
	if err == nil || !strings.Contains(err.Error(), "CAPACITY_EXCEEDED") {
		t.Fatalf("expected capacity error, got %v", err)
	}
}

func TestSubmitCommand_Validation(t *testing.T) {
	resetViper()
	resetSubmitFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called when validation fails")
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	if _, err := execute(t, "submit"); err == nil || !strings.Contains(err.Error(), "--file is required") {
		t.Errorf("expected missing file error, got %v", err)
	}

	resetSubmitFlags()
	bad := writeJobFile(t, `{"jobId":`)
	if _, err := execute(t, "submit", "-f", bad); err == nil || !strings.Contains(err.Error(), "not valid JSON") {
		t.Errorf("expected invalid JSON error, got %v", err)
	}
}

func TestStatusCommand(t *testing.T) {
	resetViper()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jobs/job-5":
			writeJob(w, http.StatusOK, jobs.Job{
				ID:        "job-5",
				Mode:      jobs.ModeTimeline,
				State:     jobs.StateDone,
				Progress:  100,
				Result:    &jobs.Result{URL: "http://api/downloads/job-5", SizeBytes: 2048, DurationSeconds: 12.5},
				CreatedAt: created,
				UpdatedAt: created.Add(90 * time.Second),
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"job not found: nope"}}`))
		}
	}))
	defer server.Close()
	viper.Set("url", server.URL)

	out, err := execute(t, "status", "job-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"job-5", "timeline", "http://api/downloads/job-5", "2.0 KiB", "1m 30s"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}

	if _, err := execute(t, "status", "nope"); err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "the-code" {
			t.Errorf("expected code=the-code, got %q", r.Form.Get("code"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	redirect := "http://" + ln.Addr().String() + "/callback"
	conf := storage.OAuthConfig("id", "secret", redirect)
	conf.Endpoint = oauth2.Endpoint{AuthURL: tokenServer.URL + "/auth", TokenURL: tokenServer.URL + "/token"}

	// Plays the browser: follow the consent redirect back to the listener.
	browse := func(authURL string) {
		u, err := url.Parse(authURL)
		if err != nil {
			t.Errorf("parse auth url: %v", err)
			return
		}
		if u.Query().Get("access_type") != "offline" {
			t.Errorf("expected offline access, got %s", authURL)
		}
		go func() {
			resp, err := http.Get(redirect + "?code=the-code&state=" + url.QueryEscape(u.Query().Get("state")))
			if err == nil {
				resp.Body.Close()
			}
		}()
	}

	tok, err := authorize(context.Background(), conf, ln, 5*time.Second, browse)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if tok.RefreshToken != "rt" {
		t.Errorf("refresh token = %q", tok.RefreshToken)
	}
}

func TestAuthorize_BadState(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	redirect := "http://" + ln.Addr().String() + "/callback"
	conf := storage.OAuthConfig("id", "secret", redirect)

	browse := func(string) {
		go func() {
			resp, err := http.Get(redirect + "?code=x&state=forged")
			if err == nil {
				resp.Body.Close()
			}
		}()
	}

	if _, err := authorize(context.Background(), conf, ln, 5*time.Second, browse); err == nil || !strings.Contains(err.Error(), "invalid state") {
		t.Fatalf("expected invalid state error, got %v", err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
