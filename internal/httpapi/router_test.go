package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"montage/internal/adapters/storage/localfs"
	"montage/internal/httpapi/handlers"
	"montage/internal/jobs"
	"montage/internal/models"
	"montage/internal/pkg/errors"
	"montage/internal/ratelimit"
	"montage/internal/repositories"
	"montage/internal/worker/processor"
)

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]jobs.Job
}

func (f *fakeJobs) Get(id string) (jobs.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	return j, ok
}

func (f *fakeJobs) Active() (int, int) { return 1, 5 }

type fakeSubmitter struct {
	err       error
	submitted []*processor.ParsedJob
}

func (f *fakeSubmitter) Submit(ctx context.Context, job *processor.ParsedJob) (jobs.Job, error) {
	if f.err != nil {
		return jobs.Job{}, f.err
	}
	f.submitted = append(f.submitted, job)
	return jobs.Job{ID: job.ID, Mode: job.Mode, State: jobs.StateQueued}, nil
}

type fakeTemplates struct {
	mu    sync.Mutex
	items map[string]*models.Template
}

func newFakeTemplates() *fakeTemplates {
	return &fakeTemplates{items: map[string]*models.Template{}}
}

func (f *fakeTemplates) Create(ctx context.Context, t *models.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.Name == t.Name {
			return repositories.ErrTemplateNameExists
		}
	}
	if t.ID == "" {
		t.ID = "tpl-" + t.Name
	}
	t.CreatedAt = time.Now()
	f.items[t.ID] = t
	return nil
}

func (f *fakeTemplates) List(ctx context.Context) ([]models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Template{}
	for _, t := range f.items {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeTemplates) Get(ctx context.Context, id string) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTemplates) Update(ctx context.Context, id string, p models.TemplatePatch) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrTemplateNotFound
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Effects != nil {
		t.Effects = *p.Effects
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTemplates) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return repositories.ErrTemplateNotFound
	}
	delete(f.items, id)
	return nil
}

type fixture struct {
	router    http.Handler
	jobs      *fakeJobs
	submitter *fakeSubmitter
	files     string
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		jobs:      &fakeJobs{jobs: map[string]jobs.Job{}},
		submitter: &fakeSubmitter{},
		files:     root,
	}
	d := Deps{
		Handlers: handlers.Deps{
			Jobs:       f.jobs,
			Submitter:  f.submitter,
			Parser:     processor.NewJobParser(nil),
			SP:         localfs.New(root, "http://example.test"),
			FFmpegPath: "definitely-not-an-encoder",
			WorkDir:    root,
		},
		FilesRoot: root,
	}
	if mutate != nil {
		mutate(&d)
	}
	f.router = NewRouter(d)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, rec.Body.String())
	}
	return env.Error.Code
}

const flatJob = `{"jobId":"job-1","videoUrl":"http://media.test/v.mp4","audioUrl":"http://media.test/a.mp3"}`

func TestPostJob(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		submitErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "accepted", body: flatJob, wantStatus: http.StatusAccepted},
		{name: "malformed json", body: `{"jobId":`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "missing job id", body: `{"videoUrl":"http://a","audioUrl":"http://b"}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "no media", body: `{"jobId":"x"}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "capacity", body: flatJob, submitErr: errors.Capacity(5, 5), wantStatus: http.StatusServiceUnavailable, wantCode: "CAPACITY_EXCEEDED"},
		{name: "duplicate", body: flatJob, submitErr: errors.Conflict("job already active"), wantStatus: http.StatusConflict, wantCode: "CONFLICT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.submitter.err = tt.submitErr

			rec := f.do(http.MethodPost, "/jobs", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" {
				if got := errorCode(t, rec); got != tt.wantCode {
					t.Errorf("code = %q, want %q", got, tt.wantCode)
				}
				if len(f.submitter.submitted) != 0 {
					t.Error("rejected submission must not be admitted")
				}
				return
			}

			var resp struct {
				Job jobs.Job `json:"job"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Job.ID != "job-1" || resp.Job.State != jobs.StateQueued {
				t.Errorf("unexpected job %+v", resp.Job)
			}
		})
	}
}

func TestPostJobRateLimited(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.RateLimit = ratelimit.New(ratelimit.Options{RPM: 1}).Middleware
	})

	if rec := f.do(http.MethodPost, "/jobs", flatJob); rec.Code != http.StatusAccepted {
		t.Fatalf("first submission: status = %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/jobs", flatJob)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second submission: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Status reads are not limited.
	if rec := f.do(http.MethodGet, "/jobs/job-1", ""); rec.Code == http.StatusTooManyRequests {
		t.Error("GET /jobs must not be rate limited")
	}
}

func TestGetJob(t *testing.T) {
	f := newFixture(t, nil)
	f.jobs.jobs["known"] = jobs.Job{ID: "known", State: jobs.StateRendering, Progress: 30}

	rec := f.do(http.MethodGet, "/jobs/known", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Job jobs.Job `json:"job"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Job.Progress != 30 || resp.Job.State != jobs.StateRendering {
		t.Errorf("unexpected job %+v", resp.Job)
	}

	rec = f.do(http.MethodGet, "/jobs/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job: status = %d", rec.Code)
	}
	if got := errorCode(t, rec); got != "NOT_FOUND" {
		t.Errorf("code = %q", got)
	}
}

func TestDownload(t *testing.T) {
	f := newFixture(t, nil)
	out := filepath.Join(t.TempDir(), "output.mp4")
	if err := os.WriteFile(out, []byte("mp4-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.jobs.jobs["done"] = jobs.Job{ID: "done", State: jobs.StateDone, OutputPath: out}
	f.jobs.jobs["busy"] = jobs.Job{ID: "busy", State: jobs.StateRendering}
	f.jobs.jobs["gone"] = jobs.Job{ID: "gone", State: jobs.StateDone, OutputPath: out + ".missing"}

	rec := f.do(http.MethodGet, "/downloads/done", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "mp4-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "done.mp4") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	for _, id := range []string{"busy", "gone", "nope"} {
		if rec := f.do(http.MethodGet, "/downloads/"+id, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", id, rec.Code)
		}
	}
}

func TestFiles(t *testing.T) {
	f := newFixture(t, nil)
	dir := filepath.Join(f.files, "renders", "p1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "output.mp4"), []byte("stored"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := f.do(http.MethodGet, "/files/renders/p1/output.mp4", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "stored" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}

	if rec := f.do(http.MethodGet, "/files/renders/p1/", ""); rec.Code != http.StatusNotFound {
		t.Errorf("directory listing: status = %d, want 404", rec.Code)
	}
}

func TestTemplates(t *testing.T) {
	store := newFakeTemplates()
	f := newFixture(t, func(d *Deps) { d.Handlers.Templates = store })

	rec := f.do(http.MethodPost, "/templates", `{"name":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name: status = %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/templates", `{"name":"bad","effects":{"fade":"slow"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid effects: status = %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/templates", `{"name":"reels","effects":{"speed":{"factor":2}}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Template models.Template `json:"template"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	id := created.Template.ID

	if rec := f.do(http.MethodPost, "/templates", `{"name":"reels"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate name: status = %d, want 409", rec.Code)
	}

	if rec := f.do(http.MethodGet, "/templates", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "reels") {
		t.Errorf("list: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodPatch, "/templates/"+id, `{"name":"shorts"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "shorts") {
		t.Errorf("patch: status = %d body = %s", rec.Code, rec.Body.String())
	}

	if rec := f.do(http.MethodPatch, "/templates/"+id, `{"unknown":1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("patch unknown field: status = %d, want 400", rec.Code)
	}

	if rec := f.do(http.MethodDelete, "/templates/"+id, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/templates/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted: status = %d, want 404", rec.Code)
	}
}

func TestTemplatesWithoutDatabase(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/templates", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := errorCode(t, rec); got != "UNAVAILABLE" {
		t.Errorf("code = %q", got)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var shallow map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &shallow); err != nil {
		t.Fatal(err)
	}
	if shallow["status"] != "ok" {
		t.Errorf("status = %v", shallow["status"])
	}
	if _, ok := shallow["checks"]; ok {
		t.Error("shallow health must not run checks")
	}

	rec = f.do(http.MethodGet, "/health?deep=true", "")
	var deep struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &deep); err != nil {
		t.Fatal(err)
	}
	// The encoder binary does not exist in the fixture.
	if deep.Status != "degraded" {
		t.Errorf("status = %q, want degraded", deep.Status)
	}
	if deep.Checks["encoder"]["status"] != "error" {
		t.Errorf("encoder check = %v", deep.Checks["encoder"])
	}
	if deep.Checks["postgres"]["status"] != "disabled" {
		t.Errorf("postgres check = %v", deep.Checks["postgres"])
	}
	if deep.Checks["storage"]["provider"] != "localfs" {
		t.Errorf("storage check = %v", deep.Checks["storage"])
	}
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on every response")
	}
}
