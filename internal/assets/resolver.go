package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"montage/internal/pkg/errors"
	"montage/internal/pkg/logger"
	"montage/internal/ports"
)

// Resolver downloads source references into a job workspace.
type Resolver struct {
	sp      ports.StorageProvider
	client  *http.Client
	timeout time.Duration
	log     *logger.Logger
}

type Options struct {
	// Storage enables the credentialed path for references the provider
	// recognises. Nil means plain HTTP only.
	Storage ports.StorageProvider
	Client  *http.Client
	// Timeout bounds each individual download.
	Timeout time.Duration
	Log     *logger.Logger
}

func NewResolver(opts Options) *Resolver {
	r := &Resolver{sp: opts.Storage, client: opts.Client, timeout: opts.Timeout, log: opts.Log}
	if r.client == nil {
		r.client = &http.Client{}
	}
	if r.timeout <= 0 {
		r.timeout = 5 * time.Minute
	}
	if r.log == nil {
		r.log = logger.NewDefault()
	}
	r.log = r.log.WithComponent("assets")
	return r
}

// FetchAll downloads every distinct reference concurrently and returns the
// reference to path map. The first failure cancels the rest and is returned.
func (r *Resolver) FetchAll(ctx context.Context, ws *Workspace, refs []string) (map[string]string, error) {
	var distinct []string
	seen := map[string]struct{}{}
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		distinct = append(distinct, ref)
	}

	paths := make([]string, len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range distinct {
		g.Go(func() error {
			p, err := r.Fetch(gctx, ws, i, ref)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(distinct))
	for i, ref := range distinct {
		out[ref] = paths[i]
	}
	return out, nil
}

// Fetch downloads one reference. References the storage provider
// recognises are read through it first; if that fails and the reference is
// an HTTP URL, a plain download is attempted before giving up.
func (r *Resolver) Fetch(ctx context.Context, ws *Workspace, index int, ref string) (string, error) {
	log := r.log.FromContext(ctx).WithJobID(ws.JobID())

	if r.sp != nil {
		if key, ok := r.storageKey(ref); ok {
			p, err := r.fetchStorage(ctx, ws, index, key)
			if err == nil {
				log.Debug("asset fetched from storage", "ref", ref, "provider", r.sp.Provider())
				return p, nil
			}
			if !isHTTP(ref) {
				return "", errors.Resource(err, "assets.fetch", "storage download failed").WithField("ref", ref)
			}
			log.Warn("storage download failed, retrying over http", "ref", ref, "error", err.Error())
		}
	}

	if !isHTTP(ref) {
		return "", errors.Resource(fmt.Errorf("unsupported reference %q", ref), "assets.fetch", "cannot fetch asset").WithField("ref", ref)
	}
	p, err := r.fetchHTTP(ctx, ws, index, ref)
	if err != nil {
		return "", errors.Resource(err, "assets.fetch", "http download failed").WithField("ref", ref)
	}
	log.Debug("asset fetched over http", "ref", ref)
	return p, nil
}

func (r *Resolver) storageKey(ref string) (string, bool) {
	if key, ok := strings.CutPrefix(ref, "storage://"); ok {
		return key, key != ""
	}
	return r.sp.ObjectKeyFromURL(ref)
}

func (r *Resolver) fetchStorage(ctx context.Context, ws *Workspace, index int, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rc, contentType, _, err := r.sp.GetObject(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	ext := extFromRef("file:///" + key)
	if ext == "" {
		ext = ExtFromMime(contentType)
	}
	return save(ws, index, ext, rc)
}

func (r *Resolver) fetchHTTP(ctx context.Context, ws *Workspace, index int, ref string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	ext := extFromRef(ref)
	if ext == "" {
		ext = ExtFromMime(resp.Header.Get("Content-Type"))
	}
	return save(ws, index, ext, resp.Body)
}

// save streams src into a tracked workspace file.
func save(ws *Workspace, index int, ext string, src io.Reader) (string, error) {
	p := ws.Path(fmt.Sprintf("asset%d%s", index, ext))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", err
	}
	return p, nil
}

func isHTTP(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
