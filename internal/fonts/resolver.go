// Package fonts maps font family names to local font files.
package fonts

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SystemDefault is used when no family in the chain is installed.
const SystemDefault = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"

var fallbackChain = []string{"Inter", "Roboto"}

// Resolver looks up families under a fonts directory. Lookups never fail:
// the requested family falls back to Inter, then Roboto, then SystemDefault.
type Resolver struct {
	dir string

	mu    sync.Mutex
	index map[string]string
}

func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// Dir is the directory passed to the subtitles filter as fontsdir.
func (r *Resolver) Dir() string { return r.dir }

func (r *Resolver) Resolve(family string) string {
	idx := r.load()
	for _, name := range append([]string{family}, fallbackChain...) {
		if p, ok := idx[normalize(name)]; ok {
			return p
		}
	}
	return SystemDefault
}

// Refresh drops the cached directory index.
func (r *Resolver) Refresh() {
	r.mu.Lock()
	r.index = nil
	r.mu.Unlock()
}

func (r *Resolver) load() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index != nil {
		return r.index
	}
	r.index = map[string]string{}
	if r.dir == "" {
		return r.index
	}
	_ = filepath.WalkDir(r.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".ttf" && ext != ".otf" {
			return nil
		}
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		// "Inter-Regular" and "Inter" both register as "inter"; regular wins.
		family, weight, _ := strings.Cut(base, "-")
		key := normalize(family)
		if _, exists := r.index[key]; !exists || strings.EqualFold(weight, "regular") {
			r.index[key] = path
		}
		if full := normalize(base); full != key {
			r.index[full] = path
		}
		return nil
	})
	return r.index
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(name)
}
