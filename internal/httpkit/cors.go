package httpkit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSOptions configures the CORS middleware. An origin of "*" matches any
// origin; the request's own Origin is still echoed back.
type CORSOptions struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         time.Duration
}

type corsPolicy struct {
	any     bool
	origins map[string]struct{}
	methods string
	headers string
	exposed string
	maxAge  string
}

func newCORSPolicy(opt CORSOptions) *corsPolicy {
	p := &corsPolicy{
		origins: make(map[string]struct{}, len(opt.AllowedOrigins)),
		methods: "GET, POST, PUT, DELETE, OPTIONS",
		headers: "Content-Type, Accept, Authorization, X-Request-ID",
		exposed: strings.Join(opt.ExposedHeaders, ", "),
		maxAge:  "600",
	}
	for _, o := range opt.AllowedOrigins {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[o] = struct{}{}
		}
	}
	if len(opt.AllowedMethods) > 0 {
		p.methods = strings.Join(opt.AllowedMethods, ", ")
	}
	if len(opt.AllowedHeaders) > 0 {
		p.headers = strings.Join(opt.AllowedHeaders, ", ")
	}
	if opt.MaxAge > 0 {
		p.maxAge = strconv.Itoa(int(opt.MaxAge / time.Second))
	}
	return p
}

func (p *corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

func (p *corsPolicy) apply(h http.Header, origin string) {
	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")
	h.Set("Access-Control-Allow-Methods", p.methods)
	h.Set("Access-Control-Allow-Headers", p.headers)
	h.Set("Access-Control-Max-Age", p.maxAge)
	if p.exposed != "" {
		h.Set("Access-Control-Expose-Headers", p.exposed)
	}
}

// CORS answers preflight requests with 204 and decorates responses for
// allowed origins. Requests from other origins pass through untouched.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	p := newCORSPolicy(opt)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); p.allows(origin) {
				p.apply(w.Header(), origin)
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
