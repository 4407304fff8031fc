package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware behaviour.
type CORSConfig struct {
	// AllowOrigins lists origins permitted to make cross-origin requests.
	// Empty, or the single entry "*", allows every origin.
	AllowOrigins []string

	// AllowMethods lists the HTTP methods clients may use in actual requests.
	// Defaults to "GET, POST, PUT, DELETE, OPTIONS" when empty.
	AllowMethods []string

	// AllowHeaders lists the request headers clients may send. When empty the
	// preflight's Access-Control-Request-Headers is echoed back.
	AllowHeaders []string

	// ExposeHeaders lists response headers scripts may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and Authorization on cross-origin
	// requests. The Fetch standard forbids combining credentials with a
	// wildcard origin, so enabling this forces per-origin echoing.
	AllowCredentials bool

	// MaxAge is how long (seconds) browsers may cache preflight results.
	// Zero omits the header; negative sends "0".
	MaxAge int
}

// cors is the precomputed middleware state: everything derivable from the
// config is resolved once at construction.
type cors struct {
	cfg           CORSConfig
	allowAll      bool
	origins       map[string]string // lowercase -> configured case
	allowMethods  string
	allowHeaders  string
	exposeHeaders string
	maxAge        string
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing.
// Origin matching is case-insensitive; Vary headers are set so shared caches
// never serve one origin's CORS response to another.
func CORS(cfg CORSConfig) Middleware {
	c := &cors{
		cfg:           cfg,
		allowAll:      len(cfg.AllowOrigins) == 0,
		origins:       make(map[string]string, len(cfg.AllowOrigins)),
		allowMethods:  strings.Join(cfg.AllowMethods, ", "),
		allowHeaders:  strings.Join(cfg.AllowHeaders, ", "),
		exposeHeaders: strings.Join(cfg.ExposeHeaders, ", "),
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			c.allowAll = true
			break
		}
		c.origins[strings.ToLower(o)] = o
	}
	if cfg.AllowCredentials {
		// Credentials + wildcard is forbidden by the Fetch standard; echo
		// the specific origin instead.
		c.allowAll = false
	}
	if c.allowMethods == "" {
		c.allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	if cfg.MaxAge > 0 {
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	} else if cfg.MaxAge < 0 {
		c.maxAge = "0"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.serve(w, r, next)
		})
	}
}

func (c *cors) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	origin := r.Header.Get("Origin")

	// Same-origin request. Still vary on Origin so a cached response is
	// never reused for a later cross-origin request.
	if origin == "" {
		if !c.allowAll {
			w.Header().Add("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
		return
	}

	// Preflights are OPTIONS carrying Access-Control-Request-Method.
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		c.preflight(w, r, origin)
		return
	}

	if !c.allowAll {
		w.Header().Add("Vary", "Origin")
	}
	if allow := c.allowOrigin(origin); allow != "" {
		w.Header().Set("Access-Control-Allow-Origin", allow)
		if c.cfg.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if c.exposeHeaders != "" {
			w.Header().Set("Access-Control-Expose-Headers", c.exposeHeaders)
		}
	}

	next.ServeHTTP(w, r)
}

func (c *cors) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	allow := c.allowOrigin(origin)
	if allow == "" {
		// Disallowed origin: 204 with no CORS headers, the browser blocks it.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Allow-Methods", c.allowMethods)

	if c.allowHeaders != "" {
		h.Set("Access-Control-Allow-Headers", c.allowHeaders)
	} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
		h.Set("Access-Control-Allow-Headers", rh)
	}
	if c.cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if c.maxAge != "" {
		h.Set("Access-Control-Max-Age", c.maxAge)
	}

	w.WriteHeader(http.StatusNoContent)
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin,
// or "" when the origin is not allowed.
func (c *cors) allowOrigin(origin string) string {
	if c.allowAll {
		return "*"
	}
	if orig, ok := c.origins[strings.ToLower(origin)]; ok {
		return orig
	}
	return ""
}
