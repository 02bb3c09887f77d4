package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CORSConfig holds configuration for CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists exact origins, "*" or, with AllowWildcard,
	// subdomain patterns such as "*.example.com".
	AllowedOrigins []string
	AllowedMethods []string
	// AllowedHeaders of ["*"] echoes whatever the preflight asks for.
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
	AllowWildcard    bool

	// Origins, when set, takes precedence over AllowedOrigins and may be
	// replaced while the middleware is serving.
	Origins *Origins
}

// DefaultCORSConfig allows the local frontend with credentials and any
// method or header.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			HeaderRequestID,
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

type originMatcher struct {
	allowAll bool
	exact    map[string]bool
	suffixes []string
}

func newOriginMatcher(origins []string, wildcard bool) *originMatcher {
	m := &originMatcher{exact: make(map[string]bool, len(origins))}
	for _, origin := range origins {
		switch {
		case origin == "*":
			m.allowAll = true
		case wildcard && strings.HasPrefix(origin, "*."):
			m.suffixes = append(m.suffixes, strings.ToLower(origin[1:]))
		default:
			m.exact[strings.ToLower(strings.TrimSuffix(origin, "/"))] = true
		}
	}
	return m
}

func (m *originMatcher) allowed(origin string) bool {
	if m.allowAll {
		return true
	}
	origin = strings.ToLower(origin)
	if m.exact[origin] {
		return true
	}
	for _, s := range m.suffixes {
		if strings.HasSuffix(origin, s) {
			return true
		}
	}
	return false
}

// Origins is a CORS allow-list that can be swapped at runtime.
type Origins struct {
	wildcard bool
	m        atomic.Pointer[originMatcher]
}

// NewOrigins builds an allow-list. With wildcard, "*.example.com" matches
// any subdomain.
func NewOrigins(origins []string, wildcard bool) *Origins {
	o := &Origins{wildcard: wildcard}
	o.Set(origins)
	return o
}

// Set replaces the allowed origins.
func (o *Origins) Set(origins []string) {
	o.m.Store(newOriginMatcher(origins, o.wildcard))
}

// Allowed reports whether origin passes the current list.
func (o *Origins) Allowed(origin string) bool { return o.m.Load().allowed(origin) }

// CORS answers preflight requests with 204 and decorates allowed
// cross-origin responses. Requests from other origins pass through without
// CORS headers and are blocked by the browser.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)
	echoHeaders := len(cfg.AllowedHeaders) == 1 && cfg.AllowedHeaders[0] == "*"
	origins := cfg.Origins
	if origins == nil {
		origins = NewOrigins(cfg.AllowedOrigins, cfg.AllowWildcard)
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		match := origins.m.Load()
		if origin == "" || !match.allowed(origin) {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Add("Vary", "Origin")
		if match.allowAll && !cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			// Credentials forbid a literal "*".
			h.Set("Access-Control-Allow-Origin", origin)
		}
		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if exposed != "" {
			h.Set("Access-Control-Expose-Headers", exposed)
		}

		if c.Request.Method != http.MethodOptions || c.GetHeader("Access-Control-Request-Method") == "" {
			c.Next()
			return
		}

		h.Add("Vary", "Access-Control-Request-Method")
		h.Add("Vary", "Access-Control-Request-Headers")
		h.Set("Access-Control-Allow-Methods", methods)
		if echoHeaders {
			if req := c.GetHeader("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			}
		} else if headers != "" {
			h.Set("Access-Control-Allow-Headers", headers)
		}
		if cfg.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", maxAge)
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}
