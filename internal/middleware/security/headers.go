// Package security sets response headers for the JSON API.
package security

import (
	"net/http"
	"strconv"
)

// HeadersConfig holds the header values applied to every response.
type HeadersConfig struct {
	ContentTypeOptions string
	FrameOptions       string
	ReferrerPolicy     string
	CacheControl       string
	HSTSMaxAge         int // seconds; zero disables HSTS
}

func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		ContentTypeOptions: "nosniff",
		FrameOptions:       "DENY",
		ReferrerPolicy:     "no-referrer",
		CacheControl:       "no-store",
	}
}

// Headers sets the configured headers. Strict-Transport-Security is only sent
// over TLS.
func Headers(cfg HeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			setIf(h, "X-Content-Type-Options", cfg.ContentTypeOptions)
			setIf(h, "X-Frame-Options", cfg.FrameOptions)
			setIf(h, "Referrer-Policy", cfg.ReferrerPolicy)
			setIf(h, "Cache-Control", cfg.CacheControl)
			if cfg.HSTSMaxAge > 0 && r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(cfg.HSTSMaxAge)+"; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setIf(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}
