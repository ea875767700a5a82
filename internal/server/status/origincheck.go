package status

import (
	"net/http"
)

const (
	originHeader      = "Origin"
	frameOptionHeader = "X-Frame-Options"
)

// OriginCheck lets a request through only when its Origin header is
// exactly the one listed for its path. Paths that are not listed
// accept requests without an Origin only.
func OriginCheck(allowed map[string]string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed[r.URL.Path] != r.Header.Get(originHeader) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set(frameOptionHeader, "DENY")
			h.ServeHTTP(w, r)
		})
	}
}
