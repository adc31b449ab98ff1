package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/lifelink/lifelink/internal/api/models"
)

// ContentTypeJSON sets the Content-Type header to application/json.
// Handlers that stream other content override it.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireContentType rejects POST, PUT and PATCH requests whose body has a
// media type outside allowed. Requests without a body pass.
func RequireContentType(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				next.ServeHTTP(w, r)
				return
			}

			ct := r.Header.Get("Content-Type")
			if ct == "" || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(ct)
			if err == nil {
				for _, a := range allowed {
					if strings.EqualFold(mediaType, a) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			problem := models.NewUnsupportedMediaType(GetRequestID(r.Context()),
				"Content-Type must be one of "+strings.Join(allowed, ", "))
			problem.Instance = r.URL.Path
			problem.Write(w)
		})
	}
}
