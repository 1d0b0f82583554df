package api

import (
	"net/http"
	"slices"
)

// cors sets Access-Control-Allow-Origin for requests whose Origin is in the
// configured allow list.
func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := h.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) allowedOrigin(origin string) string {
	switch {
	case origin == "":
		return ""
	case slices.Contains(h.origins, "*"):
		return "*"
	case slices.Contains(h.origins, origin):
		return origin
	default:
		return ""
	}
}

func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	if h.allowedOrigin(r.Header.Get("Origin")) != "" {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "600")
	}
	w.WriteHeader(http.StatusNoContent)
}
