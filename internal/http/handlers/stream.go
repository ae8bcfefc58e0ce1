package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"promptbatch/internal/middleware"
	"promptbatch/internal/storage"
)

func (a *App) Stream(w http.ResponseWriter, r *http.Request) {
	a.Hub.ServeWS(w, r, middleware.LocaleFromContext(r.Context()))
}

// Static serves stored images under /static/*.
func (a *App) Static(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "*"))
	if key == "" || a.Store == nil {
		a.error(w, http.StatusNotFound, "not_found", "asset not found")
		return
	}
	data, contentType, err := a.Store.Read(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "asset not found")
			return
		}
		a.logger().Warn().Err(err).Str("storage_key", key).Msg("http: read asset failed")
		a.error(w, http.StatusBadRequest, "bad_request", "invalid asset key")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
