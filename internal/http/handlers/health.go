package handlers

import (
	"net/http"

	"promptbatch/internal/domain"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status": "ok",
		"active": a.Controller.IsActive(),
	})
}

func (a *App) AspectRatios(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"items":   domain.AspectRatios(),
		"default": domain.DefaultAspectRatio,
	})
}
