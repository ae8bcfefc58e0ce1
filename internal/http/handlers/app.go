package handlers

import (
	"encoding/json"
	"net/http"

	"promptbatch/internal/batch"
	"promptbatch/internal/domain"
	"promptbatch/internal/export"
	"promptbatch/internal/i18n"
	"promptbatch/internal/infra"
	"promptbatch/internal/middleware"
	"promptbatch/internal/realtime"
	"promptbatch/internal/storage"
)

// App carries the dependencies shared by every handler.
type App struct {
	Controller *batch.Controller
	Hub        *realtime.Hub
	Exporter   *export.Exporter
	Store      storage.Store
	Catalog    *i18n.Catalog
	Logger     *infra.Logger
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, errorResponse{Code: errCode, Message: msg})
}

// noticeError answers with a notice code rendered in the request locale.
func (a *App) noticeError(w http.ResponseWriter, r *http.Request, code int, notice domain.NoticeCode) {
	tag := i18n.Match(middleware.LocaleFromContext(r.Context()))
	a.error(w, code, string(notice), a.catalog().Render(tag, notice, nil))
}

// snapshot localizes the notice carried by s for the request.
func (a *App) snapshot(r *http.Request, s batch.Snapshot) batch.Snapshot {
	s.Notice = a.catalog().Localize(s.Notice, middleware.LocaleFromContext(r.Context()))
	return s
}

func (a *App) catalog() *i18n.Catalog {
	if a.Catalog != nil {
		return a.Catalog
	}
	return i18n.Default()
}

func (a *App) logger() *infra.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return infra.NopLogger()
}
