package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"promptbatch/internal/domain"
	"promptbatch/internal/export"
)

func (a *App) JobCopy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := a.Controller.CopyPrompt(r.Context(), id)
	switch {
	case err == nil:
		a.json(w, http.StatusOK, a.snapshot(r, a.Controller.Snapshot()))
	case errors.Is(err, domain.ErrNotFound):
		a.noticeError(w, r, http.StatusNotFound, domain.NoticePromptNotFound)
	case errors.Is(err, domain.ErrClipboardUnavailable):
		a.noticeError(w, r, http.StatusServiceUnavailable, domain.NoticeClipboardUnavailable)
	case errors.Is(err, domain.ErrClipboardWrite):
		a.noticeError(w, r, http.StatusBadGateway, domain.NoticeClipboardWriteFailed)
	default:
		a.error(w, http.StatusInternalServerError, "internal", "failed to copy prompt")
	}
}

func (a *App) JobDownload(w http.ResponseWriter, r *http.Request) {
	job, err := a.Controller.Job(chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if job.Status != domain.JobStatusDone || job.Result == "" {
		a.error(w, http.StatusConflict, "job_not_ready", domain.ErrJobNotReady.Error())
		return
	}
	data, contentType, err := a.Exporter.Fetch(r.Context(), job.Result)
	if err != nil {
		a.logger().Warn().Err(err).Str("job_id", job.ID).Int("index", job.Index).Msg("http: fetch image failed")
		a.error(w, http.StatusBadGateway, "image_unavailable", "failed to load image")
		return
	}
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", export.Filename(job.Index)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
