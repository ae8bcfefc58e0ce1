package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"promptbatch/internal/batch"
	"promptbatch/internal/domain"
)

type batchCreateRequest struct {
	// Text is raw multi-line input, one prompt per line. When both Text and
	// Prompts are empty the stored draft is used.
	Text        string   `json:"text"`
	Prompts     []string `json:"prompts"`
	AspectRatio string   `json:"aspect_ratio"`
}

func (a *App) BatchCreate(w http.ResponseWriter, r *http.Request) {
	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	var (
		snap batch.Snapshot
		err  error
	)
	if len(req.Prompts) > 0 {
		snap, err = a.Controller.StartBatch(req.Prompts, req.AspectRatio)
	} else {
		snap, err = a.Controller.Submit(req.Text, req.AspectRatio)
	}
	switch {
	case err == nil:
		a.json(w, http.StatusAccepted, a.snapshot(r, snap))
	case errors.Is(err, domain.ErrInputEmpty):
		a.noticeError(w, r, http.StatusBadRequest, domain.NoticeInputEmpty)
	case errors.Is(err, domain.ErrBatchActive):
		a.noticeError(w, r, http.StatusConflict, domain.NoticeBatchActive)
	case errors.Is(err, domain.ErrUnsupportedAspectRatio):
		a.error(w, http.StatusBadRequest, "bad_aspect_ratio", err.Error())
	case errors.Is(err, context.Canceled):
		a.error(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
	default:
		a.logger().Error().Err(err).Msg("http: start batch failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start batch")
	}
}

func (a *App) BatchClear(w http.ResponseWriter, r *http.Request) {
	if err := a.Controller.ClearResults(); err != nil {
		if errors.Is(err, domain.ErrBatchLocked) {
			a.noticeError(w, r, http.StatusConflict, domain.NoticeResultsLocked)
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to clear results")
		return
	}
	a.json(w, http.StatusOK, a.snapshot(r, a.Controller.Snapshot()))
}

func (a *App) BatchArchive(w http.ResponseWriter, r *http.Request) {
	snap := a.Controller.Snapshot()
	if snap.Batch == nil {
		a.error(w, http.StatusNotFound, "not_found", "no batch")
		return
	}
	archive, count, err := a.Exporter.Archive(r.Context(), snap.Jobs)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotReady) {
			a.error(w, http.StatusConflict, "no_images", "no generated images to archive")
			return
		}
		a.logger().Error().Err(err).Str("batch_id", snap.Batch.ID).Msg("http: archive batch failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	a.logger().Debug().Str("batch_id", snap.Batch.ID).Int("images", count).Msg("http: batch archive built")
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=batch-%s.zip", snap.Batch.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
