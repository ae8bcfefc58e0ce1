package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"promptbatch/internal/domain"
)

type inputRequest struct {
	Text string `json:"text"`
}

func (a *App) Panel(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.snapshot(r, a.Controller.Snapshot()))
}

func (a *App) InputSet(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	a.json(w, http.StatusOK, a.snapshot(r, a.Controller.SetInput(req.Text)))
}

func (a *App) InputClear(w http.ResponseWriter, r *http.Request) {
	if err := a.Controller.ClearInput(); err != nil {
		if errors.Is(err, domain.ErrBatchLocked) {
			a.noticeError(w, r, http.StatusConflict, domain.NoticeInputLocked)
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to clear input")
		return
	}
	a.json(w, http.StatusOK, a.snapshot(r, a.Controller.Snapshot()))
}

func (a *App) NoticeDismiss(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid notice id")
		return
	}
	a.Controller.DismissNotice(id)
	w.WriteHeader(http.StatusNoContent)
}
