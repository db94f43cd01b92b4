package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"academy/internal/studio"
)

type scriptRequest struct {
	Topic      string `json:"topic"`
	SceneCount int    `json:"scene_count"`
}

type regenerateRequest struct {
	Kind studio.Kind `json:"kind"`
}

func (a *App) StudioScript(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireUser(w, r); !ok {
		return
	}
	var req scriptRequest
	if !a.decode(w, r, &req) {
		return
	}
	scenes, err := a.Studio.Script(r.Context(), req.Topic, req.SceneCount)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"scenes": scenes})
}

func (a *App) StudioStart(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	var req studio.StartRequest
	if !a.decode(w, r, &req) {
		return
	}
	run, err := a.Studio.Start(r.Context(), userID, req)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/tools/studio/runs/"+run.ID)
	a.json(w, http.StatusAccepted, run)
}

func (a *App) StudioGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	run, err := a.Studio.Get(userID, chi.URLParam(r, "runID"))
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusOK, run)
}

func (a *App) StudioRegenerate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "scene index must be a non-negative integer")
		return
	}
	req := regenerateRequest{Kind: studio.KindImage}
	if r.ContentLength != 0 && !a.decode(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = studio.KindImage
	}
	scene, err := a.Studio.Regenerate(r.Context(), userID, chi.URLParam(r, "runID"), index, req.Kind)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusOK, scene)
}

func (a *App) StudioCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	run, err := a.Studio.Cancel(userID, chi.URLParam(r, "runID"))
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, run)
}

func (a *App) StudioExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	archive, filename, err := a.Studio.Export(r.Context(), userID, chi.URLParam(r, "runID"))
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
