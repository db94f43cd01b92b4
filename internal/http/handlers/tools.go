package handlers

import (
	"net/http"

	"academy/internal/recommend"
)

type trendRequest struct {
	Keyword string `json:"keyword"`
}

func (a *App) Recommend(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireUser(w, r); !ok {
		return
	}
	var req recommend.Request
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Recommender.Recommend(r.Context(), req)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

func (a *App) AnalyzeTrends(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	var req trendRequest
	if !a.decode(w, r, &req) {
		return
	}
	report, err := a.Trends.Analyze(r.Context(), userID, req.Keyword)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusOK, report)
}

func (a *App) TrendsQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	status := a.Trends.Quota(userID)
	a.json(w, http.StatusOK, map[string]any{
		"allowed":   status.Allowed,
		"remaining": status.Remaining,
		"limit":     a.Trends.Limit(),
	})
}
