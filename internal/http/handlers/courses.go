package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type postRequest struct {
	Body string `json:"body"`
}

func (a *App) ListCourses(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": a.Courses.Courses()})
}

func (a *App) GetCourse(w http.ResponseWriter, r *http.Request) {
	c, err := a.Courses.Course(chi.URLParam(r, "courseID"))
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusOK, c)
}

func (a *App) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	p, err := a.Courses.Enroll(r.Context(), userID, chi.URLParam(r, "courseID"))
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusOK, p)
}

func (a *App) CourseProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	p, err := a.Courses.Progress(r.Context(), userID, chi.URLParam(r, "courseID"))
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusOK, p)
}

func (a *App) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	p, err := a.Courses.MarkLessonComplete(r.Context(), userID, chi.URLParam(r, "courseID"), chi.URLParam(r, "lessonID"))
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusOK, p)
}

func (a *App) ListPosts(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	if _, err := a.Courses.Course(courseID); err != nil {
		a.errorFrom(w, r, err)
		return
	}
	posts, err := a.Courses.ListPosts(r.Context(), courseID)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": posts})
}

func (a *App) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	var req postRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := a.Courses.Profile(r.Context(), userID)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	post, err := a.Courses.CreatePost(r.Context(), chi.URLParam(r, "courseID"), userID, user.Name, req.Body)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, post)
}

func (a *App) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	if err := a.Courses.DeletePost(r.Context(), chi.URLParam(r, "postID"), userID); err != nil {
		a.errorFrom(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) CreateComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	var req postRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := a.Courses.Profile(r.Context(), userID)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	comment, err := a.Courses.CreateComment(r.Context(), chi.URLParam(r, "postID"), userID, user.Name, req.Body)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, comment)
}
