package handlers

import (
	"net/http"
	"time"

	"academy/internal/domain"
	"academy/internal/middleware"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string         `json:"token"`
	User  userProfileDTO `json:"user"`
}

type userProfileDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Locale    string    `json:"locale"`
	CreatedAt time.Time `json:"created_at"`
}

func profileDTO(u domain.User, locale string) userProfileDTO {
	return userProfileDTO{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		Locale:    locale,
		CreatedAt: u.CreatedAt,
	}
}

func (a *App) AuthSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := a.Courses.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.issueToken(w, r, http.StatusCreated, user)
}

func (a *App) AuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := a.Courses.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.issueToken(w, r, http.StatusOK, user)
}

func (a *App) issueToken(w http.ResponseWriter, r *http.Request, status int, user domain.User) {
	ttl := a.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := middleware.SignJWT(a.JWTSecret, user.ID, string(user.Role), ttl)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, status, authResponse{Token: token, User: profileDTO(user, middleware.LocaleFromContext(r.Context()))})
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	user, err := a.Courses.Profile(r.Context(), userID)
	if err != nil {
		a.errorFrom(w, r, err)
		return
	}
	a.json(w, http.StatusOK, profileDTO(user, middleware.LocaleFromContext(r.Context())))
}
