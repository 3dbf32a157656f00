package http

import (
	"net/http"
	"time"

	"learning-platform/internal/app"
	"learning-platform/internal/domain"
)

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in app.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	user, err := a.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var in app.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	token, user, err := a.auth.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.auth.TTL() / time.Second),
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	user, err := a.auth.User(r.Context(), session.UserID)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
