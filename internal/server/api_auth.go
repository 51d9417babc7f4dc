package server

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"devconnect/internal/apperr"
	"devconnect/internal/auth"
	"devconnect/internal/store"
)

const minPasswordLen = 6

// currentUser resolves the bearer token to a stored user.
func (a *api) currentUser(r *http.Request) (store.User, error) {
	tok := auth.TokenFromHeader(r.Header.Get("Authorization"))
	if tok == "" {
		return store.User{}, apperr.E(apperr.Authentication, "Token manquant")
	}
	claims, err := a.tokens.Verify(tok)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return store.User{}, apperr.Wrap(apperr.Authentication, "Token expiré", err)
		}
		return store.User{}, apperr.Wrap(apperr.Authentication, "Token invalide", err)
	}
	u, err := a.store.UserByID(r.Context(), claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, apperr.Wrap(apperr.Authentication, "Token invalide", err)
	}
	return u, err
}

func (a *api) requireAuth(next func(http.ResponseWriter, *http.Request, store.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := a.currentUser(r)
		if err != nil {
			a.writeErr(w, r, "auth", err)
			return
		}
		next(w, r, u)
	}
}

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func viewOf(u store.User) userView { return userView{ID: u.ID, Username: u.Username, Email: u.Email} }

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "register", err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = normEmail(req.Email)
	switch {
	case req.Username == "" || req.Email == "" || req.Password == "":
		a.writeErr(w, r, "register", apperr.E(apperr.Validation, "Nom d'utilisateur, email et mot de passe requis"))
		return
	case !validEmail(req.Email):
		a.writeErr(w, r, "register", apperr.E(apperr.Validation, "Email invalide"))
		return
	case len(req.Password) < minPasswordLen:
		a.writeErr(w, r, "register", apperr.E(apperr.Validation, "Le mot de passe doit contenir au moins 6 caractères"))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.writeErr(w, r, "hash password", err)
		return
	}
	u, err := a.store.CreateUser(r.Context(), req.Username, req.Email, hash)
	if errors.Is(err, store.ErrConflict) {
		a.writeErr(w, r, "register", apperr.Wrap(apperr.Conflict, "Cet email est déjà utilisé", err))
		return
	}
	if err != nil {
		a.writeErr(w, r, "create user", err)
		return
	}
	a.log.Info("user registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Utilisateur créé avec succès", "user": viewOf(u)})
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "login", err)
		return
	}
	badCreds := apperr.E(apperr.Authentication, "Email ou mot de passe incorrect")
	u, hash, err := a.store.UserCredsByEmail(r.Context(), normEmail(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		a.writeErr(w, r, "login", badCreds)
		return
	}
	if err != nil {
		a.writeErr(w, r, "login lookup", err)
		return
	}
	if !auth.CheckPassword(hash, req.Password) {
		a.writeErr(w, r, "login", badCreds)
		return
	}
	token, exp, err := a.tokens.Issue(u.ID, u.Email)
	if err != nil {
		a.writeErr(w, r, "issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Connexion réussie",
		"token":      token,
		"expires_at": exp,
		"user":       viewOf(u),
	})
}

func (a *api) handleProfile(w http.ResponseWriter, r *http.Request, u store.User) {
	writeJSON(w, http.StatusOK, u)
}

func (a *api) handleUpdateProfile(w http.ResponseWriter, r *http.Request, u store.User) {
	a.updateUser(w, r, u, u.ID)
}

func (a *api) updateUser(w http.ResponseWriter, r *http.Request, actor store.User, id int64) {
	var req struct {
		Username string `json:"username"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.writeErr(w, r, "update user", err)
		return
	}
	name := strings.TrimSpace(req.Username)
	if name == "" {
		a.writeErr(w, r, "update user", apperr.E(apperr.Validation, "Le nom d'utilisateur est requis"))
		return
	}
	if _, err := a.store.UserByID(r.Context(), id); err != nil {
		a.writeErr(w, r, "update user", orNotFound(err, "Utilisateur non trouvé"))
		return
	}
	if actor.ID != id {
		a.writeErr(w, r, "update user", apperr.E(apperr.Authorization, "Non autorisé"))
		return
	}
	u, err := a.store.UpdateUsername(r.Context(), id, name)
	if err != nil {
		a.writeErr(w, r, "update user", orNotFound(err, "Utilisateur non trouvé"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Utilisateur mis à jour", "user": u})
}
