package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const sessionCookie = "token"

func validPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var upper, lower, other bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			other = true
		}
	}
	return upper && lower && other
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.FirstName == "" || req.LastName == "" {
		respondError(w, http.StatusBadRequest, errors.New("first and last name are required"))
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid email address"))
		return
	}
	if !validPassword(req.Password) {
		respondError(w, http.StatusBadRequest, errors.New("password must be at least 8 characters with upper, lower, and a digit or symbol"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	orm := a.store.ORM.WithContext(ctx)

	var existing userModel
	err = orm.Where("email = ?", req.Email).First(&existing).Error
	switch {
	case err == nil:
		respondError(w, http.StatusConflict, errors.New("email already registered"))
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	model := userModel{
		ID:           uuid.New(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         "user",
	}
	if err := orm.Create(&model).Error; err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	token, err := a.authority.Issue(model.ID, model.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	a.setSessionCookie(w, token, time.Now().Add(a.config.SessionTTL))
	respondJSON(w, http.StatusCreated, map[string]any{
		"user":  model.toAPI(),
		"token": token,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, errors.New("email and password are required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var model userModel
	err := a.store.ORM.WithContext(ctx).Where("email = ?", req.Email).First(&model).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		respondFailure(w, ErrUnauthenticated)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(model.PasswordHash), []byte(req.Password)) != nil {
		respondFailure(w, ErrUnauthenticated)
		return
	}

	token, err := a.authority.Issue(model.ID, model.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	a.setSessionCookie(w, token, time.Now().Add(a.config.SessionTTL))
	respondJSON(w, http.StatusOK, map[string]any{
		"user":  model.toAPI(),
		"token": token,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" {
		respondFailure(w, ErrUnauthenticated)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	if err := a.authority.Revoke(ctx, token); err != nil {
		respondFailure(w, err)
		return
	}

	a.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := ActorFromContext(r.Context())
	if !ok {
		respondFailure(w, ErrUnauthenticated)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	var model userModel
	err := a.store.ORM.WithContext(ctx).First(&model, "id = ?", claims.UserID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		respondFailure(w, ErrNotFound)
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
	default:
		respondJSON(w, http.StatusOK, map[string]any{"user": model.toAPI()})
	}
}
