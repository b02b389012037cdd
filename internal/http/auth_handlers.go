package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"discussion-room/internal/store"
	"discussion-room/pkg/auth"
)

// UserStore is the slice of the store the auth endpoints need.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, password string) (store.User, error)
	VerifyUser(ctx context.Context, username, password string) (store.User, error)
}

type AuthAPI struct {
	DB       UserStore
	JWT      *auth.JWT
	TokenTTL time.Duration
}

type registerReq struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}
type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type tokenResp struct {
	Token string      `json:"token"`
	User  authUserDTO `json:"user"`
}
type authUserDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Register handles user signup and returns a JWT
func (a *AuthAPI) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	// Basic validation
	if req.Username == "" || len(req.Username) > 50 {
		http.Error(w, "invalid username", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 8 {
		http.Error(w, "weak password", http.StatusBadRequest)
		return
	}
	if req.Password != req.ConfirmPassword {
		http.Error(w, "passwords do not match", http.StatusBadRequest)
		return
	}

	u, err := a.DB.CreateUser(r.Context(), req.Username, req.Email, req.Password)
	if errors.Is(err, store.ErrUsernameTaken) {
		http.Error(w, "username already in use", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "could not create user", http.StatusInternalServerError)
		return
	}

	a.issue(w, http.StatusCreated, u)
}

// Login verifies credentials and returns a JWT
func (a *AuthAPI) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	u, err := a.DB.VerifyUser(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	a.issue(w, http.StatusOK, u)
}

// Logout is stateless with JWTs; clients drop the token
func (a *AuthAPI) Logout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"message": "Logged out successfully"})
}

// Me returns the authenticated user
func (a *AuthAPI) Me(w http.ResponseWriter, r *http.Request) {
	c, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, authUserDTO{ID: c.UserID, Username: c.Username})
}

func (a *AuthAPI) issue(w http.ResponseWriter, status int, u store.User) {
	id := strconv.FormatInt(u.ID, 10)
	tok, err := a.JWT.Sign(auth.Claims{UserID: id, Username: u.Username}, a.TokenTTL)
	if err != nil {
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(tokenResp{Token: tok, User: authUserDTO{ID: id, Username: u.Username, Email: u.Email}})
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
