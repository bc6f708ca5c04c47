package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/custom-orders/internal/auth"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AuthHandler struct {
	Auth *auth.Service
	Log  *zap.Logger
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshResp struct {
	AccessToken string `json:"access_token"`
}

func (h *AuthHandler) Register(r chi.Router) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.signup)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
	})
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	u, err := h.Auth.Signup(ctx, req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	toks, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toks)
}

// refresh expects the refresh token as bearer credential.
func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	tok, err := bearerToken(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	access, err := h.Auth.Refresh(ctx, tok)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResp{AccessToken: access})
}
