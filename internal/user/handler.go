package user

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
)

// Handler exposes HTTP endpoints for account operations.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	res, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		h.logger.Debugw("signup failed", "err", err)
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	h.logger.Infow("user signed up", "user_id", res.User.ID, "user_type", res.User.UserType)
	httpx.WriteJSON(w, http.StatusCreated, res)
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "err", err)
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

type userResponse struct {
	User entity.PublicUser `json:"user"`
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := session.Authorize(r.Context(), "")
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse{User: u.Public()})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	me, err := session.Authorize(r.Context(), "")
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	var req ProfileInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), me.ID, req)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse{User: u.Public()})
}

// PasswordRequest is the password change payload.
type PasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	me, err := session.Authorize(r.Context(), "")
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	var req PasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), me.ID, req.CurrentPassword, req.NewPassword); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	h.logger.Infow("password changed", "user_id", me.ID)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}
