package complaint

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/complaint/entity"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/session"
	userentity "github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type createResponse struct {
	*entity.Complaint
	Message string `json:"message"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	me, err := session.Authorize(r.Context(), "")
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	var req CreateInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	c, err := h.svc.Create(r.Context(), me, req)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	h.logger.Infow("complaint filed", "complaint_id", c.ID, "created_by", c.CreatedBy, "target_type", c.TargetType)
	httpx.WriteJSON(w, http.StatusCreated, createResponse{Complaint: c, Message: "complaint submitted successfully"})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	me, err := session.Authorize(r.Context(), "")
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	q := r.URL.Query()
	out, err := h.svc.List(r.Context(), me, ListFilter{UserID: q.Get("user_id"), Status: q.Get("status")})
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	me, err := session.Authorize(r.Context(), "")
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	c, err := h.svc.Get(r.Context(), me, r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

// UpdateStatus is admin only.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	admin, err := session.Authorize(r.Context(), string(userentity.UserTypeAdmin))
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	var req StatusInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	c, err := h.svc.UpdateStatus(r.Context(), r.PathValue("id"), req)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	h.logger.Infow("complaint status changed", "complaint_id", c.ID, "status", c.Status, "by", admin.ID)
	httpx.WriteJSON(w, http.StatusOK, c)
}

// UpdateRemarks is admin only.
func (h *Handler) UpdateRemarks(w http.ResponseWriter, r *http.Request) {
	if _, err := session.Authorize(r.Context(), string(userentity.UserTypeAdmin)); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	var req RemarksInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	c, err := h.svc.UpdateRemarks(r.Context(), r.PathValue("id"), req)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}
