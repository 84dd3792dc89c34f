package coin

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/session"
	userentity "github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
)

// Handler exposes the ledger over HTTP. Routes carry the target user in the
// {userId} path segment.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type balanceResponse struct {
	Coins int64 `json:"coins"`
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if _, err := session.AuthorizeOwner(r.Context(), userID); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	coins, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, balanceResponse{Coins: coins})
}

// SetBalanceRequest is the administrative overwrite payload.
type SetBalanceRequest struct {
	Coins *float64 `json:"coins"`
}

func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	admin, err := session.Authorize(r.Context(), string(userentity.UserTypeAdmin))
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	var req SetBalanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	if req.Coins == nil {
		httpx.WriteError(w, h.logger, r, ErrInvalidBalance)
		return
	}
	userID := r.PathValue("userId")
	res, err := h.svc.SetBalance(r.Context(), userID, *req.Coins)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	h.logger.Infow("coin balance overwritten", "user_id", userID, "coins", res.Coins, "by", admin.ID)
	httpx.WriteJSON(w, http.StatusOK, res)
}

// Credit is admin only.
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	admin, err := session.Authorize(r.Context(), string(userentity.UserTypeAdmin))
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	var req MutationInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	userID := r.PathValue("userId")
	res, err := h.svc.Credit(r.Context(), userID, req)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	h.logger.Infow("coins credited", "user_id", userID, "amount", res.Transaction.Amount, "coins", res.Coins, "by", admin.ID)
	httpx.WriteJSON(w, http.StatusOK, res)
}

// Debit is allowed for the owner of the balance and for admins.
func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	me, err := session.AuthorizeOwner(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	var req MutationInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	res, err := h.svc.Debit(r.Context(), userID, req)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	h.logger.Infow("coins debited", "user_id", userID, "amount", res.Transaction.Amount, "coins", res.Coins, "by", me.ID)
	httpx.WriteJSON(w, http.StatusOK, res)
}

// UserTransactions lists the ledger of one user.
func (h *Handler) UserTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if _, err := session.AuthorizeOwner(r.Context(), userID); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	f, err := parseListFilter(r)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	f.UserID = userID
	h.writeTransactions(w, r, f)
}

// AllTransactions is the admin ledger view with an optional user_id filter.
func (h *Handler) AllTransactions(w http.ResponseWriter, r *http.Request) {
	if _, err := session.Authorize(r.Context(), string(userentity.UserTypeAdmin)); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	f, err := parseListFilter(r)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	f.UserID = r.URL.Query().Get("user_id")
	h.writeTransactions(w, r, f)
}

func (h *Handler) writeTransactions(w http.ResponseWriter, r *http.Request, f ListFilter) {
	out, err := h.svc.ListTransactions(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Balances(w http.ResponseWriter, r *http.Request) {
	if _, err := session.Authorize(r.Context(), string(userentity.UserTypeAdmin)); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	out, err := h.svc.ListBalances(r.Context(), r.URL.Query().Get("user_type"))
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	f := ListFilter{Type: q.Get("type")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, apperr.Validation("limit must be an integer")
		}
		f.Limit = n
	}
	var err error
	if f.From, err = parseTime(q.Get("from"), "from"); err != nil {
		return f, err
	}
	if f.To, err = parseTime(q.Get("to"), "to"); err != nil {
		return f, err
	}
	return f, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation(name + " must be an RFC 3339 timestamp or a YYYY-MM-DD date")
}
