package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/punchamoorthee/bankportal/internal/domain"
	"github.com/punchamoorthee/bankportal/internal/models"
	"github.com/punchamoorthee/bankportal/internal/service"
)

const healthTimeout = 2 * time.Second

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func operationResponse(res service.Result) models.OperationResponse {
	out := models.OperationResponse{
		Reference:  res.Reference.String(),
		Operation:  res.Operation,
		Outcome:    res.Outcome.String(),
		Kind:       res.Kind.String(),
		State:      res.State.String(),
		Reached:    res.Reached.String(),
		RolledBack: res.RolledBack,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
		// store failures are logged with full detail, callers get the kind
		if res.Status >= http.StatusInternalServerError {
			out.Error = http.StatusText(res.Status)
		}
	}
	return out
}

func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	who, err := identify(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	var body models.TransferRequest
	if !h.decode(w, r, &body) {
		return
	}
	amount, err := domain.ParseAmount(body.Amount)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	res := h.transfers.Transfer(r.Context(), domain.TransferRequest{
		PayerID:    body.PayerID,
		ReceiverID: body.ReceiverID,
		Amount:     amount,
		Initiator:  domain.Initiator{Role: who.role, PersonID: who.person},
	})
	respondWithJSON(w, res.Status, operationResponse(res))
}

func (h *Handler) AdjustAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	var body models.AdjustmentRequest
	if !h.decode(w, r, &body) {
		return
	}
	delta, err := domain.ParseAmount(body.Delta)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	res := h.transfers.Adjust(r.Context(), service.Adjustment{AccountID: id, Delta: delta})
	respondWithJSON(w, res.Status, operationResponse(res))
}

// listRequest reads paging and filter parameters. Absent numbers are zero
// and fall back to the lister defaults.
func listRequest(q url.Values, id identity) (service.ListRequest, error) {
	req := service.ListRequest{
		Role:       id.role,
		ViewerID:   id.person,
		Sort:       q.Get("sort"),
		Status:     q.Get("status"),
		PersonRole: domain.Role(q.Get("role")),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &req.Page}, {"size", &req.Size}} {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return req, fmt.Errorf("%w: %s=%q", errBadQuery, p.name, v)
			}
			*p.dst = n
		}
	}
	if v := q.Get("owner"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, fmt.Errorf("%w: owner=%q", errBadQuery, v)
		}
		req.OwnerID = n
	}
	return req, nil
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := identify(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	req, err := listRequest(r.URL.Query(), id)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	page, err := h.lister.Accounts(r.Context(), req)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

func (h *Handler) ListPeopleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := identify(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	req, err := listRequest(r.URL.Query(), id)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	page, err := h.lister.People(r.Context(), req)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

// GetAccountHandler hides accounts of other owners from non-admin callers.
func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	who, err := identify(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	acct, err := h.admin.Account(r.Context(), id)
	if err == nil && !who.role.Administrative() && acct.OwnerID != who.person {
		err = domain.ErrAccountNotFound
	}
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, acct)
}

func (h *Handler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	var body models.OpenAccountRequest
	if !h.decode(w, r, &body) {
		return
	}
	id, err := h.admin.OpenAccount(r.Context(), body.OwnerID)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%d", id))
	respondWithJSON(w, http.StatusCreated, models.CreatedResponse{ID: id})
}

func (h *Handler) SetAccountStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	var body models.AccountStatusRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.admin.SetAccountStatus(r.Context(), id, domain.AccountStatus(body.Status)); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RegisterPersonHandler(w http.ResponseWriter, r *http.Request) {
	var body models.RegisterPersonRequest
	if !h.decode(w, r, &body) {
		return
	}
	id, err := h.admin.RegisterPerson(r.Context(), service.NewPerson{
		Email:        body.Email,
		PasswordHash: body.PasswordHash,
		Role:         domain.Role(body.Role),
	})
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/people/%d", id))
	respondWithJSON(w, http.StatusCreated, models.CreatedResponse{ID: id})
}

func (h *Handler) GetPersonHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	p, err := h.admin.Person(r.Context(), id)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *Handler) SetPersonStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	var body models.PersonStatusRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.admin.SetPersonStatus(r.Context(), id, domain.PersonStatus(body.Status)); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetPersonRoleHandler(w http.ResponseWriter, r *http.Request) {
	who, err := identify(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	var body models.RoleRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.admin.SetPersonRole(r.Context(), who.role, id, domain.Role(body.Role)); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) IncomeHandler(w http.ResponseWriter, r *http.Request) {
	income, err := h.admin.Income(r.Context())
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.IncomeResponse{Amount: domain.FormatMoney(income)})
}
