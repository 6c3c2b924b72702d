package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankportal/internal/domain"
	"github.com/punchamoorthee/bankportal/internal/models"
	"github.com/punchamoorthee/bankportal/internal/query"
	"github.com/punchamoorthee/bankportal/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bank_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Identity headers are set by the gateway that authenticated the caller.
const (
	HeaderRole      = "X-Portal-Role"
	HeaderPerson    = "X-Portal-Person"
	HeaderRequestID = "X-Request-ID"
)

var errBadQuery = errors.New("invalid query parameter")

type Transferer interface {
	Transfer(ctx context.Context, req domain.TransferRequest) service.Result
	Adjust(ctx context.Context, adj service.Adjustment) service.Result
}

type Lister interface {
	Accounts(ctx context.Context, req service.ListRequest) (*domain.Page[domain.Account], error)
	People(ctx context.Context, req service.ListRequest) (*domain.Page[domain.Person], error)
}

type Administrator interface {
	RegisterPerson(ctx context.Context, p service.NewPerson) (int64, error)
	OpenAccount(ctx context.Context, ownerID int64) (int64, error)
	SetAccountStatus(ctx context.Context, id int64, status domain.AccountStatus) error
	SetPersonStatus(ctx context.Context, id int64, status domain.PersonStatus) error
	SetPersonRole(ctx context.Context, actor domain.Role, id int64, role domain.Role) error
	Account(ctx context.Context, id int64) (domain.Account, error)
	Person(ctx context.Context, id int64) (domain.Person, error)
	Income(ctx context.Context) (decimal.Decimal, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	transfers Transferer
	lister    Lister
	admin     Administrator
	db        Pinger
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewHandler(t Transferer, l Lister, a Administrator, db Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		transfers: t,
		lister:    l,
		admin:     a,
		db:        db,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("component", "http"),
	}
}

// Routes builds the router with metrics and request ids on every route.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestID, h.instrument)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/transfers", h.CreateTransferHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accounts", h.ListAccountsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts", h.adminOnly(h.OpenAccountHandler)).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{id:[0-9]+}", h.GetAccountHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id:[0-9]+}/status", h.adminOnly(h.SetAccountStatusHandler)).Methods(http.MethodPut)
	v1.HandleFunc("/accounts/{id:[0-9]+}/adjustments", h.adminOnly(h.AdjustAccountHandler)).Methods(http.MethodPost)
	v1.HandleFunc("/people", h.adminOnly(h.ListPeopleHandler)).Methods(http.MethodGet)
	v1.HandleFunc("/people", h.adminOnly(h.RegisterPersonHandler)).Methods(http.MethodPost)
	v1.HandleFunc("/people/{id:[0-9]+}", h.adminOnly(h.GetPersonHandler)).Methods(http.MethodGet)
	v1.HandleFunc("/people/{id:[0-9]+}/status", h.adminOnly(h.SetPersonStatusHandler)).Methods(http.MethodPut)
	v1.HandleFunc("/people/{id:[0-9]+}/role", h.adminOnly(h.SetPersonRoleHandler)).Methods(http.MethodPut)
	v1.HandleFunc("/income", h.adminOnly(h.IncomeHandler)).Methods(http.MethodGet)
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		endpoint := "unmatched"
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

type identity struct {
	role   domain.Role
	person int64
}

// identify reads the caller from the identity headers. A missing role is
// an anonymous person.
func identify(r *http.Request) (identity, error) {
	var id identity
	if role := r.Header.Get(HeaderRole); role != "" {
		id.role = domain.Role(role)
		if !id.role.Valid() {
			return id, fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
		}
	}
	if person := r.Header.Get(HeaderPerson); person != "" {
		n, err := strconv.ParseInt(person, 10, 64)
		if err != nil || n <= 0 {
			return id, fmt.Errorf("%w: bad %s header", domain.ErrInvalidAccountID, HeaderPerson)
		}
		id.person = n
	}
	return id, nil
}

// adminOnly rejects callers outside the administrative roles.
func (h *Handler) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := identify(r)
		if err != nil {
			h.respondWithErr(w, r, err)
			return
		}
		if !id.role.Administrative() {
			respondWithError(w, http.StatusForbidden, "Administrative role required")
			return
		}
		next(w, r)
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidAccountID, mux.Vars(r)["id"])
	}
	return id, nil
}

// decode reads a JSON body into dst and validates its tags. It writes the
// 400 response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		respondWithJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Fields: fields})
		return false
	}
	return true
}

// statusFor maps service and domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrPersonNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidAccountID),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrMissingPasswordHash),
		errors.Is(err, query.ErrInvalidStatementParameter),
		errors.Is(err, errBadQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondWithErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", w.Header().Get(HeaderRequestID), "error", err)
		respondWithError(w, code, http.StatusText(code))
		return
	}
	respondWithError(w, code, err.Error())
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
