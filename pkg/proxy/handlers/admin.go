package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/proxy"
	"github.com/hzcy/chatbetter2api/pkg/proxy/middleware"
	"github.com/hzcy/chatbetter2api/pkg/proxy/types"
)

// AdminPrefix is where the account API is mounted.
const AdminPrefix = "/api/tokens"

const (
	defaultListLimit      = 10
	defaultAvailableLimit = 100
	maxListLimit          = 1000
)

// AccountPage is the body of a list response.
type AccountPage struct {
	Total int                 `json:"total"`
	Items []*accounts.Account `json:"items"`
}

// StatusResponse is the body of action endpoints.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// AdminHandler serves the account administration API. Authentication is
// applied by the caller.
type AdminHandler struct {
	store     accounts.Store
	syncer    AccountSyncer
	refresher AccountRefresher
	models    ModelRefresher
	mux       *http.ServeMux
	logger    *slog.Logger
}

// AdminOption configures an AdminHandler.
type AdminOption func(*AdminHandler)

// WithSyncer mirrors every mutation into the selection cache.
func WithSyncer(s AccountSyncer) AdminOption {
	return func(h *AdminHandler) {
		h.syncer = s
	}
}

// WithAccountRefresher enables POST /api/tokens/{id}/refresh.
func WithAccountRefresher(r AccountRefresher) AdminOption {
	return func(h *AdminHandler) {
		h.refresher = r
	}
}

// WithModelRefresher enables GET /api/tokens/refresh-models.
func WithModelRefresher(r ModelRefresher) AdminOption {
	return func(h *AdminHandler) {
		h.models = r
	}
}

// NewAdminHandler creates the account API over store.
func NewAdminHandler(store accounts.Store, opts ...AdminOption) *AdminHandler {
	h := &AdminHandler{
		store:  store,
		logger: slog.Default().With("component", "handlers.admin"),
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	p := AdminPrefix
	mux.HandleFunc("POST "+p+"/login", h.login)
	mux.HandleFunc("POST "+p, h.create)
	mux.HandleFunc("POST "+p+"/{$}", h.create)
	mux.HandleFunc("GET "+p, h.list)
	mux.HandleFunc("GET "+p+"/{$}", h.list)
	mux.HandleFunc("GET "+p+"/available", h.available)
	mux.HandleFunc("GET "+p+"/available/{$}", h.available)
	mux.HandleFunc("GET "+p+"/refresh-models", h.refreshModels)
	mux.HandleFunc("GET "+p+"/account/{account}", h.getByEmail)
	mux.HandleFunc("GET "+p+"/{id}", h.get)
	mux.HandleFunc("PUT "+p+"/{id}", h.update)
	mux.HandleFunc("DELETE "+p+"/{id}", h.delete)
	mux.HandleFunc("PUT "+p+"/{id}/increment", h.increment)
	mux.HandleFunc("POST "+p+"/{id}/refresh", h.refresh)
	h.mux = mux

	return h
}

// ServeHTTP implements http.Handler.
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *AdminHandler) login(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(r.Context(), w, http.StatusOK, StatusResponse{Status: "success"})
}

func (h *AdminHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in accounts.NewAccount
	if err := proxy.DecodeJSON(r, &in); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" {
		h.writeError(ctx, w, &proxy.RequestError{Message: "account is required", Code: types.CodeMissingField, Param: "account"})
		return
	}

	acct, err := h.store.Create(ctx, in)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.sync(ctx, acct)

	h.logger.InfoContext(ctx, "account registered",
		"request_id", middleware.GetRequestID(ctx),
		"account_id", acct.ID,
		"account", acct.Email,
	)
	h.writeJSON(ctx, w, http.StatusOK, acct)
}

func (h *AdminHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	skip, err := queryInt(q.Get("skip"), "skip", 0)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	limit, err := queryInt(q.Get("limit"), "limit", defaultListLimit)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	desc, err := queryBool(q.Get("sort_desc"), "sort_desc")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	items, total, err := h.store.List(ctx, accounts.ListOptions{
		Skip:     skip,
		Limit:    min(limit, maxListLimit),
		Search:   q.Get("account"),
		SortBy:   q.Get("sort_by"),
		SortDesc: desc,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if items == nil {
		items = []*accounts.Account{}
	}

	h.writeJSON(ctx, w, http.StatusOK, AccountPage{Total: total, Items: items})
}

func (h *AdminHandler) available(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	skip, err := queryInt(q.Get("skip"), "skip", 0)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	limit, err := queryInt(q.Get("limit"), "limit", defaultAvailableLimit)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	all, err := h.store.ListSelectable(ctx, accounts.TierStandard)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	page := []*accounts.Account{}
	if skip < len(all) {
		page = all[skip:min(skip+limit, len(all))]
	}
	h.writeJSON(ctx, w, http.StatusOK, page)
}

func (h *AdminHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	acct, err := h.store.Get(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, acct)
}

func (h *AdminHandler) getByEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acct, err := h.store.GetByEmail(ctx, r.PathValue("account"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, acct)
}

func (h *AdminHandler) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var patch accounts.Patch
	if err := proxy.DecodeJSON(r, &patch); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	acct, err := h.store.Update(ctx, id, patch)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.sync(ctx, acct)
	h.writeJSON(ctx, w, http.StatusOK, acct)
}

func (h *AdminHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	acct, err := h.store.Get(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.store.SoftDelete(ctx, id); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	acct.Enabled = false
	h.sync(ctx, acct)

	h.logger.InfoContext(ctx, "account deleted",
		"request_id", middleware.GetRequestID(ctx),
		"account_id", id,
	)
	h.writeJSON(ctx, w, http.StatusOK, true)
}

func (h *AdminHandler) increment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	if _, err := h.store.IncrementUsage(ctx, id); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	acct, err := h.store.Get(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.sync(ctx, acct)
	h.writeJSON(ctx, w, http.StatusOK, acct)
}

func (h *AdminHandler) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refresher == nil {
		http.NotFound(w, r)
		return
	}

	id, err := pathID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	acct, err := h.refresher.RefreshByID(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, acct)
}

func (h *AdminHandler) refreshModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.models == nil {
		http.NotFound(w, r)
		return
	}

	err := h.models.RefreshModels(ctx)
	switch {
	case err == nil:
		h.writeJSON(ctx, w, http.StatusOK, StatusResponse{Status: "success", Message: "Models refreshed successfully"})
	case errors.Is(err, accounts.ErrNoAvailableAccount):
		_ = proxy.WriteErrorResponse(w, types.NewNotFoundError("No available token"))
	default:
		h.logger.ErrorContext(ctx, "model refresh failed", "error", err)
		_ = proxy.WriteErrorResponse(w, types.NewServerError("Failed to refresh models"))
	}
}

func (h *AdminHandler) sync(ctx context.Context, acct *accounts.Account) {
	if h.syncer != nil {
		h.syncer.Sync(ctx, acct)
	}
}

func (h *AdminHandler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	if err := proxy.WriteJSONResponse(w, status, v); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

func (h *AdminHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if !errors.Is(err, accounts.ErrNotFound) {
		var reqErr *proxy.RequestError
		if !errors.As(err, &reqErr) {
			h.logger.ErrorContext(ctx, "admin request failed",
				"request_id", middleware.GetRequestID(ctx),
				"error", err,
			)
		}
	}
	if werr := proxy.WriteErrorResponse(w, proxy.HandleError(err)); werr != nil {
		h.logger.ErrorContext(ctx, "failed to write error response", "error", werr)
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &proxy.RequestError{Message: "id must be a positive integer", Code: types.CodeInvalidValue, Param: "id"}
	}
	return id, nil
}

func queryInt(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &proxy.RequestError{Message: name + " must be a non-negative integer", Code: types.CodeInvalidValue, Param: name}
	}
	return n, nil
}

func queryBool(raw, name string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &proxy.RequestError{Message: name + " must be a boolean", Code: types.CodeInvalidValue, Param: name}
	}
	return b, nil
}
