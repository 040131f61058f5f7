package controller

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/cassiomorais/alipay-bridge/internal/application/query"
	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/order"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// StatusController answers the storefront's "has my buyer paid yet" poll
// that runs while the buyer is away at the provider's checkout page.
type StatusController struct {
	orders   order.Store
	query    *query.Agent
	token    string // anti-forgery token; empty disables the check
	redirect string // where the storefront sends a paid buyer
	logger   zerolog.Logger
}

// NewStatusController creates a StatusController.
func NewStatusController(orders order.Store, queryAgent *query.Agent, token, redirect string, logger zerolog.Logger) *StatusController {
	return &StatusController{
		orders:   orders,
		query:    queryAgent,
		token:    token,
		redirect: redirect,
		logger:   logger.With().Str("component", "status_controller").Logger(),
	}
}

// Check handles POST /api/v1/orders/{id}/status-check.
func (c *StatusController) Check(w http.ResponseWriter, r *http.Request) {
	var req StatusCheckRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if c.token != "" && subtle.ConstantTimeCompare([]byte(req.Token), []byte(c.token)) != 1 {
		writeError(w, domainErrors.ErrForbidden)
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, domainErrors.NewValidationError("id", "must be a numeric order id"))
		return
	}

	o, err := c.orders.Get(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	outcome, err := c.query.CheckOrder(r.Context(), o)
	if err != nil {
		writeError(w, err)
		return
	}

	if outcome.Paid() {
		writeJSON(w, http.StatusOK, StatusCheckResponse{
			Status:   "paid",
			Message:  "payment confirmed",
			Redirect: c.redirect,
		})
		return
	}
	writeJSON(w, http.StatusOK, StatusCheckResponse{
		Status:  "pending",
		Message: outcome.Message,
	})
}
