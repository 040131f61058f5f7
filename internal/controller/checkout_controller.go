package controller

import (
	"net/http"
	"strconv"

	"github.com/cassiomorais/alipay-bridge/internal/application/checkout"
	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/go-chi/chi/v5"
)

// CheckoutController starts payment attempts for the storefront.
type CheckoutController struct {
	service *checkout.Service
}

// NewCheckoutController creates a CheckoutController.
func NewCheckoutController(service *checkout.Service) *CheckoutController {
	return &CheckoutController{service: service}
}

// Pay handles POST /api/v1/orders/{id}/pay and returns the provider
// redirect payload for the buyer.
func (c *CheckoutController) Pay(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, domainErrors.NewValidationError("id", "must be a numeric order id"))
		return
	}

	form, err := c.service.InitiatePayment(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PayResponse{RedirectURL: form.RedirectURL})
}
