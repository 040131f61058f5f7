package controller

import (
	"net/http"
	"strconv"

	"github.com/cassiomorais/alipay-bridge/internal/application/checkout"
	"github.com/cassiomorais/alipay-bridge/internal/application/refund"
	"github.com/cassiomorais/alipay-bridge/internal/application/webhookretry"
	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/cassiomorais/alipay-bridge/internal/domain/webhooklog"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const adminPageSize = 50

// AdminController exposes the operator surface: the webhook log with
// manual retry, plus refund and cancel actions on individual orders.
type AdminController struct {
	logs     webhooklog.Repository
	retries  *webhookretry.Agent
	refunds  *refund.Orchestrator
	checkout *checkout.Service
}

// NewAdminController creates an AdminController.
func NewAdminController(
	logs webhooklog.Repository,
	retries *webhookretry.Agent,
	refunds *refund.Orchestrator,
	checkoutSvc *checkout.Service,
) *AdminController {
	return &AdminController{
		logs:     logs,
		retries:  retries,
		refunds:  refunds,
		checkout: checkoutSvc,
	}
}

// ListWebhooks handles GET /admin/webhooks?status=&page=.
func (c *AdminController) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	status := webhooklog.Status(r.URL.Query().Get("status"))
	switch status {
	case "", webhooklog.StatusPending, webhooklog.StatusSuccess, webhooklog.StatusFailed, webhooklog.StatusIgnored:
	default:
		writeError(w, domainErrors.NewValidationError("status", "unknown status filter"))
		return
	}

	entries, err := c.logs.List(r.Context(), webhooklog.ListFilter{
		Status: status,
		Limit:  adminPageSize,
		Offset: (page - 1) * adminPageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	counts, err := c.logs.CountByStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := WebhookLogListResponse{
		Entries: make([]*WebhookLogResponse, 0, len(entries)),
		Counts:  make(map[string]int, len(counts)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, FromWebhookLog(e))
	}
	for s, n := range counts {
		resp.Counts[string(s)] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

// RetryWebhook handles POST /admin/webhooks/{id}/retry. A manual retry
// runs regardless of the automatic budget but still spends from it.
func (c *AdminController) RetryWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, domainErrors.NewValidationError("id", "must be a webhook log uuid"))
		return
	}

	confirmed, err := c.retries.RetryOne(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if confirmed {
		writeJSON(w, http.StatusOK, RetryResponse{Success: true, Message: "payment confirmed"})
		return
	}
	writeJSON(w, http.StatusOK, RetryResponse{Success: false, Message: "payment not confirmed; see the log entry for details"})
}

// RefundOrder handles POST /admin/orders/{id}/refund.
func (c *AdminController) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, domainErrors.NewValidationError("id", "must be a numeric order id"))
		return
	}

	var req RefundOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, domainErrors.NewValidationError("amount", "must be a decimal amount"))
		return
	}

	if err := c.refunds.Execute(r.Context(), orderID, amount, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CancelOrder handles POST /admin/orders/{id}/cancel.
func (c *AdminController) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, domainErrors.NewValidationError("id", "must be a numeric order id"))
		return
	}

	if err := c.checkout.CancelPayment(r.Context(), orderID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
