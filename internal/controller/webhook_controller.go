package controller

import (
	"net/http"

	"github.com/cassiomorais/alipay-bridge/internal/application/notification"
	"github.com/cassiomorais/alipay-bridge/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// WebhookController terminates the provider's asynchronous notification
// callbacks. The reply body is part of the provider protocol: "success"
// stops redelivery, "fail" requests it, anything else is noise.
type WebhookController struct {
	handler *notification.Handler
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewWebhookController creates a WebhookController.
func NewWebhookController(handler *notification.Handler, metrics *observability.Metrics, logger zerolog.Logger) *WebhookController {
	return &WebhookController{
		handler: handler,
		metrics: metrics,
		logger:  logger.With().Str("component", "webhook_controller").Logger(),
	}
}

// Receive handles POST /webhooks/alipay. The payload is form-encoded and
// the response is always 200 with the literal protocol reply; HTTP error
// statuses would only confuse the provider's redelivery logic.
func (c *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		c.logger.Error().Err(err).Msg("malformed notification payload")
		c.count("malformed")
		w.WriteHeader(http.StatusOK)
		return
	}

	reply := c.handler.Handle(r.Context(), r.PostForm)

	switch reply {
	case notification.ReplySuccess:
		c.count("success")
	case notification.ReplyFail:
		c.count("fail")
	default:
		c.count("none")
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if body := reply.Body(); body != "" {
		w.Write([]byte(body))
	}
}

func (c *WebhookController) count(result string) {
	if c.metrics != nil {
		c.metrics.NotificationsTotal.WithLabelValues(result).Inc()
	}
}
