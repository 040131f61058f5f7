package middleware

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Tracing instruments each request with an OpenTelemetry span named after
// chi's matched route pattern, keeping span-name cardinality bounded.
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The route pattern is only available after chi matched, so the
			// span name is resolved inside the wrapped handler.
			wrapped := http.HandlerFunc(func(w2 http.ResponseWriter, r2 *http.Request) {
				operation := fmt.Sprintf("%s %s", r2.Method, r2.URL.Path)
				if rctx := chi.RouteContext(r2.Context()); rctx != nil && rctx.RoutePattern() != "" {
					operation = fmt.Sprintf("%s %s", r2.Method, rctx.RoutePattern())
				}
				otelhttp.NewHandler(next, operation).ServeHTTP(w2, r2)
			})
			wrapped.ServeHTTP(w, r)
		})
	}
}
