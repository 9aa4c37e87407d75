package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/erqueue/internal/api"
)

// maxBodyBytes bounds request bodies. A large triage tree is a few hundred KB.
const maxBodyBytes = 1 << 20

type handlerDeps struct {
	logger      log.Logger
	api         *api.API
	healthz     http.HandlerFunc
	readyz      http.HandlerFunc
	instrument  func(http.Handler) http.Handler
	trustedHops int
}

// newHandler builds the public listener: chi routes inside, then the
// middleware stack from innermost to outermost.
func newHandler(d handlerDeps) http.Handler {
	r := chi.NewRouter()

	// json only; text/event-stream must not sit in a compressor buffer
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxBodyBytes))

	r.Get("/-/healthy", d.healthz)
	r.Get("/-/ready", d.readyz)
	d.api.RegisterRoutes(r)

	var h http.Handler = r
	h = httpmw.WithLogger(d.logger)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		// renamed to the route pattern by AnnotateHTTPRoute
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)
	if d.instrument != nil {
		h = d.instrument(h)
	}
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: d.trustedHops})(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(d.logger, nil)(h)
	h = httpmw.SecurityHeaders(h)
	return h
}
