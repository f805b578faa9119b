// Package httpapi serves the flow registry over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/equilix-backend/internal/config"
	"github.com/yungbote/equilix-backend/internal/flow"
	"github.com/yungbote/equilix-backend/internal/observability"
	"github.com/yungbote/equilix-backend/internal/platform/logger"
	"github.com/yungbote/equilix-backend/internal/ratelimit"
	"github.com/yungbote/equilix-backend/internal/store"
)

// Deps is everything the handlers need. Limiter, Metrics, Invocations and
// Ready may be nil.
type Deps struct {
	Config      *config.Config
	Log         *logger.Logger
	Registry    *flow.Registry
	Limiter     ratelimit.Limiter
	Metrics     *observability.Metrics
	Invocations store.InvocationRepo
	Ready       func(ctx context.Context) error
}

func NewServer(d Deps) *http.Server {
	return &http.Server{
		Addr:              d.Config.HTTP.Addr,
		Handler:           NewHandler(d),
		ReadHeaderTimeout: d.Config.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       d.Config.HTTP.IdleTimeout.Duration,
		WriteTimeout:      0,
	}
}

func NewHandler(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.Noop{}
	}
	log := d.Log.With("component", "httpapi")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(otelgin.Middleware(d.Config.Tracing.ServiceName, otelgin.WithFilter(func(req *http.Request) bool {
		return !isProbe(req.URL.Path)
	})))
	r.Use(attachTraceContext())
	r.Use(requestLogger(log))
	r.Use(metricsMiddleware(d.Metrics))
	r.Use(recovery(log))
	r.Use(corsMiddleware(d.Config.HTTP.CORSOrigins))

	h := &handlers{
		log:         log,
		registry:    d.Registry,
		invocations: d.Invocations,
		ready:       d.Ready,
	}

	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)
	if d.Config.Metrics.Enabled && d.Metrics != nil {
		r.GET(d.Config.Metrics.Path, gin.WrapF(d.Metrics.WriteHTTP))
	}

	v1 := r.Group("/v1")
	v1.Use(rateLimit(d.Limiter, d.Metrics, log))
	v1.Use(limitBody(d.Config.HTTP.MaxRequestBytes))
	{
		v1.GET("/flows", h.listFlows)
		v1.POST("/flows/batch", h.invokeBatch)
		v1.POST("/flows/:name/invoke", h.invokeFlow)

		v1.GET("/invocations", h.listInvocations)
		v1.GET("/invocations/stats", h.invocationStats)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorEnvelope{Error: errorBody{Message: "route not found", Code: "not_found"}})
	})
	return r
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz"
}
