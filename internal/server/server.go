package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/lumina/config"
	agentcore "github.com/mohammad-safakhou/lumina/internal/agent/core"
	agenttel "github.com/mohammad-safakhou/lumina/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lumina/internal/runtime"
	"github.com/mohammad-safakhou/lumina/internal/search"
	"github.com/mohammad-safakhou/lumina/internal/store"
	"github.com/mohammad-safakhou/lumina/internal/uploads"
	"github.com/mohammad-safakhou/lumina/provider"
)

// Deps are the collaborators the HTTP API is built from. Optional members
// (Index, Uploads, Media) disable their routes' features when nil.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Secret   []byte
	Drafter  Drafter
	Editing  provider.Provider
	Media    provider.MediaProvider
	Index    *search.Index
	Uploads  *uploads.Store
	Registry *prometheus.Registry
	Stats    *agenttel.Telemetry
}

// Drafter runs the draft pipeline in blocking or streaming mode.
type Drafter interface {
	Run(ctx context.Context, topic string) (string, error)
	Stream(ctx context.Context, topic string) *agentcore.StreamResult
}

// New assembles the echo instance with middleware, error handling and every route.
func New(d Deps) *echo.Echo {
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	srvCfg := cfg.Server.Normalize()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(srvCfg.BodyLimit))
	e.HTTPErrorHandler = errorHandler(log.New(log.Writer(), "[HTTP] ", log.LstdFlags))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     srvCfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "Cookie"},
		AllowCredentials: true,
	}))

	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	e.Use(httpMetrics(reg))

	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "Blog Backend API is running") })
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	registerDocs(e)

	requireAuth := runtime.EchoAuthMiddleware(d.Secret)
	api := e.Group("/api")

	auth := &AuthHandler{Store: d.Store, Secret: d.Secret, TTL: srvCfg.TokenTTL, SecureCookie: srvCfg.SecureCookie}
	auth.Register(api.Group("/auth"), requireAuth)

	posts := &PostsHandler{Store: d.Store, Index: d.Index, Logger: log.New(log.Writer(), "[POSTS] ", log.LstdFlags)}
	posts.Register(api.Group("/posts"), requireAuth)

	comments := &CommentsHandler{Store: d.Store}
	comments.Register(api.Group("/posts/:postId/comments"), requireAuth)

	ai := api.Group("/ai", requireAuth)
	drafts := &DraftsHandler{
		Drafter: d.Drafter,
		Timeout: cfg.Pipeline.Normalize().Timeout,
		Logger:  log.New(log.Writer(), "[AI] ", log.LstdFlags),
	}
	drafts.Register(ai)
	assist := &AIHandler{Editing: d.Editing, Media: d.Media, Logger: drafts.Logger}
	assist.Register(ai)

	up := &UploadHandler{Uploads: d.Uploads}
	up.Register(api.Group("/upload", requireAuth))

	admin := &AdminHandler{Store: d.Store, Index: d.Index, Stats: d.Stats, Logger: log.New(log.Writer(), "[ADMIN] ", log.LstdFlags)}
	admin.Register(api.Group("/admin", requireAuth, runtime.RequireRole(store.RoleAdmin)))

	return e
}

func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if c.Response().Committed {
			return
		}
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, HTTPError{Error: msg})
	}
}

func httpMetrics(reg prometheus.Registerer) echo.MiddlewareFunc {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumina",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lumina",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	if err := reg.Register(requests); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			requests = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	if err := reg.Register(latency); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			code := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			requests.WithLabelValues(c.Request().Method, route, strconv.Itoa(code)).Inc()
			latency.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// userID returns the authenticated subject set by the auth middleware.
func userID(c echo.Context) (string, error) {
	id, _ := c.Get("user_id").(string)
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	return id, nil
}
