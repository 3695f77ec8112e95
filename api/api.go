package api

import (
	"errors"
	"log/slog"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/faultline/pkg/ingest"
	"github.com/papercomputeco/faultline/pkg/metrics"
	"github.com/papercomputeco/faultline/pkg/ratelimit"
)

// Server is the API server for submitting faults and querying the feed.
type Server struct {
	config Config
	store  *ingest.Store
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The store is injected so the CLI can share it with the log capture pool.
func NewServer(config Config, store *ingest.Store, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("api server requires an ingest store")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	s := &Server{
		config: config,
		store:  store,
		logger: logger,
		app:    app,
	}

	if config.EnableMetrics && config.Registry != nil {
		fp := fiberprometheus.NewWithRegistry(config.Registry, "faultline", "faultline", "http", nil)
		app.Use(fp.Middleware)
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(config.Registry, promhttp.HandlerOpts{})))
	}

	submit := s.rateLimit()

	app.Get("/ping", s.handlePing)
	app.Get("/stats", s.handleStats)

	app.Post("/faults", submit, s.handleSubmitFault)
	app.Post("/faults/trace", submit, s.handleSubmitTrace)
	app.Get("/faults/:id", s.handleGetFault)
	app.Get("/strands/:id", s.handleGetFaultStrand)

	app.Get("/feed", s.handleGlobalFeed)
	app.Get("/feed/faults/:id", s.handleFaultFeed)
	app.Get("/feed/strands/:id", s.handleFaultStrandFeed)
	app.Get("/feed/entries/:id", s.handleGetFeedEntry)

	return s, nil
}

// rateLimit returns the submission middleware, or a pass-through when no
// limiter is configured.
func (s *Server) rateLimit() fiber.Handler {
	if s.config.Limiter == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return ratelimit.Middleware(s.config.Limiter, ratelimit.MiddlewareConfig{
		OnReject: func(c *fiber.Ctx, key string) {
			s.config.Metrics.RecordSubmission(submitterOf(c), metrics.OutcomeRateLimited)
			s.logger.Debug("submission rate limited",
				"key", key,
				"path", c.Path(),
			)
		},
	})
}

func submitterOf(c *fiber.Ctx) string {
	if c.Path() == "/faults/trace" {
		return metrics.SubmitterTrace
	}
	return metrics.SubmitterJSON
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"metrics", s.config.EnableMetrics && s.config.Registry != nil,
		"ratelimit", s.config.Limiter != nil,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
