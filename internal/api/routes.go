package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maumercado/labtasker-go/internal/api/handlers"
	apiMiddleware "github.com/maumercado/labtasker-go/internal/api/middleware"
	"github.com/maumercado/labtasker-go/internal/api/websocket"
	"github.com/maumercado/labtasker-go/internal/config"
	"github.com/maumercado/labtasker-go/internal/events"
	"github.com/maumercado/labtasker-go/internal/service"
)

// Server is the HTTP transport binding over Service — routing, auth,
// rate limiting, and the websocket event fan-out, grounded on the
// teacher's Server/NewServer shape but dispatching onto the scheduling
// service instead of a Redis-backed queue.
type Server struct {
	router        *chi.Mux
	svc           *service.Service
	config        *config.Config
	queueHandler  *handlers.QueueHandler
	taskHandler   *handlers.TaskHandler
	workerHandler *handlers.WorkerHandler
	adminHandler  *handlers.AdminHandler
	wsHub         *websocket.Hub
	wsHandler     *websocket.Handler
	publisher     *events.RedisPubSub
}

// NewServer creates a new HTTP server bound to svc.
func NewServer(cfg *config.Config, svc *service.Service, publisher *events.RedisPubSub) *Server {
	wsHub := websocket.NewHub(publisher)

	s := &Server{
		router:        chi.NewRouter(),
		svc:           svc,
		config:        cfg,
		queueHandler:  handlers.NewQueueHandler(svc),
		taskHandler:   handlers.NewTaskHandler(svc),
		workerHandler: handlers.NewWorkerHandler(svc),
		adminHandler:  handlers.NewAdminHandler(svc),
		wsHub:         wsHub,
		wsHandler:     websocket.NewHandler(wsHub),
		publisher:     publisher,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	auth := apiMiddleware.Auth(s.svc)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		if s.config.Server.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Server.RateLimitRPS))
		}

		// create_queue has no credential to check yet; token exchange
		// authenticates against the password it is handed directly.
		r.Post("/queues", s.queueHandler.Create)
		r.Post("/queues/token", s.queueHandler.IssueToken)

		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Route("/queues/me", func(r chi.Router) {
				r.Get("/", s.queueHandler.Get)
				r.Patch("/", s.queueHandler.Update)
				r.Delete("/", s.queueHandler.Delete)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Post("/", s.taskHandler.Create)
				r.Post("/fetch", s.taskHandler.Fetch)
				r.Get("/", s.taskHandler.List)
				r.Get("/{taskID}", s.taskHandler.Get)
				r.Patch("/{taskID}", s.taskHandler.Update)
				r.Delete("/{taskID}", s.taskHandler.Cancel)
				r.Delete("/{taskID}/permanent", s.taskHandler.Delete)
				r.Post("/{taskID}/heartbeat", s.taskHandler.Heartbeat)
				r.Post("/{taskID}/status", s.taskHandler.Report)
			})

			r.Route("/workers", func(r chi.Router) {
				r.Post("/", s.workerHandler.Create)
				r.Get("/", s.workerHandler.List)
				r.Get("/{workerID}", s.workerHandler.Get)
				r.Delete("/{workerID}", s.workerHandler.Delete)
				r.Post("/{workerID}/status", s.workerHandler.Report)
			})

			r.Route("/collections/{collection}", func(r chi.Router) {
				r.Post("/query", s.adminHandler.QueryCollection)
				r.Patch("/", s.adminHandler.UpdateCollection)
			})
		})
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Get("/health", s.adminHandler.HealthCheck)
	})

	s.router.Get("/ws", s.wsHandler.ServeWS)

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start starts the WebSocket hub.
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub.
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Publisher returns the event publisher.
func (s *Server) Publisher() *events.RedisPubSub {
	return s.publisher
}
