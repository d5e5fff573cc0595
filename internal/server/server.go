package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/internal/fulfillment"
	"github.com/tournevent/fulfillment/internal/tracking"
	"github.com/tournevent/fulfillment/pkg/milestone"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// Dispatcher sends shipments to carriers.
type Dispatcher interface {
	Dispatch(ctx context.Context, shipmentID int64, carrier string) (*fulfillment.Result, error)
	ResendShipments(ctx context.Context, carrier string, abortOnError bool) (*fulfillment.ResendReport, error)
}

// Tracker runs tracking passes.
type Tracker interface {
	Run(ctx context.Context, carrier string, opts tracking.PollOptions) (*tracking.Report, error)
}

// ShipmentReader loads shipments and their timeline.
type ShipmentReader interface {
	Shipment(ctx context.Context, id int64) (*shipper.Shipment, error)
	Milestones(ctx context.Context, shipmentID int64) ([]milestone.Record, error)
}

// DocumentSource returns the carrier documents of sent shipments.
type DocumentSource interface {
	Document(ctx context.Context, shipmentID int64, kind shipper.DocumentKind) (*shipper.Document, error)
}

// Services are the operations exposed over HTTP.
type Services struct {
	Dispatcher Dispatcher
	Tracker    Tracker
	Shipments  ShipmentReader
	Documents  DocumentSource
	Gatherer   prometheus.Gatherer
}

// Server is the HTTP server for the fulfillment service.
type Server struct {
	port     int
	services Services
	logger   *otelzap.Logger
}

// Config holds server configuration.
type Config struct {
	Port int
}

// New creates a new server instance.
func New(cfg Config, services Services, logger *otelzap.Logger) *Server {
	if services.Gatherer == nil {
		services.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		port:     cfg.Port,
		services: services,
		logger:   logger,
	}
}

// Handler returns the routes of the service.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.services.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/shipments/{id}/dispatch", s.handleDispatch)
		r.Get("/shipments/{id}/milestones", s.handleMilestones)
		r.Get("/shipments/{id}/documents/{kind}", s.handleDocument)
		r.Post("/carriers/{carrier}/resend", s.handleResend)
		r.Post("/carriers/{carrier}/tracking", s.handleTracking)
	})
	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // resend and tracking passes call carriers inline
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		s.logger.Ctx(r.Context()).Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
