package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/internal/broker/kafka"
	"github.com/tournevent/fulfillment/internal/cache/rediscache"
	"github.com/tournevent/fulfillment/internal/config"
	"github.com/tournevent/fulfillment/internal/documents"
	"github.com/tournevent/fulfillment/internal/fulfillment"
	"github.com/tournevent/fulfillment/internal/notify"
	"github.com/tournevent/fulfillment/internal/servicepoint"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/internal/storage/memory"
	"github.com/tournevent/fulfillment/internal/storage/postgres"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/internal/tracking"
	"github.com/tournevent/fulfillment/internal/transfer"
	"github.com/tournevent/fulfillment/pkg/milestone"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/tournevent/fulfillment/pkg/shipper/aramex"
	"github.com/tournevent/fulfillment/pkg/shipper/aramexsa"
	"github.com/tournevent/fulfillment/pkg/shipper/citycode"
	"github.com/tournevent/fulfillment/pkg/shipper/dhl"
	"github.com/tournevent/fulfillment/pkg/shipper/naqel"
	"github.com/tournevent/fulfillment/pkg/shipper/postaplus"
	"github.com/tournevent/fulfillment/pkg/shipper/smsa"
)

// Network timeouts per carrier.
var carrierTimeouts = map[string]time.Duration{
	shipper.CarrierAramex:    60 * time.Second,
	shipper.CarrierAramexSA:  60 * time.Second,
	shipper.CarrierDHL:       60 * time.Second,
	shipper.CarrierNaqel:     120 * time.Second,
	shipper.CarrierPostaPlus: 180 * time.Second,
	shipper.CarrierSMSA:      120 * time.Second,
}

// app holds the wired services of one process.
type app struct {
	cfg      *config.Config
	logger   *otelzap.Logger
	store    storage.Store
	registry *shipper.Registry
	metrics  *telemetry.Metrics

	dispatcher    *fulfillment.Dispatcher
	tracking      *tracking.Service
	servicePoints *servicepoint.Updater

	closers []func(ctx context.Context) error
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, error) {
	return telemetry.NewLogger(cfg.LogLevel,
		zap.String("service", cfg.ServiceName),
		zap.String("version", cfg.Version),
	)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
}

// newApp wires every collaborator from the environment. The caller must
// Close the returned app.
func newApp(ctx context.Context) (*app, error) {
	// Every carrier code must map onto the milestone catalog before anything
	// is ingested.
	if err := milestone.Validate(shipper.Carriers...); err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func(context.Context) error {
		_ = logger.Sync()
		return nil
	})

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		a.closers = append(a.closers, tracerShutdown)
	}

	if err := a.initStore(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}

	var (
		cache  *rediscache.RedisCache
		locker fulfillment.OrderLocker
		thr    fulfillment.Throttler
	)
	if cfg.RedisAddr != "" {
		cache = rediscache.New(cfg.RedisAddr)
		a.closers = append(a.closers, func(context.Context) error { return cache.Close() })
		if err := cache.Ping(ctx); err != nil {
			logger.Warn("Redis is not reachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		locker = rediscache.NewLocker(cache, cfg.DispatchLockTTL)
		thr = rediscache.NewThrottle(cache)
	}

	var pub notify.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers)
		a.closers = append(a.closers, func(context.Context) error { return producer.Close() })
		pub = producer
	}
	var notifier *notify.Notifier
	if pub != nil {
		notifier = notify.New(pub, cfg.NotifyTopic, logger)
	}

	var (
		uploader   aramex.Uploader
		downloader tracking.Downloader
	)
	if cfg.SFTPAddr != "" {
		tc := transfer.New(transfer.Config{
			Addr:           cfg.SFTPAddr,
			User:           cfg.SFTPUser,
			Password:       cfg.SFTPPassword,
			KnownHostsFile: cfg.SFTPKnownHosts,
			Timeout:        cfg.SFTPTimeout,
		}, logger)
		uploader, downloader = tc, tc
	}

	deps := shipper.Deps{Numbers: a.store, Documents: initDocuments(cfg)}
	if cache != nil {
		deps.Cache = cache
	}

	settings, err := config.LoadCarriers(cfg.CarriersFile)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.registry, err = initShipperRegistry(cfg, settings, deps, uploader, logger, tracer)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)

	limits := make(map[string]int, len(settings))
	for name, s := range settings {
		limits[name] = s.AwbWarningLimit
	}
	selector := fulfillment.NewSelector(a.store, a.registry, a.metrics, logger)
	a.dispatcher = fulfillment.NewDispatcher(fulfillment.Deps{
		Store:    a.store,
		Registry: a.registry,
		Locker:   locker,
		Pool:     fulfillment.NewPoolMonitor(a.store, limits, thr, notifier, a.metrics, logger),
		Notifier: notifier,
		Metrics:  a.metrics,
	}, selector, logger, tracer)

	engine := tracking.NewEngine(a.store, tracking.NewPropagator(), notifier, a.metrics, logger, tracer)
	a.tracking = tracking.NewService(a.registry, engine,
		tracking.NewPollingSource(a.store, a.registry, logger),
		tracking.NewFileFeedSource(downloader, cfg.FeedInbox, cfg.ProductionMode, logger),
	)
	a.servicePoints = servicepoint.NewUpdater(a.registry, a.store, logger)

	logger.Info("Fulfillment service initialized",
		zap.Strings("carriers", a.registry.Names()),
		zap.Bool("production", cfg.ProductionMode),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
		zap.Bool("kafka", pub != nil),
		zap.Bool("sftp", cfg.SFTPAddr != ""),
	)
	return a, nil
}

// Close releases the resources in reverse order of creation.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("Shutdown step failed", zap.Error(err))
		}
	}
}

func (a *app) initStore(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		a.logger.Warn("DATABASE_URL is empty, using the in-memory store")
		a.store = memory.New()
		return nil
	}
	st, err := postgres.New(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		st.Close()
		return nil
	})
	a.store = st
	return nil
}

func initDocuments(cfg *config.Config) shipper.DocumentRenderer {
	if cfg.DocumentsURL == "" {
		return documents.Placeholder{}
	}
	return documents.New(cfg.DocumentsURL, cfg.DocumentsTimeout)
}

func loadCities(path string) (*citycode.Table, error) {
	if path == "" {
		return nil, nil
	}
	return citycode.Load(path)
}

func initShipperRegistry(cfg *config.Config, settings map[string]shipper.Settings, deps shipper.Deps, uploader aramex.Uploader, logger *otelzap.Logger, tracer trace.Tracer) (*shipper.Registry, error) {
	registry := shipper.NewRegistry()

	if s := settings[shipper.CarrierAramex]; s.Enabled {
		registry.Register(aramex.New(aramex.Config{
			URL:      cfg.URL(cfg.AramexURL, aramex.ProductionURL, aramex.StagingURL),
			Timeout:  carrierTimeouts[shipper.CarrierAramex],
			Settings: s,
			Uploader: uploader,
			UseMock:  s.UseMock,
		}, deps, logger, tracer))
	}

	if s := settings[shipper.CarrierAramexSA]; s.Enabled {
		registry.Register(aramexsa.New(aramexsa.Config{
			URL:      cfg.URL(cfg.AramexSAURL, aramexsa.ProductionURL, aramexsa.StagingURL),
			Username: cfg.AramexSAUsername,
			Password: cfg.AramexSAPassword,
			APIKey:   cfg.AramexSAAPIKey,
			Timeout:  carrierTimeouts[shipper.CarrierAramexSA],
			Settings: s,
			UseMock:  s.UseMock,
		}, deps, logger, tracer))
	}

	if s := settings[shipper.CarrierDHL]; s.Enabled {
		cities, err := citycode.DHL()
		if err != nil {
			return nil, fmt.Errorf("dhl city codes: %w", err)
		}
		registry.Register(dhl.New(dhl.Config{
			BaseURL:  cfg.URL(cfg.DHLURL, dhl.ProductionURL, dhl.StagingURL),
			Username: cfg.DHLUsername,
			Password: cfg.DHLPassword,
			Timeout:  carrierTimeouts[shipper.CarrierDHL],
			Settings: s,
			Cities:   cities,
			UseMock:  s.UseMock,
		}, deps, logger, tracer))
	}

	if s := settings[shipper.CarrierNaqel]; s.Enabled {
		cities, err := loadCities(cfg.NaqelCitiesFile)
		if err != nil {
			return nil, fmt.Errorf("naqel city codes: %w", err)
		}
		registry.Register(naqel.New(naqel.Config{
			URL:        cfg.URL(cfg.NaqelURL, naqel.ProductionURL, naqel.StagingURL),
			Timeout:    carrierTimeouts[shipper.CarrierNaqel],
			Settings:   s,
			Cities:     cities,
			Production: cfg.ProductionMode,
			UseMock:    s.UseMock,
		}, deps, logger, tracer))
	}

	if s := settings[shipper.CarrierPostaPlus]; s.Enabled {
		cities, err := loadCities(cfg.PostaPlusCitiesFile)
		if err != nil {
			return nil, fmt.Errorf("postaplus city codes: %w", err)
		}
		client, err := postaplus.New(postaplus.Config{
			URL:      cfg.URL(cfg.PostaPlusURL, postaplus.ProductionURL, postaplus.StagingURL),
			Timeout:  carrierTimeouts[shipper.CarrierPostaPlus],
			CAFile:   cfg.PostaPlusCAFile,
			Settings: s,
			Cities:   cities,
			UseMock:  s.UseMock,
		}, deps, logger, tracer)
		if err != nil {
			return nil, fmt.Errorf("postaplus: %w", err)
		}
		registry.Register(client)
	}

	if s := settings[shipper.CarrierSMSA]; s.Enabled {
		registry.Register(smsa.New(smsa.Config{
			URL:           cfg.URL(cfg.SMSAURL, smsa.ProductionURL, smsa.ProductionURL),
			Timeout:       carrierTimeouts[shipper.CarrierSMSA],
			Settings:      s,
			Production:    cfg.ProductionMode,
			TrackingPause: cfg.SMSATrackingPause,
			UseMock:       s.UseMock,
		}, deps, logger, tracer))
	}

	return registry, nil
}
