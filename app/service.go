package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/eta/api/dashboard"
	"github.com/kilianp07/eta/api/predict"
	"github.com/kilianp07/eta/config"
	"github.com/kilianp07/eta/core/dataset"
	coremetrics "github.com/kilianp07/eta/core/metrics"
	"github.com/kilianp07/eta/core/pipeline"
	"github.com/kilianp07/eta/core/predlog"
	"github.com/kilianp07/eta/core/prediction"
	"github.com/kilianp07/eta/infra/logger"
	_ "github.com/kilianp07/eta/infra/metrics"
	"github.com/kilianp07/eta/infra/mqtt"
)

// shutdownTimeout bounds the graceful stop of the HTTP server.
const shutdownTimeout = 5 * time.Second

// Service serves one pipeline over HTTP and, when configured, MQTT.
type Service struct {
	Pipeline *pipeline.Pipeline
	Engine   *prediction.Service
	Store    predlog.Store
	Sink     coremetrics.MetricsSink

	cfg  *config.Config
	echo *echo.Echo
	mqtt *mqtt.PahoClient
	log  logger.Logger
}

// LoadPipeline reads the artifact configured in cfg and checks it against
// the configured schema.
func LoadPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	p, err := pipeline.Load(cfg.Model.Path, cfg.Features.Schema())
	if err != nil {
		return nil, fmt.Errorf("load pipeline %s: %w", cfg.Model.Path, err)
	}
	return p, nil
}

// New creates a Service predicting with p.
func New(cfg *config.Config, p *pipeline.Pipeline) (*Service, error) {
	logg := logger.New("service")

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	if rec, ok := sink.(coremetrics.ModelRecorder); ok {
		info := coremetrics.ModelInfo{
			Path:      cfg.Model.Path,
			TrainedAt: p.Metadata().TrainedAt,
			Features:  len(p.Coefficients()) - 1,
		}
		if err := rec.RecordModelLoaded(info); err != nil {
			logg.Warnf("record model: %v", err)
		}
	}

	store, err := predlog.New(cfg.PredictionLog)
	if err != nil {
		return nil, fmt.Errorf("prediction log: %w", err)
	}

	engine := prediction.NewService(p, logger.New("prediction"),
		prediction.WithEnumerations(cfg.Features.PredictEnumerations()),
		prediction.WithRanges(cfg.Features.Ranges),
		prediction.WithMetrics(sink),
		prediction.WithStore(store),
	)

	s := &Service{
		Pipeline: p,
		Engine:   engine,
		Store:    store,
		Sink:     sink,
		cfg:      cfg,
		log:      logg,
	}
	s.echo = s.routes()
	return s, nil
}

func (s *Service) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	meta := s.Pipeline.Metadata()
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":     "ok",
			"trained_at": meta.TrainedAt,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	overview := dataset.NewOverviewCache(s.cfg.Data.Path, s.cfg.Data.LoadOptions())
	schema := predict.NewSchemaInfo(s.Pipeline, s.cfg.Features.Ranges, s.cfg.Features.AllowUnknownLevels)
	predict.NewHandler(s.Engine, schema,
		predict.WithStore(s.Store),
		predict.WithOverview(overview),
		predict.WithToken(s.cfg.Server.APIToken),
	).RegisterRoutes(e.Group("/api/v1"))

	if s.cfg.Server.DashboardEnabled() {
		dashboard.NewHandler(overview, s.Pipeline.Coefficients()).RegisterRoutes(e.Group(""))
	}
	return e
}

// Handler returns the HTTP handler of the service.
func (s *Service) Handler() http.Handler { return s.echo }

// Run starts the transports and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.MQTT.Enabled() {
		client, err := mqtt.NewPahoClient(s.cfg.MQTT, s.Engine)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.mqtt = client
		s.log.Infof("serving predictions on MQTT topic %s", s.cfg.MQTT.RequestTopic)
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infof("HTTP server listening on %s", s.cfg.Server.Addr)
		if err := s.echo.Start(s.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	coremetrics.Close(s.Sink)
	return s.Store.Close()
}
