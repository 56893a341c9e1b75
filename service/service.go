package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-uat/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

// Config selects where the servers listen. Zero values fall back to the defaults.
type Config struct {
	HealthzAddr    string
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	cfg Config
	log log.Logger
}

func New(cfg Config, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Root()
	}
	return &Service{
		Healthz: &HealthzServer{},
		Metrics: &MetricsServer{},
		cfg:     cfg,
		log:     logger.New("component", "service"),
	}
}

func (s *Service) healthzAddr() string {
	if s.cfg.HealthzAddr != "" {
		return s.cfg.HealthzAddr
	}
	return net.JoinHostPort(HealthzHost, HealthzPort)
}

func (s *Service) metricsAddr() string {
	host, port := s.cfg.MetricsHost, MetricsPort
	if host == "" {
		host = MetricsHost
	}
	if s.cfg.MetricsPort != 0 {
		port = strconv.Itoa(s.cfg.MetricsPort)
	}
	return net.JoinHostPort(host, port)
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	go func() {
		addr := s.healthzAddr()
		s.log.Info("starting healthz server", "addr", addr)
		if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("healthz_server", err)
		}
	}()

	if s.cfg.MetricsEnabled {
		go func() {
			addr := s.metricsAddr()
			s.log.Info("starting metrics server", "addr", addr)
			if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("metrics_server", err)
			}
		}()
	}

	s.log.Info("service started")
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")
	_ = s.Healthz.Shutdown()
	_ = s.Metrics.Shutdown()
	s.log.Info("service stopped")
}
