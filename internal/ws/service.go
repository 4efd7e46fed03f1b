package ws

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/pagepick/backend/internal/logger"
	"github.com/pagepick/backend/internal/metrics"
)

// ServiceConfig configures the relay side.
type ServiceConfig struct {
	AllowedOrigins []string
	History        int
	// RecordPath enables frame recording when non-empty.
	RecordPath string
	Logger     logrus.FieldLogger
	// Registerer receives the hub collectors when non-nil.
	Registerer prometheus.Registerer
}

// Service owns the hub, its handler and the optional recorder.
type Service struct {
	hub      *Hub
	handler  *Handler
	recorder *logger.Recorder
	log      logrus.FieldLogger
}

// NewService creates the relay.
func NewService(cfg ServiceConfig) (*Service, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	var m *metrics.Hub
	if cfg.Registerer != nil {
		m = metrics.NewHub(cfg.Registerer)
	}

	var rec *logger.Recorder
	if cfg.RecordPath != "" {
		var err error
		rec, err = logger.NewRecorder(cfg.RecordPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open frame recording: %w", err)
		}
		log.WithField("path", cfg.RecordPath).Info("recording relayed frames")
	}

	hub := NewHub(HubConfig{
		Logger:   log,
		Metrics:  m,
		History:  cfg.History,
		Recorder: rec,
	})
	hub.SetOnEmpty(func() {
		log.Info("last viewer left, session ended")
	})

	return &Service{
		hub:      hub,
		handler:  NewHandler(hub, cfg.AllowedOrigins, log, m),
		recorder: rec,
		log:      log,
	}, nil
}

// Hub returns the relay hub.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// ClientCount returns the number of connected viewers.
func (s *Service) ClientCount() int {
	return s.hub.ClientCount()
}

// Close disconnects every viewer and closes the recording.
func (s *Service) Close() error {
	s.hub.Close()
	if s.recorder != nil {
		return s.recorder.Close()
	}
	return nil
}
