// Package app assembles the bot: configuration, logging, the snapshot
// store, the event publisher, the session manager and the HTTP
// surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"call-transcription-bot/internal/asr"
	"call-transcription-bot/internal/asr/google"
	"call-transcription-bot/internal/asr/mock"
	"call-transcription-bot/internal/audio"
	"call-transcription-bot/internal/call"
	"call-transcription-bot/internal/config"
	"call-transcription-bot/internal/events"
	"call-transcription-bot/internal/httpapi"
	"call-transcription-bot/internal/observability"
	"call-transcription-bot/internal/observability/logging"
	"call-transcription-bot/internal/session"
	"call-transcription-bot/internal/store"
)

// ControllerProvider supplies vendor streaming-controller instances
// for the controller backend. It must be injected by the embedder that
// links the vendor SDK.
type ControllerProvider func() (asr.Controller, error)

// Application holds process-wide state for the bot.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Store     *store.Store
	Publisher *events.Publisher
	Manager   *session.Manager

	api     *http.Server
	metrics *observability.Server

	controllers ControllerProvider
}

// New constructs the application from configuration. A missing Redis
// is tolerated: the bot runs without persistence rather than refusing
// to join calls.
func New(ctx context.Context, cfg *config.Config, controllers ControllerProvider) *Application {
	format := "json"
	if os.Getenv("ENV") == "dev" {
		format = "console"
	}
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     format,
		TimeFormat: time.RFC3339,
	})

	a := &Application{
		Cfg:         cfg,
		Logger:      logging.WithComponent("application"),
		controllers: controllers,
	}

	st, err := store.New(ctx, store.Config{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		TTL:         cfg.Redis.TTL,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("Redis unavailable, transcripts will not be persisted")
	} else {
		a.Store = st
	}

	a.Publisher = events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicUpdates:   cfg.Kafka.TopicUpdates,
		TopicLifecycle: cfg.Kafka.TopicLifecycle,
		Principal:      cfg.Kafka.Principal,
	})

	sessionCfg := session.Config{
		Gate: audio.Config{
			VoiceThreshold:  cfg.Audio.VoiceThreshold,
			SilenceHangover: cfg.Audio.SilenceHangover,
			FlushInterval:   cfg.Audio.FlushInterval,
		},
		Supervisor: asr.SupervisorConfig{
			MaxAttempts:    cfg.Reconnect.MaxAttempts,
			RetryDelay:     cfg.Reconnect.RetryDelay,
			HealthInterval: cfg.Reconnect.HealthInterval,
		},
		Backend:      cfg.ASR.Backend,
		WriteTimeout: 5 * time.Second,
	}

	var storeForSessions session.SnapshotStore
	if a.Store != nil {
		storeForSessions = a.Store
	}
	a.Manager = session.NewManager(sessionCfg, a.transportFactory, storeForSessions, a.Publisher)

	var reader httpapi.TranscriptReader
	if a.Store != nil {
		reader = a.Store
	}
	a.api = &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      httpapi.NewRouter(a.Manager, reader),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	a.metrics = observability.NewServer(":"+cfg.Observability.MetricsPort, func() bool {
		return a.Store != nil
	})

	a.Logger.Info().Str("backend", cfg.ASR.Backend).Msg("Call transcription bot application created")
	return a
}

// transportFactory builds per-call transport factories for the
// configured backend.
func (a *Application) transportFactory(info call.Info) asr.Factory {
	cfg := a.Cfg
	switch cfg.ASR.Backend {
	case asr.BackendSocket:
		return func() (asr.Transport, error) {
			if cfg.ASR.SocketURL == "" {
				return nil, errors.New("app: ASR_SOCKET_URL not configured")
			}
			return asr.NewSocket(asr.SocketConfig{
				URL:        cfg.ASR.SocketURL,
				QueueDepth: cfg.ASR.QueueDepth,
			}), nil
		}
	case asr.BackendController:
		return func() (asr.Transport, error) {
			if a.controllers == nil {
				return nil, errors.New("app: controller backend needs a controller provider")
			}
			ctrl, err := a.controllers()
			if err != nil {
				return nil, err
			}
			return asr.NewController(ctrl, asr.ControllerConfig{
				QueueDepth: cfg.ASR.QueueDepth,
			}), nil
		}
	case asr.BackendGoogle:
		return func() (asr.Transport, error) {
			return google.New(google.Config{
				SampleRate:     cfg.Audio.SampleRateHz,
				LanguageCode:   cfg.ASR.LanguageCode,
				Encoding:       cfg.ASR.AudioEncoding,
				InterimResults: cfg.ASR.InterimResults,
				QueueDepth:     cfg.ASR.QueueDepth,
			}), nil
		}
	case asr.BackendMock:
		return func() (asr.Transport, error) {
			return mock.New(mock.Config{Latency: 50 * time.Millisecond}), nil
		}
	default:
		return func() (asr.Transport, error) {
			return nil, fmt.Errorf("app: unknown recognition backend %q", cfg.ASR.Backend)
		}
	}
}

// Start brings the HTTP surfaces up. The session manager starts
// pipelines on demand as calls go active.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()

	a.metrics.Start()
	go func() {
		a.Logger.Info().Str("addr", a.api.Addr).Msg("API server listening")
		if err := a.api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("API server error")
		}
	}()

	a.Logger.Info().Time("startupTime", a.StartupTime).Msg("Call transcription bot started")
	return nil
}

// Shutdown tears everything down: sessions first so their final
// snapshots land, then the servers and the clients.
func (a *Application) Shutdown(ctx context.Context) {
	a.Logger.Info().Msg("Call transcription bot shutting down")

	a.Manager.StopAll()

	if err := a.api.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("API server shutdown failed")
	}
	if err := a.metrics.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Metrics server shutdown failed")
	}
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Publisher close failed")
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Store close failed")
		}
	}
}
