package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-voicebatch/internal/batch"
	"github.com/loqalabs/loqa-voicebatch/internal/bus"
	"github.com/loqalabs/loqa-voicebatch/internal/config"
	"github.com/loqalabs/loqa-voicebatch/internal/history"
	"github.com/loqalabs/loqa-voicebatch/internal/natsserver"
	"github.com/loqalabs/loqa-voicebatch/internal/playback"
	"github.com/loqalabs/loqa-voicebatch/internal/studio"
	"github.com/loqalabs/loqa-voicebatch/internal/styles"
	"github.com/loqalabs/loqa-voicebatch/internal/synth"
)

type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	telemetryClose func(context.Context) error
	metricsHandler http.Handler
	natsServer     *natsserver.EmbeddedServer
	bus            *bus.Client
	history        *history.Store
	studio         *studio.Service
	playback       *playback.Coordinator
	ready          atomic.Bool
	wg             sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the daemon until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry
	r.metricsHandler = metricsHandler

	if err := r.startBus(ctx); err != nil {
		r.shutdown()
		return err
	}

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		r.shutdown()
		return fmt.Errorf("open history: %w", err)
	}
	r.history = store

	backend, err := synth.New(r.cfg.Synth, time.Duration(r.cfg.Batch.DefaultRetryAfter)*time.Millisecond)
	if err != nil {
		r.shutdown()
		return err
	}
	scheduler := batch.NewScheduler(backend, batch.Options{
		Concurrency:  r.cfg.Batch.Concurrency,
		MaxTextBytes: r.cfg.Batch.MaxTextBytes,
	}, r.logger)

	r.studio = studio.NewService(ctx, scheduler, store, r.bus, r.logger)
	if err := r.studio.Start(); err != nil {
		r.shutdown()
		return fmt.Errorf("start studio: %w", err)
	}

	var director *styles.Director
	if r.cfg.Styles.Enabled {
		gen, err := styles.NewGenerator(r.cfg.Styles, r.cfg.Synth.APIKey, time.Duration(r.cfg.Synth.TimeoutSeconds)*time.Second)
		if err != nil {
			r.shutdown()
			return fmt.Errorf("create style generator: %w", err)
		}
		director = styles.NewDirector(gen, r.cfg.Styles, r.logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metricsHandler != nil {
		mux.Handle("/metrics", r.metricsHandler)
	}
	var coordinator Playback
	if r.playback != nil {
		coordinator = r.playback
	}
	NewAPI(r.studio, store, director, coordinator, r.logger).Register(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("synth_mode", r.cfg.Synth.Mode),
		slog.Int("concurrency", r.cfg.Batch.Concurrency))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	r.shutdown()
	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	if !r.cfg.Bus.Enabled {
		return nil
	}
	busCfg := r.cfg.Bus
	ns, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return err
	}
	r.natsServer = ns
	if ns != nil {
		busCfg.Servers = []string{ns.ClientURL()}
	}

	client, err := bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return err
	}
	r.bus = client

	r.playback = playback.NewCoordinator(r.logger)
	if err := r.playback.Listen(client.Conn()); err != nil {
		return fmt.Errorf("subscribe playback events: %w", err)
	}
	return nil
}

// shutdown releases whatever Start managed to acquire, in reverse order.
func (r *Runtime) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
		r.wg.Wait()
	}
	if r.studio != nil {
		r.studio.Close()
	}
	if r.playback != nil {
		r.playback.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.natsServer.Shutdown()
	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.studio == nil || r.studio.Healthy()) && (r.bus == nil || r.bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
