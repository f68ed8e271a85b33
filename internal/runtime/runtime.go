package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercast-labs/papercast-core/internal/audio"
	"github.com/papercast-labs/papercast-core/internal/blobstore"
	"github.com/papercast-labs/papercast-core/internal/bus"
	"github.com/papercast-labs/papercast-core/internal/config"
	"github.com/papercast-labs/papercast-core/internal/jobs"
	"github.com/papercast-labs/papercast-core/internal/natsserver"
	"github.com/papercast-labs/papercast-core/internal/paperstore"
	"github.com/papercast-labs/papercast-core/internal/synth"
	"github.com/papercast-labs/papercast-core/internal/worker"
)

// Runtime assembles the daemon: stores, synthesizer, job supervision, the
// delivery endpoints, and telemetry.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	var embedded *natsserver.EmbeddedServer
	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		busClient, err = bus.Connect(ctx, r.cfg.Bus, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
	}

	papers, err := paperstore.Open(ctx, r.cfg.PaperStore, r.logger)
	if err != nil {
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("failed to open paper store: %w", err)
	}

	blobs, blobRoot, err := newBlobStore(r.cfg.BlobStore)
	if err != nil {
		papers.Close()
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("failed to setup blob store: %w", err)
	}

	synthesizer, err := newSynthesizer(r.cfg.Synth)
	if err != nil {
		papers.Close()
		busClient.Close()
		embedded.Shutdown()
		return fmt.Errorf("failed to setup synthesizer: %w", err)
	}

	runs := jobs.NewRegistry(ctx, r.cfg.Jobs, r.logger)
	w := worker.New(papers, blobs, synthesizer, r.cfg.Synth, r.cfg.Jobs, runs, busClient, r.logger)
	audioSvc := audio.NewService(papers, runs, w, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	if blobRoot != "" {
		mux.Handle("/blobs/", http.StripPrefix("/blobs/", http.FileServer(http.Dir(blobRoot))))
	}
	audioSvc.Register(mux)

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
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	runs.Close()
	busClient.Close()
	embedded.Shutdown()
	if err := papers.Close(); err != nil {
		r.logger.Error("paper store close error", slog.String("error", err.Error()))
	}

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func newBlobStore(cfg config.BlobStoreConfig) (blobstore.Store, string, error) {
	switch cfg.Mode {
	case "bucket":
		return blobstore.NewBucketStore(cfg.Endpoint, cfg.Bucket, cfg.APIKey), "", nil
	case "fs":
		s, err := blobstore.NewFSStore(cfg.Root, cfg.BaseURL)
		if err != nil {
			return nil, "", err
		}
		return s, s.Root(), nil
	default:
		return nil, "", fmt.Errorf("unknown blob store mode %q", cfg.Mode)
	}
}

func newSynthesizer(cfg config.SynthConfig) (synth.Synthesizer, error) {
	switch cfg.Mode {
	case "google":
		return synth.NewGoogleSynth(cfg.Endpoint, cfg.APIKey), nil
	case "exec":
		return synth.NewExecSynth(cfg.Command)
	case "mock":
		return synth.NewMockSynth(), nil
	default:
		return nil, fmt.Errorf("unknown synth mode %q", cfg.Mode)
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
