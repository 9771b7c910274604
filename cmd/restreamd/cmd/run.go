package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"restreamd/internal/config"
	"restreamd/internal/httpapi"
	"restreamd/internal/logging"
	"restreamd/internal/metrics"
	"restreamd/internal/procmon"
	"restreamd/internal/runner"
	"restreamd/internal/shutdown"
	"restreamd/internal/store"
	"restreamd/internal/supervisor"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the streaming daemon",
	Long:  `Run the supervisor daemon: serve the HTTP API, reconcile stream state on an interval and reattach to encoders left over from a previous run.`,
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	log.Info("starting restreamd", map[string]interface{}{
		"data_dir":    cfg.DataDir,
		"listen_addr": cfg.ListenAddr,
		"ingest_url":  cfg.IngestURL,
	})

	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		log.Warn("encoder binary not found; streams will fail to start", map[string]interface{}{
			"ffmpeg_path": cfg.FFmpegPath,
		})
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	st, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	r := runner.New(st, log, cfg.DataDir, cfg.FFmpegPath, cfg.IngestURL)
	sup := supervisor.New(st, procmon.New(cfg.EncoderName()), r, log, m, supervisor.Config{
		DataDir:   cfg.DataDir,
		StopGrace: cfg.StopGrace,
	})

	// First pass before serving so reattachment happens ahead of any client
	// request.
	sup.Reconcile()

	reconcileStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sup.Reconcile()
			case <-reconcileStop:
				return
			}
		}
	}()

	router := mux.NewRouter()
	httpapi.NewHandler(sup, log).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	shutdownMgr := shutdown.New(10 * time.Second)
	shutdownMgr.Register(func(ctx context.Context) error {
		close(reconcileStop)
		return nil
	})
	shutdownMgr.Register(func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	errChan := make(chan error, 1)
	go func() {
		log.Info("http api listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case sig := <-waitSignal(shutdownMgr):
		log.Info("shutting down", map[string]interface{}{"signal": sig.String()})
	case err := <-errChan:
		log.Error("http server failed", map[string]interface{}{"error": err.Error()})
		shutdownMgr.Shutdown()
		return err
	}

	// Encoders are left running on purpose: they survive the daemon and are
	// reattached on the next start.
	shutdownMgr.Shutdown()
	log.Info("shutdown complete")
	return nil
}

func waitSignal(m *shutdown.Manager) <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	go func() {
		ch <- m.Wait()
	}()
	return ch
}
