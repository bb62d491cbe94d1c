package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/heimdex-render/internal/api"
	"github.com/heimdex/heimdex-render/internal/batch"
	"github.com/heimdex/heimdex-render/internal/config"
	"github.com/heimdex/heimdex-render/internal/db"
	"github.com/heimdex/heimdex-render/internal/discovery"
	"github.com/heimdex/heimdex-render/internal/launcher"
	"github.com/heimdex/heimdex-render/internal/ledger"
	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/resolve"
	"github.com/heimdex/heimdex-render/internal/ui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "usage: heimdex-render [-headless] [-profile file.yaml] [-status-port N]")
			os.Exit(2)
		}
		log.Fatalf("fatal error: %v", err)
	}
}

func run(args []string) error {
	startTime := time.Now()

	cfg, err := config.New(args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())
	logger.Info("starting heimdex-render", "version", config.Version, "commit", config.GitCommit, "headless", cfg.Headless())

	if err := launcher.CheckInstallation(cfg.AppPath()); err != nil {
		logger.Error("DaVinci Resolve not found", "path", cfg.AppPath())
		return err
	}

	candidates, err := discovery.Discover(cfg.InputDir(), discovery.Options{
		Extension: cfg.Extension(),
		MaxBytes:  cfg.MaxBytes(),
		Logger:    logger,
	})
	if err != nil {
		logger.Error("no input to process", "input_dir", cfg.InputDir(), "error", err)
		return err
	}
	logger.Debug("candidate files", "paths", discovery.Paths(candidates))

	outDir, err := filepath.Abs(cfg.OutputDir())
	if err != nil {
		return fmt.Errorf("invalid output dir: %w", err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	store := ledger.NewStore(database.Conn())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Tray and API cancel stop the batch only; Resolve is still asked to quit.
	batchCtx, cancelBatch := context.WithCancel(ctx)
	defer cancelBatch()

	progress := batch.NewProgress()

	// The status port is bound before Resolve is started so a port conflict
	// fails the run without touching Resolve.
	var server *api.Server
	if cfg.StatusPort() > 0 {
		token, err := ensureAPIToken(ctx, store)
		if err != nil {
			return fmt.Errorf("failed to ensure api token: %w", err)
		}
		server = api.NewServer(api.ServerConfig{
			Port:      cfg.StatusPort(),
			Store:     store,
			Progress:  progress,
			Cancel:    cancelBatch,
			Logger:    logging.WithComponent(logger, "api"),
			StartTime: startTime,
			Version:   config.Version,
		})
		if err := server.Listen(); err != nil {
			logger.Error("status API unavailable", "port", cfg.StatusPort(), "error", err)
			return err
		}
		defer server.Close()
		fmt.Printf("Status API: http://%s  (Authorization: Bearer %s)\n", server.Addr(), token)
	}

	mode := launcher.ModeInteractive
	if cfg.Headless() {
		mode = launcher.ModeHeadless
	}
	proc, err := launcher.New(launcher.Options{
		AppPath:    cfg.AppPath(),
		BinaryPath: cfg.BinaryPath(),
		Logger:     logging.WithComponent(logger, "launcher"),
	}).Start(mode)
	if err != nil {
		return fmt.Errorf("failed to start DaVinci Resolve: %w", err)
	}
	defer proc.Stop()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	runDone := make(chan struct{})
	defer close(runDone)
	go watchSignals(sigCh, runDone,
		func(sig os.Signal) {
			logger.Warn("received shutdown signal, stopping batch", "signal", sig.String())
			cancel()
		},
		func(sig os.Signal) {
			logger.Error("received second signal, exiting", "signal", sig.String())
			proc.Stop()
			os.Exit(1)
		})

	bridge, err := resolve.NewBridge(resolve.BridgeConfig{
		PythonPath: cfg.BridgePython(),
		ModuleName: cfg.BridgeModule(),
		Timeout:    cfg.BridgeTimeout(),
		Logger:     logging.WithComponent(logger, "bridge"),
	})
	if err != nil {
		return err
	}

	logger.Info("waiting for DaVinci Resolve to start", "timeout", cfg.ReadyTimeout().String())
	if _, err := resolve.WaitReady(ctx, bridge, resolve.ReadyOptions{
		Grace:          cfg.StartupGrace(),
		Timeout:        cfg.ReadyTimeout(),
		InitialBackoff: time.Second,
		MaxBackoff:     8 * time.Second,
		Logger:         logger,
	}); err != nil {
		return err
	}
	// Runs before proc.Stop on every path from here on.
	defer func() {
		quitCtx, quitCancel := context.WithTimeout(context.Background(), cfg.BridgeTimeout())
		defer quitCancel()
		if err := bridge.Quit(quitCtx); err != nil {
			logger.Warn("failed to quit DaVinci Resolve", "error", err)
		}
	}()

	existing, err := bridge.ProjectManager().ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	logger.Debug("existing projects", "count", len(existing))

	pipeline := batch.NewPipeline(bridge, existing, batch.PipelineOptions{
		OutputDir:     outDir,
		ProjectSuffix: cfg.ProjectSuffix(),
		Profile:       cfg.Render(),
		PollInterval:  cfg.PollInterval(),
		RenderTimeout: cfg.RenderTimeout(),
		Logger:        logger,
		Progress:      progress,
	})
	runner := batch.NewRunner(pipeline, batch.RunnerOptions{
		ContinueOnError: cfg.ContinueOnError(),
		Mode:            mode.String(),
		InputDir:        cfg.InputDir(),
		OutputDir:       outDir,
		Recorder:        store,
		Progress:        progress,
		Logger:          logger,
	})

	if !cfg.Headless() {
		tray := ui.NewTray(ui.TrayConfig{
			Progress: progress,
			Logger:   logging.WithComponent(logger, "tray"),
			OnCancel: cancelBatch,
			OnQuit:   cancel,
		})
		go tray.Run()
		defer tray.Quit()
	}

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	var g errgroup.Group
	var summary batch.Summary
	g.Go(func() error {
		defer stopServer()
		summary = runner.Run(batchCtx, candidates)
		return nil
	})
	if server != nil {
		g.Go(func() error {
			// A failing status API never stops the batch.
			if err := server.Serve(serverCtx); err != nil {
				logger.Error("status API stopped", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	printSummary(summary)

	switch {
	case summary.OK():
		logger.Info("done", "elapsed", time.Since(startTime).Round(time.Second).String())
		return nil
	case summary.Cancelled:
		return fmt.Errorf("batch cancelled: %d of %d files rendered", summary.Succeeded, summary.Total)
	default:
		return fmt.Errorf("%d of %d files did not render", summary.Failed+summary.Skipped, summary.Total)
	}
}

// watchSignals calls first on the first signal, which should let the current
// project close, and second on the next one. It returns when done closes.
func watchSignals(sigCh <-chan os.Signal, done <-chan struct{}, first, second func(os.Signal)) {
	select {
	case sig := <-sigCh:
		first(sig)
	case <-done:
		return
	}
	select {
	case sig := <-sigCh:
		second(sig)
	case <-done:
	}
}

func printSummary(s batch.Summary) {
	fmt.Println()
	fmt.Printf("Run %s: %d succeeded, %d failed, %d skipped (%s)\n",
		s.RunID, s.Succeeded, s.Failed, s.Skipped, s.Elapsed.Round(time.Second))
	for _, r := range s.Results {
		switch r.Status {
		case batch.StatusSucceeded:
			fmt.Printf("  ok      %s -> %s (%s)\n", filepath.Base(r.Source), r.OutputDir, r.Elapsed.Round(10*time.Millisecond))
		case batch.StatusFailed:
			fmt.Printf("  FAILED  %s at %s: %v\n", filepath.Base(r.Source), r.Stage, r.Err)
		default:
			fmt.Printf("  skipped %s\n", filepath.Base(r.Source))
		}
	}
}

func ensureAPIToken(ctx context.Context, store ledger.Store) (string, error) {
	existing, err := store.GetConfig(ctx, ledger.ConfigKeyAPIToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := store.SetConfig(ctx, ledger.ConfigKeyAPIToken, token); err != nil {
		return "", err
	}

	return token, nil
}
