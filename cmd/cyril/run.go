package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/dwalleck/cyril/cli"
	"github.com/dwalleck/cyril/event"
	"github.com/dwalleck/cyril/hooks"
	"github.com/dwalleck/cyril/logger"
	"github.com/dwalleck/cyril/mediator"
	"github.com/dwalleck/cyril/metrics"
	"github.com/dwalleck/cyril/session"
	"github.com/dwalleck/cyril/terminal"
	"github.com/dwalleck/cyril/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const metricsShutdownTimeout = 5 * time.Second

func runSession(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.WithComponent("main")

	dir, err := resolveDir(workDir)
	if err != nil {
		return err
	}

	if cfg.AgentCommand == "" {
		if err := cli.NewChecker(nil).ValidateRequired(ctx, cli.DefaultPrerequisites(runtime.GOOS)); err != nil {
			return err
		}
	}

	rec := metrics.New()
	translator := cfg.Translator()

	hooksPath := hooks.ResolvePath(dir, cfg.HooksFile)
	watcher, err := hooks.NewWatcher(hooksPath, hooks.Options{
		ProjectRoot:   dir,
		ValidatePaths: cfg.ValidatePaths,
		Timeout:       cfg.HookTimeout(),
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		log.Warn("hooks will not reload on change", "error", err)
	}
	defer watcher.Stop()

	terms := terminal.New(terminal.WithWorkDir(dir), terminal.WithMetrics(rec))
	defer terms.Close()

	events := event.NewEmitter(cfg.EventBuffer)
	med := mediator.New(mediator.Options{
		Hooks:          watcher,
		Terminals:      terms,
		Translator:     translator,
		Events:         events,
		Metrics:        rec,
		AfterReadHooks: cfg.AfterReadHooks,
	})

	command, agentArgs := cfg.Agent(runtime.GOOS)
	agent := transport.NewAgentProcess(transport.Config{Command: command, Args: agentArgs, Dir: dir})
	if err := agent.Start(ctx); err != nil {
		return err
	}
	defer agent.Stop()
	if err := agent.CheckStartup(ctx); err != nil {
		return err
	}

	conn := session.Connect(agent, med, translator)
	driver := session.NewDriver(session.Options{Conn: conn, TurnEnder: med, Translator: translator})
	if err := driver.Start(ctx, dir); err != nil {
		return err
	}
	if agentMode != "" {
		if err := driver.SetMode(ctx, agentMode); err != nil {
			return err
		}
	}
	log.Info("session ready", "dir", dir, "hooks", hooksPath, "run", driver.RunID())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.MetricsAddr != "" {
		serveMetrics(gctx, g, cfg.MetricsAddr, rec)
	}

	g.Go(func() error {
		select {
		case <-agent.Done():
			events.Emit(event.AgentExited{Err: agent.Err()})
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		c := newConsole(driver, driver.Context(), events.Events(), os.Stdout, os.Stderr, prompt != "")
		if prompt != "" {
			return c.runOnce(gctx, prompt)
		}
		return c.runInteractive(gctx, readLines(os.Stdin))
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, errAgentExited) {
		if stderr := agent.Stderr(); stderr != "" {
			return fmt.Errorf("%w\n%s", err, stderr)
		}
	}
	return err
}

// serveMetrics exposes rec on addr until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, rec *metrics.Recorder) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.WithComponent("metrics").Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}
