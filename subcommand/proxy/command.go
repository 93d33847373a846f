// Package proxy implements the `ratelimiter proxy` subcommand: it
// loads the configuration file, starts the registry and its workers,
// starts the config hot-reload watcher, and serves the HTTP surface
// until interrupted.
package proxy

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	gometrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/oklog/run"

	"github.com/RoMcHiKo0o/ratelimiter/internal/config"
	"github.com/RoMcHiKo0o/ratelimiter/internal/httpapi"
	"github.com/RoMcHiKo0o/ratelimiter/internal/logutil"
	"github.com/RoMcHiKo0o/ratelimiter/internal/ratelimit"
	"github.com/RoMcHiKo0o/ratelimiter/internal/upstreamclient"
)

const synopsis = "Run the rate-limiting reverse proxy"

const help = `
Usage: ratelimiter proxy [options]

  Starts the HTTP reverse-proxy rate-limiter: it loads upstream
  definitions from a configuration file, enforces per-upstream pacing
  and daily quotas, and forwards matched requests to their upstream.
`

// Command is the `proxy` subcommand.
type Command struct {
	UI cli.Ui

	flags                *flag.FlagSet
	flagConfigPath       string
	flagListen           string
	flagLogLevel         string
	flagLogJSON          bool
	flagTransportErrStat int
	flagDisableHotReload bool

	once   sync.Once
	sigCh  chan os.Signal
	help   string
	logger hclog.Logger
}

func (c *Command) init() {
	c.flags = flag.NewFlagSet("", flag.ContinueOnError)
	c.flags.StringVar(&c.flagConfigPath, "config", "apis.json",
		"Path to the upstreams configuration file.")
	c.flags.StringVar(&c.flagListen, "listen", ":8080",
		"Address to bind the HTTP listener to.")
	c.flags.StringVar(&c.flagLogLevel, "log-level", "info",
		"Log verbosity level. Supported values (in order of detail) are "+
			"\"trace\", \"debug\", \"info\", \"warn\", and \"error\".")
	c.flags.BoolVar(&c.flagLogJSON, "log-json", false,
		"Enable or disable JSON output format for logging.")
	c.flags.IntVar(&c.flagTransportErrStat, "transport-error-status", http.StatusBadGateway,
		"HTTP status surfaced to callers when an upstream call fails at the "+
			"transport level. Legal values are 200 (the legacy behaviour) and 502.")
	c.flags.BoolVar(&c.flagDisableHotReload, "disable-hot-reload", false,
		"Disable watching the configuration file for newly added upstreams.")

	c.help = help
	c.sigCh = make(chan os.Signal, 1)
	signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM)
}

// Run implements cli.Command.
func (c *Command) Run(args []string) int {
	c.once.Do(c.init)
	if err := c.flags.Parse(args); err != nil {
		return 1
	}
	if c.flagTransportErrStat != http.StatusOK && c.flagTransportErrStat != http.StatusBadGateway {
		c.UI.Error(fmt.Sprintf("invalid -transport-error-status %d: must be 200 or 502", c.flagTransportErrStat))
		return 1
	}

	if c.logger == nil {
		logger, err := logutil.New(c.flagLogLevel, c.flagLogJSON)
		if err != nil {
			c.UI.Error(err.Error())
			return 1
		}
		c.logger = logger
	}

	gometrics.NewGlobal(gometrics.DefaultConfig("ratelimiter"), &gometrics.BlackholeSink{})

	file, err := config.Load(c.flagConfigPath)
	if err != nil {
		c.UI.Error(fmt.Sprintf("loading configuration: %s", err))
		return 1
	}
	for _, decodeErr := range file.Errors {
		c.logger.Warn("skipping invalid source", "err", decodeErr)
	}

	registry := ratelimit.NewRegistry(upstreamclient.New(), c.logger)
	registry.LoadFromConfig(file.Sources)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry.Start(ctx, ratelimit.RealClock{})
	defer registry.Stop()

	server := httpapi.NewServer(registry, c.logger, httpapi.Options{
		TransportErrorStatus: c.flagTransportErrStat,
	})
	httpServer := &http.Server{Addr: c.flagListen, Handler: server}

	var watcher *config.Watcher
	if !c.flagDisableHotReload {
		watcher = config.NewWatcher(c.flagConfigPath, registry, c.logger)
	}

	var g run.Group

	g.Add(func() error {
		c.logger.Info("listening", "addr", c.flagListen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	})

	if watcher != nil {
		stop := make(chan struct{})
		g.Add(func() error {
			return watcher.Run(stop)
		}, func(error) {
			close(stop)
			watcher.Close()
		})
	}

	stopSig := make(chan struct{})
	g.Add(func() error {
		select {
		case sig := <-c.sigCh:
			c.logger.Info("received signal, shutting down", "signal", sig)
		case <-stopSig:
		}
		return nil
	}, func(error) {
		close(stopSig)
	})

	if err := g.Run(); err != nil {
		c.logger.Error("exited with error", "err", err)
		return 1
	}
	return 0
}

// Synopsis implements cli.Command.
func (c *Command) Synopsis() string { return synopsis }

// Help implements cli.Command.
func (c *Command) Help() string {
	c.once.Do(c.init)
	return c.help
}

// interrupt delivers SIGINT to the command, used by tests.
func (c *Command) interrupt() {
	c.sendSignal(syscall.SIGINT)
}

// sendSignal delivers sig to the command's signal channel. Needed so
// tests can exercise graceful shutdown without sending a real OS
// signal to the test process.
func (c *Command) sendSignal(sig os.Signal) {
	c.once.Do(c.init)
	c.sigCh <- sig
}
