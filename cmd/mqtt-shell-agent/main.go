// mqtt-shell-agent shares this machine's login shell over an MQTT broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acmattson3/mqtt-shell/internal/adapters/realclock"
	"github.com/acmattson3/mqtt-shell/internal/adapters/realmqtt"
	"github.com/acmattson3/mqtt-shell/internal/agent"
	"github.com/acmattson3/mqtt-shell/internal/auth"
	"github.com/acmattson3/mqtt-shell/internal/config"
	"github.com/acmattson3/mqtt-shell/internal/logging"
	"github.com/acmattson3/mqtt-shell/internal/protocol"
	"github.com/acmattson3/mqtt-shell/internal/pty"
	"github.com/acmattson3/mqtt-shell/internal/security"
)

// Version information - set at build time.
var (
	Version   = "0.3.1"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath     string
		connectTimeout time.Duration
		showVersion    bool
		debug          bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.DurationVar(&connectTimeout, "connect-timeout", 30*time.Second, "Broker connect timeout")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if showVersion {
		fmt.Printf("mqtt-shell-agent version %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		os.Exit(0)
	}

	if configPath == "" {
		configPath = os.Getenv(config.EnvConfigPath)
	}
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	// Load configuration: file first, environment on top
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Sanitize)

	slog.Info("starting mqtt-shell-agent",
		slog.String("version", Version),
		slog.String("broker", cfg.Broker.URL()),
		slog.String("session_id", cfg.Session.ID),
	)

	verifier := auth.NewVerifier(cfg.Auth.Secret)
	if cfg.Auth.MaxFailures > 0 {
		verifier.EnableLockout(auth.NewLockout(cfg.Auth.MaxFailures, cfg.Auth.LockoutDuration, realclock.New()))
		slog.Info("auth lockout enabled",
			slog.Int("max_failures", cfg.Auth.MaxFailures),
			slog.Duration("lockout_duration", cfg.Auth.LockoutDuration),
		)
	}

	// The spawned shell gets the agent's environment minus everything
	// matching the deny patterns, broker credentials above all.
	envFilter, err := security.NewEnvFilter(cfg.Shell.EnvDeny)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	spawn := func() (agent.ShellSession, error) {
		sh, err := pty.Start(pty.Options{
			Path:  cfg.Shell.Path,
			Login: cfg.Shell.Login,
			Term:  cfg.Shell.Term,
			Rows:  cfg.Shell.Rows,
			Cols:  cfg.Shell.Cols,
			Dir:   cfg.Shell.Dir,
			Env:   envFilter.Apply(os.Environ()),
		})
		if err != nil {
			return nil, err
		}
		return sh, nil
	}

	transport := realmqtt.New(realmqtt.Options{
		BrokerURL: cfg.Broker.URL(),
		ClientID:  protocol.AgentClientID(cfg.Session.ID),
		Username:  cfg.Broker.Username,
		Password:  cfg.Broker.Password,
	})

	ag, err := agent.New(transport, verifier, spawn, cfg.Session.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Set up secret hot-rotation if a config file is present. Environment
	// overrides are reapplied on reload, so an env-sourced secret stays
	// pinned until the process restarts.
	var configWatcher *config.Watcher
	if _, statErr := os.Stat(configPath); statErr == nil {
		var watcherErr error
		configWatcher, watcherErr = config.NewWatcher(configPath, func(newCfg *config.Agent) {
			verifier.SetSecret(newCfg.Auth.Secret)
			slog.Debug("verifier secret refreshed")
		})
		if watcherErr != nil {
			slog.Warn("secret hot-rotation disabled",
				slog.String("error", watcherErr.Error()),
			)
		} else {
			slog.Info("secret hot-rotation enabled",
				slog.String("path", configPath),
			)
		}
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	err = ag.Run(ctx, connectTimeout)
	if configWatcher != nil {
		configWatcher.Close()
	}
	if err != nil {
		slog.Error("agent error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
