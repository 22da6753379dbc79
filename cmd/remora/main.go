// Remora is a contextual reminder engine for conversational agents.
//
// It watches incoming user messages for configured keyword contexts and
// decides, per message, whether to inject a reminder into the host
// agent's system prompt and at what sampling temperature the host
// should respond. It exposes an HTTP API for host agents, an optional
// WebSocket event stream and MQTT activity feed for observers, and a
// CLI for one-shot evaluations. Configuration is loaded from a single
// YAML file discovered automatically (see [config.DefaultSearchPaths]),
// with an optional per-project remora.yaml overlay.
//
// Usage:
//
//	remora serve             Start the API server
//	remora eval <message>    Evaluate a single message (for testing)
//	remora init [dir]        Initialize a working directory with defaults
//	remora version           Print version and build information
//	remora -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/remora/internal/api"
	"github.com/nugget/remora/internal/buildinfo"
	"github.com/nugget/remora/internal/config"
	"github.com/nugget/remora/internal/eventlog"
	"github.com/nugget/remora/internal/events"
	"github.com/nugget/remora/internal/mqtt"
	"github.com/nugget/remora/internal/reminders"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "remora: %v\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the remora command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the server and background goroutines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:] — the command-line arguments after the program
//     name. We parse these manually rather than using the flag package
//     to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Parse arguments by hand. The flag package relies on package-level
	// globals (flag.CommandLine), which makes it impossible to call run()
	// concurrently from tests. Our argument surface is small enough that
	// manual parsing is clearer than bringing in a CLI framework.
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				// Collect remaining args as subcommand arguments.
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	// Default to human-readable text output.
	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "eval":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: remora eval <message>")
		}
		return runEval(ctx, stdout, configPath, strings.Join(cmdArgs, " "), outputFmt)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// remora is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Remora - Contextual Reminder Engine")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: remora [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve            Start the API server")
	fmt.Fprintln(w, "  eval <message>   Evaluate a single message (for testing)")
	fmt.Fprintln(w, "  init [dir]       Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version          Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/remora/config.yaml, /etc/remora/config.yaml")
	return nil
}

// runEval handles the "remora eval <message>" subcommand. It runs a
// single evaluation with no server, no event log, and no MQTT, printing
// the result to stdout. Useful for tuning keyword and priority config
// without starting the daemon.
func runEval(ctx context.Context, stdout io.Writer, configPath string, message string, outputFmt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	engine := reminders.NewEngine(cfg, reminders.Deps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ev, err := engine.Evaluate(ctx, message)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ev)
	}

	fmt.Fprintf(stdout, "detected:    %s\n", strings.Join(ev.Detected, ", "))
	fmt.Fprintf(stdout, "context:     %s\n", ev.Decision.Context)
	fmt.Fprintf(stdout, "rate:        %g\n", ev.Decision.InjectionRate)
	if ev.Temperature != nil {
		fmt.Fprintf(stdout, "temperature: %g\n", *ev.Temperature)
	}
	fmt.Fprintf(stdout, "injected:    %v\n", ev.Injected)
	if ev.Reminder != nil {
		fmt.Fprintf(stdout, "reminder:\n%s\n", *ev.Reminder)
	}
	return nil
}

// runServe handles the "remora serve" subcommand. It is the primary
// operating mode: loads config, opens the decision log, starts the API
// server and optional MQTT publisher, and blocks until a shutdown
// signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The HTTP server drains in-flight requests
//  3. MQTT publishes "offline" and disconnects
//  4. The decision log database is closed via defers
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Remora", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure logger now that we know the desired level. The initial
	// Info-level logger is used only for the startup banner; everything
	// after this point uses the configured level.
	if cfg.LogLevel != "" {
		// ParseLogLevel is already validated by config.Validate(), so
		// this error path should be unreachable in practice.
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"contexts", cfg.Contexts.Len(),
		"enabled", cfg.Enabled,
		"adaptive", cfg.Adaptive,
	)

	if missing := cfg.UnresolvedTemplateRefs(); len(missing) > 0 {
		logger.Warn("contexts reference undefined templates; they will never contribute a reminder",
			"contexts", missing)
	}

	// --- Event bus ---
	// Internal pub/sub fabric. The engine publishes every evaluation;
	// the WebSocket stream and MQTT publisher subscribe.
	bus := events.New()

	// --- Decision log ---
	// SQLite-backed evaluation history. Optional; without it the engine
	// runs fully stateless and /v1/decisions reports 404.
	var store *eventlog.Store
	if cfg.EventLog.Enabled {
		store, err = eventlog.NewStore(cfg.EventLog.Path)
		if err != nil {
			return fmt.Errorf("open decision log %s: %w", cfg.EventLog.Path, err)
		}
		defer store.Close()
		logger.Info("decision log opened", "path", cfg.EventLog.Path)

		if cfg.EventLog.RetentionDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -cfg.EventLog.RetentionDays)
			pruned, err := store.PruneOlderThan(ctx, cutoff)
			if err != nil {
				logger.Warn("failed to prune decision log", "error", err)
			} else if pruned > 0 {
				logger.Info("pruned old decisions", "count", pruned, "retention_days", cfg.EventLog.RetentionDays)
			}
		}
	}

	// --- Engine ---
	deps := reminders.Deps{Logger: logger, Bus: bus}
	if store != nil {
		deps.Recorder = store
	}
	engine := reminders.NewEngine(cfg, deps)

	// --- MQTT publisher ---
	// Optional activity feed for dashboards and automations.
	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.New(cfg.MQTT, bus, logger)
		go func() {
			if err := publisher.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
	}

	// --- API server ---
	server := api.NewServer(cfg, engine, bus, logger)
	if store != nil {
		server.SetStore(store)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", "error", err)
	}
	if publisher != nil {
		if err := publisher.Stop(shutdownCtx); err != nil {
			logger.Warn("mqtt shutdown", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// newLogger creates a structured text logger that writes to w at the
// given level. All log output in Remora goes through slog; this helper
// standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig locates, parses, and validates the YAML configuration. If
// explicit is non-empty, that exact path is used (and must exist).
// Otherwise, [config.FindConfig] searches the default locations. A
// remora.yaml in the working directory, if present, overlays the base
// config field by field. Returns the config, the path that was loaded,
// and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}

	if err := config.ApplyOverlay(cfg, config.ProjectConfigName); err != nil {
		return nil, "", fmt.Errorf("apply %s overlay: %w", config.ProjectConfigName, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, path, nil
}
