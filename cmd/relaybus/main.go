package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/relaybus/internal/api"
	"github.com/mattjoyce/relaybus/internal/channel"
	"github.com/mattjoyce/relaybus/internal/command"
	"github.com/mattjoyce/relaybus/internal/config"
	"github.com/mattjoyce/relaybus/internal/dispatch"
	"github.com/mattjoyce/relaybus/internal/lock"
	"github.com/mattjoyce/relaybus/internal/log"
	"github.com/mattjoyce/relaybus/internal/logstore"
	"github.com/mattjoyce/relaybus/internal/severity"
	"github.com/mattjoyce/relaybus/internal/tui/watch"
)

const version = "0.1.0"

const defaultConfigPath = "relaybus.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		os.Exit(runSystemNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "logs":
		os.Exit(runLogsNoun(args))

	// --- ROOT ALIASES ---
	case "start":
		os.Exit(runStart(args))
	case "watch":
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("relaybus version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`relaybus - Bidirectional command dispatch and log relay node

Usage:
  relaybus <noun> <action> [flags]

Core Resources (Nouns):
  system    Node lifecycle and health
  config    Configuration and integrity
  logs      Stored log entries

System Commands:
  system start      Start the backend node in foreground
  system watch      Live log viewer against a running node

Config Commands:
  config lock       Authorize current state (update integrity hashes)
  config check      Validate syntax and integrity

Logs Commands:
  logs export       Fetch the formatted log export from a running node
  logs clear        Drop all stored entries on a running node

General:
  version           Show version information
  help              Show this help message

Use 'relaybus <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	case "help":
		printSystemNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock", "hash-update":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigHashUpdate(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runLogsNoun(args []string) int {
	if len(args) < 1 {
		printLogsNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printLogsNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "export":
		if hasHelpFlag(actionArgs) {
			printLogsExportHelp()
			return 0
		}
		return runLogsExport(actionArgs)
	case "clear":
		if hasHelpFlag(actionArgs) {
			printLogsClearHelp()
			return 0
		}
		return runLogsClear(actionArgs)
	case "help":
		printLogsNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown logs action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: relaybus system <action>")
	fmt.Fprintln(w, "Actions: start, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: relaybus config <action> [flags]")
	fmt.Fprintln(w, "Actions: lock, check")
}

func printLogsNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: relaybus logs <action> [flags]")
	fmt.Fprintln(w, "Actions: export, clear")
}

func printSystemStartHelp() {
	fmt.Println("Usage: relaybus system start [--config PATH]")
	fmt.Println("Start the backend node in the foreground.")
}

func printWatchHelp() {
	fmt.Println("Usage: relaybus system watch [--api URL] [--key KEY]")
	fmt.Println("Open a live log viewer against a running node's API.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: relaybus config lock [--config PATH]")
	fmt.Println("Authorize the current configuration by regenerating its integrity hash.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: relaybus config check [--config PATH]")
	fmt.Println("Validate configuration syntax, values, and integrity.")
}

func printLogsExportHelp() {
	fmt.Println("Usage: relaybus logs export [--api URL] [--key KEY] [--out PATH]")
	fmt.Println("Fetch the formatted log export from a running node (stdout by default).")
}

func printLogsClearHelp() {
	fmt.Println("Usage: relaybus logs clear [--api URL] [--key KEY]")
	fmt.Println("Drop all stored entries on a running node.")
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("relaybus starting", "version", version, "config", *configPath)

	if cfg.Service.PidFile != "" {
		pidLock, err := lock.Acquire(cfg.Service.PidFile)
		if err != nil {
			logger.Error("failed to acquire PID lock", "path", cfg.Service.PidFile, "error", err)
			return 1
		}
		defer pidLock.Release()
		logger.Info("acquired PID lock", "path", pidLock.Path())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay, closeRelay := buildRelay(cfg)
	defer closeRelay()

	store := logstore.New(cfg.Store.Capacity, relay)
	disp := dispatch.New(store, relay)

	shutdownCh := make(chan string, 1)
	registerHandlers(disp, store, *configPath, shutdownCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)

	// A receiver stopping is degraded, not fatal: the node keeps logging
	// locally and serving the API without its inbound command stream.
	switch cfg.Relay.Transport {
	case config.TransportPipe:
		// Inbound command stream shares the process stdio: peer writes to our
		// stdin, we write to stdout.
		rc := channel.NewReceiver(os.Stdin, disp)
		go func() {
			if err := rc.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("pipe receiver stopped", "error", err)
			}
		}()
	case config.TransportRedis:
		rd := relay.(*channel.Redis)
		go func() {
			if err := rd.Receive(ctx, disp); err != nil && err != context.Canceled {
				logger.Error("redis receiver stopped", "error", err)
			}
		}()
	}

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.APIKey,
		}, store, disp)
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	store.Record(severity.Info, "node started", logstore.Options{Source: cfg.Service.Name})
	logger.Info("relaybus running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case reason := <-shutdownCh:
		logger.Info("shutdown command received", "reason", reason)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("relaybus stopped")
	return 0
}

// buildRelay constructs the outbound command channel for the configured
// transport. The returned closer flushes and releases the transport.
func buildRelay(cfg *config.Config) (channel.Channel, func()) {
	switch cfg.Relay.Transport {
	case config.TransportPipe:
		p := channel.NewPipe(os.Stdout)
		return p, p.Close
	case config.TransportRedis:
		r := channel.NewRedis(cfg.Relay.Redis.Addr, cfg.Relay.Redis.Channel)
		return r, r.Close
	default:
		return channel.NewConsole(os.Stdout), func() {}
	}
}

// registerHandlers binds the node's built-in command kinds.
func registerHandlers(disp *dispatch.Dispatcher, store *logstore.Store, configPath string, shutdownCh chan<- string) {
	disp.Register(command.KindPing, func(cmd command.Command) (*dispatch.Future, error) {
		ping, ok := cmd.(command.Ping)
		if !ok {
			return nil, fmt.Errorf("unexpected command type %T", cmd)
		}
		store.Record(severity.Debug, "ping received", logstore.Options{
			Source:  "system",
			Context: map[string]any{"nonce": ping.Nonce},
		})
		return nil, nil
	})

	disp.Register(command.KindReload, func(cmd command.Command) (*dispatch.Future, error) {
		return dispatch.Go(func() error {
			if _, err := config.Load(configPath); err != nil {
				return fmt.Errorf("reload: %w", err)
			}
			store.Record(severity.Info, "configuration revalidated", logstore.Options{
				Source:  "system",
				Context: map[string]any{"path": configPath},
			})
			return nil
		}), nil
	})

	disp.Register(command.KindExportLogs, func(cmd command.Command) (*dispatch.Future, error) {
		exp, ok := cmd.(command.ExportLogs)
		if !ok {
			return nil, fmt.Errorf("unexpected command type %T", cmd)
		}
		return dispatch.Go(func() error {
			f, err := os.Create(exp.Path)
			if err != nil {
				return fmt.Errorf("export logs: %w", err)
			}
			defer f.Close()
			if err := logstore.Export(f, store.Logs(logstore.Filter{})); err != nil {
				return fmt.Errorf("export logs: %w", err)
			}
			store.Record(severity.Info, "logs exported", logstore.Options{
				Source:  "system",
				Context: map[string]any{"path": exp.Path, "entries": store.Count()},
			})
			return nil
		}), nil
	})

	disp.Register(command.KindShutdown, func(cmd command.Command) (*dispatch.Future, error) {
		sd, ok := cmd.(command.Shutdown)
		if !ok {
			return nil, fmt.Errorf("unexpected command type %T", cmd)
		}
		store.Record(severity.Info, "shutdown requested", logstore.Options{
			Source:  "system",
			Context: map[string]any{"reason": sd.Reason},
		})
		select {
		case shutdownCh <- sd.Reason:
		default:
		}
		return nil, nil
	})
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api", "http://127.0.0.1:8640", "Node API base URL")
	apiKey := fs.String("key", "", "API key")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(*apiURL, *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
		return 1
	}
	return 0
}

func runLogsExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	apiURL := fs.String("api", "http://127.0.0.1:8640", "Node API base URL")
	apiKey := fs.String("key", "", "API key")
	outPath := fs.String("out", "", "Write export to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	body, err := apiRequest(http.MethodGet, *apiURL+"/logs/export", *apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		return 1
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output file: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}
	if _, err := out.Write(body); err != nil {
		fmt.Fprintf(os.Stderr, "Write failed: %v\n", err)
		return 1
	}
	return 0
}

func runLogsClear(args []string) int {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	apiURL := fs.String("api", "http://127.0.0.1:8640", "Node API base URL")
	apiKey := fs.String("key", "", "API key")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if _, err := apiRequest(http.MethodPost, *apiURL+"/logs/clear", *apiKey); err != nil {
		fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
		return 1
	}
	fmt.Println("Log store cleared.")
	return 0
}

func apiRequest(method, url, apiKey string) ([]byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("node returned %s: %s", resp.Status, string(body))
	}
	return body, nil
}

func runConfigHashUpdate(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if err := config.WriteChecksum(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	fmt.Printf("Successfully locked configuration: %s\n", *configPath)
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config check FAILED: %v\n", err)
		return 1
	}

	fmt.Printf("Config check PASSED: %s\n", *configPath)
	fmt.Printf("  service:   %s (log %s/%s)\n", cfg.Service.Name, cfg.Service.LogLevel, cfg.Service.LogFormat)
	fmt.Printf("  store:     capacity %d\n", cfg.Store.Capacity)
	fmt.Printf("  transport: %s\n", cfg.Relay.Transport)
	if cfg.API.Enabled {
		fmt.Printf("  api:       %s\n", cfg.API.Listen)
	}
	return 0
}
