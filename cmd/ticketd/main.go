// ABOUTME: Entry point for the ticketd ticket-tracking server
// ABOUTME: Provides serve, init and health subcommands

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"

	"github.com/trelliswork/ticketd/internal/config"
	"github.com/trelliswork/ticketd/internal/llm"
	"github.com/trelliswork/ticketd/internal/server"
	"github.com/trelliswork/ticketd/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _   _      _        _      _
| |_(_) ___| | _____| |_ __| |
| __| |/ __| |/ / _ \ __/ _' |
| |_| | (__|   <  __/ || (_| |
 \__|_|\___|_|\_\___|\__\__,_|
`

// starterIndex is written by ticketd init so GET / has something to
// serve before a real frontend is dropped in.
const starterIndex = `<!doctype html>
<html>
<head><title>ticketd</title></head>
<body>
<h1>ticketd</h1>
<p>The API is up. Replace this index.html with your frontend.</p>
</body>
</html>
`

// getConfigPath returns the path to the ticketd config file.
// Priority: TICKETD_CONFIG env var > ./ticketd.yaml > XDG config dir.
func getConfigPath() string {
	if envPath := os.Getenv("TICKETD_CONFIG"); envPath != "" {
		return envPath
	}

	if _, err := os.Stat("ticketd.yaml"); err == nil {
		return "ticketd.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "ticketd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "ticketd", "config.yaml")
}

// getDataPath returns the default ticketd data directory.
// Priority: XDG_DATA_HOME/ticketd > ~/.local/share/ticketd
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "ticketd")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: ticketd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the ticket server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = getDataPath()
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Addr:    %s\n", cfg.Server.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Driver:  %s\n", cfg.Storage.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Data:    %s\n", cfg.Storage.DataDir)
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting ticketd",
		"config", configPath,
		"addr", cfg.Server.Addr,
		"driver", cfg.Storage.Driver,
	)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// The AI prompt proxy runs only on the SQLite backend.
	var llmClient *llm.Client
	if cfg.Storage.Driver == "sqlite" {
		llmClient = llm.NewClient(nil, logger)
	}

	srv := server.New(cfg, st, llmClient, logger)
	return srv.Run(ctx)
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "file":
		s, err := store.NewFileStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening file store: %w", err)
		}
		return s, nil
	default:
		dbPath := filepath.Join(cfg.Storage.DataDir, "ticketd.db")
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return s, nil
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	return slog.New(handler)
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	url := fmt.Sprintf("http://%s/health", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("ticketd configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	addr := prompt(reader, "Listen address", ":8080")

	fmt.Println("\n--- Storage Configuration ---")
	driver := prompt(reader, "Storage driver (sqlite/file)", "sqlite")
	dataDir := prompt(reader, "Data directory", defaultDataPath)

	fmt.Println("\n--- Tailscale Configuration ---")
	enableTailscale := prompt(reader, "Enable Tailscale?", "no")
	tailscaleEnabled := strings.ToLower(enableTailscale) == "yes" || strings.ToLower(enableTailscale) == "y"

	var tsHostname, tsAuthKey string
	var tsEphemeral bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "ticketd")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		ephemeralStr := prompt(reader, "Ephemeral node?", "no")
		tsEphemeral = strings.ToLower(ephemeralStr) == "yes" || strings.ToLower(ephemeralStr) == "y"
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# ticketd configuration\n")
	cfg.WriteString("# Generated by ticketd init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  addr: \"%s\"\n", addr))
	cfg.WriteString("\n")

	cfg.WriteString("storage:\n")
	cfg.WriteString(fmt.Sprintf("  driver: \"%s\"\n", driver))
	cfg.WriteString(fmt.Sprintf("  data_dir: \"%s\"\n", dataDir))
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: \"%s\"\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: \"%s\"\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Drop a starter page so GET / works out of the box.
	indexPath := filepath.Join(dataDir, "index.html")
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		if err := os.WriteFile(indexPath, []byte(starterIndex), 0644); err != nil {
			return fmt.Errorf("writing index.html: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  ticketd serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
