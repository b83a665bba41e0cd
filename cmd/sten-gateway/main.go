// ABOUTME: Entry point for sten-gateway, the reference widget backend
// ABOUTME: Serves the widget HTTP contracts, writes config and seeds widgets

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/2389/sten-widget/internal/config"
	"github.com/2389/sten-widget/internal/gateway"
	"github.com/2389/sten-widget/internal/logging"
	"github.com/2389/sten-widget/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
     _                                 _
 ___| |_ ___ _ __        __ _  __ _| |_ _____      ____ _ _   _
/ __| __/ _ \ '_ \ _____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
\__ \ ||  __/ | | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|___/\__\___|_| |_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                         |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: STEN_CONFIG env var > XDG_CONFIG_HOME/sten/gateway.yaml > ~/.config/sten/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("STEN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "sten", "gateway.yaml")
}

// getDataPath returns the path to the sten data directory.
// Priority: XDG_DATA_HOME/sten > ~/.local/share/sten
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "sten")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: sten-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the gateway server")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  seed --name NAME       Create a widget in the gateway database")
		fmt.Println("  health                 Check gateway health")
		os.Exit(1)
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "seed":
		err = runSeed(ctx, os.Args[2:])
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

// loadConfig reads the config file, falling back to local defaults when it does not exist.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		dbPath := filepath.Join(getDataPath(), "gateway.db")
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, "", fmt.Errorf("creating data directory: %w", err)
		}
		return config.Default(dbPath), "(defaults)", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Agent:     ")
	if cfg.Agent.URL == "" {
		yellow.Println("canned replies")
	} else {
		fmt.Println(cfg.Agent.URL)
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}

	fmt.Println()

	logger.Info("starting sten-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
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

func runSeed(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("seed", flag.ContinueOnError)
	id := fset.String("id", "", "public widget id (generated when empty)")
	owner := fset.String("owner", "owner-1", "owner id")
	name := fset.String("name", "", "business name shown in the header")
	theme := fset.String("theme", "light", "theme name")
	primary := fset.String("color", "#4f46e5", "primary color")
	welcome := fset.String("welcome", "", "welcome message")
	initial := fset.String("initial", "", "initial AI message")
	instruction := fset.String("instruction", "", "agent instruction")
	noAuto := fset.Bool("no-auto", false, "do not send the initial message automatically")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" {
		return fmt.Errorf("--name is required")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	publicID := *id
	if publicID == "" {
		publicID = uuid.New().String()
	}

	w := &store.Widget{
		PublicID:                 publicID,
		OwnerID:                  *owner,
		BusinessName:             *name,
		AgentInstruction:         optional(*instruction),
		Theme:                    *theme,
		PrimaryColor:             *primary,
		WelcomeMessage:           optional(*welcome),
		InitialAIMessage:         optional(*initial),
		SendInitialAutomatically: !*noAuto,
		CreatedAt:                time.Now().UTC(),
	}
	if err := s.CreateWidget(ctx, w); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("widget %s already exists", publicID)
		}
		return fmt.Errorf("creating widget: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Created widget %s for %s\n", publicID, *name)
	fmt.Println("\nEmbed it with:")
	fmt.Printf("  <script src=\"/widget.js\" data-widget-id=\"%s\"></script>\n", publicID)
	return nil
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("sten-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDbPath := filepath.Join(getDataPath(), "gateway.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Agent Configuration ---")
	agentURL := prompt(reader, "Agent URL (leave empty for canned replies)", "")
	agentTimeout := prompt(reader, "Agent timeout", config.DefaultAgentTimeout.String())

	fmt.Println("\n--- CORS Configuration ---")
	origins := prompt(reader, "Allowed origins, comma separated (empty allows any)", "")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# sten-gateway configuration\n")
	cfg.WriteString("# Generated by sten-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("agent:\n")
	cfg.WriteString(fmt.Sprintf("  url: \"%s\"\n", agentURL))
	cfg.WriteString(fmt.Sprintf("  timeout: \"%s\"\n", agentTimeout))
	cfg.WriteString("\n")

	cfg.WriteString("limits:\n")
	cfg.WriteString(fmt.Sprintf("  send_rps: %d\n", config.DefaultSendRPS))
	cfg.WriteString(fmt.Sprintf("  send_burst: %d\n", config.DefaultSendBurst))
	cfg.WriteString("\n")

	cfg.WriteString("replay:\n")
	cfg.WriteString(fmt.Sprintf("  ttl: \"%s\"\n", config.DefaultReplayTTL))
	cfg.WriteString(fmt.Sprintf("  max_size: %d\n", config.DefaultReplaySize))
	cfg.WriteString("\n")

	cfg.WriteString("cors:\n")
	cfg.WriteString("  allowed_origins:")
	var list []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			list = append(list, o)
		}
	}
	if len(list) == 0 {
		cfg.WriteString(" []\n")
	} else {
		cfg.WriteString("\n")
		for _, o := range list {
			cfg.WriteString(fmt.Sprintf("    - \"%s\"\n", o))
		}
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	if _, err := config.Parse([]byte(cfg.String())); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Printf("  sten-gateway seed --name \"My Shop\"\n")
	fmt.Printf("  sten-gateway serve\n")

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
