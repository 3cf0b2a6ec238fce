package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/output"
	"github.com/joescharf/desk/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "desk",
	Short: "Property management support agent",
	Long: `desk answers tenant and customer messages for a property management
company. It takes fault reports, answers common questions, scores leads and
hands difficult conversations to a human with a summary.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/desk/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default, rooted at dir.
func setDefaults(dir string) {
	company := models.DefaultCompany()

	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "desk.db"))
	viper.SetDefault("store.backend", store.BackendSQLite)
	viper.SetDefault("redis.url", "redis://localhost:6379/0")

	viper.SetDefault("company.name", company.Name)
	viper.SetDefault("company.phone", company.Phone)
	viper.SetDefault("company.email", company.Email)
	viper.SetDefault("company.hours", company.Hours)

	viper.SetDefault("generation.provider", "anthropic")
	viper.SetDefault("generation.timeout", "15s")
	viper.SetDefault("generation.max_attempts", 2)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.base_url", "")

	viper.SetDefault("security.per_minute", 60)
	viper.SetDefault("security.per_hour", 1000)

	viper.SetDefault("memory.session_timeout", "60m")
	viper.SetDefault("memory.sweep_interval", "1m")
	viper.SetDefault("memory.history_window", 0)

	viper.SetDefault("escalation.technical_turns", 3)
	viper.SetDefault("escalation.max_turns", 8)
	viper.SetDefault("escalation.sentiments", []string{"angry"})

	viper.SetDefault("notify.slack_webhook", "")
	viper.SetDefault("notify.timeout", "10s")
	viper.SetDefault("notify.workers", 4)
	viper.SetDefault("notify.ledger_path", "")
	viper.SetDefault("notify.email.host", "")
	viper.SetDefault("notify.email.port", 587)
	viper.SetDefault("notify.email.username", "")
	viper.SetDefault("notify.email.password", "")
	viper.SetDefault("notify.email.from", "")
	viper.SetDefault("notify.email.to", []string{})

	viper.SetDefault("patterns.file", "")
	viper.SetDefault("port", 8080)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	slog.SetDefault(newLogger(os.Stderr))

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// newLogger builds the process logger from log.level and log.format.
// Logs go to stderr so that stdout stays free for command output and the
// MCP stdio transport.
func newLogger(w *os.File) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(viper.GetString("log.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if viper.GetString("log.format") == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := store.Open(rootContext(),
		viper.GetString("store.backend"),
		viper.GetString("db_path"),
		viper.GetString("redis.url"),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// closeStore releases the shared store, if one was opened.
func closeStore() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}
