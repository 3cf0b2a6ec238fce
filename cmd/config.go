package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "desk"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage desk configuration.

Running bare 'desk config' is the same as 'desk config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# desk configuration
# See: desk config show (for effective values and sources)

# State/data directory (default: ~/.config/desk)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/desk/desk.db)
# db_path: {{ .DBPath }}

# Record store: "sqlite" or "redis"
store:
  backend: "{{ .StoreBackend }}"

redis:
  url: "{{ .RedisURL }}"

# Company profile used in replies
company:
  name: "{{ .CompanyName }}"
  phone: "{{ .CompanyPhone }}"
  email: "{{ .CompanyEmail }}"
  hours: "{{ .CompanyHours }}"

# Reply generation: "anthropic", "openai" or "none" (rule-based replies only)
generation:
  provider: "{{ .Provider }}"
  timeout: {{ .GenerationTimeout }}
  max_attempts: {{ .MaxAttempts }}

anthropic:
  # Falls back to $ANTHROPIC_API_KEY
  # api_key: ""
  model: "{{ .AnthropicModel }}"

openai:
  # Falls back to $OPENAI_API_KEY
  # api_key: ""
  model: "{{ .OpenAIModel }}"

# Per-session message rate limits
security:
  per_minute: {{ .PerMinute }}
  per_hour: {{ .PerHour }}

memory:
  # Idle time before a conversation is dropped from memory
  session_timeout: {{ .SessionTimeout }}
  sweep_interval: {{ .SweepInterval }}

escalation:
  # Technical turns without resolution before a human takes over
  technical_turns: {{ .TechnicalTurns }}
  max_turns: {{ .MaxTurns }}

# Escalation and fault report notifications
notify:
  # slack_webhook: ""
  # ledger_path: ""
  timeout: {{ .NotifyTimeout }}
  email:
    # host: ""
    port: {{ .EmailPort }}
    # from: ""
    # to: []

# HTTP port for 'desk serve'
port: {{ .Port }}

log:
  level: "{{ .LogLevel }}"
  format: "{{ .LogFormat }}"
`

type configTemplateData struct {
	StateDir          string
	DBPath            string
	StoreBackend      string
	RedisURL          string
	CompanyName       string
	CompanyPhone      string
	CompanyEmail      string
	CompanyHours      string
	Provider          string
	GenerationTimeout string
	MaxAttempts       int
	AnthropicModel    string
	OpenAIModel       string
	PerMinute         int
	PerHour           int
	SessionTimeout    string
	SweepInterval     string
	TechnicalTurns    int
	MaxTurns          int
	NotifyTimeout     string
	EmailPort         int
	Port              int
	LogLevel          string
	LogFormat         string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:          viper.GetString("state_dir"),
		DBPath:            viper.GetString("db_path"),
		StoreBackend:      viper.GetString("store.backend"),
		RedisURL:          viper.GetString("redis.url"),
		CompanyName:       viper.GetString("company.name"),
		CompanyPhone:      viper.GetString("company.phone"),
		CompanyEmail:      viper.GetString("company.email"),
		CompanyHours:      viper.GetString("company.hours"),
		Provider:          viper.GetString("generation.provider"),
		GenerationTimeout: viper.GetDuration("generation.timeout").String(),
		MaxAttempts:       viper.GetInt("generation.max_attempts"),
		AnthropicModel:    viper.GetString("anthropic.model"),
		OpenAIModel:       viper.GetString("openai.model"),
		PerMinute:         viper.GetInt("security.per_minute"),
		PerHour:           viper.GetInt("security.per_hour"),
		SessionTimeout:    viper.GetDuration("memory.session_timeout").String(),
		SweepInterval:     viper.GetDuration("memory.sweep_interval").String(),
		TechnicalTurns:    viper.GetInt("escalation.technical_turns"),
		MaxTurns:          viper.GetInt("escalation.max_turns"),
		NotifyTimeout:     viper.GetDuration("notify.timeout").String(),
		EmailPort:         viper.GetInt("notify.email.port"),
		Port:              viper.GetInt("port"),
		LogLevel:          viper.GetString("log.level"),
		LogFormat:         viper.GetString("log.format"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = buildConfigKeys(
	"state_dir", "db_path", "store.backend", "redis.url",
	"company.name", "company.phone", "company.email", "company.hours",
	"generation.provider", "generation.timeout", "generation.max_attempts",
	"anthropic.api_key", "anthropic.model",
	"openai.api_key", "openai.model", "openai.base_url",
	"security.per_minute", "security.per_hour",
	"memory.session_timeout", "memory.sweep_interval", "memory.history_window",
	"escalation.technical_turns", "escalation.max_turns", "escalation.sentiments",
	"notify.slack_webhook", "notify.ledger_path", "notify.timeout", "notify.workers",
	"notify.email.host", "notify.email.port", "notify.email.username",
	"notify.email.password", "notify.email.from", "notify.email.to",
	"patterns.file", "port", "log.level", "log.format",
)

// buildConfigKeys derives the DESK_ environment variable for each key.
func buildConfigKeys(keys ...string) []configKeyInfo {
	out := make([]configKeyInfo, len(keys))
	for i, k := range keys {
		out[i] = configKeyInfo{
			Key:    k,
			EnvVar: "DESK_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_")),
			Secret: isSecretKey(k),
		}
	}
	return out
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "api_key") ||
		strings.HasSuffix(key, "password") ||
		strings.HasSuffix(key, "slack_webhook")
}

// maskValue hides all but the last four characters of a secret.
func maskValue(v any) any {
	s := fmt.Sprint(v)
	if s == "" {
		return s
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskValue(val)
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'desk config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
