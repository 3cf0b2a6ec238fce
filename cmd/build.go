package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/joescharf/desk/internal/compose"
	"github.com/joescharf/desk/internal/escalation"
	"github.com/joescharf/desk/internal/fastpath"
	"github.com/joescharf/desk/internal/fault"
	"github.com/joescharf/desk/internal/intent"
	"github.com/joescharf/desk/internal/llm"
	"github.com/joescharf/desk/internal/memory"
	"github.com/joescharf/desk/internal/metrics"
	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/notify"
	"github.com/joescharf/desk/internal/patterns"
	"github.com/joescharf/desk/internal/pipeline"
	"github.com/joescharf/desk/internal/security"
	"github.com/joescharf/desk/internal/store"
)

// agent is a fully wired pipeline plus the parts commands need to reach
// directly.
type agent struct {
	pipeline   *pipeline.Pipeline
	store      store.Store
	dispatcher *notify.Dispatcher
	security   *security.Filter
	memory     *memory.Service
	metrics    *metrics.Metrics
	company    models.Company
}

// Close drains queued notifications. The shared store is closed separately.
func (a *agent) Close() {
	a.dispatcher.Close()
}

func rootContext() context.Context {
	if ctx := rootCmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// companyFromConfig overlays the configured company fields on the built-in
// profile.
func companyFromConfig() models.Company {
	c := models.DefaultCompany()
	if v := viper.GetString("company.name"); v != "" {
		c.Name = v
	}
	if v := viper.GetString("company.phone"); v != "" {
		c.Phone = v
	}
	if v := viper.GetString("company.email"); v != "" {
		c.Email = v
	}
	if v := viper.GetString("company.hours"); v != "" {
		c.Hours = v
	}
	return c
}

// loadPatterns returns the built-in library, or the one in patterns.file.
func loadPatterns() (*patterns.Library, error) {
	path := viper.GetString("patterns.file")
	if path == "" {
		return patterns.Default(), nil
	}
	lib, err := patterns.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	return lib, nil
}

// newGenerator creates the configured text generator. A missing API key is
// not an error: replies then come from the rule-based fallback.
func newGenerator(logger *slog.Logger) (compose.Generator, error) {
	provider := strings.ToLower(viper.GetString("generation.provider"))
	cfg := llm.Config{Provider: provider}

	switch provider {
	case "", llm.ProviderAnthropic:
		cfg.APIKey = viper.GetString("anthropic.api_key")
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		cfg.Model = viper.GetString("anthropic.model")
	case llm.ProviderOpenAI:
		cfg.APIKey = viper.GetString("openai.api_key")
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		cfg.Model = viper.GetString("openai.model")
		cfg.BaseURL = viper.GetString("openai.base_url")
	case llm.ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %q", provider)
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		logger.Warn("no generation API key configured, using fallback replies", "provider", provider)
		return nil, nil
	}

	client, err := llm.New(cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}
	logger.Debug("text generation enabled", "provider", provider, "model", client.Model())
	return client, nil
}

// newSinks builds every notification sink that has configuration. The log
// sink is always present.
func newSinks(logger *slog.Logger) ([]notify.Notifier, error) {
	sinks := []notify.Notifier{notify.NewLogNotifier(logger)}

	if url := viper.GetString("notify.slack_webhook"); url != "" {
		n, err := notify.NewSlackNotifier(url)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, n)
	}

	email := notify.EmailConfig{
		Host:     viper.GetString("notify.email.host"),
		Port:     viper.GetInt("notify.email.port"),
		Username: viper.GetString("notify.email.username"),
		Password: viper.GetString("notify.email.password"),
		From:     viper.GetString("notify.email.from"),
		To:       viper.GetStringSlice("notify.email.to"),
	}
	if email.Enabled() {
		n, err := notify.NewEmailNotifier(email)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, n)
	}

	if path := viper.GetString("notify.ledger_path"); path != "" {
		n, err := notify.NewLedgerNotifier(path)
		if err != nil {
			return nil, fmt.Errorf("open notification ledger: %w", err)
		}
		sinks = append(sinks, n)
	}
	return sinks, nil
}

func sentimentsFromConfig() ([]models.Sentiment, error) {
	var out []models.Sentiment
	for _, v := range viper.GetStringSlice("escalation.sentiments") {
		s := models.Sentiment(v)
		if !s.Valid() {
			return nil, fmt.Errorf("escalation.sentiments: unknown sentiment %q", v)
		}
		out = append(out, s)
	}
	return out, nil
}

// buildAgent wires every stage of the pipeline from configuration.
func buildAgent() (*agent, error) {
	logger := slog.Default()

	st, err := getStore()
	if err != nil {
		return nil, err
	}
	lib, err := loadPatterns()
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(logger)
	if err != nil {
		return nil, err
	}
	sinks, err := newSinks(logger)
	if err != nil {
		return nil, err
	}
	sentiments, err := sentimentsFromConfig()
	if err != nil {
		return nil, err
	}

	company := companyFromConfig()
	m := metrics.New()

	dispatcher := notify.NewDispatcher(sinks, notify.Options{
		Workers:  viper.GetInt("notify.workers"),
		Timeout:  viper.GetDuration("notify.timeout"),
		Recorder: st,
		Logger:   logger,
		OnResult: func(kind models.NotificationKind, sink string, err error) {
			m.Notification(string(kind), sink, err)
		},
	})

	filter := security.NewFilter(lib, security.Options{
		PerMinute: viper.GetInt("security.per_minute"),
		PerHour:   viper.GetInt("security.per_hour"),
		Logger:    logger,
	})
	mem := memory.New(lib, memory.Options{
		Timeout: viper.GetDuration("memory.session_timeout"),
		Store:   st,
		Logger:  logger,
	})

	p, err := pipeline.New(pipeline.Deps{
		Company:  company,
		Security: filter,
		Faults:   fault.New(lib, dispatcher, fault.Options{Phone: company.Phone, Logger: logger}),
		FastPath: fastpath.New(lib, company),
		Intent:   intent.New(lib, intent.Options{HistoryWindow: viper.GetInt("memory.history_window")}),
		Escalation: escalation.New(lib, escalation.Options{
			TechnicalTurns: viper.GetInt("escalation.technical_turns"),
			MaxTurns:       viper.GetInt("escalation.max_turns"),
			Sentiments:     sentiments,
		}),
		Memory: mem,
		Composer: compose.New(gen, lib, company, compose.Options{
			Timeout:     viper.GetDuration("generation.timeout"),
			MaxAttempts: viper.GetInt("generation.max_attempts"),
			Logger:      logger,
		}),
		Records:  st,
		Notifier: dispatcher,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		dispatcher.Close()
		return nil, err
	}

	return &agent{
		pipeline:   p,
		store:      st,
		dispatcher: dispatcher,
		security:   filter,
		memory:     mem,
		metrics:    m,
		company:    company,
	}, nil
}
