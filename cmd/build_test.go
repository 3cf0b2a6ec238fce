package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/desk/internal/pipeline"
)

func TestBuildAgent_Defaults(t *testing.T) {
	testEnv(t)

	a, err := buildAgent()
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.NotNil(t, a.pipeline)
	assert.NotNil(t, a.store)
	assert.Equal(t, "log", a.dispatcher.Sinks()[0])
	assert.Len(t, a.dispatcher.Sinks(), 1)
}

func TestBuildAgent_Sinks(t *testing.T) {
	dir := testEnv(t)
	viper.Set("notify.slack_webhook", "https://hooks.slack.com/services/T000/B000/XXXX")
	viper.Set("notify.ledger_path", filepath.Join(dir, "notifications.jsonl"))
	viper.Set("notify.email.host", "smtp.example.se")
	viper.Set("notify.email.from", "desk@example.se")
	viper.Set("notify.email.to", []string{"jour@example.se"})

	a, err := buildAgent()
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Len(t, a.dispatcher.Sinks(), 4)
}

func TestBuildAgent_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"unknown provider", "generation.provider", "eliza"},
		{"unknown sentiment", "escalation.sentiments", []string{"sulky"}},
		{"missing patterns file", "patterns.file", "/nonexistent/patterns.yaml"},
		{"unknown backend", "store.backend", "etcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testEnv(t)
			viper.Set(tt.key, tt.val)

			_, err := buildAgent()
			assert.Error(t, err)
		})
	}
}

func TestBuildAgent_PatternsFile(t *testing.T) {
	dir := testEnv(t)
	path := filepath.Join(dir, "patterns.yaml")
	doc := `
legal:
  - tag: legal
    patterns:
      - '\bhyresnämnden\b'
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	viper.Set("patterns.file", path)

	a, err := buildAgent()
	require.NoError(t, err)
	t.Cleanup(a.Close)

	resp := a.pipeline.Process(context.Background(), pipeline.Request{Message: "Jag går till hyresnämnden"})
	assert.True(t, resp.Escalate)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewGenerator_NoKey(t *testing.T) {
	testEnv(t)
	viper.Set("generation.provider", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	gen, err := newGenerator(testLogger())
	require.NoError(t, err)
	assert.Nil(t, gen)
}

func TestNewGenerator_WithKey(t *testing.T) {
	testEnv(t)
	viper.Set("generation.provider", "anthropic")
	viper.Set("anthropic.api_key", "sk-test")

	gen, err := newGenerator(testLogger())
	require.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestCompanyFromConfig(t *testing.T) {
	testEnv(t)
	viper.Set("company.name", "Bostads AB Test")

	c := companyFromConfig()
	assert.Equal(t, "Bostads AB Test", c.Name)
	assert.NotEmpty(t, c.Phone)
}
