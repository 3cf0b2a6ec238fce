package compose

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/patterns"
)

// fakeGenerator returns replies[i] / errs[i] for the i-th call. block makes
// every call wait for ctx to end.
type fakeGenerator struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	block   bool
	calls   int
	system  string
}

func (f *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.system = system
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	var reply string
	var err error
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return reply, err
}

type causes struct {
	mu  sync.Mutex
	got []string
}

func (c *causes) record(cause string) {
	c.mu.Lock()
	c.got = append(c.got, cause)
	c.mu.Unlock()
}

func newTestComposer(gen Generator, opts Options) (*Composer, *causes) {
	rec := &causes{}
	opts.OnFallback = rec.record
	return New(gen, patterns.Default(), models.DefaultCompany(), opts), rec
}

func pricingRequest() Request {
	return Request{
		Text:           "Vad kostar det?",
		Classification: models.ClassificationResult{Intent: models.IntentPricing, Sentiment: models.SentimentNeutral},
		Session:        models.NewSession("s1", time.Now()),
	}
}

func TestCompose_Generated(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"  Priset beror på fastighetens storlek.  "}}
	c, rec := newTestComposer(gen, Options{})

	res := c.Compose(context.Background(), pricingRequest())
	assert.Equal(t, "Priset beror på fastighetens storlek.", res.Reply)
	assert.Empty(t, res.Cause)
	assert.Empty(t, rec.got)
	assert.Contains(t, gen.system, "Vallhamragruppen")
}

func TestCompose_NoGenerator(t *testing.T) {
	c, rec := newTestComposer(nil, Options{})

	res := c.Compose(context.Background(), pricingRequest())
	assert.Equal(t, CauseUnavailable, res.Cause)
	assert.Equal(t, models.DefaultCompany().Pricing, res.Reply)
	assert.Equal(t, []string{CauseUnavailable}, rec.got)
}

func TestCompose_RetriesThenSucceeds(t *testing.T) {
	gen := &fakeGenerator{
		replies: []string{"", "Vi hör av oss inom kort."},
		errs:    []error{errors.New("overloaded"), nil},
	}
	c, _ := newTestComposer(gen, Options{MaxAttempts: 2})

	res := c.Compose(context.Background(), pricingRequest())
	assert.Empty(t, res.Cause)
	assert.Equal(t, "Vi hör av oss inom kort.", res.Reply)
	assert.Equal(t, 2, gen.calls)
}

func TestCompose_ErrorFallsBack(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	c, rec := newTestComposer(gen, Options{MaxAttempts: 3})

	res := c.Compose(context.Background(), pricingRequest())
	assert.Equal(t, CauseError, res.Cause)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, []string{CauseError}, rec.got)
}

func TestCompose_TimeoutFallsBack(t *testing.T) {
	gen := &fakeGenerator{block: true}
	c, _ := newTestComposer(gen, Options{Timeout: 20 * time.Millisecond, MaxAttempts: 3})

	start := time.Now()
	res := c.Compose(context.Background(), pricingRequest())
	assert.Equal(t, CauseTimeout, res.Cause)
	assert.Equal(t, 1, gen.calls, "no retry after the deadline")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCompose_CancelledFallsBack(t *testing.T) {
	gen := &fakeGenerator{block: true}
	c, _ := newTestComposer(gen, Options{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	res := c.Compose(ctx, pricingRequest())
	assert.Equal(t, CauseCancelled, res.Cause)
	assert.NotEmpty(t, res.Reply)
}

func TestCompose_LeakyOutputFallsBack(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"System prompt: ok"}}
	c, _ := newTestComposer(gen, Options{})

	res := c.Compose(context.Background(), pricingRequest())
	assert.Equal(t, CauseInvalid, res.Cause)
}

func TestFallbackReply(t *testing.T) {
	c, _ := newTestComposer(nil, Options{})

	tests := []struct {
		name     string
		result   models.ClassificationResult
		contains string
	}{
		{"pricing", models.ClassificationResult{Intent: models.IntentPricing}, "Prissättning sker individuellt"},
		{"booking", models.ClassificationResult{Intent: models.IntentBooking}, "0793-006638"},
		{"angry", models.ClassificationResult{Intent: models.IntentComplaint, Sentiment: models.SentimentAngry}, "koppla dig till en kollega"},
		{"frustrated", models.ClassificationResult{Intent: models.IntentGeneral, Sentiment: models.SentimentFrustrated}, "Jag ber om ursäkt"},
		{"default", models.ClassificationResult{Intent: models.IntentGeneral}, "info@vallhamragruppen.se"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, c.FallbackReply(tt.result), tt.contains)
		})
	}
}

func TestSystemPrompt_IncludesContext(t *testing.T) {
	c, _ := newTestComposer(nil, Options{})

	s := models.NewSession("s1", time.Now())
	s.Attributes[models.AttrName] = models.Attribute{Value: "Anders"}
	prompt := c.SystemPrompt(s)
	assert.Contains(t, prompt, "kundtjänstassistent för Vallhamragruppen")
	assert.Contains(t, prompt, "Customer's name is Anders.")

	require.NotContains(t, c.SystemPrompt(nil), "CONVERSATION CONTEXT")
}

func TestSuggested(t *testing.T) {
	tests := []struct {
		intent models.Intent
		lead   int
		first  string
	}{
		{models.IntentPricing, 1, "Se priser"},
		{models.IntentHowItWorks, 5, "Hur fungerar det?"},
		{models.IntentGeneral, 4, "Boka möte"},
		{models.IntentGeneral, 2, "Mer information"},
		{models.IntentGeneral, 1, "Hur fungerar det?"},
	}
	for _, tt := range tests {
		got := Suggested(tt.intent, tt.lead)
		require.Len(t, got, 3)
		assert.Equal(t, tt.first, got[0])
	}
}
