package fault

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/patterns"
)

type recordingDispatcher struct {
	mu      sync.Mutex
	reports []models.FaultReport
}

func (d *recordingDispatcher) DispatchFault(_ context.Context, r *models.FaultReport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports = append(d.reports, *r)
}

func newTestClassifier(d Dispatcher) *Classifier {
	n := 0
	return New(patterns.Default(), d, Options{
		Now: func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return "fault_test" + string(rune('0'+n))
		},
	})
}

func TestDetectUrgency_TierPrecedence(t *testing.T) {
	c := newTestClassifier(nil)
	tests := []struct {
		text string
		want models.Urgency
	}{
		// Critical wins over medium-tier words in the same message.
		{"Akut! Vattenläcka i köket, det forsar vatten!", models.UrgencyCritical},
		{"Det droppar och läcker, och nu brinner det", models.UrgencyCritical},
		{"Kranen läcker och fungerar inte, det är en översvämning", models.UrgencyCritical},
		{"Water is leaking everywhere, it's a flood", models.UrgencyCritical},
		{"Det är ingen värme och elementet låter", models.UrgencyHigh},
		{"Tvättmaskinen fungerar inte alls", models.UrgencyHigh},
		{"Kranen droppar lite", models.UrgencyMedium},
		{"The fridge is broken", models.UrgencyMedium},
		{"Vad kostar en parkeringsplats?", models.UrgencyLow},
		{"akut", models.UrgencyLow},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, c.DetectUrgency(tt.text))
		})
	}
}

func TestDetectCategory(t *testing.T) {
	c := newTestClassifier(nil)
	tests := []struct {
		text string
		want models.FaultCategory
	}{
		{"Akut! Vattenläcka i köket, det forsar vatten!", models.CategoryWater},
		{"Kranen droppar lite", models.CategoryWater},
		{"Det glimmar i lampan i hallen och säkringen gick", models.CategoryElectrical},
		{"Elementen är kalla, ingen värme", models.CategoryHeating},
		{"Låset på dörren har gått sönder", models.CategorySecurity},
		{"Det är en spricka i väggen", models.CategoryStructural},
		{"Spisen är trasig", models.CategoryAppliance},
		{"Grannen spelar hög musik, störande oväsen", models.CategoryNoise},
		{"Något har gått sönder", models.CategoryOther},
		// Tie between water and appliance goes to the earlier category.
		{"Diskmaskinen läcker", models.CategoryWater},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, c.DetectCategory(tt.text))
		})
	}
}

func TestHandle_LowUrgencyFallsThrough(t *testing.T) {
	c := newTestClassifier(nil)
	out := c.Handle(context.Background(), nil, "s1", "Vad kostar en parkeringsplats?", Fields{})
	assert.False(t, out.Handled)
	assert.Nil(t, out.Report)
}

func TestHandle_CriticalIncomplete(t *testing.T) {
	d := &recordingDispatcher{}
	c := newTestClassifier(d)

	out := c.Handle(context.Background(), nil, "s1", "Akut! Vattenläcka i köket, det forsar vatten!", Fields{})
	require.True(t, out.Handled)
	require.NotNil(t, out.Report)

	assert.Equal(t, models.UrgencyCritical, out.Urgency)
	assert.Equal(t, models.CategoryWater, out.Report.Category)
	assert.Equal(t, models.FaultCollecting, out.Report.Status)
	assert.True(t, out.EscalateNow)
	assert.False(t, out.Complete)
	assert.Equal(t, []string{SlotLocation, SlotEmail, SlotPhone}, out.Missing)
	assert.Contains(t, out.Reply, "jour")
	assert.Contains(t, out.Reply, "0793-006638")
	assert.Contains(t, out.Reply, "huvudkranen")
	assert.Contains(t, out.Reply, "1. Vart finns problemet?")
	assert.Empty(t, d.reports)
}

func TestHandle_MediumStaysCollecting(t *testing.T) {
	c := newTestClassifier(nil)
	out := c.Handle(context.Background(), nil, "s1", "Kranen droppar lite", Fields{})
	require.True(t, out.Handled)
	assert.Equal(t, models.UrgencyMedium, out.Urgency)
	assert.Equal(t, models.CategoryWater, out.Report.Category)
	assert.Equal(t, models.FaultCollecting, out.Report.Status)
	assert.False(t, out.EscalateNow)
	assert.Equal(t, []string{SlotLocation, SlotEmail}, out.Missing)
}

func TestHandle_FollowUpsCompleteTheReport(t *testing.T) {
	d := &recordingDispatcher{}
	c := newTestClassifier(d)
	ctx := context.Background()

	first := c.Handle(ctx, nil, "s1", "Kranen droppar lite", Fields{})
	require.True(t, first.Handled)
	id := first.Report.ID

	// A plain address has low urgency but fills a missing slot.
	second := c.Handle(ctx, first.Report, "s1", "Storgatan 12, lgh 1102", Fields{})
	require.True(t, second.Handled)
	assert.Equal(t, id, second.Report.ID)
	assert.Equal(t, "Storgatan 12", second.Report.Location)
	assert.Equal(t, models.FaultCollecting, second.Report.Status)
	assert.Equal(t, []string{SlotEmail}, second.Missing)
	assert.Equal(t, "Kranen droppar lite", second.Report.Description)

	// An unrelated low-urgency message falls through while the report is open.
	aside := c.Handle(ctx, second.Report, "s1", "Vad kostar en parkeringsplats?", Fields{})
	assert.False(t, aside.Handled)

	third := c.Handle(ctx, second.Report, "s1", "anna@example.se", Fields{})
	require.True(t, third.Handled)
	assert.True(t, third.Complete)
	assert.Equal(t, models.FaultSent, third.Report.Status)
	assert.Contains(t, third.Reply, id)

	require.Len(t, d.reports, 1)
	assert.Equal(t, models.FaultComplete, d.reports[0].Status, "dispatched before being marked sent")
	assert.Equal(t, "anna@example.se", d.reports[0].ReporterEmail)

	// The caller's copies are untouched.
	assert.Equal(t, models.FaultCollecting, second.Report.Status)
	assert.Empty(t, first.Report.Location)
}

func TestHandle_UrgencyIsMaxSeen(t *testing.T) {
	c := newTestClassifier(nil)
	ctx := context.Background()

	first := c.Handle(ctx, nil, "s1", "Kranen droppar", Fields{})
	second := c.Handle(ctx, first.Report, "s1", "Nu är det en översvämning!", Fields{})
	assert.Equal(t, models.UrgencyCritical, second.Report.Urgency)
	assert.True(t, second.EscalateNow)

	third := c.Handle(ctx, second.Report, "s1", "Det droppar fortfarande", Fields{})
	assert.Equal(t, models.UrgencyCritical, third.Report.Urgency)
	assert.Contains(t, third.Report.Description, "översvämning")
}

func TestHandle_KnownContactCompletesInOneStep(t *testing.T) {
	d := &recordingDispatcher{}
	c := newTestClassifier(d)

	out := c.Handle(context.Background(), nil, "s1", "Spisen är trasig, Storgatan 3",
		Fields{Name: "Anders", Phone: "070-1234567"})
	require.True(t, out.Complete)
	assert.Equal(t, "Anders", out.Report.ReporterName)
	assert.Equal(t, models.CategoryAppliance, out.Report.Category)
	assert.Len(t, d.reports, 1)
}

func TestHandle_NilDispatcherStillSends(t *testing.T) {
	c := newTestClassifier(nil)
	out := c.Handle(context.Background(), nil, "s1", "Spisen är trasig. Adress: Storgatan 3. Mejl: a@b.se", Fields{})
	require.True(t, out.Complete)
	assert.Equal(t, models.FaultSent, out.Report.Status)
}

func TestHandle_ClosedReportIsNotContinued(t *testing.T) {
	c := newTestClassifier(nil)
	sent := &models.FaultReport{ID: "fault_old", Status: models.FaultSent, Urgency: models.UrgencyMedium}
	out := c.Handle(context.Background(), sent, "s1", "Kranen droppar igen", Fields{})
	require.True(t, out.Handled)
	assert.NotEqual(t, "fault_old", out.Report.ID)
}

func TestFormatNotification(t *testing.T) {
	r := &models.FaultReport{
		ID:          "fault_1",
		Category:    models.CategoryWater,
		Urgency:     models.UrgencyCritical,
		Description: "Vattenläcka",
		Location:    "Storgatan 12",
		CreatedAt:   time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	text := FormatNotification(r)
	assert.Contains(t, text, "AKUT FELANMÄLAN - CRITICAL")
	assert.Contains(t, text, "Plats: Storgatan 12")
	assert.Contains(t, text, "E-post: Ej angivet")
	assert.Contains(t, text, "2026-03-01T08:00:00Z")

	r.Urgency = models.UrgencyMedium
	assert.Equal(t, "Felanmälan - MEDIUM (water)", Subject(r))
}
