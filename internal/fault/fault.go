// Package fault detects property fault reports, grades their urgency and
// walks the short slot-filling exchange that completes them.
package fault

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/patterns"
)

// Dispatcher receives completed reports. It must not block.
type Dispatcher interface {
	DispatchFault(ctx context.Context, report *models.FaultReport)
}

// Options configures a Classifier.
type Options struct {
	// Phone is the emergency number quoted in replies.
	Phone  string
	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

// Classifier implements urgency and category detection and the report
// state machine.
type Classifier struct {
	lib        *patterns.Library
	dispatcher Dispatcher
	phone      string
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

// New creates a Classifier. dispatcher may be nil, in which case completed
// reports are only logged.
func New(lib *patterns.Library, dispatcher Dispatcher, opts Options) *Classifier {
	if opts.Phone == "" {
		opts.Phone = "0793-006638"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return models.NewID(models.PrefixFault) }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Classifier{
		lib:        lib,
		dispatcher: dispatcher,
		phone:      opts.Phone,
		now:        opts.Now,
		newID:      opts.NewID,
		logger:     opts.Logger,
	}
}

// DetectUrgency grades text against the critical, high and medium tiers in
// that order. The first tier with a match wins; no match is low.
func (c *Classifier) DetectUrgency(text string) models.Urgency {
	r, ok := patterns.FirstMatch(c.lib.Urgency, text)
	if !ok {
		return models.UrgencyLow
	}
	u, err := models.ParseUrgency(r.Tag)
	if err != nil {
		return models.UrgencyLow
	}
	return u
}

// DetectCategory picks the category with the most matching patterns. Ties
// go to the earlier category; no match is other.
func (c *Classifier) DetectCategory(text string) models.FaultCategory {
	best, ok := patterns.Best(patterns.Counts(c.lib.Category, text))
	if !ok {
		return models.CategoryOther
	}
	cat, err := models.ParseFaultCategory(best.Tag)
	if err != nil {
		return models.CategoryOther
	}
	return cat
}

// Fields are the report slots that can be filled from free text.
type Fields struct {
	Location string
	Name     string
	Email    string
	Phone    string
}

func (f Fields) empty() bool {
	return f == Fields{}
}

// ExtractFields searches text for report slots.
func (c *Classifier) ExtractFields(text string) Fields {
	get := func(tag string) string {
		v, _ := c.lib.ExtractValue(tag, text)
		return v
	}
	return Fields{
		Location: get(patterns.ExtractLocation),
		Name:     get(patterns.ExtractName),
		Email:    get(patterns.ExtractEmail),
		Phone:    get(patterns.ExtractPhone),
	}
}

// Slot names used in Outcome.Missing.
const (
	SlotLocation = "location"
	SlotEmail    = "email"
	SlotPhone    = "phone"
)

// Outcome is the result of Handle.
type Outcome struct {
	// Handled is false when the message is not part of a fault report and
	// should continue down the pipeline.
	Handled     bool
	Report      *models.FaultReport
	Urgency     models.Urgency
	Reply       string
	Complete    bool
	EscalateNow bool
	Missing     []string
}

// Handle advances the session's fault report with a new message. open is
// the session's current open report, or nil. known carries contact details
// already learned elsewhere in the session. The returned report is a fresh
// value; open is not modified.
//
// A low-urgency message never opens a report. While a report is open, a
// low-urgency message that supplies a missing slot continues it; one that
// supplies nothing falls through.
func (c *Classifier) Handle(ctx context.Context, open *models.FaultReport, sessionID, text string, known Fields) Outcome {
	if open != nil && !open.Open() {
		open = nil
	}
	urgency := c.DetectUrgency(text)
	found := c.ExtractFields(text)

	if urgency == models.UrgencyLow {
		if open == nil || !fillsMissing(open, found) {
			return Outcome{Urgency: urgency}
		}
	}

	now := c.now()
	var report models.FaultReport
	if open != nil {
		report = *open
	} else {
		report = models.FaultReport{
			ID:        c.newID(),
			SessionID: sessionID,
			Category:  models.CategoryOther,
			Urgency:   urgency,
			Status:    models.FaultCollecting,
			CreatedAt: now,
		}
	}
	report.UpdatedAt = now

	if urgency != models.UrgencyLow {
		if urgency.Rank() > report.Urgency.Rank() {
			report.Urgency = urgency
		}
		if report.Description == "" {
			report.Description = text
		} else {
			report.Description += "\n" + text
		}
		if report.Category == models.CategoryOther {
			report.Category = c.DetectCategory(report.Description)
		}
	}
	merge(&report, found)
	merge(&report, known)

	out := Outcome{
		Handled:     true,
		Urgency:     report.Urgency,
		EscalateNow: report.Urgency == models.UrgencyCritical || report.Urgency == models.UrgencyHigh,
	}

	if !report.Complete() {
		out.Missing = missingSlots(&report)
		out.Reply = c.collectReply(&report, out.Missing)
		out.Report = &report
		return out
	}

	if err := report.Advance(models.FaultComplete); err != nil {
		c.logger.Error("advance fault report", "id", report.ID, "err", err)
	}
	if c.dispatcher != nil {
		c.dispatcher.DispatchFault(ctx, &report)
	} else {
		c.logger.Info("fault report complete, no dispatcher", "id", report.ID)
	}
	if err := report.Advance(models.FaultSent); err != nil {
		c.logger.Error("advance fault report", "id", report.ID, "err", err)
	}

	out.Complete = true
	out.Reply = c.confirmReply(&report)
	out.Report = &report
	return out
}

func fillsMissing(r *models.FaultReport, f Fields) bool {
	return (r.Location == "" && f.Location != "") ||
		(r.ReporterEmail == "" && f.Email != "") ||
		(r.ReporterPhone == "" && f.Phone != "") ||
		(r.ReporterName == "" && f.Name != "")
}

// merge fills empty slots from f. Filled slots are never overwritten.
func merge(r *models.FaultReport, f Fields) {
	if f.empty() {
		return
	}
	if r.Location == "" {
		r.Location = f.Location
	}
	if r.ReporterName == "" {
		r.ReporterName = f.Name
	}
	if r.ReporterEmail == "" {
		r.ReporterEmail = f.Email
	}
	if r.ReporterPhone == "" {
		r.ReporterPhone = f.Phone
	}
}

func missingSlots(r *models.FaultReport) []string {
	var missing []string
	if r.Location == "" {
		missing = append(missing, SlotLocation)
	}
	if !r.HasContact() {
		missing = append(missing, SlotEmail)
		if r.Urgency.Rank() >= models.UrgencyHigh.Rank() {
			missing = append(missing, SlotPhone)
		}
	}
	return missing
}

var slotQuestions = map[string]string{
	SlotLocation: "Vart finns problemet? (Adress, lägenhetsnummer, plats i fastigheten)",
	SlotEmail:    "Vilken e-postadress kan vi nå dig på?",
	SlotPhone:    "Vilket telefonnummer kan vi nå dig på för akuta ärenden?",
}

// Question returns the follow-up question for a slot.
func Question(slot string) string {
	return slotQuestions[slot]
}

func (c *Classifier) collectReply(r *models.FaultReport, missing []string) string {
	var sb strings.Builder
	sb.WriteString(c.urgencyText(r.Urgency))
	if hint := categoryHints[r.Urgency][r.Category]; hint != "" {
		sb.WriteString(" ")
		sb.WriteString(hint)
	}
	if len(missing) > 0 {
		sb.WriteString("\n\nFör att slutföra felanmälan behöver jag veta:")
		for i, slot := range missing {
			sb.WriteString("\n")
			sb.WriteString(strconv.Itoa(i + 1))
			sb.WriteString(". ")
			sb.WriteString(Question(slot))
		}
	}
	return sb.String()
}

func (c *Classifier) confirmReply(r *models.FaultReport) string {
	msg := fmt.Sprintf("Tack! Din felanmälan är registrerad med ärendenummer %s.", r.ID)
	switch r.Urgency {
	case models.UrgencyCritical:
		return msg + " Vår jour är informerad. Ring oss direkt på " + c.phone + " om läget förvärras."
	case models.UrgencyHigh:
		return msg + " Vårt tekniska team har fått den som prioriterad och du får svar inom 2 timmar."
	case models.UrgencyMedium:
		return msg + " Du får en bekräftelse via e-post och vi återkommer inom 24 timmar."
	}
	return msg + " Vi återkommer så snart vi kan."
}

func (c *Classifier) urgencyText(u models.Urgency) string {
	switch u {
	case models.UrgencyCritical:
		return "Jag förstår att detta är akut. Jag eskalerar detta omedelbart till vår jour. " +
			"För snabbast hjälp, ring oss direkt på " + c.phone + "."
	case models.UrgencyHigh:
		return "Jag förstår att detta är viktigt. Jag skickar detta prioriterat till vårt tekniska team. " +
			"Du får svar inom 2 timmar. För omedelbar hjälp, ring " + c.phone + "."
	case models.UrgencyMedium:
		return "Tack för din felanmälan. Vi registrerar ärendet och återkommer inom 24 timmar."
	}
	return "Tack för din felanmälan. Vi registrerar ärendet och återkommer så snart vi kan."
}

// categoryHints adds safety advice for the combinations where there is any.
var categoryHints = map[models.Urgency]map[models.FaultCategory]string{
	models.UrgencyCritical: {
		models.CategoryWater:      "Stäng av vattnet vid huvudkranen om du kan göra det säkert.",
		models.CategoryElectrical: "Rör inte utrustningen och bryt strömmen i elcentralen om det är säkert.",
		models.CategorySecurity:   "Vid pågående inbrott, ring 112 först.",
		models.CategoryHeating:    "Håll fönster och dörrar stängda tills vi är på plats.",
		models.CategoryStructural: "Håll dig borta från det skadade området.",
	},
	models.UrgencyHigh: {
		models.CategoryWater:      "Spara gärna vatten i kärl tills felet är åtgärdat.",
		models.CategoryHeating:    "Kontrollera att elementens termostater är uppvridna.",
		models.CategoryElectrical: "Kontrollera om en säkring eller jordfelsbrytare har löst ut.",
	},
	models.UrgencyMedium: {
		models.CategoryWater:     "Lägg gärna en handduk under läckan så länge.",
		models.CategoryAppliance: "Använd inte maskinen förrän den är kontrollerad.",
	},
}
