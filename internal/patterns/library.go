package patterns

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/joescharf/desk/internal/models"
)

// Table names, as used in override files.
const (
	TableUrgency        = "urgency"
	TableCategory       = "category"
	TableIntent         = "intent"
	TableSentiment      = "sentiment"
	TableLeadTiers      = "lead_tiers"
	TableCompany        = "company"
	TablePricingHistory = "pricing_history"
	TableBookingHistory = "booking_history"
	TableUrgentWords    = "urgent_words"
	TableInjection      = "injection"
	TableSuspicious     = "suspicious"
	TableOutputLeaks    = "output_leaks"
	TableFastPath       = "fast_path"
	TableExtract        = "extract"
	TableLegal          = "legal"
	TableManager        = "manager"
	TableBilling        = "billing"
	TableContract       = "contract"
)

// Extraction tags.
const (
	ExtractName     = "name"
	ExtractEmail    = "email"
	ExtractPhone    = "phone"
	ExtractCompany  = "company"
	ExtractLocation = "location"
)

// RuleSpec is the uncompiled, serialisable form of a Rule.
type RuleSpec struct {
	Tag      string   `yaml:"tag"`
	Weight   float64  `yaml:"weight,omitempty"`
	Patterns []string `yaml:"patterns"`
}

// Library bundles every table the pipeline consults. Build one with Default
// or Load and share it read-only.
type Library struct {
	Urgency        Table
	Category       Table
	Intent         Table
	Sentiment      Table
	LeadTiers      Table
	Company        Table
	PricingHistory Table
	BookingHistory Table
	UrgentWords    Table
	Injection      Table
	Suspicious     Table
	OutputLeaks    Table
	FastPath       Table
	Extract        Table
	Legal          Table
	Manager        Table
	Billing        Table
	Contract       Table

	specs map[string][]RuleSpec
}

func (l *Library) tables() map[string]*Table {
	return map[string]*Table{
		TableUrgency:        &l.Urgency,
		TableCategory:       &l.Category,
		TableIntent:         &l.Intent,
		TableSentiment:      &l.Sentiment,
		TableLeadTiers:      &l.LeadTiers,
		TableCompany:        &l.Company,
		TablePricingHistory: &l.PricingHistory,
		TableBookingHistory: &l.BookingHistory,
		TableUrgentWords:    &l.UrgentWords,
		TableInjection:      &l.Injection,
		TableSuspicious:     &l.Suspicious,
		TableOutputLeaks:    &l.OutputLeaks,
		TableFastPath:       &l.FastPath,
		TableExtract:        &l.Extract,
		TableLegal:          &l.Legal,
		TableManager:        &l.Manager,
		TableBilling:        &l.Billing,
		TableContract:       &l.Contract,
	}
}

// tagCheckers restrict the tags allowed in tables whose tags map onto a
// closed enumeration.
var tagCheckers = map[string]func(string) error{
	TableUrgency: func(tag string) error {
		u, err := models.ParseUrgency(tag)
		if err == nil && u == models.UrgencyLow {
			return fmt.Errorf("low urgency is the default and takes no patterns")
		}
		return err
	},
	TableCategory: func(tag string) error {
		_, err := models.ParseFaultCategory(tag)
		return err
	},
	TableIntent: func(tag string) error {
		_, err := models.ParseIntent(tag)
		return err
	},
	TableSentiment: func(tag string) error {
		_, err := models.ParseSentiment(tag)
		return err
	},
	TableLeadTiers: func(tag string) error {
		n, err := strconv.Atoi(tag)
		if err != nil || n < models.MinLeadScore || n > models.MaxLeadScore {
			return fmt.Errorf("lead tier must be %d-%d, got %q", models.MinLeadScore, models.MaxLeadScore, tag)
		}
		return nil
	},
	TableFastPath: func(tag string) error {
		_, err := models.ParseIntent(tag)
		return err
	},
}

// Default returns the built-in Swedish and English tables.
func Default() *Library {
	l, err := build(defaultSpecs())
	if err != nil {
		panic(fmt.Sprintf("patterns: invalid built-in table: %v", err))
	}
	return l
}

// LoadFile reads overrides from a YAML file. See Load.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Load reads a YAML document mapping table names to rule lists. Every table
// present replaces the built-in table of the same name; absent tables keep
// their defaults.
func Load(r io.Reader) (*Library, error) {
	var overrides map[string][]RuleSpec
	if err := yaml.NewDecoder(r).Decode(&overrides); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode pattern overrides: %w", err)
	}
	specs := defaultSpecs()
	for name, rules := range overrides {
		if _, ok := specs[name]; !ok {
			return nil, fmt.Errorf("unknown pattern table: %q", name)
		}
		specs[name] = rules
	}
	return build(specs)
}

func build(specs map[string][]RuleSpec) (*Library, error) {
	l := &Library{specs: specs}
	for name, dst := range l.tables() {
		check := tagCheckers[name]
		var t Table
		for _, rs := range specs[name] {
			if check != nil {
				if err := check(rs.Tag); err != nil {
					return nil, fmt.Errorf("table %s: %w", name, err)
				}
			}
			w := rs.Weight
			if w == 0 {
				w = 1
			}
			rule, err := NewRule(rs.Tag, w, rs.Patterns...)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", name, err)
			}
			t = append(t, rule)
		}
		*dst = t
	}
	return l, nil
}

// Specs returns the source form of every table, keyed by table name.
func (l *Library) Specs() map[string][]RuleSpec {
	out := make(map[string][]RuleSpec, len(l.specs))
	for k, v := range l.specs {
		out[k] = append([]RuleSpec(nil), v...)
	}
	return out
}

// Table returns the named table.
func (l *Library) Table(name string) (Table, bool) {
	t, ok := l.tables()[name]
	if !ok {
		return nil, false
	}
	return *t, true
}

// TableNames lists the known table names in sorted order.
func TableNames() []string {
	names := make([]string, 0, len(defaultSpecs()))
	for n := range defaultSpecs() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MarshalYAML renders the effective tables in the override file format.
func (l *Library) MarshalYAML() (interface{}, error) {
	return l.Specs(), nil
}

// ExtractValue runs the extraction rule for tag against text. Phone numbers
// that fail ValidPhone are discarded.
func (l *Library) ExtractValue(tag, text string) (string, bool) {
	r, ok := l.Extract.Lookup(tag)
	if !ok {
		return "", false
	}
	v, ok := r.Extract(text)
	if !ok {
		return "", false
	}
	if tag == ExtractPhone && !ValidPhone(v) {
		return "", false
	}
	return v, true
}
