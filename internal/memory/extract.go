package memory

import (
	"fmt"
	"strings"

	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/patterns"
)

// Found is an attribute value located in a message.
type Found struct {
	Name      string
	Value     string
	Source    models.AttributeSource
	Overwrite bool
}

var extractAttrs = []struct {
	tag  string
	attr string
}{
	{patterns.ExtractName, models.AttrName},
	{patterns.ExtractEmail, models.AttrEmail},
	{patterns.ExtractPhone, models.AttrPhone},
	{patterns.ExtractCompany, models.AttrCompany},
}

// Extract finds the customer's name, e-mail, phone and company in text.
func (m *Service) Extract(text string) []Found {
	var out []Found
	for _, ea := range extractAttrs {
		if v, ok := m.lib.ExtractValue(ea.tag, text); ok {
			out = append(out, Found{Name: ea.attr, Value: v, Source: models.SourceUserInfo})
		}
	}
	return out
}

// ContextPrompt describes what is known about the conversation, for the
// generation prompt. It is empty when there is nothing worth saying.
func ContextPrompt(s *models.Session) string {
	if s == nil {
		return ""
	}
	var parts []string
	if name := s.Attr(models.AttrName); name != "" {
		parts = append(parts, fmt.Sprintf("Customer's name is %s.", name))
	}
	if n := len(s.Messages); n > 2 {
		parts = append(parts, fmt.Sprintf("You are %d messages into this conversation.", n))
	}
	if issue := s.Attr(models.AttrPrimaryIssue); issue != "" {
		parts = append(parts, "The main issue is: "+issue)
	}
	if signals := s.Attr(AttrBuyingSignals); signals != "" {
		parts = append(parts, "Customer has shown interest in: "+strings.ReplaceAll(signals, ",", ", "))
	}
	if len(s.Messages) >= 4 {
		parts = append(parts, "Acknowledge previous context when relevant to build continuity.")
	}
	if len(parts) == 0 {
		return ""
	}
	return "\n\n## CONVERSATION CONTEXT\n" + strings.Join(parts, "\n") + "\n"
}
