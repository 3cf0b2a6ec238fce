// Package patterns holds the ordered, weighted text-pattern tables used by
// every classification stage, plus the generic matchers that walk them.
//
// Tables are built once at startup and shared read-only. Order inside a table
// is significant: FirstMatch returns the earliest matching rule and Best
// breaks score ties in favour of the earlier rule.
package patterns

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule is one tagged group of patterns.
type Rule struct {
	Tag      string
	Patterns []*regexp.Regexp
	Weight   float64
}

// Table is an ordered list of rules.
type Table []Rule

// Score is the result of scoring one rule against a text.
type Score struct {
	Tag     string
	Value   float64
	Phrases []string
	index   int
}

const (
	startBoundary = `(?:^|[^\p{L}\p{N}_])`
	endBoundary   = `(?:$|[^\p{L}\p{N}_])`
	wordGap       = `[^\p{L}\p{N}_](?:.*[^\p{L}\p{N}_])?`
)

// rewriteBoundaries replaces `\b` with a Unicode-aware boundary. RE2's `\b`
// only knows ASCII word characters, so `\böppet\b` would never match.
// The replacement consumes the separator, so `\b.*\b` between two words is
// rewritten as a single gap. Otherwise a `\b` followed by a group, letter or
// class opens a word and any other `\b` closes one.
func rewriteBoundaries(expr string) string {
	if !strings.Contains(expr, `\b`) {
		return expr
	}
	expr = strings.ReplaceAll(expr, `\b.*\b`, wordGap)
	var sb strings.Builder
	for i := 0; i < len(expr); i++ {
		if expr[i] == '\\' && i+1 < len(expr) {
			if expr[i+1] != 'b' {
				sb.WriteByte(expr[i])
				sb.WriteByte(expr[i+1])
				i++
				continue
			}
			rest := expr[i+2:]
			if opensWord(rest) {
				sb.WriteString(startBoundary)
			} else {
				sb.WriteString(endBoundary)
			}
			i++
			continue
		}
		sb.WriteByte(expr[i])
	}
	return sb.String()
}

func opensWord(rest string) bool {
	if rest == "" {
		return false
	}
	switch rest[0] {
	case '(', '[':
		return true
	case '\\':
		return len(rest) > 1 && (rest[1] == 'p' || rest[1] == 'w' || rest[1] == 'd')
	}
	r := []rune(rest)[0]
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Compile builds a case-insensitive regexp with Unicode word boundaries.
func Compile(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + rewriteBoundaries(expr))
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return re, nil
}

// NewRule compiles a rule from raw pattern strings.
func NewRule(tag string, weight float64, exprs ...string) (Rule, error) {
	r := Rule{Tag: tag, Weight: weight}
	for _, e := range exprs {
		re, err := Compile(e)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: %w", tag, err)
		}
		r.Patterns = append(r.Patterns, re)
	}
	return r, nil
}

// Matches reports whether any pattern of the rule matches text.
func (r Rule) Matches(text string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Phrases returns the matched text of every pattern that matches, trimmed of
// the boundary characters consumed by the match.
func (r Rule) Phrases(text string) []string {
	var out []string
	for _, p := range r.Patterns {
		if m := p.FindString(text); m != "" {
			out = append(out, trimBoundary(m))
		}
	}
	return out
}

// Count returns how many of the rule's patterns match text.
func (r Rule) Count(text string) int {
	n := 0
	for _, p := range r.Patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

func trimBoundary(s string) string {
	return strings.TrimFunc(s, func(r rune) bool { return !isWordRune(r) })
}

// FirstMatch returns the first rule in table order with any matching pattern.
func FirstMatch(t Table, text string) (Rule, bool) {
	for _, r := range t {
		if r.Matches(text) {
			return r, true
		}
	}
	return Rule{}, false
}

// Any reports whether any rule in the table matches text.
func (t Table) Any(text string) bool {
	_, ok := FirstMatch(t, text)
	return ok
}

// Lookup returns the rule with the given tag.
func (t Table) Lookup(tag string) (Rule, bool) {
	for _, r := range t {
		if r.Tag == tag {
			return r, true
		}
	}
	return Rule{}, false
}

// Tags lists the rule tags in table order.
func (t Table) Tags() []string {
	tags := make([]string, len(t))
	for i, r := range t {
		tags[i] = r.Tag
	}
	return tags
}

// Scores sums the weight of every matching pattern, per rule. Rules without
// a match are omitted. The result keeps table order.
func Scores(t Table, text string) []Score {
	var out []Score
	for i, r := range t {
		var s Score
		for _, p := range r.Patterns {
			if m := p.FindString(text); m != "" {
				s.Value += r.Weight
				s.Phrases = append(s.Phrases, trimBoundary(m))
			}
		}
		if s.Value > 0 {
			s.Tag = r.Tag
			s.index = i
			out = append(out, s)
		}
	}
	return out
}

// Counts is Scores with every pattern weighted 1.
func Counts(t Table, text string) []Score {
	var out []Score
	for i, r := range t {
		if n := r.Count(text); n > 0 {
			out = append(out, Score{Tag: r.Tag, Value: float64(n), index: i})
		}
	}
	return out
}

// Best returns the highest score. Ties go to the rule declared first.
func Best(scores []Score) (Score, bool) {
	if len(scores) == 0 {
		return Score{}, false
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Value > best.Value || (s.Value == best.Value && s.index < best.index) {
			best = s
		}
	}
	return best, true
}

// Extract returns the first capture group of the first matching pattern in
// the rule, or the whole match when the pattern has no group.
func (r Rule) Extract(text string) (string, bool) {
	for _, p := range r.Patterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		for _, g := range m[1:] {
			if g = strings.TrimSpace(g); g != "" {
				return g, true
			}
		}
		if v := strings.TrimSpace(trimBoundary(m[0])); v != "" {
			return v, true
		}
	}
	return "", false
}

// Replace substitutes every span matched by the rule's patterns. Separator
// characters consumed by a boundary are kept.
func (r Rule) Replace(text, repl string) string {
	for _, p := range r.Patterns {
		text = p.ReplaceAllStringFunc(text, func(m string) string {
			start := strings.IndexFunc(m, isWordRune)
			end := strings.LastIndexFunc(m, isWordRune)
			if start < 0 {
				return repl
			}
			_, size := utf8.DecodeRuneInString(m[end:])
			return m[:start] + repl + m[end+size:]
		})
	}
	return text
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

var dateShape = regexp.MustCompile(`^(?:\d{4}[\s-]\d{2}[\s-]\d{2}|\d{2}[\s-]\d{2}[\s-]\d{4})$`)

// ValidPhone reports whether v has the shape of a Swedish phone number: 7 to
// 12 digits, and not laid out like a date.
func ValidPhone(v string) bool {
	digits := 0
	for _, r := range v {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits < 7 || digits > 12 {
		return false
	}
	return !dateShape.MatchString(strings.TrimSpace(v))
}
