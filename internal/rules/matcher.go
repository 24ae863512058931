package rules

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/edgeops/cfaudit/internal/cloudflare"
)

const (
	AccountLevel = "Account Level"

	hostField = "http.host"
)

// Field names a rule attribute searched by TermMatcher.
type Field string

const (
	FieldRulesetName Field = "name"
	FieldDescription Field = "description"
	FieldExpression  Field = "expression"
	FieldRuleID      Field = "id"
)

var (
	AllFields      = []Field{FieldRulesetName, FieldDescription, FieldExpression, FieldRuleID}
	knownFieldSet  = map[Field]bool{FieldRulesetName: true, FieldDescription: true, FieldExpression: true, FieldRuleID: true}
	ErrEmptyTerms  = errors.New("no search terms given")
	ErrEmptyFields = errors.New("no search fields given")
)

// ParseFields converts field names given on the command line.
func ParseFields(names []string) ([]Field, error) {
	var fields []Field
	seen := make(map[Field]bool)

	for _, name := range names {
		f := Field(strings.ToLower(strings.TrimSpace(name)))
		if f == "" {
			continue
		}
		if !knownFieldSet[f] {
			return nil, errors.Errorf("unknown search field %q", name)
		}
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}

	if len(fields) == 0 {
		return nil, ErrEmptyFields
	}

	return fields, nil
}

// Details describes one rule that matched one term.
type Details struct {
	Domain       string `json:"domain" yaml:"domain"`
	RulesetName  string `json:"ruleset_name" yaml:"ruleset_name"`
	RulesetPhase string `json:"ruleset_phase" yaml:"ruleset_phase"`
	RuleID       string `json:"rule_id" yaml:"rule_id"`
	Description  string `json:"description" yaml:"description"`
	Expression   string `json:"expression" yaml:"expression"`
	Action       string `json:"action" yaml:"action"`
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	MatchedTerm  string `json:"matched_term,omitempty" yaml:"matched_term,omitempty"`
}

func newDetails(owner string, rs *cloudflare.Ruleset, rule *cloudflare.Rule, term string) Details {
	return Details{
		Domain:       owner,
		RulesetName:  rs.Name,
		RulesetPhase: rs.Phase,
		RuleID:       rule.ID,
		Description:  rule.Description,
		Expression:   rule.Expression,
		Action:       rule.Action,
		Enabled:      rule.Enabled,
		MatchedTerm:  term,
	}
}

// Matcher produces the records a rule contributes to the report.
type Matcher interface {
	Match(owner string, rs *cloudflare.Ruleset, rule *cloudflare.Rule) []Details
}

// TermMatcher matches rules whose fields contain a search term, ignoring case.
// Unless Exact is set, underscores, hyphens and whitespace runs compare equal.
type TermMatcher struct {
	terms  []string
	keys   []string
	fields []Field
	exact  bool
}

func NewTermMatcher(terms []string, fields []Field, exact bool) (*TermMatcher, error) {
	if len(fields) == 0 {
		return nil, ErrEmptyFields
	}

	m := &TermMatcher{fields: fields, exact: exact}

	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		m.terms = append(m.terms, term)
		m.keys = append(m.keys, m.normalize(term))
	}

	if len(m.terms) == 0 {
		return nil, ErrEmptyTerms
	}

	return m, nil
}

// Terms returns the active search terms in their configured order.
func (m *TermMatcher) Terms() []string {
	return append([]string(nil), m.terms...)
}

func (m *TermMatcher) Match(owner string, rs *cloudflare.Ruleset, rule *cloudflare.Rule) []Details {
	values := make([]string, 0, len(m.fields))
	for _, f := range m.fields {
		values = append(values, m.normalize(fieldValue(f, rs, rule)))
	}

	var found []Details

	for i, key := range m.keys {
		for _, v := range values {
			if strings.Contains(v, key) {
				found = append(found, newDetails(owner, rs, rule, m.terms[i]))
				break
			}
		}
	}

	return found
}

func (m *TermMatcher) normalize(s string) string {
	s = strings.ToLower(s)
	if m.exact {
		return s
	}
	return foldSeparators(s)
}

// MissingHostMatcher matches rules whose expression has no http.host condition.
type MissingHostMatcher struct{}

func (MissingHostMatcher) Match(owner string, rs *cloudflare.Ruleset, rule *cloudflare.Rule) []Details {
	if strings.Contains(rule.Expression, hostField) {
		return nil
	}
	return []Details{newDetails(owner, rs, rule, "")}
}

func fieldValue(f Field, rs *cloudflare.Ruleset, rule *cloudflare.Rule) string {
	switch f {
	case FieldRulesetName:
		return rs.Name
	case FieldDescription:
		return rule.Description
	case FieldExpression:
		return rule.Expression
	case FieldRuleID:
		return rule.ID
	}
	return ""
}

// foldSeparators maps every run of '_', '-' and whitespace to one space.
func foldSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pending := false
	for _, r := range s {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			pending = true
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		b.WriteRune(r)
	}

	if pending {
		b.WriteByte(' ')
	}

	return b.String()
}
