package report

import (
	"fmt"

	"github.com/edgeops/cfaudit/internal/rules"
)

// Group is the set of records sharing one key: a search term, a target
// domain or a ruleset phase.
type Group struct {
	Key   string
	Rules []rules.Details
}

type SummaryRow struct {
	Term   string `json:"term" yaml:"term"`
	Count  int    `json:"count" yaml:"count"`
	Status string `json:"status" yaml:"status"`
}

// GroupByTerm groups records by matched term in the given term order. Terms
// without any record yield an empty group; repeated terms are kept once.
func GroupByTerm(terms []string, details []rules.Details) []Group {
	groups := make([]Group, 0, len(terms))
	index := make(map[string]int, len(terms))

	for _, term := range terms {
		if _, ok := index[term]; ok {
			continue
		}
		index[term] = len(groups)
		groups = append(groups, Group{Key: term})
	}

	for _, d := range details {
		if i, ok := index[d.MatchedTerm]; ok {
			groups[i].Rules = append(groups[i].Rules, d)
		}
	}

	return groups
}

// GroupByPhase groups records by ruleset phase in order of first appearance.
func GroupByPhase(details []rules.Details) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, d := range details {
		i, ok := index[d.RulesetPhase]
		if !ok {
			i = len(groups)
			index[d.RulesetPhase] = i
			groups = append(groups, Group{Key: d.RulesetPhase})
		}
		groups[i].Rules = append(groups[i].Rules, d)
	}

	return groups
}

// Summarize returns one row per group, zero-count groups included.
func Summarize(groups []Group) []SummaryRow {
	rows := make([]SummaryRow, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, SummaryRow{Term: g.Key, Count: len(g.Rules), Status: status(len(g.Rules))})
	}
	return rows
}

// Counts maps every group key to its record count.
func Counts(groups []Group) map[string]int {
	counts := make(map[string]int, len(groups))
	for _, g := range groups {
		counts[g.Key] += len(g.Rules)
	}
	return counts
}

func total(groups []Group) int {
	var n int
	for _, g := range groups {
		n += len(g.Rules)
	}
	return n
}

func status(count int) string {
	if count == 0 {
		return "No rules found"
	}
	if count == 1 {
		return "1 rule found"
	}
	return fmt.Sprintf("%d rules found", count)
}
