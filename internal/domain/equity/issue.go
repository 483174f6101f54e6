package equity

import (
	"sort"
	"strings"
)

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// NormalizeSeverity folds labels from rules and external collaborators into the three severities.
func NormalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "high", "error":
		return SeverityCritical
	case "info", "note", "low", "informational":
		return SeverityInfo
	}
	return SeverityWarning
}

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	}
	return 2
}

// Issue is one compliance finding.
type Issue struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Source      string   `json:"source,omitempty"`
}

// Issue sources
const (
	SourceRule     = "rule"
	SourceExternal = "external"
)

func (i Issue) key() string {
	return i.Category + "\x00" + i.Description
}

// MergeIssues concatenates the lists and drops repeats of (category, description), keeping
// the first occurrence. Severities are normalized on the way through.
func MergeIssues(lists ...[]Issue) []Issue {
	seen := make(map[string]bool)
	out := []Issue{}
	for _, list := range lists {
		for _, is := range list {
			is.Severity = NormalizeSeverity(string(is.Severity))
			if seen[is.key()] {
				continue
			}
			seen[is.key()] = true
			out = append(out, is)
		}
	}
	return out
}

// SortIssues orders by severity, keeping the original order within a severity.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.rank() < issues[j].Severity.rank()
	})
}
