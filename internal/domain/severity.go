// Package domain defines the core interfaces and types for the expense auditor.
package domain

// Severity is the audit grade assigned to a transaction.
// The three grades form a total order: OK < POSSIBLE_WARN < DIRECT_WARN.
type Severity string

const (
	SeverityOK           Severity = "OK"
	SeverityPossibleWarn Severity = "POSSIBLE_WARN"
	SeverityDirectWarn   Severity = "DIRECT_WARN"
)

// Priority returns the lattice rank of a severity. Unknown severities rank
// below OK so they can never displace a real grade.
func (s Severity) Priority() int {
	switch s {
	case SeverityOK:
		return 0
	case SeverityPossibleWarn:
		return 1
	case SeverityDirectWarn:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the three known grades.
func (s Severity) Valid() bool {
	return s.Priority() >= 0
}

// Combine upgrades current to candidate only if candidate ranks strictly
// higher. A flag never downgrades once set.
func Combine(current, candidate Severity) Severity {
	if candidate.Priority() > current.Priority() {
		return candidate
	}
	return current
}
