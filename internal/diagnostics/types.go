// Package diagnostics implements the deduplication engine: it decides which
// findings in a freshly collected diagnostic list are new information and
// whether a report is due, backed by per-project history in the store.
package diagnostics

import (
	"fmt"
)

// Severity classifies a diagnostic finding
type Severity string

const (
	// SeverityError for findings that block compilation or are definite bugs
	SeverityError Severity = "error"
	// SeverityWarning for likely problems
	SeverityWarning Severity = "warning"
	// SeverityInfo for informational findings
	SeverityInfo Severity = "info"
	// SeverityHint for stylistic suggestions
	SeverityHint Severity = "hint"
)

// Diagnostic is a single static-analysis finding. Line and Column are
// 1-based; values below 1 are clamped on ingestion.
type Diagnostic struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Source   string   `json:"source,omitempty"`
	RuleID   string   `json:"ruleId,omitempty"`
}

// normalize clamps out-of-range positions. Some tools emit 0-based or
// missing positions; identity hashing needs a consistent floor.
func (d Diagnostic) normalize() Diagnostic {
	if d.Line < 1 {
		d.Line = 1
	}
	if d.Column < 1 {
		d.Column = 1
	}
	if d.Severity == "" {
		d.Severity = SeverityError
	}
	return d
}

// String renders the diagnostic in compiler-style form
func (d Diagnostic) String() string {
	if d.Source != "" {
		return fmt.Sprintf("%s:%d:%d: %s: %s [%s]", d.File, d.Line, d.Column, d.Severity, d.Message, d.Source)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
}

// Diff partitions a current diagnostic set against windowed history
type Diff struct {
	Added     []Diagnostic `json:"added"`
	Resolved  []Diagnostic `json:"resolved"`
	Unchanged []Diagnostic `json:"unchanged"`
}

// Result is the outcome of one ProcessDiagnostics call
type Result struct {
	Diff         Diff `json:"diff"`
	ShouldReport bool `json:"shouldReport"`
}
