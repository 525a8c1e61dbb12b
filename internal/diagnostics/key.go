package diagnostics

import (
	"encoding/hex"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/paths"
)

// Key computes the identity hash of a diagnostic: two diagnostics with the
// same key are the same finding across tool runs. The hash covers
// (canonical path, line, column, message) and deliberately excludes
// severity, source, and rule ID, so a tool flip-flopping on severity for
// the same location does not look like a new finding.
func Key(d Diagnostic, projectRoot string) string {
	d = d.normalize()
	canonical := paths.CanonicalizePath(d.File, projectRoot)

	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%s", canonical, d.Line, d.Column, d.Message)))
	return hex.EncodeToString(sum[:16])
}

// ReportHash computes the content hash of a full diagnostic set. It covers
// every field, sorted into a canonical order, so it changes whenever any
// reportable detail changes even if the finding identities cancel out.
func ReportHash(diags []Diagnostic, projectRoot string) string {
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		d = d.normalize()
		canonical := paths.CanonicalizePath(d.File, projectRoot)
		lines = append(lines, fmt.Sprintf("%s|%d|%d|%s|%s|%s|%s",
			canonical, d.Line, d.Column, d.Severity, d.Message, d.Source, d.RuleID))
	}
	sort.Strings(lines)

	h, _ := blake2b.New256(nil)
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
