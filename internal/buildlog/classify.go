// Package buildlog classifies build output lines for presentation.
package buildlog

import "strings"

// Severity is the presentation class of a single output line.
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityStage
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityStage:
		return "stage"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "normal"
	}
}

// Line is an immutable classified output line. The severity is derived once
// at classification time and never changes.
type Line struct {
	Text     string
	Severity Severity
}

// stagePrefix marks section headers emitted by makepkg and install.sh.
const stagePrefix = "==>"

var errorMarkers = []string{"error:", "ERROR", "FAILED"}
var warningMarkers = []string{"warning:", "WARNING"}

// Classify tags a line of build output with a severity.
//
// The stage prefix is checked before the error and warning substrings so a
// stage header that happens to mention "error" in prose stays a stage line.
// Classification is stateless and order-independent across lines.
func Classify(text string) Severity {
	if strings.HasPrefix(text, stagePrefix) {
		return SeverityStage
	}
	for _, marker := range errorMarkers {
		if strings.Contains(text, marker) {
			return SeverityError
		}
	}
	for _, marker := range warningMarkers {
		if strings.Contains(text, marker) {
			return SeverityWarning
		}
	}
	return SeverityNormal
}

// NewLine classifies text and pairs it with the result.
func NewLine(text string) Line {
	return Line{Text: text, Severity: Classify(text)}
}
