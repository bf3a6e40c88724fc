package canonicalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
	runsOfSpace  = regexp.MustCompile(`\s+`)

	smartPunct = strings.NewReplacer(
		"“", `"`, // left double quote
		"”", `"`, // right double quote
		"‘", "'", // left single quote
		"’", "'", // right single quote
		"–", "-", // en dash
		"—", "-", // em dash
		"«", `"`, // «
		"»", `"`, // »
	)
)

// NormalizeText converts free-form prompt/response text into a stable form
// before privacy-preserving hashing, so that cosmetic differences (smart
// quotes, CRLF, repeated spaces) do not produce distinct content hashes.
//
// Steps: Unicode NFC, LF line endings, control-character stripping (LF kept),
// smart-quote and dash substitution, per-line whitespace collapse, trim.
func NormalizeText(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = controlChars.ReplaceAllString(s, "")
	s = smartPunct.Replace(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(runsOfSpace.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
