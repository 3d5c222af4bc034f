// Package text prepares user input for speech generation and for display in clip listings.
package text

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Display and prompt constants.
const (
	// DefaultMaxLength is the longest accepted generation input, in runes.
	DefaultMaxLength = 5000
	// DefaultDisplayLength is the number of runes kept when a clip text is shown in a listing.
	DefaultDisplayLength = 50
	// Ellipsis marks truncated display text.
	Ellipsis = "..."
)

const (
	stylePromptFormat      = "Speak the following text exactly as written. Style: %s. Text: %s"
	whitespaceRegexPattern = `\s+`
	blankLineRegexPattern  = `\n{3,}`
)

// Punctuation and formatting constants.
const (
	emDash         = "—"
	enDash         = "–"
	figureDash     = "‒"
	ellipsisChar   = "…"
	carriageReturn = "\r\n"
	lineFeed       = "\n"
	nonBreaking    = "\u00a0"
	zeroWidthSpace = "\u200b"
)

// Normalizer cleans generation input without changing what is spoken.
type Normalizer struct {
	whitespacePattern *regexp.Regexp
	blankLinePattern  *regexp.Regexp
	// Single replacer for quotes, dashes and invisible characters.
	punctuationReplacer *strings.Replacer
}

// NewNormalizer creates a normalizer with compiled patterns and replacers.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		blankLinePattern:  regexp.MustCompile(blankLineRegexPattern),
		punctuationReplacer: strings.NewReplacer(
			carriageReturn, lineFeed,
			nonBreaking, " ",
			zeroWidthSpace, "",
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, Ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize trims the input, unifies quotes and dashes and collapses runs of blank lines.
// Line breaks inside the text are kept.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return text
	}

	normalizedText := n.punctuationReplacer.Replace(text)
	normalizedText = n.blankLinePattern.ReplaceAllString(normalizedText, lineFeed+lineFeed)

	return strings.TrimSpace(normalizedText)
}

// Display collapses all whitespace to single spaces and truncates to limit runes.
func (n *Normalizer) Display(text string, limit int) string {
	collapsed := strings.TrimSpace(n.whitespacePattern.ReplaceAllString(text, " "))

	return Truncate(collapsed, limit)
}

// Truncate returns text unchanged when it has at most limit runes, otherwise its first limit
// runes followed by Ellipsis. A non-positive limit disables truncation.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)

	return string(runes[:limit]) + Ellipsis
}

// Length returns the rune count used for length validation.
func Length(text string) int {
	return utf8.RuneCountInString(text)
}

// StylePrompt wraps text with a delivery instruction. An empty style returns text unchanged.
func StylePrompt(style, text string) string {
	style = strings.TrimSpace(style)
	if style == "" {
		return text
	}

	return fmt.Sprintf(stylePromptFormat, style, text)
}
