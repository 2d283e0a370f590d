// Package text cleans user text before it is handed to the TTS executable.
//
// Normalization is opt-in. It never translates or expands words, so it is safe
// for voices in any language.
package text

import (
	"regexp"
	"strings"
	"unicode"
)

// Regex patterns for text cleanup.
const (
	referenceRegexPattern = `\[\d+(?:[,-]\s*\d+)*\]`
	blankRunRegexPattern  = `[ \t\p{Zs}]+`
	paragraphRegexPattern = `\n{3,}`
	spaceBeforePunctRegex = ` +([.,;:!?])`
)

// Punctuation and formatting constants.
const (
	emDash         = "—"
	enDash         = "–"
	figureDash     = "‒"
	ellipsis       = "..."
	ellipsisChar   = "…"
	carriageReturn = "\r\n"
	lineFeed       = "\n"
	paragraphBreak = "\n\n"
)

// Normalizer rewrites text into a shape the phonemizer reads predictably.
type Normalizer struct {
	referencePattern  *regexp.Regexp
	blankRunPattern   *regexp.Regexp
	paragraphPattern  *regexp.Regexp
	punctSpacePattern *regexp.Regexp
	punctReplacer     *strings.Replacer
}

// NewNormalizer creates a Normalizer with compiled patterns.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		referencePattern:  regexp.MustCompile(referenceRegexPattern),
		blankRunPattern:   regexp.MustCompile(blankRunRegexPattern),
		paragraphPattern:  regexp.MustCompile(paragraphRegexPattern),
		punctSpacePattern: regexp.MustCompile(spaceBeforePunctRegex),
		punctReplacer: strings.NewReplacer(
			carriageReturn, lineFeed,
			"\r", lineFeed,
			ellipsisChar, ellipsis,
			emDash, ", ",
			enDash, "-",
			figureDash, "-",
			"\u00a0", " ",
			"\u200b", "",
			"\ufeff", "",
		),
	}
}

// Normalize cleans text. Whitespace-only input comes back empty.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return text
	}

	cleaned := n.punctReplacer.Replace(text)
	cleaned = n.referencePattern.ReplaceAllString(cleaned, "")
	cleaned = stripControl(cleaned)
	cleaned = n.normalizeWhitespace(cleaned)
	cleaned = n.punctSpacePattern.ReplaceAllString(cleaned, "$1")

	return strings.TrimSpace(cleaned)
}

// normalizeWhitespace collapses blank runs inside lines and keeps at most one
// empty line between paragraphs.
func (n *Normalizer) normalizeWhitespace(text string) string {
	lines := strings.Split(text, lineFeed)
	for i, line := range lines {
		lines[i] = strings.TrimSpace(n.blankRunPattern.ReplaceAllString(line, " "))
	}

	return n.paragraphPattern.ReplaceAllString(strings.Join(lines, lineFeed), paragraphBreak)
}

func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}

		if unicode.IsControl(r) {
			return -1
		}

		return r
	}, text)
}
