package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	hyphenBreakRe  = regexp.MustCompile(`(\w)-\n(\w)`)
	manyNewlinesRe = regexp.MustCompile(`\n{3,}`)
	loneNewlineRe  = regexp.MustCompile(`([^\n])\n([^\n])`)
	spaceRunRe     = regexp.MustCompile("[ \t ​]+")
)

// Normalize cleans raw extracted page text: NFKC normalization, rejoining of
// words hyphenated across line breaks, paragraph-preserving newline collapse,
// and whitespace-run collapse. Idempotent; empty input yields empty output.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// Collapse ligatures and compatibility forms (ﬁ -> fi, full-width digits, etc.)
	text = norm.NFKC.String(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	// "exam-\nple" -> "example"
	text = hyphenBreakRe.ReplaceAllString(text, "$1$2")

	// 3+ newlines mark a paragraph break; keep exactly two
	text = manyNewlinesRe.ReplaceAllString(text, "\n\n")

	// A remaining single newline is sentence continuation. Matches cannot
	// overlap, so alternating text/newline sequences need repeated passes.
	for {
		replaced := loneNewlineRe.ReplaceAllString(text, "$1 $2")
		if replaced == text {
			break
		}
		text = replaced
	}

	// Runs of spaces, tabs, NBSP and zero-width spaces become one space
	text = spaceRunRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// Meaningful reports whether page text is rich enough to skip OCR: at least
// minLength characters, with alphabetic characters making up more than
// letterRatio of the text. The ratio is deliberately loose so mostly numeric
// or tabular pages still count as meaningful.
func Meaningful(text string, minLength int, letterRatio float64) bool {
	total := 0
	letters := 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total < minLength || total == 0 {
		return false
	}
	return float64(letters)/float64(total) > letterRatio
}
