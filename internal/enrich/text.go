package enrich

import (
	"strings"
	"unicode"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
)

// Body length band around the original description, in words.
const (
	minBodyWords   = 150
	bodyWordsSlack = 50
)

// Meta field length limits, in characters.
const (
	MetaTitleMax       = 60
	MetaDescriptionMax = 180
	metaFallbackDesc   = 160
)

// ToMarkdown converts an HTML description into markdown text suitable for
// prompts and word counts. Input without markup is returned trimmed.
func ToMarkdown(html string) string {
	html = strings.TrimSpace(html)
	if html == "" || !strings.Contains(html, "<") {
		return html
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return html
	}
	return strings.TrimSpace(md)
}

// WordCount counts tokens carrying at least one letter or digit, so that
// markdown markers are not counted.
func WordCount(text string) int {
	n := 0
	for _, f := range strings.Fields(text) {
		if strings.IndexFunc(f, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			n++
		}
	}
	return n
}

// WordBand returns the target word range for an optimized body:
// max(150, original words) plus or minus 50.
func WordBand(plainText string) (lo, hi int) {
	target := max(minBodyWords, WordCount(plainText))
	return target - bodyWordsSlack, target + bodyWordsSlack
}

// ClampChars shortens s to at most n runes, cutting at a word boundary when
// one exists in the second half.
func ClampChars(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := n
	for i := n; i > n/2; i-- {
		if r[i] == ' ' {
			cut = i
			break
		}
	}
	return strings.TrimRight(string(r[:cut]), " ,;:-")
}

// NewSanitizer returns the policy applied to provider-generated HTML.
func NewSanitizer() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("section")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// cleanLine normalizes a single-line provider answer: fences, wrapping
// quotes and trailing newlines are removed.
func cleanLine(s string) string {
	s = stripFences(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`„”“")
	return strings.TrimSpace(s)
}

// isNullFragment reports whether a structured-extraction answer means "no section".
func isNullFragment(s string) bool {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), "\"'`."))
	return s == "" || s == NullSentinel || s == "none" || s == "n/a"
}
