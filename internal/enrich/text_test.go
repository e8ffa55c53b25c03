package enrich

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordBand(t *testing.T) {
	lo, hi := WordBand("")
	assert.Equal(t, 100, lo)
	assert.Equal(t, 200, hi)

	lo, hi = WordBand(strings.Repeat("słowo ", 300))
	assert.Equal(t, 250, lo)
	assert.Equal(t, 350, hi)
}

func TestWordCount_IgnoresMarkers(t *testing.T) {
	assert.Equal(t, 3, WordCount("## Title - one **two**"))
}

func TestClampChars(t *testing.T) {
	assert.Equal(t, "short", ClampChars("short", 60))
	assert.Equal(t, "Wiertarka udarowa", ClampChars("Wiertarka udarowa akumulatorowa", 20))
	assert.Equal(t, "abcdefghij", ClampChars("abcdefghijklmno", 10))
	assert.Equal(t, "a b", ClampChars("  a \n b  ", 10))
	assert.Len(t, []rune(ClampChars(strings.Repeat("ą", 100), 60)), 60)
}

func TestToMarkdown(t *testing.T) {
	assert.Equal(t, "plain text", ToMarkdown("  plain text "))
	md := ToMarkdown("<p><strong>Mocna</strong> wiertarka</p>")
	assert.Contains(t, md, "**Mocna** wiertarka")
}

func TestCleanLine(t *testing.T) {
	assert.Equal(t, "Wiertarka DR-18", cleanLine("\"Wiertarka DR-18\"\nNote: kept model number"))
	assert.Equal(t, "Wiertarka", cleanLine("```\nWiertarka\n```"))
}

func TestIsNullFragment(t *testing.T) {
	for _, s := range []string{"null", " NULL ", "\"null\"", "", "None", "null."} {
		assert.True(t, isNullFragment(s), s)
	}
	assert.False(t, isNullFragment("<ul><li>x</li></ul>"))
}

func TestSanitizer(t *testing.T) {
	out := NewSanitizer().Sanitize(`<h2>Opis</h2><script>alert(1)</script><p onclick="x()">Tekst</p>`)
	assert.Equal(t, "<h2>Opis</h2><p>Tekst</p>", out)
}
