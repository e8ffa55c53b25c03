package enrich

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoFields is returned when no known field could be recovered from a response.
var ErrNoFields = eris.New("enrich: no fields recovered from response")

// ParseResponse recovers the named string fields from a free-text provider
// response that nominally contains one JSON object. Each layer runs only when
// the previous one failed: fence stripping, brace matching and a direct
// parse, re-escaping of stray quotes and control characters, and finally a
// per-field regex scan.
func ParseResponse(raw string, fields ...string) (map[string]string, error) {
	text := stripFences(raw)

	from := 0
	for range maxCandidates {
		start, candidate, ok := matchBracesFrom(text, from)
		if !ok {
			break
		}
		if out, err := decodeFields(candidate, fields); err == nil {
			return out, nil
		}
		if out, err := decodeFields(reescape(candidate), fields); err == nil {
			return out, nil
		}
		from = start + 1
	}

	if out := scanFields(text, fields); len(out) > 0 {
		return out, nil
	}
	return nil, ErrNoFields
}

// maxCandidates bounds how many '{' positions are tried as the object start.
const maxCandidates = 8

// stripFences removes markdown code-fence lines, keeping the content.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

// matchBraces returns the text from the first '{' to its structurally
// matching '}', skipping braces inside string literals.
func matchBraces(s string) (string, bool) {
	_, candidate, ok := matchBracesFrom(s, 0)
	return candidate, ok
}

// matchBracesFrom is matchBraces starting at the first '{' at or after from.
// A quote ends a string literal only where closesString says so, so stray
// quotes inside HTML values do not end the object early.
func matchBracesFrom(s string, from int) (int, string, bool) {
	if from >= len(s) {
		return 0, "", false
	}
	rel := strings.IndexByte(s[from:], '{')
	if rel < 0 {
		return 0, "", false
	}
	start := from + rel
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = !closesString(s, i+1)
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, s[start : i+1], true
			}
		}
	}
	return 0, "", false
}

// decodeFields parses candidate as a JSON object and returns the requested
// fields that carry a non-empty value.
func decodeFields(candidate string, fields []string) (map[string]string, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, eris.Wrap(err, "enrich: decode response")
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v := stringify(obj[f]); v != "" {
			out[f] = v
		}
	}
	if len(out) == 0 {
		return nil, ErrNoFields
	}
	return out, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprint(t)
	}
}

// reescape rewrites string literals so that quotes which do not terminate
// the literal are escaped and raw control characters become escapes. See
// closesString for when a quote terminates a literal.
func reescape(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			if closesString(s, i+1) {
				inString = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closesString reports whether a quote just before from ends a string
// literal: the next non-space character is ':', a ',' followed by the start
// of another value or a closer, or a '}' or ']' that is not itself followed
// by a quote.
func closesString(s string, from int) bool {
	j := skipSpace(s, from)
	if j >= len(s) {
		return true
	}
	switch s[j] {
	case ':':
		return true
	case '}', ']':
		k := skipSpace(s, j+1)
		return k >= len(s) || s[k] != '"'
	case ',':
		k := skipSpace(s, j+1)
		return k >= len(s) || startsValue(s[k:])
	}
	return false
}

func startsValue(s string) bool {
	switch c := s[0]; {
	case c == '"', c == '{', c == '[', c == '}', c == ']', c == '-', c >= '0' && c <= '9':
		return true
	}
	return strings.HasPrefix(s, "true") || strings.HasPrefix(s, "false") || strings.HasPrefix(s, "null")
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// scanFields extracts each field's string value by regex, tolerating
// multiline content and unescaped quotes. A value ends at the first quote
// followed by the next "key": marker, a partial key cut off by the end of
// input, a closing brace not followed by a quote, or end of input.
func scanFields(s string, fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		re := fieldPattern(f)
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if v := unescapeLoose(m[1]); v != "" {
			out[f] = v
		}
	}
	return out
}

func fieldPattern(field string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(field) + `"\s*:\s*"(.*?)"\s*` +
		`(?:,\s*"[A-Za-z_]+"\s*:|,\s*"[A-Za-z_]*$|,?\s*\}\s*(?:[^"\s]|$)|,?\s*$)`)
}

var looseEscapes = strings.NewReplacer(`\n`, "\n", `\r`, "", `\t`, "\t", `\"`, `"`, `\/`, "/", `\\`, `\`)

func unescapeLoose(v string) string {
	var s string
	if err := json.Unmarshal([]byte(`"`+v+`"`), &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(looseEscapes.Replace(v))
}
