package enrich

import (
	"html"
	"regexp"
	"strings"
)

var (
	includedHeading  = regexp.MustCompile(`(?i)^(w zestawie|zestaw zawiera|zawarto[śs][ćc] zestawu|zawarto[śs][ćc] opakowania|w komplecie|included|in the box|package contents|scope of delivery|lieferumfang)\s*(?::\s*(.*))?$`)
	technicalHeading = regexp.MustCompile(`(?i)^(dane techniczne|specyfikacja( techniczna)?|parametry( techniczne)?|specifications?|technical (data|specifications)|technische daten)\s*:?\s*$`)
	listItem         = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)])\s+(.+)$`)
	keyValue         = regexp.MustCompile(`^\s*(?:[-*+•]\s+)?([^:|]{2,60}?)\s*:\s+(.+)$`)
	htmlRow          = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	htmlCell         = regexp.MustCompile(`(?is)<t[dh][^>]*>(.*?)</t[dh]>`)
	htmlTag          = regexp.MustCompile(`(?s)<[^>]+>`)
	markdownMarks    = strings.NewReplacer("**", "", "__", "", "`", "")
)

// minFragmentLen is the shortest provider fragment accepted as a real section.
const minFragmentLen = 20

// ExtractIncludedItemsLocal finds an "included items" heading in an HTML
// description and returns the items that follow it as an HTML list, or "".
func ExtractIncludedItemsLocal(description string) string {
	lines := markdownLines(description)
	for i, line := range lines {
		m := includedHeading.FindStringSubmatch(headingText(line))
		if m == nil {
			continue
		}
		var items []string
		if inline := strings.TrimSpace(m[2]); inline != "" {
			items = splitInline(inline)
		} else {
			items = collectList(lines[i+1:])
		}
		if len(items) > 0 {
			return renderList(items)
		}
	}
	return ""
}

// ExtractTechnicalDataLocal returns an HTML specifications table built from
// a two-column table in the description, or from "name: value" lines
// following a specifications heading. It returns "" when fewer than two
// rows are found.
func ExtractTechnicalDataLocal(description string) string {
	if rows := tableRows(description); len(rows) >= 2 {
		return renderTable(rows)
	}
	lines := markdownLines(description)
	for i, line := range lines {
		if !technicalHeading.MatchString(headingText(line)) {
			continue
		}
		if rows := collectPairs(lines[i+1:]); len(rows) >= 2 {
			return renderTable(rows)
		}
	}
	return ""
}

func markdownLines(description string) []string {
	return strings.Split(ToMarkdown(description), "\n")
}

// headingText strips markdown heading and emphasis markers from a line.
func headingText(line string) string {
	line = strings.TrimLeft(strings.TrimSpace(line), "# ")
	return strings.TrimSpace(markdownMarks.Replace(line))
}

func splitInline(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if p := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ".")); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// collectList gathers list items following a heading. Blank lines are
// skipped; the first other line ends the list.
func collectList(lines []string) []string {
	var items []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := listItem.FindStringSubmatch(line)
		if m == nil {
			break
		}
		items = append(items, strings.TrimSpace(markdownMarks.Replace(m[1])))
	}
	return items
}

func collectPairs(lines []string) [][2]string {
	var rows [][2]string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := keyValue.FindStringSubmatch(markdownMarks.Replace(line))
		if m == nil {
			break
		}
		rows = append(rows, [2]string{strings.TrimSpace(m[1]), strings.TrimSpace(m[2])})
	}
	return rows
}

func tableRows(description string) [][2]string {
	var rows [][2]string
	for _, row := range htmlRow.FindAllStringSubmatch(description, -1) {
		cells := htmlCell.FindAllStringSubmatch(row[1], -1)
		if len(cells) < 2 {
			continue
		}
		k := cellText(cells[0][1])
		v := cellText(cells[1][1])
		if k != "" && v != "" {
			rows = append(rows, [2]string{k, v})
		}
	}
	return rows
}

func cellText(s string) string {
	s = htmlTag.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

func renderList(items []string) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, it := range items {
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(it))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

func renderTable(rows [][2]string) string {
	var b strings.Builder
	b.WriteString("<table><tbody>")
	for _, r := range rows {
		b.WriteString("<tr><th>")
		b.WriteString(html.EscapeString(r[0]))
		b.WriteString("</th><td>")
		b.WriteString(html.EscapeString(r[1]))
		b.WriteString("</td></tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}
