package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractIncludedItemsLocal(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "heading then list",
			html: `<p>Opis.</p><p><strong>W zestawie:</strong></p><ul><li>Wiertarka</li><li>2x akumulator</li></ul><p>Gwarancja 2 lata</p>`,
			want: "<ul><li>Wiertarka</li><li>2x akumulator</li></ul>",
		},
		{
			name: "inline after colon",
			html: `<p>W zestawie: wiertarka, walizka; instrukcja.</p>`,
			want: "<ul><li>wiertarka</li><li>walizka</li><li>instrukcja</li></ul>",
		},
		{
			name: "english heading",
			html: `<h3>In the box</h3><ul><li>Drill and case</li></ul>`,
			want: "<ul><li>Drill and case</li></ul>",
		},
		{
			name: "no section",
			html: `<p>W zestawie znajduje się wiertarka.</p>`,
			want: "",
		},
		{
			name: "empty",
			html: "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractIncludedItemsLocal(tt.html))
		})
	}
}

func TestExtractTechnicalDataLocal(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "html table",
			html: `<table><tr><td>Napięcie</td><td>18 V</td></tr><tr><th>Masa</th><td><b>1,5</b> kg</td></tr></table>`,
			want: "<table><tbody><tr><th>Napięcie</th><td>18 V</td></tr><tr><th>Masa</th><td>1,5 kg</td></tr></tbody></table>",
		},
		{
			name: "heading with pairs",
			html: `<h3>Dane techniczne</h3><ul><li>Napięcie: 18 V</li><li>Moc: 500 W</li></ul><p>Inne</p>`,
			want: "<table><tbody><tr><th>Napięcie</th><td>18 V</td></tr><tr><th>Moc</th><td>500 W</td></tr></tbody></table>",
		},
		{
			name: "single row is not a table",
			html: `<h3>Specyfikacja</h3><p>Moc: 500 W</p>`,
			want: "",
		},
		{
			name: "no section",
			html: `<p>Solidna wiertarka.</p>`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTechnicalDataLocal(tt.html))
		})
	}
}
