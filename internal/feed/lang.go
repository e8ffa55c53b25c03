package feed

import "strings"

// langAliases maps two-letter codes onto the three-letter tags feeds use.
var langAliases = map[string]string{
	"en": "eng",
	"pl": "pol",
	"de": "ger",
	"deu": "ger",
	"fr": "fre",
	"fra": "fre",
	"cs": "cze",
	"ces": "cze",
	"sk": "slo",
	"slk": "slo",
	"uk": "ukr",
}

// NormalizeLang lowercases a language tag and resolves known aliases.
func NormalizeLang(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if alias, ok := langAliases[l]; ok {
		return alias
	}
	return l
}

func langOf(n *Node) string {
	v, _ := n.Attr("lang")
	return NormalizeLang(v)
}

// ExtractByLang returns the variant tagged with lang, or the first variant
// when none matches. Untagged single-language entries are common, so the
// fallback is deliberate. Returns nil only for an empty list.
func ExtractByLang(items []*Node, lang string) *Node {
	if len(items) == 0 {
		return nil
	}
	want := NormalizeLang(lang)
	for _, it := range items {
		if langOf(it) == want {
			return it
		}
	}
	return items[0]
}

// ExtractByLangs tries each preferred language in order before falling
// back to the first variant that carries any text.
func ExtractByLangs(items []*Node, langs []string) *Node {
	if len(items) == 0 {
		return nil
	}
	for _, lang := range langs {
		want := NormalizeLang(lang)
		for _, it := range items {
			if langOf(it) == want && TextOf(it) != "" {
				return it
			}
		}
	}
	for _, it := range items {
		if TextOf(it) != "" {
			return it
		}
	}
	return items[0]
}

// Localized is an accessor over the language variants stored under a child name.
func Localized(child string, langs []string) Accessor {
	return func(n *Node) (string, bool) {
		v := TextOf(ExtractByLangs(n.ChildrenNamed(child), langs))
		return v, v != ""
	}
}
