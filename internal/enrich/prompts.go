package enrich

import "github.com/sells-group/catalog-importer/internal/feed"

const translatorSystem = `You are a professional e-commerce translator. You translate product data for an online shop faithfully and concisely. You never add commentary, explanations or quotation marks around the answer.`

const copywriterSystem = `You are an expert e-commerce copywriter and SEO specialist writing product pages for an online tools and hardware shop. You write natural, accurate copy and never invent technical facts that are not in the source material. When asked for JSON you return exactly one valid JSON object and nothing else.`

const extractorSystem = `You extract sections from product descriptions and return clean HTML fragments. If the requested section is not present you answer with the single word null.`

const translatePrompt = `Translate the following text into %s.

Text:
%s

Return ONLY the translation.`

const translateTitlePrompt = `Translate this product title into %s.

Title: %s
Brand: %s

Requirements:
- Keep the brand name and every model number, code and unit exactly as written
- Keep it a product title, not a sentence
- Do not add words that are not in the original

Return ONLY the translated title.`

const metaDescriptionPrompt = `Write SEO metadata in %s for this product.

Product title: %s
Brand: %s
Category: %s

Original description:
%s

Requirements:
- meta_title: 50-60 characters, include the product type and brand
- meta_description: 150-180 characters, highlight the key benefit, end with a call to action
- Use only facts from the title and description

Return a JSON object:
{"meta_title": "...", "meta_description": "..."}`

const optimizeDescriptionPrompt = `Rewrite this product description in %s as an SEO-structured HTML product page body.

Product title: %s
Brand: %s
Category: %s

Original description:
%s

Requirements:
- description: %d-%d words of HTML using <h2>, <h3>, <p>, <ul> and <li> only
- Start with a short introduction, then features and typical uses
- Keep every technical value, model number and unit exactly as in the original
- Do not include a list of included items or a specifications table
- short_description: one or two sentences (max 300 characters) for listing cards, plain text

Return a JSON object:
{"description": "...", "short_description": "..."}`

const includedItemsPrompt = `From the product description below, extract the list of items included in the package (what the buyer receives in the box).

Description:
%s

Requirements:
- Translate the items into %s
- Return an HTML <ul> list with one <li> per item, including quantities
- If the description does not list included items, answer exactly: null

Return ONLY the HTML list or null.`

const technicalDataPrompt = `From the product description below, extract the technical specifications.

Description:
%s

Requirements:
- Translate parameter names into %s, keep values and units unchanged
- Return an HTML <table> with one <tr> per parameter: <th>name</th><td>value</td>
- If the description has no technical specifications, answer exactly: null

Return ONLY the HTML table or null.`

const categoryDescriptionPrompt = `Write a short SEO description in %s for the shop category below.

Category path: %s

Requirements:
- 1-2 sentences, 120-200 characters
- Describe what products the category contains and who they are for
- Plain text, no HTML

Return ONLY the description.`

var languageNames = map[string]string{
	"pol": "Polish",
	"eng": "English",
	"ger": "German",
	"fre": "French",
	"cze": "Czech",
	"slo": "Slovak",
	"ukr": "Ukrainian",
}

// LanguageName returns the English name of a language code for prompts.
func LanguageName(code string) string {
	code = feed.NormalizeLang(code)
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
