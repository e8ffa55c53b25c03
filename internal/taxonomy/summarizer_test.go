package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/feed"
	"github.com/sells-group/catalog-importer/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func records(t *testing.T, xml string) []feed.Record {
	t.Helper()
	doc, err := feed.Parse([]byte(xml))
	require.NoError(t, err)
	recs, err := feed.ExtractProducts(doc)
	require.NoError(t, err)
	return recs
}

const sampleFeed = `<offer><products>
	<product id="1"><category id="10" name="Drills"/><producer id="5" name="Acme"/></product>
	<product id="2"><category id="20" name="Saws"/><producer id="6" name="Bolt"/></product>
	<product id="3"><category id="20" name="Saws"/><producer id="5" name="Acme"/></product>
	<product id="4"><category id="30"/><producer id="7" name="Cog"/></product>
	<product id="5"><category id="10" name="Drills"/></product>
</products></offer>`

func TestSummarize(t *testing.T) {
	recs := records(t, sampleFeed)
	sum := Summarize(recs, nil)

	assert.Equal(t, len(recs), sum.TotalProducts)
	assert.Equal(t, []model.FacetCount{
		{ID: "10", Name: "Drills", Count: 2},
		{ID: "20", Name: "Saws", Count: 2},
	}, sum.Categories, "unresolved category 30 is dropped, ties keep first-seen order")
	assert.Equal(t, []model.FacetCount{
		{ID: "5", Name: "Acme", Count: 2},
		{ID: "6", Name: "Bolt", Count: 1},
		{ID: "7", Name: "Cog", Count: 1},
	}, sum.Brands)

	assert.Equal(t, []string{"10", "20"}, sum.BrandCategories["5"])
	assert.Equal(t, []string{"20"}, sum.BrandCategories["6"])
	assert.Equal(t, []string{"30"}, sum.BrandCategories["7"], "membership only needs ids")
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize(nil, nil)
	assert.Equal(t, 0, sum.TotalProducts)
	assert.Empty(t, sum.Categories)
	assert.Empty(t, sum.Brands)
	assert.NotNil(t, sum.BrandCategories)
}

func TestSummarizer_Incremental(t *testing.T) {
	recs := records(t, sampleFeed)
	s := NewSummarizer([]string{"pol"})
	for _, r := range recs {
		s.Add(r)
	}
	assert.Equal(t, Summarize(recs, []string{"pol"}), s.Summary())
}
