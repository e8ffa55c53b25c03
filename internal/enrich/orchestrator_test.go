package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-importer/internal/model"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Translate(ctx context.Context, text, targetLang string) (string, error) {
	args := m.Called(ctx, text, targetLang)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) TranslateTitle(ctx context.Context, title, brand, targetLang string) (string, error) {
	args := m.Called(ctx, title, brand, targetLang)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) GenerateMetaDescription(ctx context.Context, p ProductInput, originalText string) (*MetaDescription, error) {
	args := m.Called(ctx, p, originalText)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MetaDescription), args.Error(1)
}

func (m *mockProvider) OptimizeDescription(ctx context.Context, p ProductInput, originalText string) (*OptimizedDescription, error) {
	args := m.Called(ctx, p, originalText)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*OptimizedDescription), args.Error(1)
}

func (m *mockProvider) ExtractIncludedItems(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) ExtractTechnicalData(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) GenerateCategoryDescription(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

const originalHTML = `<p>Cordless drill for workshop use.</p><p><strong>W zestawie:</strong></p><ul><li>Wiertarka</li><li>Walizka</li></ul><h3>Dane techniczne</h3><ul><li>Napięcie: 18 V</li><li>Masa: 1,5 kg</li></ul>`

func testProduct() *model.MappedProduct {
	return &model.MappedProduct{
		ExternalID:         "DRILL-A",
		Title:              "Cordless drill DR-18",
		Description:        originalHTML,
		Handle:             "drill-a",
		CategorySourcePath: "Tools/Drills",
		Metadata:           map[string]any{model.MetaProducerName: "Acme"},
	}
}

func TestEnrich_AllStagesSucceed(t *testing.T) {
	prov := new(mockProvider)
	prov.On("TranslateTitle", mock.Anything, "Cordless drill DR-18", "Acme", "pol").Return("Wiertarka akumulatorowa DR-18", nil)
	prov.On("GenerateMetaDescription", mock.Anything, mock.MatchedBy(func(in ProductInput) bool {
		return in.Title == "Wiertarka akumulatorowa DR-18" && in.Brand == "Acme" && in.Category == "Tools/Drills"
	}), mock.Anything).Return(&MetaDescription{Title: "Wiertarka Acme DR-18", Description: "Opis meta"}, nil)
	prov.On("OptimizeDescription", mock.Anything, mock.MatchedBy(func(in ProductInput) bool {
		return in.MinWords == 100 && in.MaxWords == 200
	}), mock.Anything).Return(&OptimizedDescription{
		HTML:  `<h2>Wiertarka</h2><script>alert(1)</script><p>Opis</p>`,
		Short: "Krótki opis",
	}, nil)
	prov.On("ExtractIncludedItems", mock.Anything, mock.Anything).Return("<ul><li>Wiertarka</li><li>Walizka transportowa</li></ul>", nil)
	prov.On("ExtractTechnicalData", mock.Anything, mock.Anything).Return("<table><tr><th>Napięcie</th><td>18 V</td></tr></table>", nil)

	in := testProduct()
	res := NewOrchestrator(prov, "pol").Enrich(context.Background(), in, originalHTML)
	require.NotNil(t, res)
	out := res.Product
	require.NotNil(t, out)

	assert.Empty(t, res.Fallbacks)
	assert.Equal(t, "Wiertarka akumulatorowa DR-18", out.Title)
	assert.Equal(t, "<h2>Wiertarka</h2><p>Opis</p>", out.Description)
	assert.Equal(t, "Wiertarka Acme DR-18", out.MetaString(model.MetaSEOTitle))
	assert.Equal(t, "Opis meta", out.MetaString(model.MetaSEODescription))
	assert.Equal(t, "Krótki opis", out.MetaString(model.MetaShortDescription))
	assert.Equal(t, "<ul><li>Wiertarka</li><li>Walizka transportowa</li></ul>", out.MetaString(model.MetaIncludedItems))
	assert.Contains(t, out.MetaString(model.MetaTechnicalData), "18 V")

	// The input is not mutated.
	assert.Equal(t, "Cordless drill DR-18", in.Title)
	assert.Empty(t, in.MetaString(model.MetaSEOTitle))
	prov.AssertExpectations(t)
}

func TestEnrich_EveryStageFails(t *testing.T) {
	callErr := model.NewError(model.KindProviderCallFailed, "stage", errors.New("down"))
	prov := new(mockProvider)
	prov.On("TranslateTitle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", callErr)
	prov.On("GenerateMetaDescription", mock.Anything, mock.Anything, mock.Anything).Return(nil, callErr)
	prov.On("OptimizeDescription", mock.Anything, mock.Anything, mock.Anything).Return(nil, callErr)
	prov.On("ExtractIncludedItems", mock.Anything, mock.Anything).Return("", callErr)
	prov.On("ExtractTechnicalData", mock.Anything, mock.Anything).Return("", callErr)

	res := NewOrchestrator(prov, "pol").Enrich(context.Background(), testProduct(), originalHTML)
	out := res.Product

	assert.Equal(t, "Cordless drill DR-18", out.Title)
	assert.Equal(t, originalHTML, out.Description)
	assert.Equal(t, "Cordless drill DR-18", out.MetaString(model.MetaSEOTitle))
	assert.Equal(t, "Cordless drill for workshop use.", out.MetaString(model.MetaSEODescription))
	assert.Equal(t, "<ul><li>Wiertarka</li><li>Walizka</li></ul>", out.MetaString(model.MetaIncludedItems))
	assert.Equal(t, "<table><tbody><tr><th>Napięcie</th><td>18 V</td></tr><tr><th>Masa</th><td>1,5 kg</td></tr></tbody></table>", out.MetaString(model.MetaTechnicalData))
	assert.ElementsMatch(t, []string{
		StageTranslateTitle, StageMetaDescription, StageOptimizeDescription, StageIncludedItems, StageTechnicalData,
	}, res.Fallbacks)
}

func TestEnrich_MissingOptimizeResponseKeepsOriginal(t *testing.T) {
	p := NewTextProvider(completerFunc(func(_ context.Context, req CompletionRequest) (string, error) {
		if req.Stage == StageOptimizeDescription {
			return "", nil
		}
		return "null", nil
	}), testConfig())

	res := NewOrchestrator(p, "pol").Enrich(context.Background(), testProduct(), originalHTML)
	assert.Equal(t, originalHTML, res.Product.Description)
	assert.NotEmpty(t, res.Product.Description)
	assert.Contains(t, res.Fallbacks, StageOptimizeDescription)
}

func TestEnrich_SentinelAndShortFragmentsUseLocal(t *testing.T) {
	prov := new(mockProvider)
	prov.On("TranslateTitle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("Wiertarka", nil)
	prov.On("GenerateMetaDescription", mock.Anything, mock.Anything, mock.Anything).Return(&MetaDescription{Title: "T", Description: "D"}, nil)
	prov.On("OptimizeDescription", mock.Anything, mock.Anything, mock.Anything).Return(&OptimizedDescription{HTML: "<p>x</p>"}, nil)
	prov.On("ExtractIncludedItems", mock.Anything, mock.Anything).Return(NullSentinel, nil)
	prov.On("ExtractTechnicalData", mock.Anything, mock.Anything).Return("<p>x</p>", nil)

	res := NewOrchestrator(prov, "pol").Enrich(context.Background(), testProduct(), originalHTML)
	assert.Equal(t, "<ul><li>Wiertarka</li><li>Walizka</li></ul>", res.Product.MetaString(model.MetaIncludedItems))
	assert.Contains(t, res.Product.MetaString(model.MetaTechnicalData), "<th>Masa</th>")
	assert.Equal(t, []string{StageIncludedItems, StageTechnicalData}, res.Fallbacks)
}

func TestEnrich_Passthrough(t *testing.T) {
	res := NewOrchestrator(Passthrough{}, "pol").Enrich(context.Background(), testProduct(), originalHTML)
	out := res.Product

	assert.Equal(t, "Cordless drill DR-18", out.Title)
	assert.Equal(t, originalHTML, out.Description)
	assert.NotEmpty(t, out.MetaString(model.MetaSEOTitle))
	assert.NotEmpty(t, out.MetaString(model.MetaIncludedItems))
}

func TestEnrich_MetaClamped(t *testing.T) {
	long := "Wiertarka akumulatorowa Acme DR-18 z dwoma akumulatorami i ładowarką w walizce"
	prov := new(mockProvider)
	prov.On("TranslateTitle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("Wiertarka", nil)
	prov.On("GenerateMetaDescription", mock.Anything, mock.Anything, mock.Anything).Return(&MetaDescription{Title: long, Description: long + long + long}, nil)
	prov.On("OptimizeDescription", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("x"))
	prov.On("ExtractIncludedItems", mock.Anything, mock.Anything).Return(NullSentinel, nil)
	prov.On("ExtractTechnicalData", mock.Anything, mock.Anything).Return(NullSentinel, nil)

	out := NewOrchestrator(prov, "pol").Enrich(context.Background(), testProduct(), originalHTML).Product
	assert.LessOrEqual(t, len([]rune(out.MetaString(model.MetaSEOTitle))), MetaTitleMax)
	assert.LessOrEqual(t, len([]rune(out.MetaString(model.MetaSEODescription))), MetaDescriptionMax)
}

func TestTranslatePath_UsesCache(t *testing.T) {
	prov := new(mockProvider)
	prov.On("Translate", mock.Anything, "Tools", "pol").Return("Narzędzia", nil).Once()
	prov.On("Translate", mock.Anything, "Drills", "pol").Return("Wiertarki", nil).Once()
	prov.On("Translate", mock.Anything, "Saws", "pol").Return("", errors.New("down")).Once()

	o := NewOrchestrator(prov, "pol")
	cache := TranslationCache{}
	assert.Equal(t, "Narzędzia/Wiertarki", o.TranslatePath(context.Background(), "Tools/Drills", cache))
	assert.Equal(t, "Narzędzia/Saws", o.TranslatePath(context.Background(), "Tools/ Saws", cache))
	assert.Equal(t, "Narzędzia/Wiertarki", o.TranslatePath(context.Background(), "Tools/Drills", cache))
	prov.AssertExpectations(t)
}

func TestDescribeCategory(t *testing.T) {
	prov := new(mockProvider)
	prov.On("GenerateCategoryDescription", mock.Anything, "Narzędzia").Return("<b>Narzędzia</b> dla fachowców.", nil)
	prov.On("GenerateCategoryDescription", mock.Anything, "Inne").Return("", errors.New("down"))

	o := NewOrchestrator(prov, "pol")
	assert.Equal(t, "Narzędzia dla fachowców.", o.DescribeCategory(context.Background(), "Narzędzia"))
	assert.Empty(t, o.DescribeCategory(context.Background(), "Inne"))
}
