package upsert

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/catalog"
	"github.com/sells-group/catalog-importer/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockProducts struct {
	mock.Mock
}

func (m *mockProducts) FindByHandle(ctx context.Context, handle string) (*model.CatalogProduct, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CatalogProduct), args.Error(1)
}

func (m *mockProducts) CreateProduct(ctx context.Context, p *model.MappedProduct) (*model.CatalogProduct, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CatalogProduct), args.Error(1)
}

func (m *mockProducts) UpdateProduct(ctx context.Context, id string, p *model.MappedProduct) (*model.CatalogProduct, error) {
	args := m.Called(ctx, id, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CatalogProduct), args.Error(1)
}

func (m *mockProducts) AssignCategories(ctx context.Context, productID string, categoryIDs []string) error {
	return m.Called(ctx, productID, categoryIDs).Error(0)
}

func product(handle string, categories ...string) *model.MappedProduct {
	return &model.MappedProduct{
		ExternalID:  handle,
		Title:       "Product " + handle,
		Handle:      handle,
		Status:      model.ProductDraft,
		Options:     []model.ProductOption{{Title: model.DefaultOptionTitle, Values: []string{model.DefaultOptionValue}}},
		Variants:    []model.ProductVariant{{Title: model.DefaultVariantTitle}},
		Metadata:    map[string]any{model.MetaExternalID: handle},
		CategoryIDs: categories,
	}
}

func TestUpsert_CreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemory()
	existing, err := store.CreateProduct(ctx, product("drill-b"))
	require.NoError(t, err)

	e := NewEngine(store, Options{ShippingProfileID: "sp_1"})
	res := e.Upsert(ctx, []*model.MappedProduct{product("drill-a", "c1"), product("drill-b", "c1")})

	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, res.Failed)

	b, err := store.FindByHandle(ctx, "drill-b")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, b.ID)
	assert.Equal(t, []string{"c1"}, b.CategoryIDs)
	assert.Equal(t, "sp_1", b.Metadata[MetaShippingProfileID])
	_, hasChannel := b.Metadata[MetaSalesChannelID]
	assert.False(t, hasChannel)
}

func TestUpsert_CategoriesAreUnioned(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemory()
	e := NewEngine(store, Options{})

	e.Upsert(ctx, []*model.MappedProduct{product("drill-a", "c1")})
	e.Upsert(ctx, []*model.MappedProduct{product("drill-a", "c2")})

	p, err := store.FindByHandle(ctx, "drill-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, p.CategoryIDs)
}

func TestUpsert_DuplicateOnCreateMovesToUpdate(t *testing.T) {
	ctx := context.Background()
	store := new(mockProducts)
	p := product("drill-a", "c1")

	store.On("FindByHandle", ctx, "drill-a").Return(nil, nil).Once()
	store.On("CreateProduct", ctx, p).Return(nil, eris.Wrap(catalog.ErrDuplicate, "catalog: insert product drill-a")).Once()
	store.On("FindByHandle", ctx, "drill-a").Return(&model.CatalogProduct{ID: "p9", Handle: "drill-a"}, nil).Once()
	store.On("UpdateProduct", ctx, "p9", p).Return(&model.CatalogProduct{ID: "p9", Handle: "drill-a"}, nil).Once()
	store.On("AssignCategories", ctx, "p9", []string{"c1"}).Return(nil).Once()

	item := NewEngine(store, Options{}).UpsertOne(ctx, p)
	assert.Equal(t, Updated, item.Outcome)
	assert.Equal(t, "p9", item.ProductID)
	assert.NoError(t, item.Err)
	store.AssertExpectations(t)
}

func TestUpsert_FailuresAreCounted(t *testing.T) {
	ctx := context.Background()
	store := new(mockProducts)
	bad := product("bad")
	good := product("good")

	store.On("FindByHandle", ctx, "bad").Return(nil, nil)
	store.On("FindByHandle", ctx, "good").Return(nil, nil)
	store.On("CreateProduct", ctx, bad).Return(nil, eris.New("check constraint violated"))
	store.On("CreateProduct", ctx, good).Return(&model.CatalogProduct{ID: "p1", Handle: "good"}, nil)

	res := NewEngine(store, Options{}).Upsert(ctx, []*model.MappedProduct{bad, good})
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Items, 2)
	assert.True(t, model.IsKind(res.Items[0].Err, model.KindUpsertFailed))
	store.AssertNotCalled(t, "AssignCategories", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpsert_AssignFailureKeepsWrite(t *testing.T) {
	ctx := context.Background()
	store := new(mockProducts)
	p := product("drill-a", "c1")

	store.On("FindByHandle", ctx, "drill-a").Return(nil, nil)
	store.On("CreateProduct", ctx, p).Return(&model.CatalogProduct{ID: "p1", Handle: "drill-a"}, nil)
	store.On("AssignCategories", ctx, "p1", []string{"c1"}).Return(eris.New("fk violation"))

	item := NewEngine(store, Options{}).UpsertOne(ctx, p)
	assert.Equal(t, Created, item.Outcome)
	assert.Error(t, item.Err)
}
