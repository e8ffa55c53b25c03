package catalog

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-importer/internal/model"
)

func newMockPostgres(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgres(mock), mock
}

// argsThen returns leading followed by AnyArg up to n arguments.
func argsThen(n int, leading ...any) []any {
	out := make([]any, n)
	copy(out, leading)
	for i := len(leading); i < n; i++ {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func testMapped() *model.MappedProduct {
	return &model.MappedProduct{
		ExternalID: "77",
		Title:      "Drill",
		Handle:     "drill-77",
		Status:     model.ProductDraft,
		Options:    []model.ProductOption{{Title: model.DefaultOptionTitle, Values: []string{model.DefaultOptionValue}}},
		Variants: []model.ProductVariant{{
			Title:   model.DefaultVariantTitle,
			SKU:     "DR-77",
			Options: map[string]string{model.DefaultOptionTitle: model.DefaultOptionValue},
			Prices:  []model.Price{{Amount: 11.79, CurrencyCode: "pln"}},
		}},
		Metadata: map[string]any{model.MetaExternalID: "77"},
	}
}

func TestFindByHandle_NotFound(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectQuery(`FROM products p WHERE p.handle = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	p, err := s.FindByHandle(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByHandle_Found(t *testing.T) {
	s, mock := newMockPostgres(t)
	rows := pgxmock.NewRows([]string{"id", "handle", "title", "metadata", "categories", "variants"}).
		AddRow("p1", "drill-77", "Drill", []byte(`{"external_id":"77"}`), []string{"c1"}, []string{"v1"})
	mock.ExpectQuery(`FROM products p WHERE p.handle = \$1`).WithArgs("drill-77").WillReturnRows(rows)

	p, err := s.FindByHandle(context.Background(), "drill-77")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, []string{"c1"}, p.CategoryIDs)
	assert.Equal(t, []string{"v1"}, p.VariantIDs)
	assert.Equal(t, "77", p.Metadata["external_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProduct(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO products`).
		WithArgs(argsThen(17, pgxmock.AnyArg(), "drill-77", "Drill", "", "draft")...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`(?s)INSERT INTO product_variants .* ON CONFLICT \(product_id, title\)`).
		WithArgs(argsThen(12, pgxmock.AnyArg(), pgxmock.AnyArg(), model.DefaultVariantTitle, "DR-77")...).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("v1"))
	mock.ExpectCommit()

	p, err := s.CreateProduct(context.Background(), testMapped())
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "drill-77", p.Handle)
	assert.Equal(t, []string{"v1"}, p.VariantIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProduct_DuplicateHandle(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO products`).
		WithArgs(argsThen(17, pgxmock.AnyArg(), "drill-77")...).
		WillReturnError(uniqueViolation())
	mock.ExpectRollback()

	_, err := s.CreateProduct(context.Background(), testMapped())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProduct(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE products SET .* metadata = metadata \|\| \$15`).
		WithArgs(argsThen(16, "p1", "Drill", "", "draft")...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO product_variants`).
		WithArgs(argsThen(12, pgxmock.AnyArg(), "p1", model.DefaultVariantTitle, "DR-77")...).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("v1"))
	mock.ExpectCommit()

	p, err := s.UpdateProduct(context.Background(), "p1", testMapped())
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProduct_NotFound(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE products`).
		WithArgs(argsThen(16, "gone", "Drill")...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := s.UpdateProduct(context.Background(), "gone", testMapped())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignCategories(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(`(?s)INSERT INTO product_categories .* ON CONFLICT DO NOTHING`).
		WithArgs("p1", []string{"c1", "c2"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	require.NoError(t, s.AssignCategories(context.Background(), "p1", []string{"c1", "c2"}))
	require.NoError(t, s.AssignCategories(context.Background(), "p1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateVariantPrices(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(`UPDATE product_variants SET prices = \$2, metadata = metadata \|\| \$3`).
		WithArgs(argsThen(5, "p1")...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := s.UpdateVariantPrices(context.Background(), "p1", model.Price{Amount: 11.79, CurrencyCode: "pln"}, nil,
		map[string]any{model.MetaRecommendedNet: 11.79})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCategory(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO categories`).
		WithArgs(pgxmock.AnyArg(), "Wiertarki", "wiertarki", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	c, err := s.CreateCategory(context.Background(), "Wiertarki", "root")
	require.NoError(t, err)
	assert.Equal(t, "root", c.ParentID)
	assert.Equal(t, "wiertarki", c.Handle)

	mock.ExpectExec(`INSERT INTO categories`).
		WithArgs(argsThen(5, pgxmock.AnyArg(), "Wiertarki", "wiertarki")...).
		WillReturnError(uniqueViolation())
	_, err = s.CreateCategory(context.Background(), "Wiertarki", "root")
	assert.True(t, eris.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

var matchCols = []string{"id", "name", "handle", "parent_id", "eid", "category_id", "eparent", "source_name", "source_key", "external_id", "seo"}

func TestFindCategoryBySourceKey(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectQuery(`WHERE e.source_key = \$1 AND COALESCE\(c.parent_id, ''\) = \$2`).
		WithArgs("drills", "root").
		WillReturnRows(pgxmock.NewRows(matchCols).
			AddRow("c1", "Wiertarki", "wiertarki", "root", "e1", "c1", "root", "Drills", "drills", "", ""))

	m, err := s.FindCategoryBySourceKey(context.Background(), "drills", "root")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "c1", m.Category.ID)
	assert.Equal(t, "Drills", m.Extension.SourceName)

	mock.ExpectQuery(`WHERE e.source_key`).WithArgs("saws", "root").WillReturnError(pgx.ErrNoRows)
	m, err = s.FindCategoryBySourceKey(context.Background(), "saws", "root")
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCategoriesByExternalID(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectQuery(`WHERE e.external_id = \$1`).
		WithArgs("10").
		WillReturnRows(pgxmock.NewRows(matchCols).
			AddRow("c1", "Wiertarki", "wiertarki", "root", "e1", "c1", "root", "Drills", "drills", "10", "").
			AddRow("c9", "Wiertarki", "wiertarki", "other", "e9", "c9", "other", "Drills", "drills", "10", ""))

	out, err := s.FindCategoriesByExternalID(context.Background(), "10")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "other", out[1].Category.ParentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtensions(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO category_extensions`).
		WithArgs(pgxmock.AnyArg(), "c1", "", "Drills", "drills", "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE category_extensions SET`).
		WithArgs(pgxmock.AnyArg(), "Drills", "10", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE category_extensions SET`).
		WithArgs("gone", "", "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ext := &model.CategoryExtension{CategoryID: "c1", SourceName: "Drills", SourceKey: "drills"}
	require.NoError(t, s.CreateExtension(context.Background(), ext))
	assert.NotEmpty(t, ext.ID)

	ext.ExternalID = "10"
	require.NoError(t, s.UpdateExtension(context.Background(), ext))
	assert.Error(t, s.UpdateExtension(context.Background(), &model.CategoryExtension{ID: "gone"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceKey(t *testing.T) {
	assert.Equal(t, "hand tools", SourceKey("  Hand \t Tools "))
}
