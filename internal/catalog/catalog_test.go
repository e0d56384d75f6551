package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/database"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/sqlguard"
)

func TestDescribe(t *testing.T) {
	policy := sqlguard.DefaultPolicy()
	policy.KAnonymity = 30
	desc := Default(policy).Describe()

	assert.Contains(t, desc, "Table: credit_train")
	assert.Contains(t, desc, `"UF": VARCHAR(2)`)
	assert.Contains(t, desc, `"TARGET": SMALLINT`)
	assert.Contains(t, desc, "HAVING COUNT(*) >= 30")
	assert.Contains(t, desc, "double quotes")
	assert.Contains(t, desc, `default_rate = AVG("TARGET")`)
	assert.NotContains(t, desc, "Additional context")
	assert.NotContains(t, desc, "DATE_TRUNC")
}

func TestExamples(t *testing.T) {
	c := Default(sqlguard.DefaultPolicy())

	all := c.Examples(0)
	require.Len(t, all, 5)
	assert.Len(t, c.Examples(2), 2)
	assert.Len(t, c.Examples(99), 5)

	for _, ex := range all {
		assert.NotEmpty(t, ex.Question)
		assert.True(t, strings.HasPrefix(ex.SQL, "SELECT"), ex.SQL)
	}
	assert.Contains(t, all[0].SQL, "HAVING COUNT(*) >= 20")

	// Callers cannot mutate the catalog through the returned slice.
	all[0].SQL = "DROP TABLE x"
	assert.NotEqual(t, "DROP TABLE x", c.Examples(1)[0].SQL)
}

func TestWithContext(t *testing.T) {
	base := Default(sqlguard.DefaultPolicy())
	extended := base.WithContext("CLASSE_SOCIAL values are lower case.")

	assert.Contains(t, extended.Describe(), "Additional context:\nCLASSE_SOCIAL values are lower case.")
	assert.Empty(t, base.Context)

	twice := extended.WithContext("REF_DATE is always the first of the month.")
	assert.Equal(t, "CLASSE_SOCIAL values are lower case.\nREF_DATE is always the first of the month.", twice.Context)
}

func TestFindMetricAndDimension(t *testing.T) {
	c := Default(sqlguard.DefaultPolicy())

	m, ok := c.FindMetric("Qual a taxa de inadimplência por estado?")
	require.True(t, ok)
	assert.Equal(t, `AVG("TARGET")`, m.SQL)

	d, ok := c.FindDimension("Qual a taxa de inadimplência por estado?")
	require.True(t, ok)
	assert.Equal(t, "UF", d.Column)
	assert.Len(t, d.ValidValues, 27)

	_, ok = c.FindMetric("something unrelated")
	assert.False(t, ok)
}

type fakeSource struct {
	columns []database.ColumnInfo
	meta    map[string]*database.ColumnMetadata
	listErr error
	metaErr error
}

func (f *fakeSource) ListColumns(_ context.Context, _ string) ([]database.ColumnInfo, error) {
	return f.columns, f.listErr
}

func (f *fakeSource) GetColumnMetadata(_ context.Context, _ string, column string) (*database.ColumnMetadata, error) {
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	return f.meta[column], nil
}

func TestIntrospect(t *testing.T) {
	base := Default(sqlguard.DefaultPolicy())
	src := &fakeSource{
		columns: []database.ColumnInfo{
			{Name: "UF", DataType: "character varying"},
			{Name: "RENDA", DataType: "numeric"},
		},
		meta: map[string]*database.ColumnMetadata{
			"UF":    {DistinctCount: 27, NullCount: 0, ExampleValues: []string{"SP", "RJ"}},
			"RENDA": {DistinctCount: -1, NullCount: 4},
		},
	}

	got, err := base.Introspect(context.Background(), src, "credit_train")
	require.NoError(t, err)

	desc := got.Describe()
	assert.Contains(t, desc, `"UF": CHARACTER VARYING - Brazilian federative unit (state) (27 distinct, 0 null, e.g. SP, RJ)`)
	assert.Contains(t, desc, `"RENDA": NUMERIC -  (4 null)`)
	assert.Len(t, got.Columns, len(base.Columns)+1)

	// The original catalog is untouched.
	assert.Equal(t, "VARCHAR(2)", base.Columns[5].Type)
	assert.Empty(t, base.Columns[5].Profile)
}

func TestIntrospectErrors(t *testing.T) {
	base := Default(sqlguard.DefaultPolicy())

	_, err := base.Introspect(context.Background(), &fakeSource{listErr: errors.New("boom")}, "credit_train")
	assert.ErrorContains(t, err, "failed to list columns for credit_train")

	_, err = base.Introspect(context.Background(), &fakeSource{}, "missing")
	assert.ErrorContains(t, err, "has no columns")

	_, err = base.Introspect(context.Background(), &fakeSource{
		columns: []database.ColumnInfo{{Name: "UF", DataType: "text"}},
		metaErr: errors.New("permission denied"),
	}, "credit_train")
	assert.ErrorContains(t, err, "failed to profile credit_train.UF")
}
