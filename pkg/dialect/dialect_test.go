package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlq-sql/queryengine/pkg/model"
)

func TestNew_UnknownDialectFails(t *testing.T) {
	_, err := New(model.Dialect("mysql"))
	require.Error(t, err)
}

func TestNew_KnownDialectsConstruct(t *testing.T) {
	for _, d := range []model.Dialect{model.DialectPostgres, model.DialectOracle} {
		p, err := New(d)
		require.NoError(t, err)
		assert.Equal(t, d, p.Name())
	}
}

func TestPostgresPagination(t *testing.T) {
	p, _ := New(model.DialectPostgres)
	assert.Equal(t, "LIMIT 10", p.PaginationClause(10))
}

func TestOraclePagination(t *testing.T) {
	p, _ := New(model.DialectOracle)
	assert.Equal(t, "FETCH FIRST 10 ROWS ONLY", p.PaginationClause(10))
}

func TestPostgresBindShapeIsNoOp(t *testing.T) {
	p, _ := New(model.DialectPostgres)
	rw := p.BindVariableShape()
	assert.Nil(t, rw.Pattern)
}

func TestOracleBindRewrite(t *testing.T) {
	p, _ := New(model.DialectOracle)
	rw := p.BindVariableShape()
	got := rw.Pattern.ReplaceAllStringFunc(":NAME and :other", func(m string) string {
		name := rw.Pattern.FindStringSubmatch(m)[1]
		return rw.Rewrite(name)
	})
	assert.Equal(t, "'NAME' and 'other'", got)
}

func TestExampleQueriesNonEmpty(t *testing.T) {
	for _, d := range []model.Dialect{model.DialectPostgres, model.DialectOracle} {
		p, _ := New(d)
		assert.NotEmpty(t, p.ExampleQueries())
		assert.NotEmpty(t, p.DocumentationBlob())
		assert.NotEmpty(t, p.TranspileTargetName())
	}
}
