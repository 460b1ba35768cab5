// Package dialect holds per-dialect rules: pagination syntax,
// bind-variable rewriting, identifier quoting, example queries, and
// reserved keywords. One interface, a shared base with common defaults,
// and concrete profiles overriding what differs.
package dialect

import (
	"fmt"
	"regexp"

	"github.com/nlq-sql/queryengine/pkg/model"
)

// ExamplePair is one Q→SQL pair used to ground the generator's prompt.
type ExamplePair struct {
	Question string
	SQL      string
}

// BindRewrite describes how to find and rewrite dialect-specific bind
// variables the model may emit (e.g. Oracle's `:NAME`) into literals.
type BindRewrite struct {
	Pattern *regexp.Regexp
	Rewrite func(name string) string
}

// Profile is a value object per supported dialect.
type Profile interface {
	Name() model.Dialect
	PaginationClause(n int) string
	ExampleQueries() []ExamplePair
	BindVariableShape() BindRewrite
	DocumentationBlob() string
	TranspileTargetName() string
	ReservedKeywords() []string
}

// base holds the defaults every concrete profile starts from.
type base struct {
	name     model.Dialect
	keywords []string
}

func (b base) Name() model.Dialect        { return b.name }
func (b base) ReservedKeywords() []string { return b.keywords }

var registry = map[model.Dialect]func() Profile{
	model.DialectPostgres: newPostgres,
	model.DialectOracle:   newOracle,
}

// Register adds (or replaces) a dialect constructor. New dialects are
// additive: implement Profile, call Register in an init(), done.
func Register(name model.Dialect, ctor func() Profile) {
	registry[name] = ctor
}

// New constructs a Profile by exact name match. Unknown dialects fail
// construction.
func New(name model.Dialect) (Profile, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("dialect: unknown dialect %q", name)
	}
	return ctor(), nil
}
