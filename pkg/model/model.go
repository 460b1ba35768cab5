// Package model defines the data types shared across the query pipeline:
// connection identity, schema snapshots, SQL queries and results, chart
// specifications, and process flows. Types here are immutable once
// constructed — callers never mutate a returned value in place.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Dialect identifies a supported SQL dialect.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectOracle   Dialect = "oracle"
)

// ConnectionConfig identifies a live relational connection. Credentials are
// opaque to the pipeline — they're handed to the dialect-specific driver and
// never logged or included in the fingerprint's inputs beyond the username.
type ConnectionConfig struct {
	Dialect     Dialect
	Host        string
	Port        int
	Database    string
	Schema      string
	User        string
	Credentials string // opaque secret (password, token, ...); excluded from String()
}

// Fingerprint returns the stable identity hash of this connection. It
// partitions indices, caches, and pools — two ConnectionConfigs that differ
// only in Credentials still share a fingerprint.
func (c ConnectionConfig) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s|%s|%s", c.Dialect, c.Host, c.Port, c.Database, c.Schema, c.User)
	return hex.EncodeToString(h.Sum(nil))
}

func (c ConnectionConfig) String() string {
	return fmt.Sprintf("%s://%s@%s:%d/%s?schema=%s", c.Dialect, c.User, c.Host, c.Port, c.Database, c.Schema)
}

// SemanticType is the dialect-normalized type of a column.
type SemanticType string

const (
	TypeInteger   SemanticType = "integer"
	TypeDecimal   SemanticType = "decimal"
	TypeText      SemanticType = "text"
	TypeTimestamp SemanticType = "timestamp"
	TypeBoolean   SemanticType = "boolean"
	TypeJSON      SemanticType = "json"
	TypeBinary    SemanticType = "binary"
)

// Column describes one table column.
type Column struct {
	Name     string
	DataType SemanticType
	Nullable bool
	IsPK     bool
	IsFK     bool
	Comment  string
}

// ForeignKey is a single-column foreign key entry. Multi-column FKs are
// decomposed into one ForeignKey per column plus CompositeGroup identifying
// the composite they belong to (empty for simple FKs).
type ForeignKey struct {
	Column         string
	RefTable       string
	RefColumn      string
	CompositeGroup string
}

// Table is one table (or view) in a SchemaSnapshot.
type Table struct {
	Name        string
	Comment     string
	Columns     []Column // declared order
	PrimaryKey  []string // ordered, per declaration
	ForeignKeys []ForeignKey
}

// Column looks up a column by name, or returns (zero, false).
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// SchemaSnapshot is an immutable structural description of a database
// schema at a point in time. Equality is structural (see Equal).
type SchemaSnapshot struct {
	FetchedAt time.Time
	Tables    []Table // ordered
}

// Table looks up a table by name, or returns (zero, false).
func (s SchemaSnapshot) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Hash returns a stable structural hash, used by the trainer to detect
// schema drift without comparing full snapshots.
func (s SchemaSnapshot) Hash() string {
	h := sha256.New()
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	sort.Strings(names)
	for _, name := range names {
		t, _ := s.Table(name)
		fmt.Fprintf(h, "T:%s;", t.Name)
		for _, c := range t.Columns {
			fmt.Fprintf(h, "C:%s:%s:%v:%v:%v;", c.Name, c.DataType, c.Nullable, c.IsPK, c.IsFK)
		}
		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(h, "F:%s->%s.%s;", fk.Column, fk.RefTable, fk.RefColumn)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SchemaDiff is the result of comparing two snapshots.
type SchemaDiff struct {
	AddedTables    []string
	RemovedTables  []string
	ModifiedTables []string
}

// Empty reports whether the diff carries no changes.
func (d SchemaDiff) Empty() bool {
	return len(d.AddedTables) == 0 && len(d.RemovedTables) == 0 && len(d.ModifiedTables) == 0
}

// ChangedTableRatio returns the fraction of tables (against total) touched
// by the diff, used by the trainer to decide between incremental and full
// re-ingest.
func (d SchemaDiff) ChangedTableRatio(total int) float64 {
	if total == 0 {
		return 0
	}
	changed := len(d.AddedTables) + len(d.RemovedTables) + len(d.ModifiedTables)
	return float64(changed) / float64(total)
}

// Diff compares old against new, reporting added/removed/modified tables.
// Modification is detected if any column's name, type, nullability, or
// pk/fk flag changes, or if the foreign key set changes.
func Diff(old, new SchemaSnapshot) SchemaDiff {
	oldByName := map[string]Table{}
	for _, t := range old.Tables {
		oldByName[t.Name] = t
	}
	newByName := map[string]Table{}
	for _, t := range new.Tables {
		newByName[t.Name] = t
	}

	var d SchemaDiff
	for name := range newByName {
		if _, ok := oldByName[name]; !ok {
			d.AddedTables = append(d.AddedTables, name)
		}
	}
	for name := range oldByName {
		if _, ok := newByName[name]; !ok {
			d.RemovedTables = append(d.RemovedTables, name)
		}
	}
	for name, nt := range newByName {
		ot, ok := oldByName[name]
		if !ok {
			continue
		}
		if !tablesEqual(ot, nt) {
			d.ModifiedTables = append(d.ModifiedTables, name)
		}
	}
	sort.Strings(d.AddedTables)
	sort.Strings(d.RemovedTables)
	sort.Strings(d.ModifiedTables)
	return d
}

func tablesEqual(a, b Table) bool {
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		ac, bc := a.Columns[i], b.Columns[i]
		if ac.Name != bc.Name || ac.DataType != bc.DataType || ac.Nullable != bc.Nullable ||
			ac.IsPK != bc.IsPK || ac.IsFK != bc.IsFK {
			return false
		}
	}
	if len(a.ForeignKeys) != len(b.ForeignKeys) {
		return false
	}
	aFK := map[ForeignKey]bool{}
	for _, fk := range a.ForeignKeys {
		aFK[fk] = true
	}
	for _, fk := range b.ForeignKeys {
		if !aFK[fk] {
			return false
		}
	}
	return true
}

// CategoricalValues maps (table,column) to observed distinct values,
// captured when cardinality falls below a configured threshold.
type CategoricalValues struct {
	Values map[TableColumn][]string
}

// TableColumn identifies a column within a schema.
type TableColumn struct {
	Table  string
	Column string
}

// SQLQuery is exactly one SQL statement produced by the generator.
type SQLQuery struct {
	Text              string
	Dialect           Dialect
	GenerationAttempt int
}

// ColumnDescriptor describes one result column.
type ColumnDescriptor struct {
	Name     string
	DataType SemanticType
}

// Row is one result row, keyed by column name.
type Row map[string]any

// QueryResult is a bounded, materialized result set.
type QueryResult struct {
	Columns   []ColumnDescriptor
	Rows      []Row
	Truncated bool
	RowCount  int
	Elapsed   time.Duration
}

// ValidationLayer names one of the four SQLValidator layers.
type ValidationLayer string

const (
	LayerKeyword   ValidationLayer = "keyword"
	LayerPattern   ValidationLayer = "pattern"
	LayerAST       ValidationLayer = "ast"
	LayerTranspile ValidationLayer = "transpile"
)

// QueryErrorKind is the tagged-union discriminant for QueryError.
type QueryErrorKind string

const (
	ErrSyntax              QueryErrorKind = "syntax_error"
	ErrUnknownIdentifier   QueryErrorKind = "unknown_identifier"
	ErrTypeMismatch        QueryErrorKind = "type_mismatch"
	ErrPermissionDenied    QueryErrorKind = "permission_denied"
	ErrTimeout             QueryErrorKind = "timeout"
	ErrConnectionLost      QueryErrorKind = "connection_lost"
	ErrRowLimitExceeded    QueryErrorKind = "row_limit_exceeded"
	ErrRefusal             QueryErrorKind = "refusal"
	ErrValidationRejection QueryErrorKind = "validation_rejection"
)

// QueryError is a tagged union over the failure modes of validation and
// execution. Message is a dialect-normalized, human-readable description
// used as correction feedback; it must never contain a stack trace.
type QueryError struct {
	Kind    QueryErrorKind
	Layer   ValidationLayer // set only when Kind == ErrValidationRejection
	Message string
}

func (e *QueryError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Layer, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Recoverable reports whether the self-correction loop should retry after
// this error (as opposed to terminating the pipeline run).
func (e *QueryError) Recoverable() bool {
	switch e.Kind {
	case ErrSyntax, ErrUnknownIdentifier, ErrTypeMismatch, ErrValidationRejection, ErrRefusal:
		return true
	default:
		return false
	}
}

// ChartType enumerates the chart kinds ChartAdvisor may recommend.
type ChartType string

const (
	ChartBar         ChartType = "bar"
	ChartLine        ChartType = "line"
	ChartArea        ChartType = "area"
	ChartScatter     ChartType = "scatter"
	ChartPie         ChartType = "pie"
	ChartGauge       ChartType = "gauge"
	ChartFunnel      ChartType = "funnel"
	ChartHeatmap     ChartType = "heatmap"
	ChartWaterfall   ChartType = "waterfall"
	ChartTreemap     ChartType = "treemap"
	ChartSunburst    ChartType = "sunburst"
	ChartRadar       ChartType = "radar"
	ChartParallel    ChartType = "parallel"
	ChartTable       ChartType = "table"
	ChartKPI         ChartType = "kpi"
	ChartSankey      ChartType = "sankey"
	ChartProcessFlow ChartType = "process_flow"
)

// ColorPolicy is the palette strategy for a ChartSpec.
type ColorPolicy string

const (
	ColorCategorical ColorPolicy = "categorical"
	ColorSequential  ColorPolicy = "sequential"
	ColorDiverging   ColorPolicy = "diverging"
	ColorSemantic    ColorPolicy = "semantic"
)

// ChartOrientation is the axis orientation of a bar-family chart. The
// zero value means vertical (the default); downstream renderers only see
// the field when it is horizontal.
type ChartOrientation string

const (
	OrientVertical   ChartOrientation = "vertical"
	OrientHorizontal ChartOrientation = "horizontal"
)

// Annotations are optional chart overlays.
type Annotations struct {
	Min            bool
	Max            bool
	Average        bool
	TrendLine      bool
	AnomalyRegions bool
}

// ChartSpec is the neutral chart recommendation emitted by ChartAdvisor.
type ChartSpec struct {
	Type        ChartType
	XField      string
	YFields     []string
	SeriesField string
	Annotations Annotations
	ColorPolicy ColorPolicy
	Orientation ChartOrientation // bar-family charts only; empty means vertical
}

// NodeRole classifies a ProcessFlow node.
type NodeRole string

const (
	NodeStart   NodeRole = "start"
	NodeTask    NodeRole = "task"
	NodeGateway NodeRole = "gateway"
	NodeEnd     NodeRole = "end"
	NodeCurrent NodeRole = "current"
)

// NodeMetrics carries optional per-node statistics.
type NodeMetrics struct {
	Count       *int
	AvgDuration *float64
}

// ProcessNode is one node of a ProcessFlow.
type ProcessNode struct {
	ID      string
	Label   string
	Role    NodeRole
	Metrics NodeMetrics
}

// ProcessEdge is one edge of a ProcessFlow.
type ProcessEdge struct {
	FromID      string
	ToID        string
	Count       *int
	AvgDuration *float64
}

// LayoutDirection is the flow axis of a rendered ProcessFlow.
type LayoutDirection string

const (
	LayoutVertical   LayoutDirection = "vertical"
	LayoutHorizontal LayoutDirection = "horizontal"
)

// ProcessFlow is a result-level graph built post-hoc from a QueryResult
// that carries transition or aggregate data. Edge endpoints are guaranteed
// (by construction) to reference only node ids present in Nodes.
type ProcessFlow struct {
	Name            string
	Nodes           []ProcessNode
	Edges           []ProcessEdge
	BottleneckEdge  *ProcessEdge
	LayoutDirection LayoutDirection
}

// Validate checks the node-id/edge-endpoint invariant. Builders must call
// this before returning a non-nil ProcessFlow; a violation means the
// builder has a bug, not that the input data is bad.
func (p *ProcessFlow) Validate() error {
	ids := map[string]bool{}
	for _, n := range p.Nodes {
		ids[n.ID] = true
	}
	for _, e := range p.Edges {
		if !ids[e.FromID] {
			return fmt.Errorf("process flow: edge references unknown node %q", e.FromID)
		}
		if !ids[e.ToID] {
			return fmt.Errorf("process flow: edge references unknown node %q", e.ToID)
		}
	}
	return nil
}

// Attempt records one generate→validate→execute attempt, successful or not.
type Attempt struct {
	SQL   string
	Error *QueryError // nil on success
}

// PipelineResult is the terminal success value of a pipeline run.
type PipelineResult struct {
	SQL       string
	Attempts  []Attempt
	Result    QueryResult
	Chart     ChartSpec
	Process   *ProcessFlow
	LatencyMS int64
}

// PipelineErrorKind is the stable error taxonomy surfaced to callers.
type PipelineErrorKind string

const (
	PEValidationRejected      PipelineErrorKind = "validation_rejected"
	PEGenerationRefusal       PipelineErrorKind = "generation_refusal"
	PEExecutionSyntax         PipelineErrorKind = "execution_syntax"
	PEExecutionUnknownIdent   PipelineErrorKind = "execution_unknown_identifier"
	PEExecutionTypeMismatch   PipelineErrorKind = "execution_type_mismatch"
	PEExecutionPermission     PipelineErrorKind = "execution_permission_denied"
	PEExecutionConnectionLost PipelineErrorKind = "execution_connection_lost"
	PEExecutionTimeout        PipelineErrorKind = "execution_timeout"
	PEAttemptsExhausted       PipelineErrorKind = "attempts_exhausted"
	PECancelled               PipelineErrorKind = "cancelled"
	PESchemaIntrospection     PipelineErrorKind = "schema_introspection_failed"
	PELLMTransportFailed      PipelineErrorKind = "llm_transport_failed"
	PEInternal                PipelineErrorKind = "internal"
)

// PipelineError is the terminal failure value of a pipeline run. Friendly
// is safe for UI display; Diagnostic is for logs only.
type PipelineError struct {
	Kind       PipelineErrorKind
	Friendly   string
	Diagnostic string
	Attempts   []Attempt
	cause      error
}

func NewPipelineError(kind PipelineErrorKind, friendly string, cause error) *PipelineError {
	pe := &PipelineError{Kind: kind, Friendly: friendly, cause: cause}
	if cause != nil {
		pe.Diagnostic = cause.Error()
	}
	return pe
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Diagnostic)
}

func (e *PipelineError) Unwrap() error { return e.cause }
