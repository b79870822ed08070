package querysql

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect selects the SQL flavour produced by the compiler.
//
// Both dialects use $n placeholders: PostgreSQL natively, SQLite because it
// assigns $-prefixed parameters indexes in order of first appearance.
type Dialect struct {
	Name      string
	Collation string // Appended to text ordering for byte-wise comparison
	RowLocks  bool   // Supports SELECT ... FOR UPDATE
}

var (
	SQLite   = Dialect{Name: "sqlite", Collation: "COLLATE BINARY"}
	Postgres = Dialect{Name: "postgres", Collation: `COLLATE "C"`, RowLocks: true}
)

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Compiler compiles Select queries to parameterized SQL.
//
// CRITICAL: every query includes ORDER BY with an id tiebreaker.
// CRITICAL: values are always parameterized, never interpolated.
type Compiler struct {
	dialect Dialect
}

// NewCompiler creates a Compiler for the given dialect.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{dialect: d}
}

// Compile converts a Select to parameterized SQL.
// Returns (sql, params, error).
func (c *Compiler) Compile(q Select) (string, []any, error) {
	if !identifier.MatchString(q.From) {
		return "", nil, fmt.Errorf("invalid table name %q", q.From)
	}
	if len(q.Columns) == 0 {
		return "", nil, fmt.Errorf("select from %s: no columns", q.From)
	}
	for _, col := range q.Columns {
		if !identifier.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q", col)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(q.Columns, ", "), q.From)

	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter, 1)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(filterSQL)
		params = filterParams
	}

	orderBy, err := c.orderBy(q.OrderBy)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(orderBy)

	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if q.ForUpdate && c.dialect.RowLocks {
		b.WriteString(" FOR UPDATE")
	}

	return b.String(), params, nil
}

// orderBy returns the ORDER BY list with the mandatory id tiebreaker.
func (c *Compiler) orderBy(cols []string) (string, error) {
	parts := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		if !identifier.MatchString(col) {
			return "", fmt.Errorf("invalid order column %q", col)
		}
		if col == "id" {
			continue
		}
		parts = append(parts, col+" ASC")
	}
	parts = append(parts, "id "+c.dialect.Collation+" ASC")
	return strings.Join(parts, ", "), nil
}

// compilePredicate compiles p with placeholders numbered from next.
// Returns (sql, params, error).
func (c *Compiler) compilePredicate(p Predicate, next int) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case Equals:
		if !identifier.MatchString(pred.Field) {
			return "", nil, fmt.Errorf("invalid field name %q", pred.Field)
		}
		param, err := toParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", pred.Field, err)
		}
		return fmt.Sprintf("%s = $%d", pred.Field, next), []any{param}, nil
	case IsNull:
		if !identifier.MatchString(pred.Field) {
			return "", nil, fmt.Errorf("invalid field name %q", pred.Field)
		}
		return pred.Field + " IS NULL", nil, nil
	case NotNull:
		if !identifier.MatchString(pred.Field) {
			return "", nil, fmt.Errorf("invalid field name %q", pred.Field)
		}
		return pred.Field + " IS NOT NULL", nil, nil
	case And:
		return c.compileAnd(pred, next)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileAnd compiles an And predicate to a conjunction.
func (c *Compiler) compileAnd(and And, next int) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred, next+len(allParams))
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}

	return strings.Join(sqlParts, " AND "), allParams, nil
}

// toParam normalizes a literal to a driver-friendly SQL parameter.
func toParam(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case bool:
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}
