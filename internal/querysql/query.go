package querysql

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
// The marker method enables exhaustive type switches in the compiler.
//
// Predicate types:
//   - Equals: field = literal value
//   - IsNull / NotNull: field IS [NOT] NULL
//   - And: all predicates must be true
//
// OR predicates and subqueries are deliberately absent: every store query is
// a conjunction of criteria.
type Predicate interface {
	predicateNode()
}

// Select is a single-table query with filtering and ordering.
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <order>, id ASC [LIMIT n] [FOR UPDATE]
//
// The id tiebreaker is always appended so results are deterministic even
// when OrderBy columns tie.
type Select struct {
	From      string    // Table name
	Columns   []string  // Selected columns, in order (required)
	Filter    Predicate // WHERE conditions (nil = no filter)
	OrderBy   []string  // Ascending sort columns before the id tiebreaker
	Limit     int       // 0 = no limit
	ForUpdate bool      // Row lock; ignored by dialects without row locks
}

// Equals represents a field-equals-literal predicate.
// Value must be a string, int64, int or bool; it is always bound as a
// parameter and never interpolated.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// IsNull matches rows where Field is NULL.
type IsNull struct {
	Field string
}

func (IsNull) predicateNode() {}

// NotNull matches rows where Field is not NULL.
type NotNull struct {
	Field string
}

func (NotNull) predicateNode() {}

// And represents a conjunction. An empty And is vacuously true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where builds an And from the non-nil predicates, or nil when none remain.
func Where(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return And{Predicates: kept}
}

// EqualsIf returns an Equals predicate when value is non-empty, else nil.
// It turns optional string criteria into filters.
func EqualsIf(field, value string) Predicate {
	if value == "" {
		return nil
	}
	return Equals{Field: field, Value: value}
}
