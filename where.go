package docql

// WhereOp is an operator used to compare a value to a documents field value in a where clause
type WhereOp string

const (
	// WhereOpEq matches on equality
	WhereOpEq WhereOp = "eq"
	// WhereOpGt matches on greater than
	WhereOpGt WhereOp = "gt"
	// WhereOpGte matches on greater than or equal to
	WhereOpGte WhereOp = "gte"
	// WhereOpLt matches on less than
	WhereOpLt WhereOp = "lt"
	// WhereOpLte matches on less than or equal to
	WhereOpLte WhereOp = "lte"
	// WhereOpContains matches on text containing a substring
	WhereOpContains WhereOp = "contains"
	// WhereOpStartsWith matches on text starting with a prefix
	WhereOpStartsWith WhereOp = "startsWith"
	// WhereOpEndsWith matches on text ending with a suffix
	WhereOpEndsWith WhereOp = "endsWith"
	// WhereOpArrayContains matches on an array field containing an element
	WhereOpArrayContains WhereOp = "arrayContains"
	// WhereOpArrayContainsAny matches on an array field containing any of the given elements
	WhereOpArrayContainsAny WhereOp = "arrayContainsAny"
	// WhereOpArrayContainsAll matches on an array field containing all of the given elements
	WhereOpArrayContainsAll WhereOp = "arrayContainsAll"
)

// Where is a field-level filter clause. An empty Op is treated as equality so a
// bare field/value pair reads as a literal match.
type Where struct {
	// Field is the document field to compare
	Field string `json:"field"`
	// Op is the operator used to compare the field against the value
	Op WhereOp `json:"op"`
	// Value is the value to compare against the documents field value.
	// Clauses with a nil value are skipped entirely during compilation.
	Value any `json:"value"`
}

// Filter is an ordered conjunction of where clauses. Clause order determines
// parameter numbering, so it must be reproducible across compilations.
type Filter []Where
