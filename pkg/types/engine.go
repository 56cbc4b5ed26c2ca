package types

// ProjectionKind discriminates what an engine read returns per entity
type ProjectionKind string

const (
	ProjectionAll    ProjectionKind = "all"
	ProjectionRefs   ProjectionKind = "refs"
	ProjectionSelect ProjectionKind = "select"
)

// Projection selects the fields of an engine read
type Projection struct {
	Kind   ProjectionKind `json:"kind"`
	Fields []string       `json:"fields,omitempty"`
}

// ProjectAll selects every stored field
func ProjectAll() Projection {
	return Projection{Kind: ProjectionAll}
}

// ProjectRefs selects identity only
func ProjectRefs() Projection {
	return Projection{Kind: ProjectionRefs}
}

// ProjectFields selects the named fields
func ProjectFields(fields ...string) Projection {
	return Projection{Kind: ProjectionSelect, Fields: fields}
}

// Includes reports whether the projection covers the named field
func (p Projection) Includes(field string) bool {
	switch p.Kind {
	case ProjectionAll:
		return true
	case ProjectionRefs:
		return false
	default:
		for _, f := range p.Fields {
			if f == field {
				return true
			}
		}
		return false
	}
}

// EntityInput is an upsert payload for the engine
type EntityInput struct {
	Ref    Ref            `json:"ref"`
	Fields map[string]any `json:"fields"`
}

// EntityResult is an engine read result: the ref plus the projected fields
type EntityResult struct {
	Ref    Ref            `json:"ref"`
	Fields map[string]any `json:"fields"`
}

// PageRequest selects a page of results. An empty cursor starts from the
// beginning; Limit 0 uses the engine default.
type PageRequest struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// RefPage is one page of refs
type RefPage struct {
	Refs    []Ref  `json:"refs"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"hasMore"`
}

// EntityPage is one page of entity results
type EntityPage struct {
	Entities []EntityResult `json:"entities"`
	Cursor   string         `json:"cursor,omitempty"`
	HasMore  bool           `json:"hasMore"`
}

// WhereOp is a leaf comparison operator
type WhereOp string

const (
	OpEq       WhereOp = "eq"
	OpNe       WhereOp = "ne"
	OpGt       WhereOp = "gt"
	OpGte      WhereOp = "gte"
	OpLt       WhereOp = "lt"
	OpLte      WhereOp = "lte"
	OpContains WhereOp = "contains"
)

// WhereClause is either a leaf comparison (Field/Op/Value set) or a branch
// (Kind "and"/"or" with Clauses).
type WhereClause struct {
	Kind    string         `json:"kind,omitempty"`
	Field   string         `json:"field,omitempty"`
	Op      WhereOp        `json:"op,omitempty"`
	Value   any            `json:"value,omitempty"`
	Clauses []*WhereClause `json:"clauses,omitempty"`
}

// Where builds a leaf clause
func Where(field string, op WhereOp, value any) *WhereClause {
	return &WhereClause{Field: field, Op: op, Value: value}
}

// And builds a conjunction branch
func And(clauses ...*WhereClause) *WhereClause {
	return &WhereClause{Kind: "and", Clauses: clauses}
}

// Or builds a disjunction branch
func Or(clauses ...*WhereClause) *WhereClause {
	return &WhereClause{Kind: "or", Clauses: clauses}
}

// OrderBy orders query results by a field
type OrderBy struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Query is a filtered, ordered, paged engine query over one entity type
type Query struct {
	Type       EntityType   `json:"type"`
	Where      *WhereClause `json:"where,omitempty"`
	Order      []OrderBy    `json:"order,omitempty"`
	Page       PageRequest  `json:"page,omitempty"`
	Projection Projection   `json:"projection"`
}
