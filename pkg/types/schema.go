package types

import (
	"fmt"

	"github.com/maxsync/max/pkg/errdefs"
)

// FieldKind discriminates the three field shapes of an entity definition
type FieldKind string

const (
	FieldScalar     FieldKind = "scalar"
	FieldRef        FieldKind = "ref"
	FieldCollection FieldKind = "collection"
)

// ScalarType is the value type of a scalar field
type ScalarType string

const (
	ScalarString  ScalarType = "string"
	ScalarNumber  ScalarType = "number"
	ScalarBoolean ScalarType = "boolean"
	ScalarDate    ScalarType = "date"
)

// Field is one field of an entity definition. Ref and collection fields
// name their target entity type; targets are resolved by name against the
// schema so cyclic entity graphs become graph edges, not memory cycles.
type Field struct {
	Name   string     `json:"name"`
	Kind   FieldKind  `json:"kind"`
	Scalar ScalarType `json:"scalar,omitempty"`
	Target EntityType `json:"target,omitempty"`
}

// ScalarField builds a scalar field
func ScalarField(name string, scalar ScalarType) Field {
	return Field{Name: name, Kind: FieldScalar, Scalar: scalar}
}

// RefField builds a single-ref field pointing at target
func RefField(name string, target EntityType) Field {
	return Field{Name: name, Kind: FieldRef, Target: target}
}

// CollectionField builds a collection field of target entities
func CollectionField(name string, target EntityType) Field {
	return Field{Name: name, Kind: FieldCollection, Target: target}
}

// EntityDef defines one entity type: its name and closed field set
type EntityDef struct {
	Name   EntityType `json:"name"`
	Fields []Field    `json:"fields"`
}

// Field looks up a field by name
func (d EntityDef) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the names of all fields in declaration order
func (d EntityDef) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Relationship is a derived edge between two entity types
type Relationship struct {
	From  EntityType `json:"from"`
	Field string     `json:"field"`
	To    EntityType `json:"to"`
	Many  bool       `json:"many"`
}

// Schema is a connector's closed world of entity definitions. Roots are the
// entry points a seeder may reference.
type Schema struct {
	Namespace string                    `json:"namespace"`
	Entities  map[EntityType]EntityDef  `json:"entities"`
	Roots     []EntityType              `json:"roots"`
}

// Entity looks up an entity definition by type
func (s Schema) Entity(entityType EntityType) (EntityDef, bool) {
	def, ok := s.Entities[entityType]
	return def, ok
}

// Validate checks schema invariants: every root is a known entity and every
// ref/collection target resolves.
func (s Schema) Validate() error {
	for _, root := range s.Roots {
		if _, ok := s.Entities[root]; !ok {
			return fmt.Errorf("schema %s: root %s is not a defined entity", s.Namespace, root)
		}
	}
	for name, def := range s.Entities {
		if def.Name != name {
			return fmt.Errorf("schema %s: entity %s declared under key %s", s.Namespace, def.Name, name)
		}
		for _, f := range def.Fields {
			switch f.Kind {
			case FieldScalar:
				if f.Scalar == "" {
					return fmt.Errorf("schema %s: scalar field %s.%s has no scalar type", s.Namespace, name, f.Name)
				}
			case FieldRef, FieldCollection:
				if _, ok := s.Entities[f.Target]; !ok {
					return fmt.Errorf("schema %s: field %s.%s targets unknown entity %s", s.Namespace, name, f.Name, f.Target)
				}
			default:
				return fmt.Errorf("schema %s: field %s.%s has unknown kind %s", s.Namespace, name, f.Name, f.Kind)
			}
		}
	}
	return nil
}

// Relationships derives the edge list from ref and collection fields
func (s Schema) Relationships() []Relationship {
	var rels []Relationship
	for name, def := range s.Entities {
		for _, f := range def.Fields {
			if f.Kind == FieldRef || f.Kind == FieldCollection {
				rels = append(rels, Relationship{
					From:  name,
					Field: f.Name,
					To:    f.Target,
					Many:  f.Kind == FieldCollection,
				})
			}
		}
	}
	return rels
}

// CheckField validates that entityType has the named field, returning a
// structured error suitable for crossing boundaries.
func (s Schema) CheckField(entityType EntityType, field string) (Field, error) {
	def, ok := s.Entities[entityType]
	if !ok {
		return Field{}, errdefs.ErrUnknownEntityType.New(errdefs.Props{"entityType": string(entityType)})
	}
	f, ok := def.Field(field)
	if !ok {
		return Field{}, errdefs.ErrUnknownField.New(errdefs.Props{
			"entityType": string(entityType),
			"field":      field,
		})
	}
	return f, nil
}
