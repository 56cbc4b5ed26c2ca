package types

// TargetKind discriminates what a sync step addresses
type TargetKind string

const (
	TargetRoot TargetKind = "root" // a schema root ref
	TargetAll  TargetKind = "all"  // every stored entity of a type
	TargetOne  TargetKind = "one"  // a single concrete ref
)

// StepTarget selects the refs a step operates on
type StepTarget struct {
	Kind TargetKind `json:"kind"`
	Ref  *Ref       `json:"ref,omitempty"`
	Type EntityType `json:"entityType,omitempty"`
}

// OperationKind discriminates what a step does to its targets
type OperationKind string

const (
	OpLoadFields     OperationKind = "load-fields"
	OpLoadCollection OperationKind = "load-collection"
)

// StepOperation is the load a step performs on each target ref
type StepOperation struct {
	Kind   OperationKind `json:"kind"`
	Fields []string      `json:"fields,omitempty"`
	Field  string        `json:"field,omitempty"`
}

// Step is one declarative unit of a sync plan: a target and an operation
type Step struct {
	Target StepTarget    `json:"target"`
	Op     StepOperation `json:"op"`
}

// SyncPlan is a dependency-ordered list of steps produced by a seeder.
// Steps run in order; each step's tasks complete before the next begins.
type SyncPlan struct {
	Steps []Step `json:"steps"`
}

// StepBuilder completes a step once its target is chosen
type StepBuilder struct {
	target StepTarget
}

// ForRoot targets a schema root ref
func ForRoot(ref Ref) StepBuilder {
	return StepBuilder{target: StepTarget{Kind: TargetRoot, Ref: &ref}}
}

// ForAll targets every stored entity of the given type
func ForAll(entityType EntityType) StepBuilder {
	return StepBuilder{target: StepTarget{Kind: TargetAll, Type: entityType}}
}

// ForOne targets a single concrete ref
func ForOne(ref Ref) StepBuilder {
	return StepBuilder{target: StepTarget{Kind: TargetOne, Ref: &ref}}
}

// LoadFields completes the step with a field-load operation
func (b StepBuilder) LoadFields(fields ...string) Step {
	return Step{Target: b.target, Op: StepOperation{Kind: OpLoadFields, Fields: fields}}
}

// LoadCollection completes the step with a collection-load operation
func (b StepBuilder) LoadCollection(field string) Step {
	return Step{Target: b.target, Op: StepOperation{Kind: OpLoadCollection, Field: field}}
}

// Plan builds a SyncPlan from steps
func Plan(steps ...Step) SyncPlan {
	return SyncPlan{Steps: steps}
}
