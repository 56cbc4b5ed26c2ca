package connector

import (
	"context"

	"github.com/maxsync/max/pkg/engine"
	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/types"
)

// Connector is the opaque plugin contract describing how to sync one
// third-party SaaS: its schema, onboarding flow, and how to materialise a
// live installation from a spec.
type Connector interface {
	Name() string
	Version() string
	Schema() types.Schema
	Onboarding() Onboarding

	// Connect materialises a live installation: credentials resolved,
	// session ready for loaders.
	Connect(ctx context.Context, spec types.InstallationSpec) (Installation, error)
}

// Installation is a live, configured instance of a connector. It is the
// per-tenant object supplying the session loaders run against, and it
// participates in the node's lifecycle.
type Installation interface {
	lifecycle.Supervised

	Info() types.InstallationInfo
	Seeder() Seeder
	Resolver() *Resolver
}

// Seeder produces the initial sync plan for an installation. It may read
// the engine to decide what is already present.
type Seeder interface {
	Seed(ctx context.Context, eng engine.Engine) (types.SyncPlan, error)
}

// SeederFunc adapts a function to the Seeder interface
type SeederFunc func(ctx context.Context, eng engine.Engine) (types.SyncPlan, error)

// Seed implements Seeder
func (f SeederFunc) Seed(ctx context.Context, eng engine.Engine) (types.SyncPlan, error) {
	return f(ctx, eng)
}

// FieldLoader fetches a batch of entities' fields
type FieldLoader interface {
	Name() types.LoaderName
	LoadFields(ctx context.Context, refs []types.Ref, fields []string) ([]types.EntityInput, error)
}

// CollectionLoader fetches one page of a parent's collection field
type CollectionLoader interface {
	Name() types.LoaderName
	LoadCollection(ctx context.Context, parent types.Ref, field string, page types.PageRequest) (types.RefPage, error)
}

// OnboardingStepKind discriminates onboarding step shapes. The step
// interpreter itself lives outside the core; only the types are described
// here.
type OnboardingStepKind string

const (
	OnboardPrompt OnboardingStepKind = "prompt"
	OnboardSecret OnboardingStepKind = "secret"
	OnboardOAuth  OnboardingStepKind = "oauth"
	OnboardInfo   OnboardingStepKind = "info"
)

// OnboardingStep is one step of a connector's onboarding flow
type OnboardingStep struct {
	Kind     OnboardingStepKind `json:"kind"`
	Name     string             `json:"name"`
	Text     string             `json:"text,omitempty"`
	Required bool               `json:"required,omitempty"`
}

// Onboarding is a connector's declared onboarding flow
type Onboarding struct {
	Steps []OnboardingStep `json:"steps"`
}
