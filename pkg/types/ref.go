package types

import (
	"fmt"
	"strings"

	"github.com/maxsync/max/pkg/errdefs"
)

// ScopeLevel is the hierarchical origin of a piece of data
type ScopeLevel string

const (
	ScopeInstallation ScopeLevel = "installation"
	ScopeWorkspace    ScopeLevel = "workspace"
	ScopeGlobal       ScopeLevel = "global"
)

var scopeRank = map[ScopeLevel]int{
	ScopeInstallation: 0,
	ScopeWorkspace:    1,
	ScopeGlobal:       2,
}

// Scope tags data with its hierarchical origin. Workspace scope records the
// installation the data came from; global scope additionally records the
// workspace.
type Scope struct {
	Level          ScopeLevel     `json:"level"`
	WorkspaceID    WorkspaceID    `json:"workspaceId,omitempty"`
	InstallationID InstallationID `json:"installationId,omitempty"`
}

// InstallationScope is the narrowest scope: data inside a single installation
func InstallationScope() Scope {
	return Scope{Level: ScopeInstallation}
}

// WorkspaceScope tags data surfaced by a workspace from one of its installations
func WorkspaceScope(installation InstallationID) Scope {
	return Scope{Level: ScopeWorkspace, InstallationID: installation}
}

// GlobalScope tags data surfaced by the global node
func GlobalScope(workspace WorkspaceID, installation InstallationID) Scope {
	return Scope{Level: ScopeGlobal, WorkspaceID: workspace, InstallationID: installation}
}

// Rank orders scopes from narrowest (installation) to widest (global)
func (s Scope) Rank() int {
	return scopeRank[s.Level]
}

// Ref is a value identifying one entity: type, id and origin scope.
// Refs have no owner; they are copied freely.
type Ref struct {
	Type  EntityType `json:"type"`
	ID    EntityID   `json:"id"`
	Scope Scope      `json:"scope"`
}

// NewRef builds an installation-scoped ref
func NewRef(entityType EntityType, id EntityID) Ref {
	return Ref{Type: entityType, ID: id, Scope: InstallationScope()}
}

// Upgrade widens a ref's scope as it crosses a boundary upward. A scope
// never narrows; attempting to is an invariant violation.
func (r Ref) Upgrade(to Scope) (Ref, error) {
	if to.Rank() < r.Scope.Rank() {
		return Ref{}, errdefs.ErrScopeNarrowed.New(errdefs.Props{
			"ref":  string(r.Key()),
			"from": string(r.Scope.Level),
			"to":   string(to.Level),
		})
	}
	r.Scope = to
	return r, nil
}

// RefKey is the canonical string encoding of a Ref. Parse and Key are exact
// inverses: a parsed key re-serializes to the original bytes.
type RefKey string

// Key serializes the ref to its canonical key:
//
//	installation:<type>:<id>
//	workspace:<installationId>:<type>:<id>
//	global:<workspaceId>:<installationId>:<type>:<id>
func (r Ref) Key() RefKey {
	switch r.Scope.Level {
	case ScopeWorkspace:
		return RefKey(fmt.Sprintf("workspace:%s:%s:%s", r.Scope.InstallationID, r.Type, r.ID))
	case ScopeGlobal:
		return RefKey(fmt.Sprintf("global:%s:%s:%s:%s", r.Scope.WorkspaceID, r.Scope.InstallationID, r.Type, r.ID))
	default:
		return RefKey(fmt.Sprintf("installation:%s:%s", r.Type, r.ID))
	}
}

// ParseRefKey parses a canonical ref key back into a Ref
func ParseRefKey(key RefKey) (Ref, error) {
	parts := strings.Split(string(key), ":")
	invalid := func() (Ref, error) {
		return Ref{}, errdefs.ErrInvalidRefKey.New(errdefs.Props{"key": string(key)})
	}
	if len(parts) < 3 {
		return invalid()
	}
	// Entity ids may themselves contain colons; the id is always the tail.
	switch ScopeLevel(parts[0]) {
	case ScopeInstallation:
		if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
			return invalid()
		}
		return Ref{
			Type:  EntityType(parts[1]),
			ID:    EntityID(strings.Join(parts[2:], ":")),
			Scope: InstallationScope(),
		}, nil
	case ScopeWorkspace:
		if len(parts) < 4 || parts[1] == "" || parts[2] == "" || parts[3] == "" {
			return invalid()
		}
		return Ref{
			Type:  EntityType(parts[2]),
			ID:    EntityID(strings.Join(parts[3:], ":")),
			Scope: WorkspaceScope(InstallationID(parts[1])),
		}, nil
	case ScopeGlobal:
		if len(parts) < 5 || parts[1] == "" || parts[2] == "" || parts[3] == "" || parts[4] == "" {
			return invalid()
		}
		return Ref{
			Type:  EntityType(parts[3]),
			ID:    EntityID(strings.Join(parts[4:], ":")),
			Scope: GlobalScope(WorkspaceID(parts[1]), InstallationID(parts[2])),
		}, nil
	default:
		return invalid()
	}
}
