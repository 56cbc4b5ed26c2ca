package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/maxsync/max/pkg/types"
)

// workspaceEntry is the on-disk value of one workspaces.json entry; the
// workspace id is the map key.
type workspaceEntry struct {
	Name        string                  `json:"name"`
	ProjectRoot string                  `json:"projectRoot"`
	ConnectedAt time.Time               `json:"connectedAt"`
	Hosting     *types.DeploymentConfig `json:"hosting,omitempty"`
}

// WorkspaceManifest is the global node's persistent map of known
// workspaces (~/.max/workspaces.json by default).
type WorkspaceManifest struct {
	path string

	mu      sync.Mutex
	entries map[types.WorkspaceID]workspaceEntry
}

// OpenWorkspaceManifest loads the manifest at path, starting empty when
// the file does not exist.
func OpenWorkspaceManifest(path string) (*WorkspaceManifest, error) {
	m := &WorkspaceManifest{
		path:    path,
		entries: make(map[types.WorkspaceID]workspaceEntry),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &m.entries); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Path returns the manifest file location
func (m *WorkspaceManifest) Path() string { return m.path }

// List projects all records sorted by connection time, oldest first
func (m *WorkspaceManifest) List() []types.WorkspaceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.WorkspaceRecord, 0, len(m.entries))
	for id, entry := range m.entries {
		out = append(out, record(id, entry))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Lookup finds a record by workspace id
func (m *WorkspaceManifest) Lookup(id types.WorkspaceID) (types.WorkspaceRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return types.WorkspaceRecord{}, false
	}
	return record(id, entry), true
}

// Put upserts a record and persists the manifest
func (m *WorkspaceManifest) Put(rec types.WorkspaceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ConnectedAt.IsZero() {
		rec.ConnectedAt = time.Now().UTC()
	}
	m.entries[rec.ID] = workspaceEntry{
		Name:        rec.Name,
		ProjectRoot: rec.ProjectRoot,
		ConnectedAt: rec.ConnectedAt,
		Hosting:     rec.Hosting,
	}
	return writeJSONFile(m.path, m.entries)
}

// Remove deletes a record by id, reporting whether it existed
func (m *WorkspaceManifest) Remove(id types.WorkspaceID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return false, nil
	}
	delete(m.entries, id)
	return true, writeJSONFile(m.path, m.entries)
}

func record(id types.WorkspaceID, entry workspaceEntry) types.WorkspaceRecord {
	return types.WorkspaceRecord{
		ID:          id,
		Name:        entry.Name,
		ProjectRoot: entry.ProjectRoot,
		ConnectedAt: entry.ConnectedAt,
		Hosting:     entry.Hosting,
	}
}
