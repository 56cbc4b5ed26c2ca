package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/security"
	"github.com/maxsync/max/pkg/types"
)

// maxDirName is the per-project state directory
const maxDirName = ".max"

// manifest is the on-disk shape of .max/max.json. Installations are keyed
// by their user-facing name.
type manifest struct {
	Connectors    map[string]string                   `json:"connectors,omitempty"`
	Installations map[string]types.InstallationRecord `json:"installations"`
}

// InstallationRegistry is a workspace's persistent record of its
// installations, backed by <projectRoot>/.max/max.json. Writes serialise
// through the registry's lock and land atomically via rename.
type InstallationRegistry struct {
	projectRoot string
	path        string
	vault       *security.Vault

	mu   sync.Mutex
	data manifest
}

// OpenInstallationRegistry loads the registry for a project root, starting
// empty when no manifest exists yet. Credentials in stored specs are
// sealed through the project's vault, so max.json never holds them in
// plaintext.
func OpenInstallationRegistry(projectRoot string) (*InstallationRegistry, error) {
	vault, err := security.OpenVault(filepath.Join(projectRoot, maxDirName))
	if err != nil {
		return nil, err
	}
	r := &InstallationRegistry{
		projectRoot: projectRoot,
		path:        filepath.Join(projectRoot, maxDirName, "max.json"),
		vault:       vault,
		data: manifest{
			Installations: make(map[string]types.InstallationRecord),
		},
	}

	raw, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", r.path, err)
	}
	if err := json.Unmarshal(raw, &r.data); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", r.path, err)
	}
	if r.data.Installations == nil {
		r.data.Installations = make(map[string]types.InstallationRecord)
	}
	return r, nil
}

// Path returns the manifest file location
func (r *InstallationRegistry) Path() string { return r.path }

// DataDir returns the per-installation state directory (engine DB, task
// store) for an installation name.
func (r *InstallationRegistry) DataDir(name string) string {
	return filepath.Join(r.projectRoot, maxDirName, "installations", name)
}

// List projects the registry entries sorted by name
func (r *InstallationRegistry) List() []types.InstallationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.data.Installations))
	for name := range r.data.Installations {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]types.InstallationRecord, 0, len(names))
	for _, name := range names {
		out = append(out, r.openRecord(r.data.Installations[name]))
	}
	return out
}

// Lookup finds a record by installation id
func (r *InstallationRegistry) Lookup(id types.InstallationID) (types.InstallationRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.data.Installations {
		if record.ID == id {
			return r.openRecord(record), true
		}
	}
	return types.InstallationRecord{}, false
}

// Find locates a record by its natural key
func (r *InstallationRegistry) Find(connector, name string) (types.InstallationRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.data.Installations[name]
	if !ok || record.Connector != connector {
		return types.InstallationRecord{}, false
	}
	return r.openRecord(record), true
}

// Put inserts a record. A different installation already holding the
// (connector, name) key is rejected; re-putting the same id updates it.
func (r *InstallationRegistry) Put(record types.InstallationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.data.Installations[record.Name]; ok && existing.ID != record.ID {
		return errdefs.ErrInstallationExists.New(errdefs.Props{
			"connector": record.Connector,
			"name":      record.Name,
		})
	}
	if record.ConnectedAt.IsZero() {
		record.ConnectedAt = time.Now().UTC()
	}
	record, err := r.sealRecord(record)
	if err != nil {
		return err
	}
	r.data.Installations[record.Name] = record
	return r.persist()
}

// Remove deletes a record by id, reporting whether it existed
func (r *InstallationRegistry) Remove(id types.InstallationID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, record := range r.data.Installations {
		if record.ID == id {
			delete(r.data.Installations, name)
			return true, r.persist()
		}
	}
	return false, nil
}

// Connectors returns the project's connector alias map
func (r *InstallationRegistry) Connectors() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.data.Connectors))
	for alias, spec := range r.data.Connectors {
		out[alias] = spec
	}
	return out
}

func (r *InstallationRegistry) persist() error {
	return writeJSONFile(r.path, r.data)
}

// sealedCredentials is the stored shape of vault-sealed credentials
type sealedCredentials struct {
	Sealed string `json:"$sealed"`
}

// sealRecord replaces plaintext credentials with their sealed form before
// the record lands in memory or on disk. Already-sealed credentials pass
// through unchanged.
func (r *InstallationRegistry) sealRecord(record types.InstallationRecord) (types.InstallationRecord, error) {
	creds := record.Spec.InitialCredentials
	if len(creds) == 0 {
		return record, nil
	}
	var box sealedCredentials
	if err := json.Unmarshal(creds, &box); err == nil && box.Sealed != "" {
		return record, nil
	}

	sealed, err := r.vault.Seal(creds)
	if err != nil {
		return types.InstallationRecord{}, fmt.Errorf("seal credentials for %s: %w", record.Name, err)
	}
	boxed, err := json.Marshal(sealedCredentials{Sealed: sealed})
	if err != nil {
		return types.InstallationRecord{}, err
	}
	record.Spec.InitialCredentials = boxed
	return record, nil
}

// openRecord restores plaintext credentials on the way out. Records whose
// credentials cannot be unsealed are returned as stored, with a warning.
func (r *InstallationRegistry) openRecord(record types.InstallationRecord) types.InstallationRecord {
	creds := record.Spec.InitialCredentials
	if len(creds) == 0 {
		return record
	}
	var box sealedCredentials
	if err := json.Unmarshal(creds, &box); err != nil || box.Sealed == "" {
		return record
	}

	plaintext, err := r.vault.Open(box.Sealed)
	if err != nil {
		log.WithComponent("registry").Warn().Err(err).
			Str("installation", record.Name).
			Msg("failed to unseal credentials")
		return record
	}
	record.Spec.InitialCredentials = plaintext
	return record
}

// writeJSONFile writes atomically: temp file in the target directory, then
// rename over the destination.
func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("stage %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("stage %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}

	log.WithComponent("registry").Debug().Str("path", path).Msg("manifest written")
	return nil
}
