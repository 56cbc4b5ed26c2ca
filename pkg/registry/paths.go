package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/maxsync/max/pkg/types"
)

// envDaemonRoot redirects daemon state away from the home directory,
// mainly for tests and sandboxed runs.
const envDaemonRoot = "MAX_DAEMON_TMP"

// DaemonPaths locates one workspace daemon's runtime files
type DaemonPaths struct {
	Dir    string
	Socket string
	PID    string
	Log    string
}

// Root returns the max state root: MAX_DAEMON_TMP when set, ~/.max
// otherwise.
func Root() (string, error) {
	if root := os.Getenv(envDaemonRoot); root != "" {
		return root, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, maxDirName), nil
}

// GlobalManifestPath returns the location of workspaces.json
func GlobalManifestPath() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "workspaces.json"), nil
}

// DaemonPathsFor returns (and creates) the daemon directory for one
// workspace.
func DaemonPathsFor(id types.WorkspaceID) (DaemonPaths, error) {
	root, err := Root()
	if err != nil {
		return DaemonPaths{}, err
	}
	dir := filepath.Join(root, "workspaces", string(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return DaemonPaths{}, fmt.Errorf("create daemon dir %s: %w", dir, err)
	}
	return DaemonPaths{
		Dir:    dir,
		Socket: filepath.Join(dir, "daemon.sock"),
		PID:    filepath.Join(dir, "daemon.pid"),
		Log:    filepath.Join(dir, "daemon.log"),
	}, nil
}
