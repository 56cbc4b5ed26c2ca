package deploy

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maxsync/max/pkg/types"
)

// Manifest is the yaml shape of `max install -f`. Config and credentials
// are free-form per connector and forwarded opaquely.
type Manifest struct {
	Connector   string             `yaml:"connector"`
	Name        string             `yaml:"name"`
	Deployment  DeploymentManifest `yaml:"deployment"`
	Config      map[string]any     `yaml:"config"`
	Credentials map[string]any     `yaml:"credentials"`
}

// DeploymentManifest is the yaml flavour of a deployment config
type DeploymentManifest struct {
	Strategy   string   `yaml:"strategy"`
	Command    []string `yaml:"command"`
	SocketPath string   `yaml:"socketPath"`
	URL        string   `yaml:"url"`
	Image      string   `yaml:"image"`
}

// ParseManifest decodes a manifest document into an installation spec and
// deployment config. Strategy defaults to in-process.
func ParseManifest(data []byte) (types.InstallationSpec, types.DeploymentConfig, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return types.InstallationSpec{}, types.DeploymentConfig{}, fmt.Errorf("invalid manifest: %w", err)
	}
	if m.Connector == "" {
		return types.InstallationSpec{}, types.DeploymentConfig{}, fmt.Errorf("manifest is missing connector")
	}
	if m.Name == "" {
		return types.InstallationSpec{}, types.DeploymentConfig{}, fmt.Errorf("manifest is missing name")
	}

	spec := types.InstallationSpec{Connector: m.Connector, Name: m.Name}
	if len(m.Config) > 0 {
		raw, err := json.Marshal(m.Config)
		if err != nil {
			return types.InstallationSpec{}, types.DeploymentConfig{}, fmt.Errorf("invalid config block: %w", err)
		}
		spec.ConnectorConfig = raw
	}
	if len(m.Credentials) > 0 {
		raw, err := json.Marshal(m.Credentials)
		if err != nil {
			return types.InstallationSpec{}, types.DeploymentConfig{}, fmt.Errorf("invalid credentials block: %w", err)
		}
		spec.InitialCredentials = raw
	}

	cfg := types.DeploymentConfig{
		Strategy:   types.DeployerKind(m.Deployment.Strategy),
		Command:    m.Deployment.Command,
		SocketPath: m.Deployment.SocketPath,
		URL:        m.Deployment.URL,
		Image:      m.Deployment.Image,
	}
	if cfg.Strategy == "" {
		cfg.Strategy = types.DeployInProcess
	}
	return spec, cfg, nil
}

// LoadManifest reads and parses a manifest file
func LoadManifest(path string) (types.InstallationSpec, types.DeploymentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.InstallationSpec{}, types.DeploymentConfig{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}
