package types

import (
	"encoding/json"
	"time"
)

// DeployerKind discriminates how a node is materialised
type DeployerKind string

const (
	DeployInline     DeployerKind = "inline"
	DeployInProcess  DeployerKind = "in-process"
	DeploySubprocess DeployerKind = "subprocess"
	DeployDocker     DeployerKind = "docker"
	DeployRemote     DeployerKind = "remote"
)

// DeploymentConfig describes how to materialise a node. Strategy is the
// discriminant; the remaining fields apply per kind.
type DeploymentConfig struct {
	Strategy DeployerKind `json:"strategy"`

	// subprocess
	Command    []string `json:"command,omitempty"`
	SocketPath string   `json:"socketPath,omitempty"`

	// remote
	URL string `json:"url,omitempty"`

	// docker (placeholder)
	Image string `json:"image,omitempty"`
}

// InstallationSpec is the user-provided description of an installation
type InstallationSpec struct {
	Connector          string          `json:"connector"`
	Name               string          `json:"name"`
	ConnectorConfig    json.RawMessage `json:"connectorConfig,omitempty"`
	InitialCredentials json.RawMessage `json:"initialCredentials,omitempty"`
}

// InstallationRecord is the persisted registry entry for an installation:
// enough to recreate the live node.
type InstallationRecord struct {
	ID          InstallationID   `json:"id"`
	Connector   string           `json:"connector"`
	Name        string           `json:"name"`
	ConnectedAt time.Time        `json:"connectedAt"`
	Spec        InstallationSpec `json:"spec"`
	Deployment  DeploymentConfig `json:"deployment"`
	Locator     string           `json:"locator,omitempty"`
}

// WorkspaceRecord is the persisted global manifest entry for a workspace
type WorkspaceRecord struct {
	ID          WorkspaceID      `json:"id"`
	Name        string           `json:"name"`
	ProjectRoot string           `json:"projectRoot"`
	ConnectedAt time.Time        `json:"connectedAt"`
	Hosting     *DeploymentConfig `json:"hosting,omitempty"`
}
