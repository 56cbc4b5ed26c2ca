package errdefs

// Each boundary owns a code namespace. Definitions carry the message
// template, required props and facet list for every failure that crosses a
// boundary in Max.

// Core boundary
var (
	ErrUnknownEntityType = Define("core.unknown_entity_type",
		"unknown entity type {entityType}", NotFound, HasEntityType)
	ErrEntityNotFound = Define("core.entity_not_found",
		"entity {ref} not found", NotFound, HasEntityRef)
	ErrFieldNotLoaded = Define("core.field_not_loaded",
		"field {field} of {ref} was requested but never loaded", HasEntityRef, HasEntityField)
	ErrUnknownField = Define("core.unknown_field",
		"entity type {entityType} has no field {field}", BadInput, HasEntityType, HasEntityField)
	ErrInvalidRefKey = Define("core.invalid_ref_key",
		"invalid ref key {key}", BadInput)
	ErrScopeNarrowed = Define("core.scope_narrowed",
		"scope of {ref} may not narrow from {from} to {to}", InvariantViolated, HasEntityRef)
)

// RPC boundary
var (
	ErrUnknownTarget = Define("rpc.unknown_target",
		"unknown rpc target {target}", NotFound)
	ErrUnknownMethod = Define("rpc.unknown_method",
		"target {target} has no method {method}", NotFound)
	ErrNodeNotFound = Define("rpc.node_not_found",
		"no node registered for {nodeId}", NotFound)
	ErrBadArguments = Define("rpc.bad_arguments",
		"invalid arguments for {target}.{method}: {detail}", BadInput)
)

// Platform boundary (transports)
var (
	ErrTransportClosed = Define("platform.transport_closed",
		"transport is closed")
	ErrTransportFailed = Define("platform.transport_failed",
		"transport failure: {detail}")
	ErrTransportTimeout = Define("platform.transport_timeout",
		"request {requestId} timed out")
)

// Execution boundary
var (
	ErrTaskNotFound = Define("execution.task_not_found",
		"task {taskId} not found", NotFound)
	ErrSyncNotFound = Define("execution.sync_not_found",
		"no sync registered for {syncId}", NotFound)
	ErrUnknownLoader = Define("execution.unknown_loader",
		"connector has no loader {loader}", NotFound, HasLoaderName)
	ErrLoaderFailed = Define("execution.loader_failed",
		"loader {loader} failed", HasLoaderName)
	ErrInvalidTransition = Define("execution.invalid_transition",
		"task {taskId} cannot transition from {from} to {to}", InvariantViolated)
	ErrUnknownPayload = Define("execution.unknown_payload",
		"no runner for task payload kind {kind}", NotImplemented)
)

// Storage boundary
var (
	ErrStorageUnavailable = Define("storage.unavailable",
		"storage unavailable: {detail}")
	ErrInvalidCursor = Define("storage.invalid_cursor",
		"invalid page cursor {cursor}", BadInput)
)

// Federation boundary
var (
	ErrInstallationExists = Define("federation.installation_exists",
		"installation {name} for connector {connector} already exists", BadInput, HasConnector)
	ErrInstallationNotFound = Define("federation.installation_not_found",
		"installation {installationId} not found", NotFound)
	ErrWorkspaceNotFound = Define("federation.workspace_not_found",
		"workspace {workspaceId} not found", NotFound)
	ErrUnknownDeployer = Define("federation.unknown_deployer",
		"no deployer registered for strategy {strategy}", NotFound)
	ErrCreateUnsupported = Define("federation.create_unsupported",
		"deployer {strategy} cannot create new nodes", NotSupported)
	ErrDeployerNotImplemented = Define("federation.deployer_not_implemented",
		"deployer {strategy} is not implemented", NotImplemented)
	ErrNotRunning = Define("federation.not_running",
		"node {nodeId} is not running")
)

// CLI boundary
var (
	ErrBadTarget = Define("cli.bad_target",
		"invalid target url {target}", BadInput)
	ErrNoWorkspace = Define("cli.no_workspace",
		"no workspace found at {projectRoot}", NotFound)
	ErrDaemonNotRunning = Define("cli.daemon_not_running",
		"no daemon running for workspace {workspaceId}", NotFound)
)

// Connector boundary
var (
	ErrUnknownConnector = Define("connector.unknown_connector",
		"unknown connector {connector}", NotFound, HasConnector)
	ErrConnectorFailed = Define("connector.failed",
		"connector {connector} failed: {detail}", HasConnector)
)

// Query-parser boundary
var (
	ErrInvalidQuery = Define("query.invalid",
		"invalid query: {detail}", BadInput)
	ErrUnknownOperator = Define("query.unknown_operator",
		"unknown where operator {op}", BadInput)
)
