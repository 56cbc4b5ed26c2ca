package types

import "github.com/maxsync/max/pkg/errdefs"

// HealthState is the coarse health of a supervised node
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"
)

// HealthStatus is the result of a health probe
type HealthStatus struct {
	Status HealthState `json:"status"`
	Reason string      `json:"reason,omitempty"`
}

// HealthyStatus is the all-clear health report
func HealthyStatus() HealthStatus {
	return HealthStatus{Status: Healthy}
}

// DegradedStatus reports partial availability
func DegradedStatus(reason string) HealthStatus {
	return HealthStatus{Status: Degraded, Reason: reason}
}

// UnhealthyStatus reports unavailability
func UnhealthyStatus(reason string) HealthStatus {
	return HealthStatus{Status: Unhealthy, Reason: reason}
}

// StartOutcome is the closed set of start results
type StartOutcome string

const (
	Started        StartOutcome = "started"
	AlreadyRunning StartOutcome = "already_running"
	StartRefused   StartOutcome = "refused"
	StartErrored   StartOutcome = "error"
)

// StartResult reports what a start call did
type StartResult struct {
	Outcome StartOutcome   `json:"outcome"`
	Reason  string         `json:"reason,omitempty"`
	Err     *errdefs.Error `json:"error,omitempty"`
}

// StartOK reports a successful fresh start
func StartOK() StartResult {
	return StartResult{Outcome: Started}
}

// StartAlreadyRunning reports an idempotent second start
func StartAlreadyRunning() StartResult {
	return StartResult{Outcome: AlreadyRunning}
}

// StartRefusedResult reports a refused start
func StartRefusedResult(reason string) StartResult {
	return StartResult{Outcome: StartRefused, Reason: reason}
}

// StartError reports a failed start
func StartError(err error) StartResult {
	if e, ok := errdefs.As(err); ok {
		return StartResult{Outcome: StartErrored, Err: e}
	}
	return StartResult{Outcome: StartErrored, Err: &errdefs.Error{
		Code:    "platform.internal",
		Message: err.Error(),
	}}
}

// StopOutcome is the closed set of stop results
type StopOutcome string

const (
	Stopped        StopOutcome = "stopped"
	AlreadyStopped StopOutcome = "already_stopped"
	StopRefused    StopOutcome = "refused"
	StopErrored    StopOutcome = "error"
)

// StopResult reports what a stop call did
type StopResult struct {
	Outcome StopOutcome    `json:"outcome"`
	Reason  string         `json:"reason,omitempty"`
	Err     *errdefs.Error `json:"error,omitempty"`
}

// StopOK reports a successful stop
func StopOK() StopResult {
	return StopResult{Outcome: Stopped}
}

// StopAlreadyStopped reports a stop on a stopped node
func StopAlreadyStopped() StopResult {
	return StopResult{Outcome: AlreadyStopped}
}

// StopError reports a failed stop
func StopError(err error) StopResult {
	if e, ok := errdefs.As(err); ok {
		return StopResult{Outcome: StopErrored, Err: e}
	}
	return StopResult{Outcome: StopErrored, Err: &errdefs.Error{
		Code:    "platform.internal",
		Message: err.Error(),
	}}
}

// SyncStatus is the coarse state of one sync execution
type SyncStatus string

const (
	SyncRunning   SyncStatus = "running"
	SyncPaused    SyncStatus = "paused"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
	SyncCancelled SyncStatus = "cancelled"
)

// SyncCompletion is the settled result of a sync
type SyncCompletion struct {
	Status         SyncStatus `json:"status"`
	TasksCompleted int        `json:"tasksCompleted"`
	TasksFailed    int        `json:"tasksFailed"`
	Duration       DurationMS `json:"duration"`
}

// InstallationInfo is the self-description a node returns from describe()
type InstallationInfo struct {
	ID        InstallationID `json:"id"`
	Connector string         `json:"connector"`
	Name      string         `json:"name"`
}
