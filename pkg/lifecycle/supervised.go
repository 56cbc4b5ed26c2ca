package lifecycle

import (
	"context"

	"github.com/maxsync/max/pkg/types"
)

// Supervised is the health and lifecycle contract every node exposes
// upward. Start is idempotent: a second call reports already_running. Stop
// may run repeatedly. Health never returns an error; probes report
// unhealthy instead of failing.
type Supervised interface {
	Health(ctx context.Context) types.HealthStatus
	Start(ctx context.Context) types.StartResult
	Stop(ctx context.Context) types.StopResult
}
