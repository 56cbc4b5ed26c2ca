package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChildLoggersChainLevelCalls(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	// level methods must chain directly off every helper
	WithComponent("engine").Info().Str("k", "v").Msg("stored")
	WithWorkspaceID("w1").Debug().Msg("reconciled")
	WithInstallationID("i1").Warn().Msg("slow probe")
	WithSyncID("s1").Error().Msg("drain failed")
	WithTaskID("t1").Info().Msg("claimed")

	out := buf.String()
	assert.Contains(t, out, `"component":"engine"`)
	assert.Contains(t, out, `"workspace_id":"w1"`)
	assert.Contains(t, out, `"installation_id":"i1"`)
	assert.Contains(t, out, `"sync_id":"s1"`)
	assert.Contains(t, out, `"task_id":"t1"`)
	assert.Contains(t, out, `"k":"v"`)
}

func TestInitDefaultsUnknownLevelToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "verbose", JSONOutput: true, Output: &buf})

	Logger.Debug().Msg("hidden")
	Logger.Info().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
