package supervisor

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
}

type stubClient struct {
	health  types.HealthStatus
	panics  bool
	started []string
	name    string
	rec     *[]string
}

func (c *stubClient) Health(ctx context.Context) types.HealthStatus {
	if c.panics {
		panic("connection refused")
	}
	return c.health
}

func (c *stubClient) Start(ctx context.Context) types.StartResult {
	if c.rec != nil {
		*c.rec = append(*c.rec, "start:"+c.name)
	}
	return types.StartOK()
}

func (c *stubClient) Stop(ctx context.Context) types.StopResult {
	if c.rec != nil {
		*c.rec = append(*c.rec, "stop:"+c.name)
	}
	return types.StopOK()
}

func newSupervisor() *Supervisor[types.InstallationID, *stubClient] {
	n := 0
	return New[types.InstallationID, *stubClient](func() types.InstallationID {
		n++
		return types.InstallationID(fmt.Sprintf("gen-%d", n))
	})
}

func handleOf(c *stubClient) UnlabelledHandle[*stubClient] {
	return UnlabelledHandle[*stubClient]{Kind: types.DeployInline, Client: c}
}

func TestRegisterStampsID(t *testing.T) {
	s := newSupervisor()

	h, err := s.Register(handleOf(&stubClient{}), "")
	require.NoError(t, err)
	assert.Equal(t, types.InstallationID("gen-1"), h.ID)

	h2, err := s.Register(handleOf(&stubClient{}), "explicit")
	require.NoError(t, err)
	assert.Equal(t, types.InstallationID("explicit"), h2.ID)

	_, err = s.Register(handleOf(&stubClient{}), "explicit")
	assert.Error(t, err)
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	s := newSupervisor()
	for _, id := range []types.InstallationID{"c", "a", "b"} {
		_, err := s.Register(handleOf(&stubClient{}), id)
		require.NoError(t, err)
	}

	var ids []types.InstallationID
	for _, h := range s.List() {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []types.InstallationID{"c", "a", "b"}, ids)

	assert.True(t, s.Unregister("a"))
	assert.False(t, s.Unregister("a"))

	ids = nil
	for _, h := range s.List() {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []types.InstallationID{"c", "b"}, ids)
}

func TestHealthAggregation(t *testing.T) {
	healthy := func() *stubClient { return &stubClient{health: types.HealthyStatus()} }
	unhealthy := func() *stubClient { return &stubClient{health: types.UnhealthyStatus("down")} }
	degraded := func() *stubClient { return &stubClient{health: types.DegradedStatus("meh")} }

	tests := []struct {
		name     string
		clients  []*stubClient
		expected types.HealthState
	}{
		{"empty is healthy", nil, types.Healthy},
		{"all healthy", []*stubClient{healthy(), healthy()}, types.Healthy},
		{"all unhealthy", []*stubClient{unhealthy(), unhealthy()}, types.Unhealthy},
		{"mixed is degraded", []*stubClient{healthy(), unhealthy()}, types.Degraded},
		{"degraded child is degraded", []*stubClient{healthy(), degraded()}, types.Degraded},
		{"panicking child counts unhealthy", []*stubClient{healthy(), {panics: true}}, types.Degraded},
		{"all panicking is unhealthy", []*stubClient{{panics: true}, {panics: true}}, types.Unhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSupervisor()
			for i, c := range tt.clients {
				_, err := s.Register(handleOf(c), types.InstallationID(fmt.Sprintf("i%d", i)))
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, s.Health(context.Background()).Status)
		})
	}
}

func TestStopAllReversesOrder(t *testing.T) {
	s := newSupervisor()
	var rec []string
	for _, name := range []string{"a", "b", "c"} {
		client := &stubClient{name: name, rec: &rec}
		_, err := s.Register(handleOf(client), types.InstallationID(name))
		require.NoError(t, err)
	}

	s.StartAll(context.Background())
	s.StopAll(context.Background())

	assert.Equal(t, []string{
		"start:a", "start:b", "start:c",
		"stop:c", "stop:b", "stop:a",
	}, rec)
}
