package discovery

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-a2a/maestro/pkg/capability"
)

func testAgent(id, skill string) *capability.AgentDefinition {
	return &capability.AgentDefinition{
		ID:          id,
		EndpointURL: "http://" + id + ".local",
		Skills:      []capability.Skill{{Name: skill}},
	}
}

func newTestPair(t *testing.T) (*Server, *Client) {
	t.Helper()
	server := NewServer()
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL)
	client.sleep = func(time.Duration) {}
	return server, client
}

func TestRegisterAndList(t *testing.T) {
	_, client := newTestPair(t)
	ctx := context.Background()

	require.NoError(t, client.Register(ctx, testAgent("weather-agent", "weather_lookup")))
	require.NoError(t, client.Register(ctx, testAgent("report-agent", "report_writing")))

	agents, err := client.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "report-agent", agents[0].ID)
	assert.Equal(t, "weather-agent", agents[1].ID)
}

func TestReRegisterReplaces(t *testing.T) {
	_, client := newTestPair(t)
	ctx := context.Background()

	require.NoError(t, client.Register(ctx, testAgent("weather-agent", "weather_lookup")))

	updated := testAgent("weather-agent", "forecasting")
	require.NoError(t, client.Register(ctx, updated))

	agents, err := client.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.True(t, agents[0].HasSkill("forecasting"))
	assert.False(t, agents[0].HasSkill("weather_lookup"))
}

func TestSearchBySkill(t *testing.T) {
	_, client := newTestPair(t)
	ctx := context.Background()

	require.NoError(t, client.Register(ctx, testAgent("weather-agent", "weather_lookup")))
	require.NoError(t, client.Register(ctx, testAgent("report-agent", "report_writing")))

	agents, err := client.SearchBySkill(ctx, "weather_lookup")
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "weather-agent", agents[0].ID)

	agents, err = client.SearchBySkill(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestDeregister(t *testing.T) {
	_, client := newTestPair(t)
	ctx := context.Background()

	def := testAgent("weather-agent", "weather_lookup")
	require.NoError(t, client.Register(ctx, def))
	require.NoError(t, client.Deregister(ctx, def))

	agents, err := client.ListAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, agents)

	// Deregistering twice reports not found.
	assert.Error(t, client.Deregister(ctx, def))
}

func TestRegisterRejectsMalformed(t *testing.T) {
	_, client := newTestPair(t)

	err := client.Register(context.Background(), &capability.AgentDefinition{ID: "no-endpoint"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint_url")
}

func TestRegisterRetriesThenGivesUp(t *testing.T) {
	client := NewClient("http://127.0.0.1:1") // nothing listens here
	var waits []time.Duration
	client.sleep = func(d time.Duration) { waits = append(waits, d) }

	err := client.Register(context.Background(), testAgent("weather-agent", "weather_lookup"))
	require.Error(t, err)

	// Two retries with doubling backoff, then the caller continues
	// unregistered.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestClientAsAgentSource(t *testing.T) {
	_, client := newTestPair(t)
	ctx := context.Background()
	require.NoError(t, client.Register(ctx, testAgent("weather-agent", "weather_lookup")))

	reg := capability.NewRegistry(capability.WithAgentSource(client))
	require.NoError(t, reg.Refresh(ctx))

	agent, err := reg.ResolveAgent("", "weather_lookup")
	require.NoError(t, err)
	assert.Equal(t, "weather-agent", agent.ID)
}
