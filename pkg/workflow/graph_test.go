package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activity(id string, deps ...Dependency) *Activity {
	return &Activity{
		Type:         ActivityDirectTaskExecution,
		ID:           id,
		Description:  "activity " + id,
		TaskConfig:   &TaskConfig{TaskToUse: "echo"},
		Dependencies: deps,
	}
}

func TestBuildGraphLinear(t *testing.T) {
	input := &PlanInput{
		PlanName: "linear",
		Activities: []*Activity{
			activity("a"),
			activity("b", Dependency{Source: "a"}),
			activity("c", Dependency{Source: "b"}),
		},
	}

	g, err := BuildGraph(input)
	require.NoError(t, err)

	assert.Equal(t, "linear", g.PlanName)
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Edges, 2)
	assert.Equal(t, []string{"a", "b", "c"}, g.Order())
	assert.Equal(t, []string{"c"}, g.Terminals())

	require.Len(t, g.Outgoing("a"), 1)
	assert.Equal(t, "b", g.Outgoing("a")[0].Target)
	require.Len(t, g.Incoming("c"), 1)
	assert.Equal(t, "b", g.Incoming("c")[0].Source)
}

func TestBuildGraphDiamond(t *testing.T) {
	input := &PlanInput{
		PlanName: "diamond",
		Activities: []*Activity{
			activity("root"),
			activity("left", Dependency{Source: "root"}),
			activity("right", Dependency{Source: "root"}),
			activity("join", Dependency{Source: "left"}, Dependency{Source: "right"}),
		},
	}

	g, err := BuildGraph(input)
	require.NoError(t, err)

	assert.Equal(t, []string{"join"}, g.Terminals())
	assert.Len(t, g.Outgoing("root"), 2)
	assert.Len(t, g.Incoming("join"), 2)

	// root comes first, join last, in any valid order.
	order := g.Order()
	assert.Equal(t, "root", order[0])
	assert.Equal(t, "join", order[3])
}

func TestBuildGraphRejectsCycle(t *testing.T) {
	input := &PlanInput{
		PlanName: "cyclic",
		Activities: []*Activity{
			activity("a", Dependency{Source: "b"}),
			activity("b", Dependency{Source: "a"}),
		},
	}

	_, err := BuildGraph(input)
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildGraphRejectsSelfDependency(t *testing.T) {
	input := &PlanInput{
		Activities: []*Activity{activity("a", Dependency{Source: "a"})},
	}

	_, err := BuildGraph(input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "itself")
}

func TestBuildGraphRejectsDuplicateIDs(t *testing.T) {
	input := &PlanInput{
		Activities: []*Activity{activity("a"), activity("a")},
	}

	_, err := BuildGraph(input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestBuildGraphRejectsUnknownDependency(t *testing.T) {
	input := &PlanInput{
		Activities: []*Activity{activity("a", Dependency{Source: "ghost"})},
	}

	_, err := BuildGraph(input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown activity")
}

func TestBuildGraphRejectsUnknownActivityType(t *testing.T) {
	input := &PlanInput{
		Activities: []*Activity{{Type: "mystery", ID: "a"}},
	}

	_, err := BuildGraph(input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestBuildGraphRejectsBadCondition(t *testing.T) {
	input := &PlanInput{
		Activities: []*Activity{
			activity("a"),
			activity("b", Dependency{Source: "a", Condition: "result > 5"}),
		},
	}

	_, err := BuildGraph(input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected == or !=")
}

func TestBuildGraphRejectsEmptyPlan(t *testing.T) {
	_, err := BuildGraph(&PlanInput{PlanName: "empty"})
	require.Error(t, err)

	_, err = BuildGraph(nil)
	require.Error(t, err)
}

func TestGraphJSONRoundTrip(t *testing.T) {
	input := &PlanInput{
		PlanName: "roundtrip",
		Activities: []*Activity{
			activity("a"),
			activity("b", Dependency{Source: "a", Condition: "result == 'go'"}),
		},
	}

	original, err := BuildGraph(input)
	require.NoError(t, err)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Graph
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.PlanName, decoded.PlanName)
	assert.Equal(t, original.Edges, decoded.Edges)
	assert.Equal(t, original.Order(), decoded.Order())
	require.Len(t, decoded.Nodes, 2)
	assert.Equal(t, original.Nodes["b"].Dependencies, decoded.Nodes["b"].Dependencies)
	assert.Equal(t, original.Outgoing("a"), decoded.Outgoing("a"))
}

func TestLoadPlanFile(t *testing.T) {
	planJSON := `{
		"plan_name": "from_file",
		"activities": [
			{
				"activity_type": "direct_tool_use",
				"id": "weather",
				"description": "Get the weather",
				"tool_config": {"tool_to_use": "get_weather", "tool_parameters": {"location": "Boston"}}
			}
		]
	}`

	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(planJSON), 0o644))

	g, err := LoadPlanFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from_file", g.PlanName)
	require.Contains(t, g.Nodes, "weather")
	assert.Equal(t, "get_weather", g.Nodes["weather"].ToolConfig.ToolToUse)
}

func TestLoadPlanFileMissing(t *testing.T) {
	_, err := LoadPlanFile("/does/not/exist.json")
	require.Error(t, err)
}
