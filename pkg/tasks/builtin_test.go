package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-a2a/maestro/pkg/capability"
)

func registeredInvoker(t *testing.T) (*capability.Registry, *capability.LocalTaskInvoker) {
	t.Helper()
	reg := capability.NewRegistry()
	invoker := capability.NewLocalTaskInvoker()
	require.NoError(t, Register(reg, invoker))
	return reg, invoker
}

func invoke(t *testing.T, invoker *capability.LocalTaskInvoker, taskID string, params map[string]interface{}) map[string]interface{} {
	t.Helper()
	raw, err := invoker.Invoke(context.Background(), taskID, params)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestRegisterPublishesDefinitions(t *testing.T) {
	reg, _ := registeredInvoker(t)

	for _, id := range []string{"echo", "time.now", "json.pick", "text.template"} {
		def, ok := reg.Task(id)
		require.True(t, ok, id)
		assert.NotEmpty(t, def.Description)
		assert.NotEmpty(t, def.InputSchema, id)
		assert.Equal(t, "object", def.InputSchema["type"])
	}

	text := reg.DescribeCapabilities()
	assert.Contains(t, text, "time.now")
	assert.Contains(t, text, "json.pick")
}

func TestRegisterTwiceFails(t *testing.T) {
	reg, invoker := registeredInvoker(t)
	assert.Error(t, Register(reg, invoker))
}

func TestEcho(t *testing.T) {
	_, invoker := registeredInvoker(t)

	raw, err := invoker.Invoke(context.Background(), "echo", map[string]interface{}{
		"value": map[string]interface{}{"nested": float64(7)},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"nested": 7}`, string(raw))
}

func TestTimeNow(t *testing.T) {
	_, invoker := registeredInvoker(t)

	out := invoke(t, invoker, "time.now", nil)
	now, ok := out["now"].(string)
	require.True(t, ok)

	parsed, err := time.Parse(time.RFC3339, now)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), parsed, time.Minute)
}

func TestTimeNowCustomFormat(t *testing.T) {
	_, invoker := registeredInvoker(t)

	out := invoke(t, invoker, "time.now", map[string]interface{}{"format": "2006-01-02"})
	_, err := time.Parse("2006-01-02", out["now"].(string))
	assert.NoError(t, err)
}

func TestJSONPick(t *testing.T) {
	_, invoker := registeredInvoker(t)

	raw, err := invoker.Invoke(context.Background(), "json.pick", map[string]interface{}{
		"value": map[string]interface{}{
			"address": map[string]interface{}{"city": "Boston"},
		},
		"path": "address.city",
	})
	require.NoError(t, err)
	assert.Equal(t, `"Boston"`, string(raw))
}

func TestJSONPickMissingPath(t *testing.T) {
	_, invoker := registeredInvoker(t)

	_, err := invoker.Invoke(context.Background(), "json.pick", map[string]interface{}{
		"value": map[string]interface{}{"a": float64(1)},
		"path":  "a.b",
	})
	require.Error(t, err)

	var invErr *capability.InvokerError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "json.pick", invErr.Capability)
}

func TestTextTemplate(t *testing.T) {
	_, invoker := registeredInvoker(t)

	out := invoke(t, invoker, "text.template", map[string]interface{}{
		"template": "Hello {{.name}}!",
		"data":     map[string]interface{}{"name": "Maestro"},
	})
	assert.Equal(t, "Hello Maestro!", out["text"])
}

func TestTextTemplateParseError(t *testing.T) {
	_, invoker := registeredInvoker(t)

	_, err := invoker.Invoke(context.Background(), "text.template", map[string]interface{}{
		"template": "{{.unclosed",
	})
	assert.Error(t, err)
}
