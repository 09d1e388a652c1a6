// Package tasks provides the built-in local tasks an agent registers at
// startup. Each task is a pure in-process function with an input schema
// derived from its parameter struct.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/maestro-a2a/maestro/pkg/capability"
)

type echoParams struct {
	Value interface{} `json:"value" jsonschema:"description=Value echoed back unchanged"`
}

type timeNowParams struct {
	Format string `json:"format,omitempty" jsonschema:"description=Go time layout; defaults to RFC3339"`
}

type jsonPickParams struct {
	Value interface{} `json:"value" jsonschema:"description=Object to pick from"`
	Path  string      `json:"path" jsonschema:"description=Dot-separated path into the object"`
}

type textTemplateParams struct {
	Template string      `json:"template" jsonschema:"description=Go text/template source"`
	Data     interface{} `json:"data,omitempty" jsonschema:"description=Template data"`
}

// Builtin describes one built-in task: its catalog entry plus implementation.
type Builtin struct {
	Definition *capability.TaskDefinition
	Func       capability.TaskFunc
}

// Builtins returns the built-in task set.
func Builtins() []Builtin {
	return []Builtin{
		{
			Definition: &capability.TaskDefinition{
				ID:          "echo",
				Name:        "Echo",
				Description: "Return the input value unchanged",
				InputSchema: schemaOf(&echoParams{}),
			},
			Func: echoTask,
		},
		{
			Definition: &capability.TaskDefinition{
				ID:          "time.now",
				Name:        "Current time",
				Description: "Return the current time, optionally formatted",
				InputSchema: schemaOf(&timeNowParams{}),
			},
			Func: timeNowTask,
		},
		{
			Definition: &capability.TaskDefinition{
				ID:          "json.pick",
				Name:        "JSON pick",
				Description: "Extract a value from an object by dot path",
				InputSchema: schemaOf(&jsonPickParams{}),
			},
			Func: jsonPickTask,
		},
		{
			Definition: &capability.TaskDefinition{
				ID:          "text.template",
				Name:        "Text template",
				Description: "Render a Go text/template with the given data",
				InputSchema: schemaOf(&textTemplateParams{}),
			},
			Func: textTemplateTask,
		},
	}
}

// Register adds every built-in task to the capability registry and the local
// invoker.
func Register(reg *capability.Registry, invoker *capability.LocalTaskInvoker) error {
	for _, builtin := range Builtins() {
		if err := reg.RegisterTask(builtin.Definition); err != nil {
			return fmt.Errorf("tasks: registering %s: %w", builtin.Definition.ID, err)
		}
		if err := invoker.RegisterFunc(builtin.Definition.ID, builtin.Func); err != nil {
			return fmt.Errorf("tasks: registering %s: %w", builtin.Definition.ID, err)
		}
	}
	return nil
}

func echoTask(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	var p echoParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return p.Value, nil
}

func timeNowTask(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	var p timeNowParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	format := p.Format
	if format == "" {
		format = time.RFC3339
	}
	return map[string]interface{}{"now": time.Now().Format(format)}, nil
}

func jsonPickTask(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	var p jsonPickParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return p.Value, nil
	}

	current := p.Value
	for _, segment := range strings.Split(p.Path, ".") {
		asMap, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("tasks: path %q does not resolve at %q", p.Path, segment)
		}
		current, ok = asMap[segment]
		if !ok {
			return nil, fmt.Errorf("tasks: path %q not found at %q", p.Path, segment)
		}
	}
	return current, nil
}

func textTemplateTask(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	var p textTemplateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	tmpl, err := template.New("task").Parse(p.Template)
	if err != nil {
		return nil, fmt.Errorf("tasks: parsing template: %w", err)
	}

	var b bytes.Buffer
	if err := tmpl.Execute(&b, p.Data); err != nil {
		return nil, fmt.Errorf("tasks: rendering template: %w", err)
	}
	return map[string]interface{}{"text": b.String()}, nil
}

func decodeParams(params map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return fmt.Errorf("tasks: building decoder: %w", err)
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("tasks: invalid parameters: %w", err)
	}
	return nil
}

// schemaOf derives a JSON schema map from a parameter struct.
func schemaOf(v interface{}) map[string]interface{} {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	encoded, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(encoded, &schema); err != nil {
		return nil
	}
	return schema
}
