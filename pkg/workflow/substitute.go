package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// refPattern matches {{activity_id.dot.path}} reference expressions. The
// path may be empty, which refers to the whole output.
var refPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+)((?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// MissingOutputError reports a reference to a dependency whose output is
// not in the completed-outputs map. The executor guarantees all
// dependencies are complete before substitution, so hitting this is a
// programming error upstream.
type MissingOutputError struct {
	ActivityID string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("workflow: no completed output for dependency %q", e.ActivityID)
}

// Substitute walks a JSON template and expands every reference expression
// against the completed-outputs map. It is pure: the template is not
// mutated and the result shares no mutable state with it.
//
// A string leaf that consists of exactly one reference expression is
// replaced by the raw resolved value, preserving its type. Expressions
// embedded in surrounding text are stringified and spliced. Non-string
// leaves pass through unchanged.
func Substitute(template interface{}, outputs map[string]interface{}) (interface{}, error) {
	switch node := template.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(node))
		for key, value := range node {
			substituted, err := Substitute(value, outputs)
			if err != nil {
				return nil, err
			}
			out[key] = substituted
		}
		return out, nil

	case []interface{}:
		out := make([]interface{}, len(node))
		for i, value := range node {
			substituted, err := Substitute(value, outputs)
			if err != nil {
				return nil, err
			}
			out[i] = substituted
		}
		return out, nil

	case string:
		return SubstituteString(node, outputs)

	default:
		return node, nil
	}
}

// SubstituteString expands reference expressions inside a single string.
// The result is the raw resolved value when the whole string is one
// expression, otherwise a string with stringified values spliced in.
func SubstituteString(s string, outputs map[string]interface{}) (interface{}, error) {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-string expression: preserve the resolved value's type. The
	// string must be exactly one expression; surrounding text, even plain
	// whitespace, makes it a splice.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		match := refPattern.FindStringSubmatch(s)
		return resolveReference(match[1], match[2], outputs)
	}

	var b strings.Builder
	last := 0
	for _, match := range matches {
		b.WriteString(s[last:match[0]])

		id := s[match[2]:match[3]]
		path := ""
		if match[4] >= 0 {
			path = s[match[4]:match[5]]
		}

		value, err := resolveReference(id, path, outputs)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(value))
		last = match[1]
	}
	b.WriteString(s[last:])

	return b.String(), nil
}

// resolveReference looks up the dependency output and traverses the dot
// path. A missing dependency id is an error; a missing path resolves to an
// empty string with a warning.
func resolveReference(id, dotPath string, outputs map[string]interface{}) (interface{}, error) {
	output, ok := outputs[id]
	if !ok {
		return nil, &MissingOutputError{ActivityID: id}
	}

	if dotPath == "" {
		return output, nil
	}

	current := output
	segments := strings.Split(strings.TrimPrefix(dotPath, "."), ".")
	for i, segment := range segments {
		asMap, ok := current.(map[string]interface{})
		if !ok {
			slog.Warn("Reference path does not resolve",
				"activity", id,
				"path", dotPath,
				"segment", strings.Join(segments[:i+1], "."),
			)
			return "", nil
		}
		current, ok = asMap[segment]
		if !ok {
			slog.Warn("Reference path not found in output",
				"activity", id,
				"path", dotPath,
				"segment", strings.Join(segments[:i+1], "."),
			)
			return "", nil
		}
	}

	return current, nil
}

// stringify renders a resolved value for splicing into surrounding text.
func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
