package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/maestro-a2a/maestro/pkg/workflow"
)

var (
	thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// ParseError reports an LLM response that could not be read as a plan.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("planner: unparseable plan: %s", e.Reason)
}

// parsePlan extracts the plan JSON from a raw LLM completion. Reasoning
// preambles in <think> tags and markdown code fences are stripped first.
func parsePlan(raw string) (*workflow.PlanInput, error) {
	cleaned := strings.TrimSpace(thinkPattern.ReplaceAllString(raw, ""))

	if match := fencePattern.FindStringSubmatch(cleaned); match != nil {
		cleaned = strings.TrimSpace(match[1])
	}

	if cleaned == "" {
		return nil, &ParseError{Reason: "empty response"}
	}

	var input workflow.PlanInput
	if err := json.Unmarshal([]byte(cleaned), &input); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	return &input, nil
}
