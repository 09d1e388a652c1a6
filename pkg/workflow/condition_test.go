package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalCondition(t *testing.T) {
	tests := []struct {
		name   string
		expr   string
		output interface{}
		want   bool
	}{
		{
			name:   "equality match",
			expr:   "result == 'Weekend'",
			output: "Weekend",
			want:   true,
		},
		{
			name:   "equality mismatch",
			expr:   "result == 'Weekend'",
			output: "Weekday",
			want:   false,
		},
		{
			name:   "inequality match",
			expr:   "result != 'Weekend'",
			output: "Weekday",
			want:   true,
		},
		{
			name:   "inequality mismatch",
			expr:   "result != 'Weekend'",
			output: "Weekend",
			want:   false,
		},
		{
			name:   "double quotes",
			expr:   `result == "approved"`,
			output: "approved",
			want:   true,
		},
		{
			name:   "bare literal",
			expr:   "result == approved",
			output: "approved",
			want:   true,
		},
		{
			name:   "literal on the left",
			expr:   "'Weekend' == result",
			output: "Weekend",
			want:   true,
		},
		{
			name:   "literal to literal",
			expr:   "'a' == 'a'",
			output: "anything",
			want:   true,
		},
		{
			name:   "empty expression is true",
			expr:   "",
			output: "anything",
			want:   true,
		},
		{
			name:   "whitespace-only expression is true",
			expr:   "   ",
			output: "anything",
			want:   true,
		},
		{
			name:   "non-string output compares as JSON",
			expr:   "result == '42'",
			output: float64(42),
			want:   true,
		},
		{
			name:   "bool output compares as JSON",
			expr:   "result == 'true'",
			output: true,
			want:   true,
		},
		{
			name:   "object output compares as compact JSON",
			expr:   `result == '{"status":"ok"}'`,
			output: map[string]interface{}{"status": "ok"},
			want:   true,
		},
		{
			name:   "nil output is empty string",
			expr:   "result == ''",
			output: nil,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalCondition(tt.expr, tt.output)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConditionRejectsUnknownOperators(t *testing.T) {
	exprs := []string{
		"result > 5",
		"result contains 'x'",
		"result",
		"result = 'x'",
	}

	for _, expr := range exprs {
		_, err := ParseCondition(expr)
		require.Error(t, err, expr)

		var condErr *ConditionError
		require.ErrorAs(t, err, &condErr)
		assert.Equal(t, expr, condErr.Expression)
	}
}

func TestParseConditionRejectsMissingOperand(t *testing.T) {
	_, err := ParseCondition("result ==")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing operand")

	_, err = ParseCondition("== 'x'")
	require.Error(t, err)
}

func TestParseConditionEmpty(t *testing.T) {
	cond, err := ParseCondition("")
	require.NoError(t, err)
	assert.Nil(t, cond)
	assert.True(t, cond.Eval("anything"))
}
