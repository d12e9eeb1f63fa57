package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock_ExtractionReplies(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "fenced events object",
			input: "```json\n{\"events\":[{\"company_name\":\"Acme Corp\",\"status_type\":\"layoff\"}]}\n```",
			want:  `{"events":[{"company_name":"Acme Corp","status_type":"layoff"}]}`,
		},
		{
			name:  "no events with preamble",
			input: "No workforce changes were reported.\n{\"events\": []}",
			want:  `{"events": []}`,
		},
		{
			name:  "bare array",
			input: `[{"company_name":"Globex","status_type":"hiring_freeze"}]`,
			want:  `[{"company_name":"Globex","status_type":"hiring_freeze"}]`,
		},
		{
			name:  "fenced empty array without tag",
			input: "```\n[]\n```",
			want:  `[]`,
		},
		{
			name:  "closing fence on the last JSON line",
			input: "```json\n{\"events\": []}```",
			want:  `{"events": []}`,
		},
		{
			name:  "single-line fence",
			input: "```{\"events\": []}```",
			want:  `{"events": []}`,
		},
		{
			name:  "tag with trailing space",
			input: "```json \n{\"events\": []}\n```",
			want:  `{"events": []}`,
		},
		{
			name:  "description with braces and brackets",
			input: `{"events":[{"description":"cuts {50%} of staff [estimate]"}]} trailing`,
			want:  `{"events":[{"description":"cuts {50%} of staff [estimate]"}]}`,
		},
		{
			name:  "description with escaped quotes",
			input: "Result:\n{\"events\":[{\"description\":\"CEO called it \\\"a tough call\\\" }\"}]}\nHope this helps.",
			want:  `{"events":[{"description":"CEO called it \"a tough call\" }"}]}`,
		},
		{
			name:  "escaped backslash before closing quote",
			input: `{"description":"path C:\\"} extra`,
			want:  `{"description":"path C:\\"}`,
		},
		{
			name:  "truncated reply is returned from the opening brace",
			input: "Here: {\"events\": [",
			want:  `{"events": [`,
		},
		{
			name:  "prose only",
			input: "  I could not find any workforce events.  ",
			want:  "I could not find any workforce events.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.input))
		})
	}
}

func TestStripFences_VerdictReplies(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"tagged", "```json\ntrue\n```", "true"},
		{"untagged", "```\nfalse\n```", "false"},
		{"answer on fence line", "```true\n```", "true"},
		{"prose on fence line", "```they match\ntrue\n```", "they match\ntrue"},
		{"several lines", "```\nfalse\ntrue\n```", "false\ntrue"},
		{"surrounding whitespace", "  ```text\nfalse\n```  ", "false"},
		{"no fence", " true ", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.input))
		})
	}
}

func TestIsFenceTag(t *testing.T) {
	for _, tag := range []string{"json", "JSON", "text", "", "json "} {
		assert.True(t, isFenceTag(tag), "%q", tag)
	}
	for _, line := range []string{"true", "False", "null", `"true"`, "{\"events\": []}", "[]", "they are the same", "averyveryverylongtagname"} {
		assert.False(t, isFenceTag(line), "%q", line)
	}
}

func TestExtractBalanced(t *testing.T) {
	tests := []struct {
		name  string
		input string
		open  byte
		shut  byte
		want  string
	}{
		{"nested events", `{"events":[{"a":{"b":1}}]} x`, '{', '}', `{"events":[{"a":{"b":1}}]}`},
		{"array of drafts", `[{"id":1},{"id":2}] trailing`, '[', ']', `[{"id":1},{"id":2}]`},
		{"closing bracket inside string", `["a]b", "c"]`, '[', ']', `["a]b", "c"]`},
		{"unbalanced", `{"events": [{}`, '{', '}', ""},
		{"wrong opener", `[1]`, '{', '}', ""},
		{"empty", "", '{', '}', ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractBalanced(tt.input, tt.open, tt.shut))
		})
	}
}
