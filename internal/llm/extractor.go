package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema describes the JSON an extraction prompt asks the model for.
// When Collection is set the model returns {"<Collection>": [ {Fields...} ]}.
type ExtractionSchema struct {
	Name        string
	Description string
	Collection  string
	Fields      []SchemaField
	Rules       []string
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint shown to the model
	Description string
	Required    bool
}

// BuildExtractionPrompt constructs the LLM prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	indent := "  "
	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n")
	if schema.Collection != "" {
		fmt.Fprintf(&sb, "{\n  %q: [\n    {\n", schema.Collection)
		indent = "      "
	} else {
		sb.WriteString("{\n")
	}
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = `"string"`
		}
		fmt.Fprintf(&sb, "%s%q: %s", indent, field.Name, typeHint)
		if field.Required {
			sb.WriteString(" (required)")
		}
		if field.Description != "" {
			fmt.Fprintf(&sb, " // %s", field.Description)
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	if schema.Collection != "" {
		sb.WriteString("    }\n  ]\n}\n\n")
	} else {
		sb.WriteString("}\n\n")
	}

	sb.WriteString("IMPORTANT:\n")
	for _, rule := range schema.Rules {
		fmt.Fprintf(&sb, "- %s\n", rule)
	}
	sb.WriteString("- Extract information directly from the text, do not invent facts.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input text:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// StatusEventsSchema returns the extraction schema for workforce status events.
// description is the task preamble; callers usually render it from a prompt template.
func StatusEventsSchema(description string) ExtractionSchema {
	return ExtractionSchema{
		Name:        "StatusEvents",
		Description: description,
		Collection:  "events",
		Fields: []SchemaField{
			{Name: "company_name", Type: `"string"`, Description: "Company as named in the text", Required: true},
			{Name: "status_type", Type: `"layoff" | "hiring_freeze" | "mass_hiring" | "restructuring"`, Required: true},
			{Name: "severity", Type: `"low" | "medium" | "high"`, Required: true},
			{Name: "affected_departments", Type: `["string"]`, Description: "Departments named in the text, empty if none"},
			{Name: "employee_count_impact", Type: "integer | null", Description: "Number of employees affected, null if not stated"},
			{Name: "start_date", Type: `"YYYY-MM-DD"`, Description: "When the change takes effect or was announced", Required: true},
			{Name: "end_date", Type: `"YYYY-MM-DD" | null`},
			{Name: "description", Type: `"string"`, Description: "One or two factual sentences", Required: true},
			{Name: "source_url", Type: `"string" | null`, Description: "Article URL if the text contains one"},
		},
		Rules: []string{
			"Only report events about a specific company's workforce.",
			`Return {"events": []} when the text describes no such event.`,
		},
	}
}
