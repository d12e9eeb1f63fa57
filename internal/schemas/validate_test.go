package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validExtraction = `{
  "events": [
    {
      "company_name": "Acme Corp",
      "status_type": "layoff",
      "severity": "medium",
      "affected_departments": ["Engineering"],
      "employee_count_impact": 250,
      "start_date": "2026-01-15",
      "end_date": null,
      "description": "Acme Corp is cutting 250 engineering jobs."
    }
  ]
}`

func TestValidate_StatusEvents_Valid(t *testing.T) {
	assert.NoError(t, Validate(StatusEvents, []byte(validExtraction)))
	assert.NoError(t, Validate(StatusEvents, []byte(`{"events": []}`)))
}

func TestValidate_StatusEvents_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"missing events", `{}`, "(root)"},
		{"unknown status type", `{"events":[{"company_name":"A","status_type":"strike","severity":"low","start_date":"2026-01-01","description":"d"}]}`, "events.0.status_type"},
		{"bad date", `{"events":[{"company_name":"A","status_type":"layoff","severity":"low","start_date":"Jan 1","description":"d"}]}`, "events.0.start_date"},
		{"negative impact", `{"events":[{"company_name":"A","status_type":"layoff","severity":"low","start_date":"2026-01-01","description":"d","employee_count_impact":-5}]}`, "events.0.employee_count_impact"},
		{"empty company", `{"events":[{"company_name":"","status_type":"layoff","severity":"low","start_date":"2026-01-01","description":"d"}]}`, "events.0.company_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(StatusEvents, []byte(tt.doc))
			require.Error(t, err)

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "error should be ValidationError type")
			fields := make([]string, 0, len(validationErr.Errors))
			for _, fe := range validationErr.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("missing.schema.json", []byte(`{}`))
	require.Error(t, err)

	var loadErr *SchemaLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "missing.schema.json", loadErr.Name)
}

func TestValidate_MalformedDocument(t *testing.T) {
	err := Validate(StatusEvents, []byte(`{"events": [`))
	require.Error(t, err)

	var validationErr *ValidationError
	assert.False(t, errors.As(err, &validationErr))
}

func TestValidationError_Format(t *testing.T) {
	err := &ValidationError{Errors: []FieldError{{Field: "events", Message: "is required"}}}
	assert.Equal(t, "validation failed:\n  1. events: is required\n", err.Error())
}
