package resolver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/brainamp/planner-engine/internal/domain/course"
)

const classificationSchemaURL = "mem://planner/classification.json"

// classificationSchema admits exactly {"id": string|null}.
const classificationSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"id": {"type": ["string", "null"]}
	},
	"required": ["id"],
	"additionalProperties": false
}`

func compileClassificationSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(classificationSchemaURL, strings.NewReader(classificationSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(classificationSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// decodeClassification validates the model's reply against the schema
// before trusting it. Fenced or chatty replies fail validation.
func decodeClassification(schema *jsonschema.Schema, content string) (*course.Classification, error) {
	var doc any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}

	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidReply, firstSchemaError(err))
	}

	var out course.Classification
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	if out.ID != nil && strings.TrimSpace(*out.ID) == "" {
		out.ID = nil
	}
	return &out, nil
}

func firstSchemaError(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return fmt.Sprintf("%s: %s", ve.InstanceLocation, ve.Message)
}
