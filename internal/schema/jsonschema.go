package schema

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// dataURIPattern is the JSON Schema rendering of FormatDataURI.
const dataURIPattern = `^data:[A-Za-z0-9.+-]+/[A-Za-z0-9.+-]+(;[^,;]+)*;base64,`

// JSONSchema renders s as a draft 2020-12 object schema. Structured-output
// requests send it to the model.
func (s Schema) JSONSchema() map[string]any {
	out := objectSchema(s.Fields)
	if s.Description != "" {
		out["description"] = s.Description
	}
	return out
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := []string{}
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func fieldSchema(f Field) map[string]any {
	var out map[string]any
	switch f.Kind {
	case KindObject:
		out = objectSchema(f.Fields)
	case KindArray:
		out = map[string]any{"type": "array"}
		if f.Items != nil {
			out["items"] = fieldSchema(*f.Items)
		}
		if f.MinItems != nil {
			out["minItems"] = *f.MinItems
		}
		if f.MaxItems != nil {
			out["maxItems"] = *f.MaxItems
		}
	default:
		out = map[string]any{"type": string(f.Kind)}
	}
	if f.Description != "" {
		out["description"] = f.Description
	}
	if f.MinLength != nil {
		out["minLength"] = *f.MinLength
	} else if f.NonBlank {
		out["minLength"] = 1
	}
	if f.MaxLength != nil {
		out["maxLength"] = *f.MaxLength
	}
	if len(f.Enum) > 0 {
		out["enum"] = append([]string(nil), f.Enum...)
	}
	if f.Min != nil {
		out["minimum"] = *f.Min
	}
	if f.Max != nil {
		out["maximum"] = *f.Max
	}
	if f.Format == FormatDataURI {
		out["pattern"] = dataURIPattern
	}
	return out
}

// Compiled is a JSON Schema document checked by a standards validator.
type Compiled struct {
	name   string
	doc    []byte
	schema *jsonschema.Schema
}

// Compile renders s and compiles the result. A schema that does not compile
// is a programming error and is surfaced at registration time.
func Compile(s Schema) (*Compiled, error) {
	doc, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", s.Name, err)
	}
	compiled, err := jsonschema.NewCompiler().Compile(doc)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", s.Name, err)
	}
	return &Compiled{name: s.Name, doc: doc, schema: compiled}, nil
}

// Document returns the raw JSON Schema bytes.
func (c *Compiled) Document() json.RawMessage { return json.RawMessage(c.doc) }

// Check runs the standards validator over v and returns its messages.
func (c *Compiled) Check(v any) []string {
	result := c.schema.Validate(v)
	if result.IsValid() {
		return nil
	}
	var details []string
	for _, detail := range result.Errors {
		details = append(details, detail.Message)
	}
	if len(details) == 0 {
		details = append(details, c.name+" does not match schema")
	}
	return details
}
