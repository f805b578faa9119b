package schema

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJSONSchemaExport(t *testing.T) {
	s := New("emotion",
		String("emotion", Required()),
		Number("confidence", Required(), Min(0), Max(1)),
		Object("recommendedExercise", []Field{
			String("name", Required()),
			String("description", Required()),
		}, Required()),
	)
	got := s.JSONSchema()
	if got["type"] != "object" || got["additionalProperties"] != false {
		t.Fatalf("root: %#v", got)
	}
	if diff := cmp.Diff([]string{"emotion", "confidence", "recommendedExercise"}, got["required"]); diff != "" {
		t.Fatalf("required (-want +got):\n%s", diff)
	}
	props := got["properties"].(map[string]any)
	conf := props["confidence"].(map[string]any)
	if conf["minimum"] != 0.0 || conf["maximum"] != 1.0 {
		t.Fatalf("confidence bounds: %#v", conf)
	}
	ex := props["recommendedExercise"].(map[string]any)
	if ex["type"] != "object" {
		t.Fatalf("nested: %#v", ex)
	}
}

func TestCompiledAgreesWithValidator(t *testing.T) {
	c, err := Compile(wellnessInput)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(c.Document(), &doc); err != nil {
		t.Fatalf("document is not JSON: %v", err)
	}

	good := map[string]any{"age": 20.0, "mood": 55.0, "thoughts": "fine"}
	if _, err := Validate(wellnessInput, good); err != nil {
		t.Fatalf("validator rejected good input: %v", err)
	}
	if msgs := c.Check(good); len(msgs) != 0 {
		t.Fatalf("compiled schema rejected good input: %v", msgs)
	}

	bad := map[string]any{"age": 20.0, "mood": 101.0, "thoughts": "fine"}
	if _, err := Validate(wellnessInput, bad); err == nil {
		t.Fatal("validator accepted mood=101")
	}
	if msgs := c.Check(bad); len(msgs) == 0 {
		t.Fatal("compiled schema accepted mood=101")
	}
}
