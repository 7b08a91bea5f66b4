package inference

import (
	"context"
	"encoding/json"
	"testing"
)

const testSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "count": {"type": "integer"}
  },
  "required": ["name", "count"],
  "additionalProperties": false
}`

func TestValidateAgainstSchema(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		ok      bool
	}{
		{"valid", `{"name": "a", "count": 2}`, true},
		{"missing field", `{"name": "a"}`, false},
		{"wrong type", `{"name": "a", "count": "two"}`, false},
		{"extra field", `{"name": "a", "count": 2, "x": 1}`, false},
		{"not json", `{{`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAgainstSchema("test", json.RawMessage(testSchema), []byte(tc.payload))
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMockServiceScriptedResponses(t *testing.T) {
	mock := NewMockService()
	mock.Responses = []json.RawMessage{
		json.RawMessage(`{"a": 1}`),
		json.RawMessage(`{"a": 2}`),
	}

	ctx := context.Background()
	first, err := mock.Infer(ctx, Request{SchemaName: "s"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := mock.Infer(ctx, Request{SchemaName: "s"})
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != `{"a": 1}` || string(second) != `{"a": 2}` {
		t.Errorf("responses out of order: %s, %s", first, second)
	}

	if _, err := mock.Infer(ctx, Request{SchemaName: "s"}); err == nil {
		t.Error("exhausted mock should error")
	}
	if mock.CallCount() != 3 {
		t.Errorf("CallCount() = %d, want 3", mock.CallCount())
	}
}
