package generation

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExtractCodeBlock(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "javascript fence",
			response: "Here is the test:\n```javascript\nconst x = 1;\n```\nDone.",
			want:     "const x = 1;",
		},
		{
			name:     "js fence",
			response: "```js\nawait vault.withdraw(1);\n```",
			want:     "await vault.withdraw(1);",
		},
		{
			name:     "bare fence",
			response: "```\nit(\"drains\", async () => {});\n```",
			want:     "it(\"drains\", async () => {});",
		},
		{
			name:     "unfenced but looks like code",
			response: "describe(\"exploit\", () => {\n  it(\"works\", () => {});\n});",
			want:     "describe(\"exploit\", () => {\n  it(\"works\", () => {});\n});",
		},
		{
			name:     "prose only",
			response: "I cannot produce that.",
			wantErr:  true,
		},
		{
			name:     "json fence is not code",
			response: "```json\n{\"secure\": true}\n```",
			wantErr:  true,
		},
		{
			name:     "js fence beside json fence",
			response: "```json\n{\"note\": \"verdict\"}\n```\n```js\nawait vault.withdraw(1);\n```",
			want:     "await vault.withdraw(1);",
		},
		{
			name:     "unterminated fence",
			response: "```javascript\nconst x = 1;",
			wantErr:  true,
		},
		{
			name:     "empty fence",
			response: "```javascript\n\n```",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractCodeBlock(tt.response)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantKey  string
		wantErr  bool
	}{
		{
			name:     "fenced json",
			response: "```json\n{\"secure\": true}\n```",
			wantKey:  "secure",
		},
		{
			name:     "bare object with prose",
			response: "The verdict:\n{\"secure\": false, \"explanation\": \"reentrancy\"}\nEnd.",
			wantKey:  "explanation",
		},
		{
			name:     "no object",
			response: "nothing to see",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var m map[string]interface{}
			if err := json.Unmarshal([]byte(got), &m); err != nil {
				t.Fatalf("extracted text is not valid JSON: %v\n%s", err, got)
			}
			if _, ok := m[tt.wantKey]; !ok {
				t.Errorf("key %q missing from %v", tt.wantKey, m)
			}
		})
	}
}

func TestExtractJSON_NestedBraces(t *testing.T) {
	response := `{"fix": "call {value: 1}", "ops": {"a": 1}}`
	got, err := ExtractJSON(response)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "{") || !strings.HasSuffix(got, "}") {
		t.Errorf("got %q", got)
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(got), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
}
