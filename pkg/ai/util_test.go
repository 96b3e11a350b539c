package ai

import "testing"

type testPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestUnmarshalFlexible(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  testPayload
	}{
		{
			name:  "standard json",
			input: `{"name": "claude", "count": 3}`,
			want:  testPayload{Name: "claude", Count: 3},
		},
		{
			name:  "double encoded",
			input: `"{\"name\": \"claude\", \"count\": 3}"`,
			want:  testPayload{Name: "claude", Count: 3},
		},
		{
			name:  "unquoted keys repaired",
			input: `{name: "claude", count: 3}`,
			want:  testPayload{Name: "claude", Count: 3},
		},
		{
			name:  "code fence stripped",
			input: "```json\n{\"name\": \"claude\", \"count\": 3}\n```",
			want:  testPayload{Name: "claude", Count: 3},
		},
		{
			name:  "trailing comma repaired",
			input: `{"name": "claude", "count": 3,}`,
			want:  testPayload{Name: "claude", Count: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got testPayload
			if err := UnmarshalFlexible(tt.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("UnmarshalFlexible() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	var got testPayload
	if err := UnmarshalFlexible("not even close to json {{{", &got); err == nil {
		t.Fatal("expected error for unrecoverable input")
	}
}
