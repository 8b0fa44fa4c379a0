package rag

import "testing"

func Test_ParseSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		want   Selection
		wantOK bool
	}{
		{
			name:   "plain object",
			raw:    `{"useBook": true, "useChat": false, "reason": "factual question"}`,
			want:   Selection{UseBook: true, UseChat: false, Reason: "factual question"},
			wantOK: true,
		},
		{
			name:   "fenced object",
			raw:    "```json\n{\"useBook\": false, \"useChat\": true, \"reason\": \"follow-up\"}\n```",
			want:   Selection{UseBook: false, UseChat: true, Reason: "follow-up"},
			wantOK: true,
		},
		{
			name:   "object with surrounding prose",
			raw:    `Sure! Here is my decision: {"useBook": true, "useChat": true} Hope that helps.`,
			want:   Selection{UseBook: true, UseChat: true},
			wantOK: true,
		},
		{
			name:   "missing reason is fine",
			raw:    `{"useBook": true, "useChat": false}`,
			want:   Selection{UseBook: true, UseChat: false},
			wantOK: true,
		},
		{
			name:   "not JSON at all",
			raw:    "I think you should use the book.",
			wantOK: false,
		},
		{
			name:   "missing boolean field",
			raw:    `{"useBook": true, "reason": "incomplete"}`,
			wantOK: false,
		},
		{
			name:   "wrong type for boolean",
			raw:    `{"useBook": "yes", "useChat": false}`,
			wantOK: false,
		},
		{
			name:   "truncated object",
			raw:    `{"useBook": true, "useChat":`,
			wantOK: false,
		},
		{
			name:   "empty string",
			raw:    "",
			wantOK: false,
		},
		{
			name:   "braces inside strings do not confuse extraction",
			raw:    `{"useBook": true, "useChat": false, "reason": "covers {nested} topic"}`,
			want:   Selection{UseBook: true, UseChat: false, Reason: "covers {nested} topic"},
			wantOK: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseSelection(tc.raw)
			if ok != tc.wantOK {
				t.Fatalf("parseSelection(%q) ok = %t, want %t", tc.raw, ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("parseSelection(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}
