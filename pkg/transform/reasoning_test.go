package transform

import "testing"

func TestNormalizeReasoning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "plain text",
			in:   "hello",
			want: "hello",
		},
		{
			name: "finished block",
			in:   "<details type=\"reasoning\" done=\"true\" duration=\"3\">\n<summary>Thought for 3 seconds</summary>\n> step one\n> step two\n</details>\nAnswer",
			want: "<think>\n> step one\n> step two\n</think>\nAnswer",
		},
		{
			name: "unfinished block",
			in:   "<details type=\"reasoning\" done=\"false\">\n<summary>Thinking…</summary>\n> partial\n</details>\n",
			want: "<think>\n> partial\n",
		},
		{
			name: "unfinished block still streaming",
			in:   "<details type=\"reasoning\" done=\"false\">\n<summary>Thinking…</summary>\npartial",
			want: "<think>\npartial",
		},
		{
			name: "unfinished block with no body yet",
			in:   "<details type=\"reasoning\" done=\"false\"><summary>x</summary>",
			want: "<think>",
		},
		{
			name: "unfinished block followed by answer",
			in:   "<details type=\"reasoning\" done=\"false\">\n<summary>Thinking…</summary>\n> step\n</details>\nAnswer",
			want: "<think>\n> step\nAnswer",
		},
		{
			name: "finished block without trailing newline is untouched",
			in:   "<details type=\"reasoning\" done=\"true\" duration=\"1\"><summary>x</summary>body</details>",
			want: "<details type=\"reasoning\" done=\"true\" duration=\"1\"><summary>x</summary>body</details>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeReasoning(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeReasoning() = %q, want %q", got, tt.want)
			}
			if again := NormalizeReasoning(got); again != got {
				t.Errorf("NormalizeReasoning is not idempotent: %q -> %q", got, again)
			}
		})
	}
}
