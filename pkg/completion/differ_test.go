package completion

import "testing"

func TestDiffer(t *testing.T) {
	tests := []struct {
		name   string
		inputs []string
		want   []string
	}{
		{
			name:   "growing",
			inputs: []string{"Hel", "Hello", "Hello, world"},
			want:   []string{"Hel", "lo", ", world"},
		},
		{
			name:   "repeat yields nothing",
			inputs: []string{"abc", "abc"},
			want:   []string{"abc", ""},
		},
		{
			name:   "rewritten tail",
			inputs: []string{"![img](/api/v1/files/1/content", "![img](https://cdn/files/1)"},
			want:   []string{"![img](/api/v1/files/1/content", "https://cdn/files/1)"},
		},
		{
			name:   "shrink",
			inputs: []string{"abcdef", "abc"},
			want:   []string{"abcdef", ""},
		},
		{
			name:   "divergence inside a multibyte rune",
			inputs: []string{"价", "仿"},
			want:   []string{"价", "仿"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Differ
			for i, in := range tt.inputs {
				if got := d.Next(in); got != tt.want[i] {
					t.Errorf("step %d: Next(%q) = %q, want %q", i, in, got, tt.want[i])
				}
				if d.Sent() != in {
					t.Errorf("step %d: Sent() = %q, want %q", i, d.Sent(), in)
				}
			}
		})
	}
}
