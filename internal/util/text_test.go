package util

import "testing"

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain utf8",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "contains null byte",
			input: "hel\x00lo",
			want:  "hello",
		},
		{
			name:  "contains invalid utf8",
			input: string([]byte{'a', 0xff, 'b'}),
			want:  "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizePostgresText(tt.input)
			if got != tt.want {
				t.Fatalf("unexpected sanitized value: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompactWhitespace(t *testing.T) {
	got := CompactWhitespace("MATCH (d:Document)\n\tWHERE d.status = 'Completed'\n  RETURN d")
	want := "MATCH (d:Document) WHERE d.status = 'Completed' RETURN d"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{input: "short", max: 10, want: "short"},
		{input: "a longer sentence", max: 8, want: "a lon..."},
		{input: "äöüß", max: 2, want: "äö"},
		{input: "anything", max: 0, want: ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.input, tt.max); got != tt.want {
			t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}
