package sizing

import "testing"

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"4096", 4096},
		{"12b", 12},
		{"1 kB", 1000},
		{"1k", 1000},
		{"1 GB", 1000 * 1000 * 1000},
		{"2 TB", 2 * 1000 * 1000 * 1000 * 1000},
		{"1 PB", 1000 * 1000 * 1000 * 1000 * 1000},
		{"1 KiB", 1024},
		{"512 MiB", 512 * 1024 * 1024},
		{"1gib", 1024 * 1024 * 1024},
		{"1Ti", 1024 * 1024 * 1024 * 1024},
		{"1 PiB", 1024 * 1024 * 1024 * 1024 * 1024},
		{"1.5 KiB", 1536},
		{"  10 MB  ", 10 * 1000 * 1000},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "GB", "-1 MB", "1 XB", "1 GiBB", "one"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q) error = nil, want error", in)
		}
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	if got := Format(1536); got != "1.5KiB" {
		t.Fatalf("Format(1536) = %q, want %q", got, "1.5KiB")
	}
}
