package catalog

import "testing"

func TestNormalizeSizeCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		displayCode string
		sizeCode    string
		want        string
	}{
		{name: "display code wins", displayCode: "004", sizeCode: "INS004", want: "004"},
		{name: "trailing digits from full code", displayCode: "", sizeCode: "INS027", want: "027"},
		{name: "two trailing digits", displayCode: "", sizeCode: "SIZ00", want: "00"},
		{name: "no digits falls through", displayCode: "", sizeCode: "ONESIZE", want: "ONESIZE"},
		{name: "both empty", displayCode: "", sizeCode: "", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := normalizeSizeCode(tt.displayCode, tt.sizeCode); got != tt.want {
				t.Fatalf("normalizeSizeCode(%q, %q) = %q, want %q", tt.displayCode, tt.sizeCode, got, tt.want)
			}
		})
	}
}

func TestSizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want string
	}{
		{code: "00", want: "FREE SIZE"},
		{code: "003", want: "S"},
		{code: "010", want: "5XL"},
		{code: "027", want: `27"`},
		{code: "120", want: "120cm"},
		{code: "999", want: "999"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.code, func(t *testing.T) {
			t.Parallel()
			if got := SizeName(tt.code); got != tt.want {
				t.Fatalf("SizeName(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestSizeSortKeyOrdering(t *testing.T) {
	t.Parallel()

	// A rack run in the order we want it displayed.
	run := []string{"FREE SIZE", "XXS", "XS", "S", "M", "L", "XL", "XXL", "XXXL", "4XL", "5XL", `27"`, `30"`, "100cm", "150cm"}
	for i := 1; i < len(run); i++ {
		prev, cur := run[i-1], run[i]
		if SizeSortKey(prev) >= SizeSortKey(cur) {
			t.Fatalf("SizeSortKey(%q) = %d not below SizeSortKey(%q) = %d", prev, SizeSortKey(prev), cur, SizeSortKey(cur))
		}
	}

	if got := SizeSortKey("  m "); got != SizeSortKey("M") {
		t.Fatalf("SizeSortKey is not case/space insensitive: got %d", got)
	}
	if got := SizeSortKey("mystery"); got != 1000 {
		t.Fatalf("SizeSortKey(unknown) = %d, want 1000", got)
	}
}
