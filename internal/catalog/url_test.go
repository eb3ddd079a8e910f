package catalog

import "testing"

func TestExtractProductID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{
			name:   "product page with color path",
			url:    "https://www.uniqlo.com/id/id/products/E479678-000/00",
			want:   "E479678-000",
			wantOK: true,
		},
		{
			name:   "bare product path",
			url:    "https://www.uniqlo.com/id/id/products/E459565-000",
			want:   "E459565-000",
			wantOK: true,
		},
		{
			name:   "query string after code",
			url:    "https://www.uniqlo.com/id/id/products/E474062-000/00?colorDisplayCode=09",
			want:   "E474062-000",
			wantOK: true,
		},
		{
			name: "missing color suffix",
			url:  "https://www.uniqlo.com/id/id/products/E479678",
		},
		{
			name: "not a product url",
			url:  "https://www.uniqlo.com/id/id/spl/ut",
		},
		{
			name: "empty",
			url:  "",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractProductID(tt.url)
			if ok != tt.wantOK {
				t.Fatalf("ExtractProductID(%q) ok = %v, want %v", tt.url, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("ExtractProductID(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
