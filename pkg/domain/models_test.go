package domain

import "testing"

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"strips scheme and www", "https://www.Example.com/Page", "example.com/page"},
		{"strips trailing slash", "https://example.com/page/", "example.com/page"},
		{"drops query string", "https://example.com/page?utm_source=mail&id=5", "example.com/page"},
		{"http and https collapse", "http://example.com/page", "example.com/page"},
		{"bare host", "https://example.com/", "example.com"},
		{"unparseable input", "not a url/", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.raw); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeURLDistinguishesPaths(t *testing.T) {
	a := NormalizeURL("https://example.com/one")
	b := NormalizeURL("https://example.com/two")
	if a == b {
		t.Errorf("distinct paths normalized to same key %q", a)
	}
}
