package files

import (
	"strings"
	"testing"
)

func TestObjectKeyLayout(t *testing.T) {
	key := objectKey("idea-1", "roadmap.pdf")
	if !strings.HasPrefix(key, "ideas/idea-1/") {
		t.Fatalf("unexpected key prefix: %s", key)
	}
	if !strings.HasSuffix(key, "/roadmap.pdf") {
		t.Fatalf("unexpected key suffix: %s", key)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"roadmap.pdf", "roadmap.pdf"},
		{"../../etc/passwd", "passwd"},
		{"q3 plan (final).xlsx", "q3_plan__final_.xlsx"},
		{"", "attachment"},
		{"///", "attachment"},
	}
	for _, tc := range cases {
		if got := sanitizeFileName(tc.in); got != tc.want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
