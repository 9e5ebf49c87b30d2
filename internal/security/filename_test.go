package security

import "testing"

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "face", "face"},
		{"keeps safe punctuation", "face-scan_v2.1", "face-scan_v2.1"},
		{"spaces become underscores", "my face scan", "my_face_scan"},
		{"run of junk collapses", "a!!!b", "a_b"},
		{"path separators stripped", "../../etc/passwd", "etc_passwd"},
		{"unicode replaced", "визит", "scan"},
		{"empty", "", "scan"},
		{"only junk", "!!!", "scan"},
		{"trims leading dots", "..hidden", "hidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	if got := SanitizeFilename(string(long)); len(got) > 128 {
		t.Errorf("long name not truncated: %d chars", len(got))
	}
}
