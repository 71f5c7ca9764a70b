package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	outDir := filepath.Join(tmpDir, "plots")
	elsewhere := filepath.Join(tmpDir, "elsewhere")
	for _, d := range []string{outDir, elsewhere} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	link := filepath.Join(outDir, "link")
	if err := os.Symlink(elsewhere, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		baseDir   string
		wantError bool
	}{
		{"file in dir", filepath.Join(outDir, "bar.png"), outDir, false},
		{"missing nested dir", filepath.Join(outDir, "a", "b", "bar.png"), outDir, false},
		{"dir itself", outDir, outDir, false},
		{"dotdot escape", filepath.Join(outDir, "..", "bar.png"), outDir, true},
		{"relative escape", "../../../etc/passwd", outDir, true},
		{"absolute outside", "/etc/passwd", outDir, true},
		{"through symlink", filepath.Join(link, "bar.png"), outDir, true},
		{"symlink itself", link, outDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.baseDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory() error = %v, wantError %v", err, tt.wantError)
			}
			if err != nil && !errors.Is(err, ErrPathEscape) {
				t.Errorf("expected ErrPathEscape, got %v", err)
			}
		})
	}
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()

	got, err := OutputPath(dir, "delay=10ms/tcp by ber", ".png")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "delay_10ms_tcp_by_ber.png"); got != want {
		t.Errorf("OutputPath() = %q, want %q", got, want)
	}

	got, err = OutputPath(dir, "../../escape", ".html")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(got) != dir {
		t.Errorf("sanitised name left %q outside %q", got, dir)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "unknown"},
		{"...", "unknown"},
		{"off95", "off95"},
		{"ber=1e-05", "ber_1e-05"},
		{"a  //  b", "a_b"},
		{"__x__", "x"},
		{"µs", "s"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	if got := SanitizeFilename(string(long)); len(got) != 128 {
		t.Errorf("expected 128 bytes, got %d", len(got))
	}
}
