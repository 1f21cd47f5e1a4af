package security

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "frames"), 0o755))

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"direct child", filepath.Join(dir, "a.png"), true},
		{"nested", filepath.Join(dir, "frames", "b.png"), true},
		{"missing nested", filepath.Join(dir, "new", "deeper", "c.png"), true},
		{"dot dot inside", filepath.Join(dir, "frames", "..", "d.png"), true},
		{"dir itself", dir, true},
		{"escape", filepath.Join(dir, "..", "e.png"), false},
		{"root", "/etc/passwd", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := WithinDir(tt.path, dir)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWithinDirSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	t.Parallel()
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	assert.Error(t, WithinDir(filepath.Join(dir, "link", "frame.png"), dir))
	assert.Error(t, WithinDir(filepath.Join(dir, "link", "missing", "frame.png"), dir))
}

func TestWithinAnyDir(t *testing.T) {
	t.Parallel()
	a, b := t.TempDir(), t.TempDir()
	assert.NoError(t, WithinAnyDir(filepath.Join(b, "x"), a, b))
	assert.Error(t, WithinAnyDir(filepath.Join(b, "x"), a))
	assert.Error(t, WithinAnyDir(filepath.Join(b, "x")))
}

func TestValidateExportPath(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateExportPath(filepath.Join(os.TempDir(), "timeline.png")))
	assert.NoError(t, ValidateExportPath("timeline.png"))
	assert.Error(t, ValidateExportPath("/proc/timeline.png"))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"timeline-1234.png", "timeline-1234.png"},
		{"../../etc/passwd", "etc_passwd"},
		{"corner 7 / north", "corner_7_north"},
		{"", "unknown"},
		{"...", "unknown"},
		{"crème brûlée", "cr_me_br_l_e"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), tt.in)
	}
	assert.Len(t, SanitizeFilename(strings.Repeat("a", 500)), maxFilename)
}
