package intake

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecureFilename(t *testing.T) {
	onWindows := runtime.GOOS == "windows"
	tests := []struct {
		in      string
		want    string
		windows string // when the result differs on Windows
	}{
		{"brain.nii.gz", "brain.nii.gz", ""},
		{"My cool movie.mov", "My_cool_movie.mov", ""},
		{"../../../etc/passwd", "etc_passwd", ""},
		{`C:\scans\flair.nii`, "Cscansflair.nii", "C_scans_flair.nii"},
		{`a\b.nii`, "ab.nii", "a_b.nii"},
		{"i contain cool \xfcml\xe4uts.txt", "i_contain_cool_mluts.txt", ""},
		{"i contain cool ümläuts.nii", "i_contain_cool_umlauts.nii", ""},
		{"ﬁle.nii", "file.nii", ""},
		{"  spaced\tout  .nii ", "spaced_out_.nii", ""},
		{"...hidden.nii", "hidden.nii", ""},
		{"뇌영상.nii.gz", "nii.gz", ""},
		{"scan (1).nii", "scan_1.nii", ""},
		{"CON.nii", "CON.nii", "_CON.nii"},
		{"lpt1", "lpt1", "_lpt1"},
		{"console.nii", "console.nii", ""},
		{"", "", ""},
		{"///", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			want := tt.want
			if onWindows && tt.windows != "" {
				want = tt.windows
			}
			assert.Equal(t, want, SecureFilename(tt.in))
		})
	}
}

func TestHasAllowedExtension(t *testing.T) {
	exts := []string{".nii", ".nii.gz"}

	assert.True(t, hasAllowedExtension("scan.nii", exts))
	assert.True(t, hasAllowedExtension("scan.NII.GZ", exts))
	assert.True(t, hasAllowedExtension(".nii", exts))
	assert.False(t, hasAllowedExtension("scan.nii.zip", exts))
	assert.False(t, hasAllowedExtension("scan.gz", exts))
	assert.False(t, hasAllowedExtension("notes.txt", exts))
	assert.False(t, hasAllowedExtension("scan.nii", nil))
}
