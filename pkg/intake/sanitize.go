package intake

import (
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// windowsDeviceNames are reserved on Windows regardless of extension. The
// prefix is only applied when running on Windows.
var windowsDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SecureFilename reduces a client supplied filename to a flat ASCII name
// that is safe to join onto a directory. Path separators of the host OS
// become word breaks; any other punctuation, a backslash on Unix included,
// is dropped. The result may be empty.
func SecureFilename(name string) string {
	decomposed := norm.NFKD.String(name)

	var ascii strings.Builder
	for _, r := range decomposed {
		switch {
		case r == '/' || r == filepath.Separator:
			ascii.WriteByte(' ')
		case r < 0x80:
			ascii.WriteRune(r)
		}
	}

	joined := strings.Join(strings.Fields(ascii.String()), "_")

	var kept strings.Builder
	for _, r := range joined {
		if isFilenameChar(r) {
			kept.WriteRune(r)
		}
	}

	result := strings.Trim(kept.String(), "._")
	if result == "" {
		return ""
	}

	stem, _, _ := strings.Cut(result, ".")
	if runtime.GOOS == "windows" && windowsDeviceNames[strings.ToUpper(stem)] {
		result = "_" + result
	}
	return result
}

func isFilenameChar(r rune) bool {
	return r >= 'a' && r <= 'z' ||
		r >= 'A' && r <= 'Z' ||
		r >= '0' && r <= '9' ||
		r == '_' || r == '.' || r == '-'
}

// hasAllowedExtension is a case-insensitive suffix match
func hasAllowedExtension(filename string, extensions []string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
