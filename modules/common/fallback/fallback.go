package fallback

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	maxStemLength   = 50
	defaultStem     = "image"
	randomSuffixLen = 8
)

// SafeString returns a trimmed string or the provided fallback.
func SafeString(value interface{}, fallback string) string {
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s != "" {
			return s
		}
	}
	return fallback
}

// SanitizeStem strips the extension and every non-alphanumeric character from a file name,
// caps it at 50 characters and falls back to "image" when nothing is left.
func SanitizeStem(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))

	var b strings.Builder
	for _, r := range base {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			if b.Len() >= maxStemLength {
				break
			}
		}
	}

	if b.Len() == 0 {
		return defaultStem
	}
	return b.String()
}

// RandomSuffix returns 8 random lowercase hex characters.
func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:randomSuffixLen]
}

// GeneratedFileName builds "{stem}-{random}.{ext}" from the source file name.
func GeneratedFileName(sourceFileName, ext string) string {
	return fmt.Sprintf("%s-%s.%s", SanitizeStem(sourceFileName), RandomSuffix(), ext)
}

// RegeneratedFileName is the retry name used when the first upload fails.
func RegeneratedFileName(ext string) string {
	return fmt.Sprintf("regenerated-%s.%s", RandomSuffix(), ext)
}
