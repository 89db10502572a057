package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrAbsolutePath  = errors.New("absolute paths are not allowed")
	ErrReservedName  = errors.New("reserved filename not allowed")
	ErrLeadingHyphen = errors.New("filename cannot start with hyphen")
	ErrExtension     = errors.New("file extension does not match image type")

	reservedNames = []string{
		"con", "prn", "aux", "nul",
		"com1", "com2", "com3", "com4", "com5", "com6", "com7", "com8", "com9",
		"lpt1", "lpt2", "lpt3", "lpt4", "lpt5", "lpt6", "lpt7", "lpt8", "lpt9",
	}

	// extensions a downloaded artifact may carry, keyed by mime type
	imageExtensions = map[string][]string{
		"image/png":  {".png"},
		"image/jpeg": {".jpg", ".jpeg"},
		"image/webp": {".webp"},
		"image/gif":  {".gif"},
	}
)

func stem(name string) string {
	base := filepath.Base(name)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ValidateSavePath accepts relative paths that stay below the working directory.
func ValidateSavePath(path string) error {
	if filepath.IsAbs(path) {
		return ErrAbsolutePath
	}
	for _, seg := range strings.FieldsFunc(filepath.ToSlash(path), func(r rune) bool { return r == '/' }) {
		if seg == ".." {
			return ErrPathTraversal
		}
	}
	base := filepath.Base(filepath.Clean(path))
	if slices.Contains(reservedNames, stem(base)) {
		return ErrReservedName
	}
	if strings.HasPrefix(base, "-") {
		return ErrLeadingHyphen
	}
	return nil
}

// ValidateArtifactPath is ValidateSavePath plus an extension check against mimeType.
// A path without an extension is accepted.
func ValidateArtifactPath(path, mimeType string) error {
	if err := ValidateSavePath(path); err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil
	}
	allowed, ok := imageExtensions[mimeType]
	if !ok {
		return nil
	}
	if !slices.Contains(allowed, ext) {
		return fmt.Errorf("%w: %s for %s", ErrExtension, ext, mimeType)
	}
	return nil
}

// SanitizeFilename turns an uploaded file name into a safe single path element.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "",
		"<", "", ">", "", "|", "", "\x00", "",
	)
	clean := replacer.Replace(strings.TrimSpace(name))
	clean = strings.TrimLeft(clean, ".-")
	clean = strings.TrimRight(clean, ". ")

	if slices.Contains(reservedNames, stem(clean)) {
		clean += "_"
	}
	if clean == "" {
		return "image"
	}
	return clean
}
