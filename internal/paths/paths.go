// Package paths confines caller-supplied destinations to the output root.
package paths

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"html2image/internal/domain"
)

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9_\- ]+\.(png|jpg|jpeg)$`)

// Target is a sanitized destination below the output root.
type Target struct {
	// Dir is the absolute directory the image is written into.
	Dir string
	// File is the absolute path of the image.
	File string
	// Rel is the cleaned destination relative to the root ("." for the root itself).
	Rel string
}

// ValidFilename reports whether name is an allowed image file name.
func ValidFilename(name string) bool {
	return filenamePattern.MatchString(name)
}

// SanitizeDir normalizes a relative destination so it can never leave the
// directory it is joined to. Backslashes count as separators, "." and ".."
// are resolved, and parent segments that would climb above the start are
// dropped instead of rejected. An absolute destination is treated as relative.
func SanitizeDir(dest string) string {
	p := strings.ReplaceAll(dest, `\`, "/")
	// Rooting before Clean discards every ".." that would escape.
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "."
	}
	return p
}

// Resolve computes the on-disk location for dest/filename under root.
// It fails with domain.ErrInvalidFilename when filename is not allowed.
func Resolve(root, dest, filename string) (Target, error) {
	rel := SanitizeDir(dest)
	dir := filepath.Join(root, filepath.FromSlash(rel))
	t := Target{Dir: dir, File: filepath.Join(dir, filename), Rel: rel}

	if !ValidFilename(filename) {
		return t, fmt.Errorf("%w: %q", domain.ErrInvalidFilename, filename)
	}
	return t, nil
}

// Within reports whether p is root or lies below it.
func Within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
