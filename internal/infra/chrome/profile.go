package chrome

import (
	"fmt"
	"os"

	"html2image/internal/config"
)

// createProfileDir makes a fresh browser profile directory below
// cfg.UserDataDir, or below the OS temp dir when that is unset.
func createProfileDir(cfg config.RenderConfig) (string, error) {
	base := cfg.UserDataDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("cannot create profile base dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, "html2image-profile-*")
	if err != nil {
		return "", fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	return dir, nil
}
