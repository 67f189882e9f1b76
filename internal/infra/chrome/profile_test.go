package chrome

import (
	"os"
	"path/filepath"
	"testing"

	"html2image/internal/config"
)

func TestCreateProfileDir_DefaultAndCustomBase(t *testing.T) {
	var cfg config.RenderConfig
	dir1, err := createProfileDir(cfg)
	if err != nil {
		t.Fatalf("createProfileDir default base failed: %v", err)
	}
	defer os.RemoveAll(dir1)
	if _, err := os.Stat(dir1); err != nil {
		t.Fatalf("expected created dir to exist: %v", err)
	}

	customBase := filepath.Join(t.TempDir(), "nested")
	cfg.UserDataDir = customBase
	dir2, err := createProfileDir(cfg)
	if err != nil {
		t.Fatalf("createProfileDir custom base failed: %v", err)
	}
	defer os.RemoveAll(dir2)
	if filepath.Dir(dir2) != customBase {
		t.Fatalf("expected profile dir under custom base %q, got %q", customBase, dir2)
	}
}

func TestCreateProfileDir_InvalidBase(t *testing.T) {
	cfg := config.RenderConfig{UserDataDir: "/dev/null/x"}
	if _, err := createProfileDir(cfg); err == nil {
		t.Fatalf("expected error for invalid base dir")
	}
}
