package main

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"html2image/internal/config"
	"html2image/internal/infra/chrome"
)

func TestStartServer_GracefulShutdownOnSignal(t *testing.T) {
	app := fiber.New()
	var cfg config.Config
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = ":0"

	idleConnsClosed := make(chan struct{})
	go startServer(app, cfg, idleConnsClosed)

	time.Sleep(100 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to send SIGTERM: %v", err)
	}

	select {
	case <-idleConnsClosed:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for graceful shutdown")
	}
}

func TestNewEngine_SelectsConfiguredDriver(t *testing.T) {
	cfg := config.Defaults().Render
	if _, ok := newEngine(cfg).(*chrome.Chromedp); !ok {
		t.Fatalf("expected chromedp engine by default")
	}
	cfg.Engine = config.EngineRod
	if _, ok := newEngine(cfg).(*chrome.Rod); !ok {
		t.Fatalf("expected rod engine")
	}
}

func TestMain_UsesConfigAndShutsDown(t *testing.T) {
	root := filepath.Join(t.TempDir(), "output")
	cfgPath := filepath.Join(t.TempDir(), "cfg.yaml")
	err := os.WriteFile(cfgPath, []byte(`
server:
  host: "127.0.0.1"
  port: ":0"
  prefork: false
  body_limit_mb: 1
logger:
  file: "`+filepath.Join(t.TempDir(), `html2image.log`)+`"
  level: "info"
  max_size_mb: 1
  max_backups: 1
  max_age_days: 1
  compress: false
output:
  root: "`+root+`"
cache:
  redis_host: "127.0.0.1:1"
  redis_rate_db: 0
  redis_lock_db: 1
render:
  engine: "chromedp"
  timeout: 1s
  max_concurrent: 1
`), 0o644)
	if err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("CHROME_BIN", "/bin/true")

	args := os.Args
	os.Args = []string{"html2image"}
	t.Cleanup(func() { os.Args = args })

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	time.Sleep(500 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("signal main: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for main to exit")
	}

	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		t.Fatalf("expected output root to be created, err=%v", err)
	}
}

func TestLoadConfig_FlagOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	flagPath := filepath.Join(dir, "flag.yaml")
	envPath := filepath.Join(dir, "env.yaml")
	if err := os.WriteFile(flagPath, []byte("output:\n  root: \""+filepath.Join(dir, "from-flag")+"\"\n"), 0o644); err != nil {
		t.Fatalf("write flag cfg: %v", err)
	}
	if err := os.WriteFile(envPath, []byte("output:\n  root: \""+filepath.Join(dir, "from-env")+"\"\n"), 0o644); err != nil {
		t.Fatalf("write env cfg: %v", err)
	}
	t.Setenv("CONFIG_PATH", envPath)
	t.Setenv("OUTPUT_ROOT", "")

	cfg, err := loadConfig([]string{"--config", flagPath})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Output.Root != filepath.Join(dir, "from-flag") {
		t.Fatalf("expected flag config, got root %q", cfg.Output.Root)
	}

	cfg, err = loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Output.Root != filepath.Join(dir, "from-env") {
		t.Fatalf("expected CONFIG_PATH config, got root %q", cfg.Output.Root)
	}

	if _, err := loadConfig([]string{"--bogus"}); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}
