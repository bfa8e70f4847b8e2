package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("FATTURE_CLI_TEST=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("FATTURE_CLI_TEST") })

	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file should be ignored: %v", err)
	}
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("FATTURE_CLI_TEST"); got != "loaded" {
		t.Errorf("FATTURE_CLI_TEST = %q", got)
	}
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug")
	if logger == nil {
		t.Fatal("nil logger")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should be enabled")
	}
}
