package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jwolabs/vaultwatch/internal/config"
)

func TestInitWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	if err := Init(config.Logging{Level: "debug", File: path}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("log directory not created: %v", err)
	}
}

func TestInitReportsUnusableLogDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// The configured log file's parent is a regular file, so the
	// directory cannot be created.
	err := Init(config.Logging{Level: "info", File: filepath.Join(blocker, "app.log")})
	if err == nil {
		t.Fatal("expected an error for an unusable log directory")
	}
}
