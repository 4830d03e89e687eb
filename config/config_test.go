package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", filepath.Join(dir, "home"))

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Storage != "memory" {
		t.Fatalf("Storage = %q, want memory", c.Storage)
	}
	if c.ConfigFileUsed() != "" {
		t.Fatalf("expected no config file, got %q", c.ConfigFileUsed())
	}
}

func TestLoadDiscoversProjectConfig(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	cokedbDir := filepath.Join(dir, ".cokedb")
	if err := os.MkdirAll(cokedbDir, 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "storage: sqlite\ndata-file: /tmp/cokedb.db\n"
	if err := os.WriteFile(filepath.Join(cokedbDir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	restore := chdir(t, sub)
	defer restore()

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Storage != "sqlite" || c.DataFile != "/tmp/cokedb.db" {
		t.Fatalf("unexpected config: %+v", c)
	}
}

func TestEnvVarOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	cokedbDir := filepath.Join(dir, ".cokedb")
	if err := os.MkdirAll(cokedbDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cokedbDir, "config.yaml"), []byte("storage: sqlite\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	restore := chdir(t, dir)
	defer restore()
	t.Setenv("COKEDB_STORAGE", "memory")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Storage != "memory" {
		t.Fatalf("Storage = %q, want memory (env override)", c.Storage)
	}
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	return func() { _ = os.Chdir(old) }
}
