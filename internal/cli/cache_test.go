package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

// writeConfig writes a config file and returns its path.
func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCacheDirDefault(t *testing.T) {
	c := New(&bytes.Buffer{}, log.InfoLevel)
	dir, err := c.cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}
	if filepath.Base(dir) != appName {
		t.Errorf("cacheDir() = %q, want it to end in %q", dir, appName)
	}
}

func TestCachePathCommand(t *testing.T) {
	want := t.TempDir()
	cfg := writeConfig(t, "[cache]\ndir = \""+filepath.ToSlash(want)+"\"\n")

	c := New(&bytes.Buffer{}, log.InfoLevel)
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"cache", "path", "--config", cfg})
	if err := root.Execute(); err != nil {
		t.Fatalf("cache path: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != filepath.ToSlash(want) {
		t.Errorf("cache path = %q, want %q", got, want)
	}
}

func TestCacheClearCommand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "b.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := writeConfig(t, "[cache]\ndir = \""+filepath.ToSlash(dir)+"\"\n")

	root := New(&bytes.Buffer{}, log.InfoLevel).RootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"cache", "clear", "--config", cfg})
	if err := root.Execute(); err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d entries left after clear", len(entries))
	}
}
