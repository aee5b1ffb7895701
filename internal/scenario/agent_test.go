package scenario

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverEntrypoint(t *testing.T) {
	dir := t.TempDir()
	if _, err := discoverEntrypoint(dir); err == nil {
		t.Fatalf("expected error for empty directory")
	}
	if err := os.WriteFile(filepath.Join(dir, "agent.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	entry, err := discoverEntrypoint(dir)
	if err != nil || entry != "agent.py" {
		t.Fatalf("expected agent.py, got %q (%v)", entry, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	entry, err = discoverEntrypoint(dir)
	if err != nil || entry != "main.py" {
		t.Fatalf("main.py should win over agent.py, got %q (%v)", entry, err)
	}
}

func TestLastLines(t *testing.T) {
	if got := lastLines("a\nb\nc\n", 2); got != "b | c" {
		t.Fatalf("lastLines=%q", got)
	}
	if got := lastLines("", 3); got != "" {
		t.Fatalf("expected empty tail, got %q", got)
	}
}
