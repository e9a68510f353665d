package runtime

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Salako07/WKL/internal/domain/execution"
)

const sampleCatalog = `
environments:
  - id: python3.11
    language: python
    version: "3.11"
    image: python:3.11-alpine
    source_file: main.py
    run: ["python3", "{source}"]
    limits:
      default: {time: 5s, memory_mb: 128, output_kb: 64, processes: 64}
      max: {time: 30s, memory_mb: 512, output_kb: 1024, processes: 128}
  - id: gcc13
    language: cpp
    version: "13"
    image: gcc:13
    workdir: /src
    source_file: main.cpp
    compile: ["g++", "-O2", "-o", "program", "{source}"]
    artifact: program
    run: ["./{artifact}"]
    status: maintenance
`

func TestParseCatalog(t *testing.T) {
	t.Parallel()

	envs, err := ParseCatalog([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog returned error: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 environments, got %d", len(envs))
	}

	py := envs[0]
	if py.Workdir != defaultWorkdir {
		t.Fatalf("expected default workdir, got %q", py.Workdir)
	}
	if py.Status != execution.EnvironmentActive {
		t.Fatalf("expected active status, got %q", py.Status)
	}
	if py.DefaultLimits.TimeLimit != 5*time.Second {
		t.Fatalf("expected 5s default time limit, got %v", py.DefaultLimits.TimeLimit)
	}
	if py.DefaultLimits.MemoryLimitBytes != 128<<20 {
		t.Fatalf("expected 128MiB memory, got %d", py.DefaultLimits.MemoryLimitBytes)
	}
	if py.MaxLimits.OutputLimitBytes != 1024<<10 {
		t.Fatalf("expected 1MiB output ceiling, got %d", py.MaxLimits.OutputLimitBytes)
	}

	cpp := envs[1]
	if !cpp.Compiled() {
		t.Fatalf("expected cpp environment to compile")
	}
	if got := cpp.ExpandCommand(cpp.RunCommand, []string{"x"}); len(got) != 2 || got[0] != "./program" || got[1] != "x" {
		t.Fatalf("unexpected run command %v", got)
	}
	if cpp.Status != execution.EnvironmentMaintenance {
		t.Fatalf("expected maintenance status, got %q", cpp.Status)
	}
}

func TestParseCatalogRejectsDefaultAboveMax(t *testing.T) {
	t.Parallel()

	data := `
environments:
  - id: python3.11
    image: python:3.11-alpine
    source_file: main.py
    run: ["python3", "{source}"]
    limits:
      default: {time: 10s}
      max: {time: 5s}
`
	if _, err := ParseCatalog([]byte(data)); err == nil {
		t.Fatalf("expected error for default above maximum")
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "environments.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	envs, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog returned error: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 environments, got %d", len(envs))
	}

	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
