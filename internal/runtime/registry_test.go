package runtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/Salako07/WKL/internal/domain/execution"
)

func testEnvironment(id string) execution.Environment {
	return execution.Environment{
		ID:         execution.EnvironmentID(id),
		Image:      "python:3.11-alpine",
		SourceFile: "main.py",
		RunCommand: []string{"python3", "{source}"},
		Status:     execution.EnvironmentActive,
	}
}

func TestNewRegistryRequiresEnvironment(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(); err == nil {
		t.Fatalf("expected error for empty registry")
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(testEnvironment("python3.11"), testEnvironment("python3.11")); err == nil {
		t.Fatalf("expected duplicate environment error")
	}
}

func TestResolveUnknownEnvironment(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(testEnvironment("python3.11"))
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	if _, err := reg.Resolve("cobol85"); !errors.Is(err, ErrEnvironmentNotFound) {
		t.Fatalf("expected ErrEnvironmentNotFound, got %v", err)
	}
}

func TestResolveUnavailableEnvironment(t *testing.T) {
	t.Parallel()

	maint := testEnvironment("node18")
	maint.Status = execution.EnvironmentMaintenance
	deprecated := testEnvironment("python3.8")
	deprecated.Status = execution.EnvironmentDeprecated

	reg, err := NewRegistry(maint, deprecated)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	if _, err := reg.Resolve("node18"); !errors.Is(err, ErrEnvironmentUnavailable) {
		t.Fatalf("expected ErrEnvironmentUnavailable, got %v", err)
	}
	if _, err := reg.Resolve("python3.8"); err != nil {
		t.Fatalf("expected deprecated environment to resolve, got %v", err)
	}
}

func TestReplaceSwapsWholeCatalogue(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(testEnvironment("python3.11"))
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	if err := reg.Replace([]execution.Environment{testEnvironment("python3.12"), testEnvironment("node18")}); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	if _, err := reg.Resolve("python3.11"); !errors.Is(err, ErrEnvironmentNotFound) {
		t.Fatalf("expected old environment to be gone, got %v", err)
	}
	list := reg.List()
	if len(list) != 2 || list[0].ID != "node18" || list[1].ID != "python3.12" {
		t.Fatalf("unexpected environment list %+v", list)
	}
}

func TestReplaceKeepsCatalogueOnInvalidInput(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(testEnvironment("python3.11"))
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	broken := testEnvironment("gcc13")
	broken.Image = ""
	if err := reg.Replace([]execution.Environment{testEnvironment("node18"), broken}); err == nil {
		t.Fatalf("expected validation error")
	}

	if _, err := reg.Resolve("python3.11"); err != nil {
		t.Fatalf("expected previous catalogue to remain, got %v", err)
	}
}

func TestResolveDuringReplaceSeesConsistentCatalogue(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(testEnvironment("a"), testEnvironment("b"))
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				_ = reg.Replace([]execution.Environment{testEnvironment("c"), testEnvironment("d")})
			} else {
				_ = reg.Replace([]execution.Environment{testEnvironment("a"), testEnvironment("b")})
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			list := reg.List()
			if len(list) != 2 {
				t.Errorf("expected two environments, got %d", len(list))
				return
			}
			pair := string(list[0].ID) + string(list[1].ID)
			if pair != "ab" && pair != "cd" {
				t.Errorf("observed mixed catalogue %q", pair)
				return
			}
		}
	}()
	wg.Wait()
}

func TestValidateRejectsCompileWithoutArtifact(t *testing.T) {
	t.Parallel()

	env := testEnvironment("go1.22")
	env.CompileCommand = []string{"go", "build", "-o", "program", "{source}"}
	if err := validateEnvironment(env); err == nil {
		t.Fatalf("expected error for compiled environment without artifact")
	}
}
