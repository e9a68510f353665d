package runtime

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Salako07/WKL/internal/domain/execution"
)

const defaultWorkdir = "/workspace"

type catalogFile struct {
	Environments []environmentSpec `yaml:"environments"`
}

type environmentSpec struct {
	ID       string   `yaml:"id"`
	Language string   `yaml:"language"`
	Version  string   `yaml:"version"`
	Image    string   `yaml:"image"`
	Workdir  string   `yaml:"workdir"`
	User     string   `yaml:"user"`
	Source   string   `yaml:"source_file"`
	Compile  []string `yaml:"compile"`
	Artifact string   `yaml:"artifact"`
	Run      []string `yaml:"run"`
	Status   string   `yaml:"status"`
	Limits   struct {
		Default limitsSpec `yaml:"default"`
		Max     limitsSpec `yaml:"max"`
	} `yaml:"limits"`
}

type limitsSpec struct {
	Time      time.Duration `yaml:"time"`
	CPUTime   time.Duration `yaml:"cpu_time"`
	MemoryMB  int64         `yaml:"memory_mb"`
	OutputKB  int64         `yaml:"output_kb"`
	Processes int64         `yaml:"processes"`
}

func (l limitsSpec) toLimits() execution.RunLimits {
	return execution.RunLimits{
		TimeLimit:        l.Time,
		CPUTimeLimit:     l.CPUTime,
		MemoryLimitBytes: l.MemoryMB << 20,
		OutputLimitBytes: l.OutputKB << 10,
		ProcessLimit:     l.Processes,
	}
}

// LoadCatalog reads environment definitions from a YAML file.
func LoadCatalog(path string) ([]execution.Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML environment catalogue.
func ParseCatalog(data []byte) ([]execution.Environment, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	envs := make([]execution.Environment, 0, len(file.Environments))
	seen := make(map[execution.EnvironmentID]struct{}, len(file.Environments))
	for _, spec := range file.Environments {
		env := spec.toEnvironment()
		if err := validateEnvironment(env); err != nil {
			return nil, err
		}
		if _, dup := seen[env.ID]; dup {
			return nil, fmt.Errorf("duplicate environment %q", env.ID)
		}
		seen[env.ID] = struct{}{}
		envs = append(envs, env)
	}
	return envs, nil
}

func (s environmentSpec) toEnvironment() execution.Environment {
	workdir := s.Workdir
	if workdir == "" {
		workdir = defaultWorkdir
	}
	status := execution.EnvironmentStatus(s.Status)
	if status == "" {
		status = execution.EnvironmentActive
	}

	return execution.Environment{
		ID:             execution.EnvironmentID(s.ID),
		Language:       s.Language,
		Version:        s.Version,
		Image:          s.Image,
		Workdir:        workdir,
		User:           s.User,
		SourceFile:     s.Source,
		CompileCommand: s.Compile,
		ArtifactFile:   s.Artifact,
		RunCommand:     s.Run,
		DefaultLimits:  s.Limits.Default.toLimits(),
		MaxLimits:      s.Limits.Max.toLimits(),
		Status:         status,
	}
}
