package execution

import "strings"

// EnvironmentID names a runtime configuration, e.g. "python3.11".
type EnvironmentID string

// EnvironmentStatus tells whether an environment accepts new submissions.
type EnvironmentStatus string

const (
	EnvironmentActive      EnvironmentStatus = "active"
	EnvironmentMaintenance EnvironmentStatus = "maintenance"
	EnvironmentDeprecated  EnvironmentStatus = "deprecated"
	EnvironmentDisabled    EnvironmentStatus = "disabled"
)

// Command template tokens expanded when building sandbox commands.
const (
	SourceToken   = "{source}"
	ArtifactToken = "{artifact}"
)

// Environment is an immutable runtime definition. New versions are
// registered under new identifiers instead of being edited in place.
type Environment struct {
	ID       EnvironmentID
	Language string
	Version  string
	Image    string
	Workdir  string
	User     string

	SourceFile     string
	CompileCommand []string
	ArtifactFile   string
	RunCommand     []string

	DefaultLimits RunLimits
	MaxLimits     RunLimits

	Status EnvironmentStatus
}

// Compiled reports whether the environment has a build phase.
func (e Environment) Compiled() bool {
	return len(e.CompileCommand) > 0
}

// AcceptsSubmissions reports whether new runs may be admitted.
func (e Environment) AcceptsSubmissions() bool {
	switch e.Status {
	case "", EnvironmentActive, EnvironmentDeprecated:
		return true
	default:
		return false
	}
}

// ExpandCommand substitutes template tokens and appends extra arguments.
func (e Environment) ExpandCommand(template []string, extra []string) []string {
	cmd := make([]string, 0, len(template)+len(extra))
	for _, part := range template {
		part = strings.ReplaceAll(part, SourceToken, e.SourceFile)
		part = strings.ReplaceAll(part, ArtifactToken, e.ArtifactFile)
		cmd = append(cmd, part)
	}
	return append(cmd, extra...)
}
