package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/Salako07/WKL/internal/domain/execution"
)

var (
	// ErrEnvironmentNotFound is returned when no environment has the requested id.
	ErrEnvironmentNotFound = errors.New("environment not found")
	// ErrEnvironmentUnavailable is returned for environments that exist but do
	// not accept submissions.
	ErrEnvironmentUnavailable = errors.New("environment unavailable")
)

type environmentSet map[execution.EnvironmentID]execution.Environment

// Registry maps environment identifiers to runtime definitions. Readers see
// either the previous or the next catalogue, never a partial one.
type Registry struct {
	envs atomic.Pointer[environmentSet]
}

// NewRegistry constructs a registry from the supplied environments.
func NewRegistry(envs ...execution.Environment) (*Registry, error) {
	reg := &Registry{}
	if err := reg.Replace(envs); err != nil {
		return nil, err
	}
	return reg, nil
}

// Replace swaps the whole catalogue. The current one stays in place when
// envs is invalid.
func (r *Registry) Replace(envs []execution.Environment) error {
	set := make(environmentSet, len(envs))
	for _, env := range envs {
		if err := validateEnvironment(env); err != nil {
			return err
		}
		if _, exists := set[env.ID]; exists {
			return fmt.Errorf("duplicate environment %q", env.ID)
		}
		set[env.ID] = env
	}

	if len(set) == 0 {
		return fmt.Errorf("at least one environment must be registered")
	}

	r.envs.Store(&set)
	return nil
}

// Resolve returns the environment registered under id.
func (r *Registry) Resolve(id execution.EnvironmentID) (execution.Environment, error) {
	set := r.envs.Load()
	if set == nil {
		return execution.Environment{}, fmt.Errorf("%w: %q", ErrEnvironmentNotFound, id)
	}

	env, ok := (*set)[id]
	if !ok {
		return execution.Environment{}, fmt.Errorf("%w: %q", ErrEnvironmentNotFound, id)
	}
	if !env.AcceptsSubmissions() {
		return env, fmt.Errorf("%w: %q is %s", ErrEnvironmentUnavailable, id, env.Status)
	}
	return env, nil
}

// List returns every registered environment ordered by id.
func (r *Registry) List() []execution.Environment {
	set := r.envs.Load()
	if set == nil {
		return nil
	}

	out := make([]execution.Environment, 0, len(*set))
	for _, env := range *set {
		out = append(out, env)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func validateEnvironment(env execution.Environment) error {
	if env.ID == "" {
		return fmt.Errorf("environment missing identifier")
	}
	if env.Image == "" {
		return fmt.Errorf("environment %q missing image", env.ID)
	}
	if env.SourceFile == "" {
		return fmt.Errorf("environment %q missing source file", env.ID)
	}
	if len(env.RunCommand) == 0 {
		return fmt.Errorf("environment %q missing run command", env.ID)
	}
	if env.Compiled() && env.ArtifactFile == "" {
		return fmt.Errorf("environment %q compiles but declares no artifact", env.ID)
	}
	switch env.Status {
	case "", execution.EnvironmentActive, execution.EnvironmentMaintenance,
		execution.EnvironmentDeprecated, execution.EnvironmentDisabled:
	default:
		return fmt.Errorf("environment %q has unknown status %q", env.ID, env.Status)
	}
	if field := env.DefaultLimits.Exceeds(env.MaxLimits); field != "" {
		return fmt.Errorf("environment %q default %s is above its maximum", env.ID, field)
	}
	return nil
}
