package docker

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/docker/docker/client"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/ports"
)

var _ ports.Runner = (*Engine)(nil)

// Engine implements ports.Runner backed by single-use Docker containers.
type Engine struct {
	client dockerClient
	engine *containerEngine
	images *imageCache
}

// New constructs an Engine using the supplied configuration.
func New(cfg Config) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker runtime: create client: %w", err)
	}
	return newEngineWithClient(cli, cfg), nil
}

func newEngineWithClient(cli dockerClient, cfg Config) *Engine {
	return &Engine{
		client: cli,
		engine: newContainerEngine(cli, cfg),
		images: newImageCache(cli),
	}
}

// Prepare makes the environment image available and, for compiled
// environments, builds the submission in a dedicated sandbox. A failed build
// is returned as an outcome, not as an error.
func (e *Engine) Prepare(ctx context.Context, env execution.Environment, sub execution.Submission, limits execution.RunLimits) (ports.PreparedProgram, *execution.Outcome, error) {
	if err := e.images.ensure(ctx, env.Image); err != nil {
		return nil, nil, err
	}

	limits = e.engine.effectiveLimits(limits)
	source := fileSpec{Name: env.SourceFile, Mode: 0o644, Data: []byte(sub.Source)}
	command := env.ExpandCommand(env.RunCommand, sub.Args)

	if !env.Compiled() {
		return &preparedProgram{
			engine:  e.engine,
			env:     env,
			limits:  limits,
			command: command,
			files:   []fileSpec{source},
		}, nil, nil
	}

	artifact, buildOutcome, err := e.engine.build(ctx, env, limits, source)
	if err != nil {
		return nil, nil, err
	}
	if buildOutcome != nil {
		return nil, buildOutcome, nil
	}

	return &preparedProgram{
		engine:  e.engine,
		env:     env,
		limits:  limits,
		command: command,
		files:   []fileSpec{{Name: env.ArtifactFile, Mode: 0o755, Data: artifact}},
	}, nil, nil
}

// Close releases the Docker client.
func (e *Engine) Close() error {
	var errs []error
	if err := e.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("docker client: %w", err))
	}
	return errors.Join(errs...)
}

func (c *containerEngine) build(ctx context.Context, env execution.Environment, runLimits execution.RunLimits, source fileSpec) ([]byte, *execution.Outcome, error) {
	limits := c.buildLimits
	if runLimits.MemoryLimitBytes > limits.MemoryLimitBytes {
		limits.MemoryLimitBytes = runLimits.MemoryLimitBytes
	}

	var artifact []byte
	outcome, err := c.runSandbox(ctx, sandboxSpec{
		env:     env,
		limits:  limits,
		command: env.ExpandCommand(env.CompileCommand, nil),
		files:   []fileSpec{source},
		build:   true,
	}, func(ctx context.Context, sb *sandbox, outcome execution.Outcome) error {
		if outcome.State != execution.SandboxExited || outcome.ExitCode != 0 {
			return nil
		}
		data, err := c.extractArtifact(ctx, sb.id, path.Join(env.Workdir, env.ArtifactFile))
		if err != nil {
			return fmt.Errorf("extract artifact: %w", err)
		}
		artifact = data
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if artifact == nil {
		return nil, &outcome, nil
	}
	return artifact, nil, nil
}

type preparedProgram struct {
	engine  *containerEngine
	env     execution.Environment
	limits  execution.RunLimits
	command []string
	files   []fileSpec
}

// Run executes the program in a fresh sandbox fed with stdin.
func (p *preparedProgram) Run(ctx context.Context, stdin string) (execution.Outcome, error) {
	return p.engine.runSandbox(ctx, sandboxSpec{
		env:         p.env,
		limits:      p.limits,
		command:     p.command,
		files:       p.files,
		stdin:       stdin,
		attachStdin: true,
	}, nil)
}

func (p *preparedProgram) Close() error {
	return nil
}
