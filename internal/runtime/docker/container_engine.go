package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/rs/zerolog"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/infra/metrics"
)

const (
	nanoCPUs    = 1_000_000_000
	tmpfsMounts = "rw,noexec,nosuid,size=64m"
)

type containerEngine struct {
	cli           dockerClient
	defaultLimits execution.RunLimits
	buildLimits   execution.RunLimits
	statsInterval time.Duration
	killGrace     time.Duration
	teardownGrace time.Duration
	log           *zerolog.Logger
}

func newContainerEngine(cli dockerClient, cfg Config) *containerEngine {
	cfg = cfg.withDefaults()
	return &containerEngine{
		cli:           cli,
		defaultLimits: cfg.DefaultLimits.Normalize(),
		buildLimits:   cfg.BuildLimits.Normalize(),
		statsInterval: cfg.StatsInterval,
		killGrace:     cfg.KillGrace,
		teardownGrace: cfg.TeardownGrace,
		log:           cfg.Logger,
	}
}

func (c *containerEngine) effectiveLimits(request execution.RunLimits) execution.RunLimits {
	return c.defaultLimits.Merge(request)
}

// sandboxSpec is everything needed to run one command in a fresh sandbox.
type sandboxSpec struct {
	env         execution.Environment
	limits      execution.RunLimits
	command     []string
	files       []fileSpec
	stdin       string
	attachStdin bool
	build       bool
}

// afterExit runs once the sandbox stopped and before it is destroyed.
type afterExit func(ctx context.Context, sb *sandbox, outcome execution.Outcome) error

// runSandbox executes spec in a single-use container. The container is always
// removed before runSandbox returns.
func (c *containerEngine) runSandbox(ctx context.Context, spec sandboxSpec, after afterExit) (execution.Outcome, error) {
	created := time.Now()
	sb, err := c.createSandbox(ctx, spec)
	if err != nil {
		return execution.Outcome{}, err
	}
	defer c.destroy(sb)

	if err := c.injectFiles(ctx, sb.id, spec.env, spec.files); err != nil {
		return execution.Outcome{}, fmt.Errorf("inject files: %w", err)
	}
	metrics.SandboxCreation.Observe(float64(time.Since(created).Milliseconds()))

	outcome, err := c.execute(ctx, sb, spec)
	if err != nil {
		return execution.Outcome{}, err
	}

	if after != nil {
		if err := after(detach(ctx), sb, outcome); err != nil {
			return execution.Outcome{}, err
		}
	}
	return outcome, nil
}

func (c *containerEngine) execute(ctx context.Context, sb *sandbox, spec sandboxSpec) (execution.Outcome, error) {
	var attach types.HijackedResponse
	if spec.attachStdin {
		var err error
		attach, err = c.cli.ContainerAttach(detach(ctx), sb.id, container.AttachOptions{
			Stream: true,
			Stdin:  true,
		})
		if err != nil {
			return execution.Outcome{}, fmt.Errorf("attach container: %w", err)
		}
		if attach.Conn != nil {
			defer attach.Close()
		}
	}

	if ctx.Err() != nil {
		if err := sb.transition(sandboxCancelled); err != nil {
			return execution.Outcome{}, err
		}
		return execution.Outcome{State: execution.SandboxCancelled, ExitCode: -1, Build: spec.build}, nil
	}

	// The wall-clock budget starts before the process does.
	var deadline <-chan time.Time
	if spec.limits.TimeLimit > 0 {
		timer := time.NewTimer(spec.limits.TimeLimit)
		defer timer.Stop()
		deadline = timer.C
	}

	start := time.Now()
	if err := c.cli.ContainerStart(ctx, sb.id, container.StartOptions{}); err != nil {
		return execution.Outcome{}, fmt.Errorf("start container: %w", err)
	}
	if err := sb.transition(sandboxRunning); err != nil {
		return execution.Outcome{}, err
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	dog := newWatchdog(c.cli, sb.id, spec.limits, c.statsInterval)
	go dog.run(watchCtx)

	stdout := newCappedBuffer(spec.limits.OutputLimitBytes)
	stderr := newCappedBuffer(spec.limits.OutputLimitBytes)
	logsCtx, stopLogs := context.WithCancel(context.Background())
	defer stopLogs()
	logsDone := make(chan error, 1)
	go func() {
		logsDone <- c.streamLogs(logsCtx, sb.id, stdout, stderr)
	}()

	if spec.attachStdin && attach.Conn != nil {
		if spec.limits.TimeLimit > 0 {
			_ = attach.Conn.SetWriteDeadline(start.Add(spec.limits.TimeLimit))
		}
		if _, err := io.Copy(attach.Conn, strings.NewReader(spec.stdin)); err != nil {
			c.log.Debug().Err(err).Str("container", sb.id).Msg("stdin not fully delivered")
		}
		if closer, ok := attach.Conn.(interface{ CloseWrite() error }); ok {
			_ = closer.CloseWrite()
		}
	}

	waitCtx, cancelWait := context.WithCancel(context.Background())
	defer cancelWait()
	statusCh, errCh := c.cli.ContainerWait(waitCtx, sb.id, container.WaitConditionNotRunning)

	final := sandboxExited
	exitCode := int64(-1)
	var exceeded execution.Resource

	select {
	case status := <-statusCh:
		if status.Error != nil {
			return execution.Outcome{}, fmt.Errorf("container error: %s", status.Error.Message)
		}
		exitCode = status.StatusCode
	case err := <-errCh:
		return execution.Outcome{}, fmt.Errorf("wait for container: %w", err)
	case <-deadline:
		final = sandboxTimedOut
	case exceeded = <-dog.tripped:
		final = sandboxResourceExceeded
	case <-ctx.Done():
		final = sandboxCancelled
	}
	duration := time.Since(start)

	if final != sandboxExited {
		if err := c.kill(sb); err != nil {
			return execution.Outcome{}, err
		}
	}

	stopWatch()
	peakMemory, cpuTime := dog.usage()

	oomKilled := false
	if final == sandboxExited {
		inspect, err := c.cli.ContainerInspect(detach(ctx), sb.id)
		if err != nil {
			return execution.Outcome{}, fmt.Errorf("inspect container: %w", err)
		}
		if inspect.ContainerJSONBase != nil && inspect.State != nil && inspect.State.OOMKilled {
			oomKilled = true
			final = sandboxResourceExceeded
			exceeded = execution.ResourceMemory
		}
	}

	if err := sb.transition(final); err != nil {
		return execution.Outcome{}, err
	}

	select {
	case err := <-logsDone:
		if err != nil {
			return execution.Outcome{}, fmt.Errorf("fetch logs: %w", err)
		}
	case <-time.After(c.killGrace):
		stopLogs()
		<-logsDone
	}

	return execution.Outcome{
		State:           final.outcome(),
		Exceeded:        exceeded,
		ExitCode:        exitCode,
		OOMKilled:       oomKilled,
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Duration:        duration,
		CPUTime:         cpuTime,
		PeakMemoryBytes: peakMemory,
		Build:           spec.build,
	}, nil
}

func (c *containerEngine) createSandbox(ctx context.Context, spec sandboxSpec) (*sandbox, error) {
	limits := spec.limits
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		Tmpfs:       map[string]string{"/tmp": tmpfsMounts},
		LogConfig: container.LogConfig{
			Type:   "json-file",
			Config: map[string]string{"max-size": strconv.FormatInt(logFileLimit(limits.OutputLimitBytes), 10), "max-file": "1"},
		},
		Resources: container.Resources{
			NanoCPUs: nanoCPUs,
		},
	}
	if limits.MemoryLimitBytes > 0 {
		hostConfig.Resources.Memory = limits.MemoryLimitBytes
		hostConfig.Resources.MemorySwap = limits.MemoryLimitBytes
	}
	if limits.ProcessLimit > 0 {
		pids := limits.ProcessLimit
		hostConfig.Resources.PidsLimit = &pids
	}

	user := spec.env.User
	if spec.build {
		user = ""
	}

	resp, err := c.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image:           spec.env.Image,
			Cmd:             spec.command,
			User:            user,
			AttachStdout:    true,
			AttachStderr:    true,
			AttachStdin:     spec.attachStdin,
			OpenStdin:       spec.attachStdin,
			StdinOnce:       spec.attachStdin,
			WorkingDir:      spec.env.Workdir,
			NetworkDisabled: true,
			Labels: map[string]string{
				"codexec.environment": string(spec.env.ID),
			},
		},
		hostConfig,
		nil,
		nil,
		"",
	)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	return newSandbox(resp.ID), nil
}

// kill stops a running sandbox immediately and waits a bounded time for it to
// stop.
func (c *containerEngine) kill(sb *sandbox) error {
	killCtx, cancel := context.WithTimeout(context.Background(), c.killGrace)
	defer cancel()

	if err := c.cli.ContainerKill(killCtx, sb.id, "SIGKILL"); err != nil && !errdefs.IsNotFound(err) && !errdefs.IsConflict(err) {
		return fmt.Errorf("kill container: %w", err)
	}
	if _, err := c.waitForExit(killCtx, sb.id); err != nil {
		c.log.Warn().Err(err).Str("container", sb.id).Msg("killed container did not report exit")
	}
	return nil
}

// destroy removes the container synchronously. Failures are logged since the
// run outcome is already known.
func (c *containerEngine) destroy(sb *sandbox) {
	ctx, cancel := context.WithTimeout(context.Background(), c.teardownGrace)
	defer cancel()

	start := time.Now()
	err := c.cli.ContainerRemove(ctx, sb.id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	metrics.SandboxTeardown.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil && !errdefs.IsNotFound(err) {
		metrics.SandboxTeardownFailures.Inc()
		c.log.Error().Err(err).Str("container", sb.id).Msg("remove sandbox")
	}

	if sb.current() == sandboxCreated || sb.current() == sandboxRunning {
		// Setup failed before a terminal state was reached.
		_ = sb.transition(sandboxCancelled)
	}
	if err := sb.transition(sandboxDestroyed); err != nil {
		c.log.Error().Err(err).Msg("sandbox state")
	}
}

func logFileLimit(outputLimit int64) int64 {
	const floor = 1 << 20
	if limit := 4 * outputLimit; limit > floor {
		return limit
	}
	return floor
}

// detach keeps ctx values but drops its cancellation so cleanup calls still
// reach the daemon after the caller gave up.
func detach(ctx context.Context) context.Context {
	if ctx.Err() != nil {
		return context.WithoutCancel(ctx)
	}
	return ctx
}
