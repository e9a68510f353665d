package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Salako07/WKL/internal/app/coordinator"
	"github.com/Salako07/WKL/internal/app/executor"
	"github.com/Salako07/WKL/internal/app/intake"
	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/infra/wire"
	"github.com/Salako07/WKL/internal/ports"
)

var (
	envFlag      string
	stdinFlag    string
	testsFlag    string
	timeoutFlag  time.Duration
	priorityFlag string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <source-file> [args...]",
	Short: "Execute one source file and print the result as JSON",
	Long: `Execute one source file in a sandbox and print the result as JSON.

A tests file grades the program against its cases instead of running it once.

Examples:
  codexec run --env python3.11 main.py
  codexec run --env go1.22 --tests testdata/sum/tests.yaml testdata/sum/main.go
  codexec run --env python3.11 --stdin input.txt main.py arg1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVar(&envFlag, "env", "", "Environment id, e.g. python3.11")
	runCmd.Flags().StringVar(&stdinFlag, "stdin", "", "File fed to the program's stdin (- for this process's stdin)")
	runCmd.Flags().StringVar(&testsFlag, "tests", "", "YAML file with test cases")
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 2*time.Minute, "Cancel the run after this long")
	runCmd.Flags().StringVar(&priorityFlag, "priority", "normal", "Priority class (low, normal, high)")
	_ = runCmd.MarkFlagRequired("env")
	rootCmd.AddCommand(runCmd)
}

type testsFile struct {
	Tests []struct {
		Input          string `yaml:"input"`
		ExpectedOutput string `yaml:"expected_output"`
		Mode           string `yaml:"mode"`
		Points         int    `yaml:"points"`
		Hidden         bool   `yaml:"hidden"`
	} `yaml:"tests"`
}

func parseTests(data []byte) ([]execution.TestCase, error) {
	var file testsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing tests: %w", err)
	}
	cases := make([]execution.TestCase, 0, len(file.Tests))
	for i, tc := range file.Tests {
		cases = append(cases, execution.TestCase{
			Number:         i + 1,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Mode:           execution.CompareMode(tc.Mode),
			Points:         tc.Points,
			Hidden:         tc.Hidden,
		})
	}
	return cases, nil
}

func buildSubmission(in io.Reader, args []string) (execution.Submission, error) {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return execution.Submission{}, fmt.Errorf("reading source: %w", err)
	}
	sub := execution.Submission{
		EnvironmentID: execution.EnvironmentID(envFlag),
		Source:        string(source),
		Args:          args[1:],
		Priority:      execution.ParsePriority(priorityFlag),
	}

	switch stdinFlag {
	case "":
	case "-":
		data, err := io.ReadAll(in)
		if err != nil {
			return execution.Submission{}, fmt.Errorf("reading stdin: %w", err)
		}
		sub.Stdin = string(data)
	default:
		data, err := os.ReadFile(stdinFlag)
		if err != nil {
			return execution.Submission{}, fmt.Errorf("reading stdin file: %w", err)
		}
		sub.Stdin = string(data)
	}

	if testsFlag != "" {
		data, err := os.ReadFile(testsFlag)
		if err != nil {
			return execution.Submission{}, fmt.Errorf("reading tests: %w", err)
		}
		if sub.Tests, err = parseTests(data); err != nil {
			return execution.Submission{}, err
		}
	}
	return sub, nil
}

// rejectionRecorder keeps the reasons intake reports for refused submissions.
type rejectionRecorder struct {
	mu      sync.Mutex
	reasons []string
}

var _ ports.RunEventPublisher = (*rejectionRecorder)(nil)

func (r *rejectionRecorder) PublishRunEvent(_ context.Context, event ports.RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, event.Rejection)
	return nil
}

func (r *rejectionRecorder) Close() error { return nil }

func (r *rejectionRecorder) first() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reasons) == 0 {
		return "unknown"
	}
	return r.reasons[0]
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	sub, err := buildSubmission(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := loadRegistry(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("loading catalogue: %w", err)
	}
	engine, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	defer closeLogged(log, "sandbox engine", engine.Close)

	coord := coordinator.New(coordinatorConfig(cfg), registry, executor.NewPool(engine, 1, log), coordinator.WithLogger(log))
	coordCtx, cancelCoord := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelCoord()
	coordDone := make(chan error, 1)
	go func() { coordDone <- coord.Run(coordCtx) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		_ = coord.Shutdown(shutdownCtx)
		<-coordDone
	}()

	rejections := &rejectionRecorder{}
	var runID string
	svc := intake.NewService(coord, rejections, log)
	svc.OnAdmitted = func(_ execution.Submission, id string) { runID = id }
	if err := svc.Consume(ctx, intake.NewStaticSource(sub)); err != nil {
		return err
	}
	if runID == "" {
		return fmt.Errorf("submission rejected: %s", rejections.first())
	}

	result, err := awaitResult(ctx, coord, runID, timeoutFlag)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(wire.FromResult(result)); err != nil {
		return err
	}
	if result.State != execution.StateCompleted {
		return fmt.Errorf("run %s ended %s", runID, result.State)
	}
	return nil
}

// runWatcher is the part of the coordinator awaitResult needs.
type runWatcher interface {
	Watch(ctx context.Context, runID string) (<-chan struct{}, error)
	Result(ctx context.Context, runID string) (*execution.Result, error)
	Cancel(ctx context.Context, runID string) (coordinator.CancelOutcome, error)
}

// awaitResult waits for the run to settle. The run is cancelled when ctx
// ends or timeout elapses, and its cancelled result is returned.
func awaitResult(ctx context.Context, engine runWatcher, runID string, timeout time.Duration) (*execution.Result, error) {
	done, err := engine.Watch(ctx, runID)
	if err != nil {
		return nil, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-done:
	case <-expired:
		if _, err := engine.Cancel(context.Background(), runID); err != nil {
			return nil, err
		}
		<-done
	case <-ctx.Done():
		if _, err := engine.Cancel(context.Background(), runID); err != nil && !errors.Is(err, coordinator.ErrRunNotFound) {
			return nil, err
		}
		<-done
	}
	return engine.Result(context.Background(), runID)
}
