package docker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Salako07/WKL/internal/domain/execution"
)

// statsSample holds the subset of the Docker stats document the watchdog needs.
type statsSample struct {
	MemoryStats struct {
		Usage    uint64 `json:"usage"`
		MaxUsage uint64 `json:"max_usage"`
	} `json:"memory_stats"`
	CPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
	} `json:"cpu_stats"`
}

// watchdog polls container statistics, records peak usage and reports the
// first resource that goes over its limit.
type watchdog struct {
	cli         dockerClient
	containerID string
	limits      execution.RunLimits
	interval    time.Duration

	tripped chan execution.Resource
	done    chan struct{}

	mu         sync.Mutex
	peakMemory int64
	cpuTime    time.Duration
}

func newWatchdog(cli dockerClient, containerID string, limits execution.RunLimits, interval time.Duration) *watchdog {
	return &watchdog{
		cli:         cli,
		containerID: containerID,
		limits:      limits,
		interval:    interval,
		tripped:     make(chan execution.Resource, 1),
		done:        make(chan struct{}),
	}
}

func (w *watchdog) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.sample(ctx)
		if resource, over := w.exceeded(); over {
			w.tripped <- resource
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *watchdog) sample(ctx context.Context) {
	resp, err := w.cli.ContainerStatsOneShot(ctx, w.containerID)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	var stats statsSample
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return
	}

	memory := stats.MemoryStats.MaxUsage
	if stats.MemoryStats.Usage > memory {
		memory = stats.MemoryStats.Usage
	}
	cpu := time.Duration(stats.CPUStats.CPUUsage.TotalUsage)

	w.mu.Lock()
	if int64(memory) > w.peakMemory {
		w.peakMemory = int64(memory)
	}
	if cpu > w.cpuTime {
		w.cpuTime = cpu
	}
	w.mu.Unlock()
}

func (w *watchdog) exceeded() (execution.Resource, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.limits.CPUTimeLimit > 0 && w.cpuTime > w.limits.CPUTimeLimit {
		return execution.ResourceCPU, true
	}
	if w.limits.MemoryLimitBytes > 0 && w.peakMemory > w.limits.MemoryLimitBytes {
		return execution.ResourceMemory, true
	}
	return "", false
}

// usage waits for the polling loop to stop and returns the observed peaks.
func (w *watchdog) usage() (int64, time.Duration) {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.peakMemory, w.cpuTime
}
