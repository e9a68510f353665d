package docker

import (
	"fmt"
	"sync"

	"github.com/Salako07/WKL/internal/domain/execution"
)

type sandboxState string

const (
	sandboxCreated          sandboxState = "created"
	sandboxRunning          sandboxState = "running"
	sandboxExited           sandboxState = "exited"
	sandboxTimedOut         sandboxState = "timed_out"
	sandboxResourceExceeded sandboxState = "resource_exceeded"
	sandboxCancelled        sandboxState = "cancelled"
	sandboxDestroyed        sandboxState = "destroyed"
)

var sandboxTransitions = map[sandboxState][]sandboxState{
	sandboxCreated:          {sandboxRunning, sandboxCancelled, sandboxDestroyed},
	sandboxRunning:          {sandboxExited, sandboxTimedOut, sandboxResourceExceeded, sandboxCancelled},
	sandboxExited:           {sandboxDestroyed},
	sandboxTimedOut:         {sandboxDestroyed},
	sandboxResourceExceeded: {sandboxDestroyed},
	sandboxCancelled:        {sandboxDestroyed},
}

// sandbox tracks one single-use container from creation to removal.
type sandbox struct {
	id string

	mu    sync.Mutex
	state sandboxState
}

func newSandbox(id string) *sandbox {
	return &sandbox{id: id, state: sandboxCreated}
}

func (s *sandbox) transition(next sandboxState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, allowed := range sandboxTransitions[s.state] {
		if allowed == next {
			s.state = next
			return nil
		}
	}
	return fmt.Errorf("sandbox %s: illegal transition %s -> %s", s.id, s.state, next)
}

func (s *sandbox) current() sandboxState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s sandboxState) outcome() execution.SandboxState {
	switch s {
	case sandboxTimedOut:
		return execution.SandboxTimedOut
	case sandboxResourceExceeded:
		return execution.SandboxResourceExceeded
	case sandboxCancelled:
		return execution.SandboxCancelled
	default:
		return execution.SandboxExited
	}
}
