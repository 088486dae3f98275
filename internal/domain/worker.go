package domain

import (
	"fmt"
	"time"
)

// WorkerKind names one of the two supervised bridge workers.
type WorkerKind string

const (
	WorkerPoller WorkerKind = "poller"
	WorkerWriter WorkerKind = "writer"
)

// WorkerKinds lists every supervised worker in a stable order.
var WorkerKinds = []WorkerKind{WorkerPoller, WorkerWriter}

func ParseWorkerKind(s string) (WorkerKind, error) {
	switch WorkerKind(s) {
	case WorkerPoller, WorkerWriter:
		return WorkerKind(s), nil
	}
	return "", fmt.Errorf("unknown worker %q", s)
}

// WorkerStatus is the supervisor's view of one worker.
type WorkerStatus struct {
	Kind      WorkerKind `json:"kind"`
	Running   bool       `json:"running"`
	StartedAt time.Time  `json:"started_at,omitempty"`
	LastExit  string     `json:"last_exit,omitempty"`
	ExitedAt  time.Time  `json:"exited_at,omitempty"`
}

func (s WorkerStatus) State() string {
	if s.Running {
		return "running"
	}
	return "stopped"
}
