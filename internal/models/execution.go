package models

import "time"

// GroupStatus represents the state of one (application, task) execution
// group.
type GroupStatus string

const (
	// StatusPending indicates the group is waiting to start.
	StatusPending GroupStatus = "pending"
	// StatusRunning indicates commands of the group are executing.
	StatusRunning GroupStatus = "running"
	// StatusSucceeded indicates every command of the trace finished cleanly.
	StatusSucceeded GroupStatus = "succeeded"
	// StatusFailed indicates a command failed and no later message
	// superseded the failure.
	StatusFailed GroupStatus = "failed"
)

// ExecuteMessage is one entry of the append-only per-group message stream.
// Index increases monotonically within a group and is the sole
// de-duplication key for stream merging.
type ExecuteMessage struct {
	Index       int       `json:"index"`
	Command     string    `json:"command"`
	CommandText string    `json:"commandtext,omitempty"`
	Stderr      string    `json:"stderr,omitempty"`
	Result      string    `json:"result,omitempty"`
	ExitCode    int       `json:"exitCode"`
	Error       string    `json:"error,omitempty"`
	Finished    bool      `json:"finished,omitempty"`
	Partial     bool      `json:"partial,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExecuteMessageGroup is the full message stream of one (application, task)
// execution, plus the restart handles valid for it.
type ExecuteMessageGroup struct {
	Application  string           `json:"application"`
	Task         string           `json:"task"`
	Status       GroupStatus      `json:"status"`
	RestartKey   string           `json:"restartKey,omitempty"`
	VMInstallKey string           `json:"vmInstallKey,omitempty"`
	Messages     []ExecuteMessage `json:"messages"`
}
