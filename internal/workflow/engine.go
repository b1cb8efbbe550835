// Package workflow abstracts the managed engine that schedules pipeline
// stages. The core defines what each stage computes; the engine owns
// step-level retries, fan-out and execution tracking.
package workflow

import (
	"context"
	"time"
)

// Execution statuses, normalized across engine implementations.
const (
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusAborted   = "ABORTED"
)

// ExtractionInput is the JSON input an extraction execution starts with.
type ExtractionInput struct {
	Symbols   []string `json:"symbols"`
	Timestamp int64    `json:"timestamp"`
}

// Execution identifies a started execution.
type Execution struct {
	ID        string    `json:"execution_id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// ExecutionStatus describes the state of an execution.
type ExecutionStatus struct {
	ID        string     `json:"execution_id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Output    string     `json:"output,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Engine is the workflow-engine capability consumed by the façade and the
// coordinator: start an extraction, inspect it, list recent ones.
type Engine interface {
	StartExecution(ctx context.Context, name string, input ExtractionInput) (*Execution, error)
	DescribeExecution(ctx context.Context, id string) (*ExecutionStatus, error)
	ListExecutions(ctx context.Context, limit int) ([]ExecutionStatus, error)
}
