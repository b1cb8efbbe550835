package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"

	"github.com/openpnl/bitget-orders-go/internal/config"
)

// SFNEngine runs extractions on an AWS Step Functions state machine. The
// state machine maps the per-symbol collection stage over the input symbol
// list and runs the aggregator as the final reduce state.
type SFNEngine struct {
	client          *sfn.Client
	stateMachineARN string
}

// NewSFNEngine builds a Step Functions-backed engine from configuration.
func NewSFNEngine(ctx context.Context, cfg *config.WorkflowConfig) (*SFNEngine, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SFNEngine{
		client:          sfn.NewFromConfig(awsCfg),
		stateMachineARN: cfg.StateMachineARN,
	}, nil
}

// StartExecution starts a named execution with the extraction input.
func (e *SFNEngine) StartExecution(ctx context.Context, name string, input ExtractionInput) (*Execution, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal execution input: %w", err)
	}
	out, err := e.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(e.stateMachineARN),
		Name:            aws.String(name),
		Input:           aws.String(string(payload)),
	})
	if err != nil {
		return nil, fmt.Errorf("start execution %s: %w", name, err)
	}
	execution := &Execution{
		ID:   aws.ToString(out.ExecutionArn),
		Name: name,
	}
	if out.StartDate != nil {
		execution.StartedAt = *out.StartDate
	}
	return execution, nil
}

// DescribeExecution reports the state of an execution by ARN.
func (e *SFNEngine) DescribeExecution(ctx context.Context, id string) (*ExecutionStatus, error) {
	out, err := e.client.DescribeExecution(ctx, &sfn.DescribeExecutionInput{
		ExecutionArn: aws.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("describe execution %s: %w", id, err)
	}

	status := &ExecutionStatus{
		ID:     aws.ToString(out.ExecutionArn),
		Name:   aws.ToString(out.Name),
		Status: normalizeStatus(out.Status),
		Output: aws.ToString(out.Output),
		Error:  aws.ToString(out.Error),
	}
	if out.StartDate != nil {
		status.StartedAt = *out.StartDate
	}
	if out.StopDate != nil {
		stopped := *out.StopDate
		status.StoppedAt = &stopped
	}
	return status, nil
}

// ListExecutions returns the most recent executions of the state machine.
func (e *SFNEngine) ListExecutions(ctx context.Context, limit int) ([]ExecutionStatus, error) {
	if limit <= 0 {
		limit = 10
	}
	out, err := e.client.ListExecutions(ctx, &sfn.ListExecutionsInput{
		StateMachineArn: aws.String(e.stateMachineARN),
		MaxResults:      int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	statuses := make([]ExecutionStatus, 0, len(out.Executions))
	for _, item := range out.Executions {
		status := ExecutionStatus{
			ID:     aws.ToString(item.ExecutionArn),
			Name:   aws.ToString(item.Name),
			Status: normalizeStatus(item.Status),
		}
		if item.StartDate != nil {
			status.StartedAt = *item.StartDate
		}
		if item.StopDate != nil {
			stopped := *item.StopDate
			status.StoppedAt = &stopped
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// normalizeStatus maps engine-specific status values onto the package
// constants.
func normalizeStatus(s types.ExecutionStatus) string {
	switch s {
	case types.ExecutionStatusRunning:
		return StatusRunning
	case types.ExecutionStatusSucceeded:
		return StatusSucceeded
	case types.ExecutionStatusFailed, types.ExecutionStatusTimedOut:
		return StatusFailed
	case types.ExecutionStatusAborted:
		return StatusAborted
	default:
		return string(s)
	}
}

var _ Engine = (*SFNEngine)(nil)
