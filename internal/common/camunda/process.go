package camunda

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
)

// Instance describes a started process instance. Variables is only filled
// when the instance was awaited.
type Instance struct {
	ProcessInstanceKey   int64                  `json:"processInstanceKey" yaml:"processInstanceKey"`
	BPMNProcessID        string                 `json:"bpmnProcessId" yaml:"bpmnProcessId"`
	ProcessDefinitionKey int64                  `json:"processDefinitionKey" yaml:"processDefinitionKey"`
	Version              int32                  `json:"version" yaml:"version"`
	Variables            map[string]interface{} `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// StartInstance creates an instance of the latest deployed version of
// processID. Gateway outages are retried.
func (c *Client) StartInstance(ctx context.Context, processID string, vars map[string]interface{}) (*Instance, error) {
	command, err := c.client.NewCreateInstanceCommand().
		BPMNProcessId(processID).
		LatestVersion().
		VariablesFromMap(vars)
	if err != nil {
		return nil, fmt.Errorf("encoding variables: %w", err)
	}

	result, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return command.Send(ctx)
	}, "create process instance")
	if err != nil {
		return nil, err
	}
	resp := result.(*pb.CreateProcessInstanceResponse)
	return &Instance{
		ProcessInstanceKey:   resp.GetProcessInstanceKey(),
		BPMNProcessID:        resp.GetBpmnProcessId(),
		ProcessDefinitionKey: resp.GetProcessDefinitionKey(),
		Version:              resp.GetVersion(),
	}, nil
}

// RunInstance creates an instance and waits up to timeout for it to
// complete, returning its final variables. It is not retried: a request that
// timed out may still have started an instance.
func (c *Client) RunInstance(ctx context.Context, processID string, vars map[string]interface{}, timeout time.Duration) (*Instance, error) {
	command, err := c.client.NewCreateInstanceCommand().
		BPMNProcessId(processID).
		LatestVersion().
		VariablesFromMap(vars)
	if err != nil {
		return nil, fmt.Errorf("encoding variables: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := command.WithResult().Send(ctx)
	if err != nil {
		return nil, mapZeebeError(classify(err), err, "run process instance", 0)
	}

	out := &Instance{
		ProcessInstanceKey:   resp.GetProcessInstanceKey(),
		BPMNProcessID:        resp.GetBpmnProcessId(),
		ProcessDefinitionKey: resp.GetProcessDefinitionKey(),
		Version:              resp.GetVersion(),
	}
	if v := resp.GetVariables(); v != "" {
		if err := json.Unmarshal([]byte(v), &out.Variables); err != nil {
			return nil, fmt.Errorf("decoding result variables: %w", err)
		}
	}
	return out, nil
}
