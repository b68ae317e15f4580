//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package graph

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-agent-workflow/event"
	itelemetry "trpc.group/trpc-go/trpc-agent-workflow/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
	"trpc.group/trpc-go/trpc-agent-workflow/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-workflow/telemetry/trace"
)

const (
	// DefaultMaxSteps is the step budget of a run.
	DefaultMaxSteps = 100
	// AuthorGraphExecutor authors run level events.
	AuthorGraphExecutor = "graph-executor"

	defaultChannelBufferSize = 256
)

// Error types carried by error events.
const (
	ErrorTypeGraphExecution = "graph_execution_error"
	ErrorTypeRouting        = "routing_error"
)

// HaltReason says why a run stopped.
type HaltReason string

// Halt reasons.
const (
	HaltCompleted       HaltReason = "completed"
	HaltBudgetExhausted HaltReason = "budget_exhausted"
)

// RunResult is the outcome of a run. A run that exhausts its budget still
// returns a result.
type RunResult struct {
	State      State
	HaltReason HaltReason
	Steps      int
	// Path lists the executed nodes in order.
	Path []string
}

// StepCallback receives the events of a run synchronously.
type StepCallback func(*event.Event)

// Executor runs a Graph. It holds configuration only and can run any number
// of times, concurrently.
type Executor struct {
	graph             *Graph
	maxSteps          int
	callback          StepCallback
	runID             string
	branch            string
	channelBufferSize int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxSteps sets the step budget.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(e *Executor) {
		e.maxSteps = maxSteps
	}
}

// WithStepCallback receives an event after every step and when the run
// halts.
func WithStepCallback(cb StepCallback) ExecutorOption {
	return func(e *Executor) {
		e.callback = cb
	}
}

// WithRunID stamps events with the run id.
func WithRunID(id string) ExecutorOption {
	return func(e *Executor) {
		e.runID = id
	}
}

// WithBranch prefixes event branches, used for nested runs.
func WithBranch(branch string) ExecutorOption {
	return func(e *Executor) {
		e.branch = branch
	}
}

// WithChannelBufferSize sets the Stream channel buffer.
func WithChannelBufferSize(size int) ExecutorOption {
	return func(e *Executor) {
		e.channelBufferSize = size
	}
}

// NewExecutor creates an executor for g. The budget defaults to the one the
// graph declares, then DefaultMaxSteps.
func NewExecutor(g *Graph, opts ...ExecutorOption) (*Executor, error) {
	if g == nil {
		return nil, errors.New("graph is nil")
	}
	maxSteps := DefaultMaxSteps
	if n := g.MaxSteps(); n > 0 {
		maxSteps = n
	}
	e := &Executor{
		graph:             g,
		maxSteps:          maxSteps,
		channelBufferSize: defaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxSteps < 0 {
		return nil, fmt.Errorf("max steps must not be negative, got %d", e.maxSteps)
	}
	return e, nil
}

// Graph returns the executed graph.
func (e *Executor) Graph() *Graph {
	return e.graph
}

// execution is the per run context handed to nodes.
type execution struct {
	runID  string
	branch string
	step   int
	emit   StepCallback
}

func (x *execution) branchOf(nodeID string) string {
	if x.branch == "" {
		return nodeID
	}
	return x.branch + "/" + nodeID
}

// Run interprets the graph from its entry point. It returns when End is
// reached, when the budget is spent, or on an unrecoverable error. On error
// the partial result is returned alongside.
func (e *Executor) Run(ctx context.Context, initial State) (*RunResult, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameRun)
	defer span.End()
	span.SetAttributes(attribute.String(itelemetry.KeyRunID, e.runID))

	schema := e.graph.schema
	state := schema.ApplyUpdate(schema.Initial(), initial)
	x := &execution{runID: e.runID, branch: e.branch, emit: e.callback}
	result := &RunResult{State: state}

	current := e.graph.entryPoint
	for {
		if current == End {
			result.HaltReason = HaltCompleted
			break
		}
		if result.Steps >= e.maxSteps {
			result.HaltReason = HaltBudgetExhausted
			log.Infof("run %s: step budget of %d exhausted at node %s", e.runID, e.maxSteps, current)
			break
		}
		if err := ctx.Err(); err != nil {
			return e.fail(span, result, fmt.Errorf("run cancelled after %d steps: %w", result.Steps, err))
		}

		node := e.graph.nodes[current]
		x.step = result.Steps
		delta, rsp, err := e.executeNode(ctx, node, result.State.Clone(), x)
		if err != nil {
			return e.fail(span, result, fmt.Errorf("node %s: %w", node.ID, err))
		}
		result.State = schema.ApplyUpdate(result.State, delta)
		result.Steps++
		result.Path = append(result.Path, node.ID)
		e.emit(event.New(e.runID, node.ID,
			event.WithResponse(rsp),
			event.WithObject(event.ObjectTypeNodeComplete),
			event.WithBranch(x.branchOf(node.ID)),
			event.WithStep(result.Steps, string(node.Type)),
			event.WithStateDelta(eventDelta(delta)),
		))

		next, err := e.route(ctx, node.ID, result.State)
		if err != nil {
			return e.fail(span, result, err)
		}
		current = next
	}

	span.SetAttributes(
		attribute.String(itelemetry.KeyHaltReason, string(result.HaltReason)),
		attribute.Int(itelemetry.KeyStep, result.Steps),
	)
	metric.Count(ctx, itelemetry.MetricRuns, attribute.String(itelemetry.KeyHaltReason, string(result.HaltReason)))
	final := event.New(e.runID, AuthorGraphExecutor,
		event.WithObject(event.ObjectTypeRunComplete),
		event.WithBranch(e.branch),
		event.WithHaltReason(string(result.HaltReason)),
		event.WithStep(result.Steps, ""),
	)
	final.Done = true
	e.emit(final)
	return result, nil
}

func (e *Executor) fail(span oteltrace.Span, result *RunResult, err error) (*RunResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return result, err
}

func (e *Executor) emit(ev *event.Event) {
	if e.callback != nil {
		e.callback(ev)
	}
}

// route picks the successor of a node that just ran.
func (e *Executor) route(ctx context.Context, from string, state State) (string, error) {
	if ce, ok := e.graph.conditionalEdges[from]; ok {
		label, err := ce.Condition(ctx, state)
		if err != nil {
			return "", &RoutingError{Node: from, Err: err}
		}
		to, ok := ce.PathMap[label]
		if !ok {
			return "", newRoutingError(from, label, ce.PathMap)
		}
		return to, nil
	}
	if to, ok := e.graph.edges[from]; ok {
		return to, nil
	}
	return "", &RoutingError{Node: from, Err: errors.New("no outgoing edge")}
}

// executeNode dispatches on the node type.
func (e *Executor) executeNode(ctx context.Context, node *Node, snapshot State, x *execution) (State, *model.Response, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteNodeSpanName(node.ID))
	defer span.End()
	span.SetAttributes(
		attribute.String(itelemetry.KeyNodeID, node.ID),
		attribute.String(itelemetry.KeyNodeType, string(node.Type)),
		attribute.Int(itelemetry.KeyStep, x.step),
	)

	var (
		delta State
		rsp   *model.Response
		err   error
	)
	switch node.Type {
	case NodeTypeFunction:
		delta, err = node.Function(ctx, snapshot)
	case NodeTypeAgent:
		delta, rsp, err = runAgent(ctx, node, snapshot, x)
	case NodeTypeTool:
		delta, err = runTools(ctx, node, snapshot)
	case NodeTypeSubGraph:
		delta, err = runSubGraph(ctx, node, snapshot, x)
	default:
		err = fmt.Errorf("unknown node type %q", node.Type)
	}

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case LastNodeError(delta) != nil:
		outcome = "contained_error"
	}
	metric.Count(ctx, itelemetry.MetricNodeExecutions,
		attribute.String(itelemetry.KeyNodeType, string(node.Type)),
		attribute.String(itelemetry.KeyOutcome, outcome),
	)
	return delta, rsp, err
}

// eventDelta drops values that do not belong on the wire.
func eventDelta(delta State) map[string]any {
	out := make(map[string]any, len(delta))
	for k, v := range delta {
		if ne, ok := v.(*NodeError); ok && ne != nil {
			out[k] = map[string]any{"node_id": ne.NodeID, "node_type": ne.NodeType, "message": ne.Message}
			continue
		}
		out[k] = v
	}
	return out
}

// Stream runs the graph in the background and delivers its events. The
// channel closes when the run ends; a failed run ends with an error event.
func (e *Executor) Stream(ctx context.Context, initial State) (<-chan *event.Event, error) {
	ch := make(chan *event.Event, e.channelBufferSize)
	inner := *e
	userCallback := e.callback
	inner.callback = func(ev *event.Event) {
		if userCallback != nil {
			userCallback(ev)
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}
	go func() {
		defer close(ch)
		if _, err := inner.Run(ctx, initial); err != nil {
			errType := ErrorTypeGraphExecution
			if errors.Is(err, ErrRouting) {
				errType = ErrorTypeRouting
			}
			ev := event.NewErrorEvent(e.runID, AuthorGraphExecutor, errType, err.Error(), event.WithBranch(e.branch))
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}
