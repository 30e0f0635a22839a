package orchestration

import (
	"context"
	"errors"
	"time"
)

type generationStatus int

const (
	generationCompleted generationStatus = iota
	generationAborted
	generationFailed
)

func (s generationStatus) String() string {
	switch s {
	case generationCompleted:
		return "completed"
	case generationAborted:
		return "aborted"
	case generationFailed:
		return "failed"
	}
	return "unknown"
}

// generationResult is the outcome of one model generation. Only a failed
// result is ever reported to the user.
type generationResult struct {
	status generationStatus
	text   string
	err    error
}

func completed(text string) generationResult {
	return generationResult{status: generationCompleted, text: text}
}

func aborted() generationResult {
	return generationResult{status: generationAborted}
}

func failed(err error) generationResult {
	return generationResult{status: generationFailed, err: err}
}

// resultFromError maps a generation error onto a result, treating context
// cancellation as an abort.
func resultFromError(ctx context.Context, err error) generationResult {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return aborted()
	}
	return failed(err)
}

type awaitOutcome int

const (
	resolvedInTime awaitOutcome = iota
	timedOut
	taskFailed
)

func (o awaitOutcome) String() string {
	switch o {
	case resolvedInTime:
		return "resolved"
	case timedOut:
		return "timed out"
	case taskFailed:
		return "failed"
	}
	return "unknown"
}

// asyncTask is a generation running on its own goroutine. result is only
// valid once done is closed.
type asyncTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	result generationResult
}

func newAsyncTask(cancel context.CancelFunc) *asyncTask {
	return &asyncTask{cancel: cancel, done: make(chan struct{})}
}

func (t *asyncTask) finish(result generationResult) {
	t.result = result
	close(t.done)
}

func (t *asyncTask) isDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// awaitTask waits at most timeout for task. A task that ends aborted or
// failed reports taskFailed; a cancelled ctx counts as a timeout.
func awaitTask(ctx context.Context, task *asyncTask, timeout time.Duration) (generationResult, awaitOutcome) {
	if task == nil {
		return aborted(), taskFailed
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-task.done:
		if task.result.status != generationCompleted {
			return task.result, taskFailed
		}
		return task.result, resolvedInTime
	case <-deadline.C:
		return generationResult{}, timedOut
	case <-ctx.Done():
		return generationResult{}, timedOut
	}
}
