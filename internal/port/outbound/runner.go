package outbound

import "context"

// BackgroundRunnerPort runs work detached from the request that scheduled it.
type BackgroundRunnerPort interface {
	// Go schedules fn. It returns false if the runner is stopped.
	Go(name string, fn func(ctx context.Context)) bool
}
