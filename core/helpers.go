package orchestration

import (
	"context"
	"fmt"
	"reflect"
)

func withContextCancelHook(ctx context.Context, onContextDone func()) chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			onContextDone()
		case <-done:
		}
	}()
	return done
}

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// runWorker runs a named background worker tracked by Close.
func (o *Orchestrator) runWorker(name string, run func(context.Context) error) {
	o.workers.Add(1)
	go func() {
		defer o.workers.Done()
		if err := panicSafeNamedWorker(name, run)(o.baseContext); err != nil {
			logger.Error("orchestrator worker stopped", "worker", name, "error", err)
		}
	}()
}

// isNilClient treats typed nil implementations as unconfigured.
func isNilClient(client any) bool {
	if client == nil {
		return true
	}

	v := reflect.ValueOf(client)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
