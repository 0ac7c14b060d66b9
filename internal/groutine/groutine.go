package groutine

import (
	"context"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn in a goroutine carrying a pprof "goroutine_name" label and
// returns a channel that is closed once fn returns.
//
//	done := groutine.Go(ctx, "dispatcher-AA:BB", func(ctx context.Context) {
//	    // work
//	})
//	<-done
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	done := make(chan struct{})
	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		defer close(done)
		fn(context.WithValue(ctx, goroutineNameKey, name))
	})

	return done
}

// Recover logs a panic raised in the calling goroutine instead of crashing
// the process. It must be deferred directly.
func Recover(ctx context.Context, logger *logrus.Logger) {
	if r := recover(); r != nil && logger != nil {
		logger.WithFields(logrus.Fields{
			"goroutine": GetName(ctx),
			"panic":     r,
		}).Error("Goroutine panicked")
	}
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(goroutineNameKey).(string); ok {
		return v
	}
	return ""
}
