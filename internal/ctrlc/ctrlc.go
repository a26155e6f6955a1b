// Package ctrlc holds the single process-wide ctrl-C latch polled by
// ContainerNetwork's long wait loops, grounded on
// original_source/src/misc.rs's CTRLC_ISSUED atomic.
package ctrlc

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

var (
	issued   atomic.Bool
	initOnce sync.Once
)

// Init installs a process-wide interrupt handler that trips the latch.
// Safe to call more than once; only the first call installs the handler.
func Init(ctx context.Context) {
	initOnce.Do(func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		go func() {
			for range sigCh {
				slog.WarnContext(ctx, "ctrlc: interrupt received, tripping latch")
				issued.Store(true)
			}
		}()
	})
}

// Issued reports whether the latch is currently set, without resetting it.
func Issued() bool { return issued.Load() }

// IssuedReset atomically reads and clears the latch, returning its
// previous value.
func IssuedReset() bool { return issued.Swap(false) }

// set is exposed for tests that need to simulate an interrupt.
func set(v bool) { issued.Store(v) }
