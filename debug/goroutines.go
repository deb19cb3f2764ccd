// Package debug holds the optional runtime metrics logger, enabled by
// config.Debug. The editor leans on timers, cancellable requests and a
// status poller, so a leaked goroutine shows up here first.
package debug

import (
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"
)

// StartRuntimeLogger launches a ticker that logs goroutine count and
// heap/stack usage until stop is closed.
func StartRuntimeLogger(interval time.Duration, logger *slog.Logger, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
		for {
			select {
			case <-stop:
				return
			case <-t.C:
			}
			metrics.Read(samples)
			goroutines := samples[0].Value.Uint64()
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			logger.Info("runtime-stats",
				slog.Uint64("goroutines", goroutines),
				slog.Uint64("stack_inuse", uint64(ms.StackInuse)),
				slog.Uint64("heap_alloc", uint64(ms.HeapAlloc)),
				slog.Uint64("heap_inuse", uint64(ms.HeapInuse)),
			)
		}
	}()
}
