package main

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"migwatch/internal/logging"
)

// watchShutdownSignals cancels on the first signal and logs once if more
// arrive. The returned func stops the listener.
func watchShutdownSignals(logger *logging.Logger, shutdownCancel context.CancelFunc, signalCh <-chan os.Signal) func() {
	if signalCh == nil {
		return func() {}
	}

	done := make(chan struct{})
	var shutdownStarted atomic.Bool
	var loggedRepeat atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				fields := map[string]string{}
				if sig != nil {
					fields["signal"] = sig.String()
				}
				if shutdownStarted.CompareAndSwap(false, true) {
					if logger != nil {
						logger.Info("stopping watch", fields)
					}
					if shutdownCancel != nil {
						shutdownCancel()
					}
					continue
				}
				if loggedRepeat.CompareAndSwap(false, true) && logger != nil {
					logger.Info("already stopping; waiting for the running resync", fields)
				}
			}
		}
	}()

	return func() {
		close(done)
	}
}

// waitForIdle polls idle until it reports true or timeout passes. A resync
// cut off by exit leaves its transaction uncommitted.
func waitForIdle(idle func() bool, timeout time.Duration, logger *logging.Logger) bool {
	if idle == nil || idle() {
		return true
	}
	if logger != nil {
		logger.Info("waiting for queued resyncs", nil)
	}
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ticker.C:
			if idle() {
				return true
			}
		case <-deadline.C:
			if logger != nil {
				logger.Warn("exiting with a resync still running", map[string]string{
					"timeout": timeout.String(),
				})
			}
			return false
		}
	}
}
