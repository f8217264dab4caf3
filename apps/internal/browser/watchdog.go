// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package browser

import (
	"sync"
	"time"
)

// Watchdog calls a function once a deadline passes, unless stopped first.
type Watchdog struct {
	timer *time.Timer
	done  chan struct{}

	once    sync.Once
	stopped bool
}

// NewWatchdog arms a Watchdog that calls expire after d.
func NewWatchdog(d time.Duration, expire func()) *Watchdog {
	w := &Watchdog{done: make(chan struct{})}
	w.timer = time.AfterFunc(d, func() {
		defer close(w.done)
		expire()
	})
	return w
}

// Stop disarms the watchdog and reports whether it did so before expire ran. If expire has
// already started, Stop blocks until it returns, so nothing expire does outlives Stop.
func (w *Watchdog) Stop() bool {
	w.once.Do(func() {
		w.stopped = w.timer.Stop()
	})
	if !w.stopped {
		<-w.done
	}
	return w.stopped
}
