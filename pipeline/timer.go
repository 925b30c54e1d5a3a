// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"sync"
	"time"
)

// Timer is a one-shot timer bound to a pipeline. When it fires it posts a
// KindTimeout event carrying itself, so policies can tell their own timer's
// expiry from an unrelated one.
type Timer struct {
	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

// NewTimer starts a one-shot timer that posts a timeout event into the
// pipeline after d.
func (p *Pipeline) NewTimer(d time.Duration) *Timer {
	timer := &Timer{}
	timer.t = time.AfterFunc(d, func() {
		timer.mu.Lock()
		if timer.stopped {
			timer.mu.Unlock()
			return
		}
		timer.mu.Unlock()
		p.Post(Event{Kind: KindTimeout, Data: Timeout{Timer: timer}})
	})
	return timer
}

// Stop cancels the timer. Stopping an already-fired or stopped timer is a
// no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.t.Stop()
}
