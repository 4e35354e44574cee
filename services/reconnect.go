package services

import (
	"sync"
	"time"

	"wbs/collab-client/clock"
)

const DefaultReconnectDelay = 5 * time.Second

// ReconnectPolicy schedules at most one delayed retry at a time, with a
// constant delay. Each retry is tagged with the session generation that
// lost its socket.
type ReconnectPolicy struct {
	clock clock.Clock
	delay time.Duration

	mu         sync.Mutex
	timer      *clock.Timer
	generation uint64
}

func NewReconnectPolicy(c clock.Clock, delay time.Duration) *ReconnectPolicy {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &ReconnectPolicy{clock: c, delay: delay}
}

func (p *ReconnectPolicy) Delay() time.Duration {
	return p.delay
}

// Schedule arms fn to run after the delay. It returns false if a retry
// for the same generation is already pending. A pending retry from an
// older generation is replaced.
func (p *ReconnectPolicy) Schedule(generation uint64, fn func(generation uint64)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		if p.generation == generation {
			return false
		}
		p.timer.Stop()
	}

	var timer *clock.Timer
	timer = p.clock.AfterFunc(p.delay, func() {
		p.mu.Lock()
		if p.timer != timer {
			p.mu.Unlock()
			return
		}
		p.timer = nil
		p.mu.Unlock()

		fn(generation)
	})
	p.timer = timer
	p.generation = generation
	return true
}

// Cancel drops any pending retry.
func (p *ReconnectPolicy) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timer.Stop()
	p.timer = nil
}

func (p *ReconnectPolicy) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}
