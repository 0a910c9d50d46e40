package clock

import (
	"sync"
	"time"
)

// Job is a cancelable one-shot or repeating callback.
type Job struct {
	mu      sync.Mutex
	timer   *Timer
	stopped bool
}

// Once runs f after d unless the job is stopped first.
func Once(c Clock, d time.Duration, f func()) *Job {
	j := &Job{}
	j.setTimer(c.AfterFunc(d, func() {
		if j.isStopped() {
			return
		}
		j.Stop()
		f()
	}))
	return j
}

// Every runs f each interval until the job is stopped. The next run is
// scheduled after f returns, so a slow callback delays rather than
// overlaps the following one.
func Every(c Clock, interval time.Duration, f func()) *Job {
	j := &Job{}
	j.schedule(c, interval, f)
	return j
}

func (j *Job) schedule(c Clock, interval time.Duration, f func()) {
	if j.isStopped() {
		return
	}
	j.setTimer(c.AfterFunc(interval, func() {
		if j.isStopped() {
			return
		}
		f()
		j.schedule(c, interval, f)
	}))
}

// setTimer records the pending timer, stopping it immediately if the
// job was cancelled while it was being scheduled.
func (j *Job) setTimer(t *Timer) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopped {
		t.Stop()
		return
	}
	j.timer = t
}

func (j *Job) isStopped() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopped
}

// Stop cancels any pending run. Safe to call more than once and on a
// nil Job.
func (j *Job) Stop() {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopped = true
	if j.timer != nil {
		j.timer.Stop()
	}
}
