// Package session owns the state of one onboarding call: connection
// lifecycle, transcript, extracted profile and update history. Every
// mutation goes through a Session method holding its lock, so callbacks
// from the voice platform are applied atomically.
package session

import (
	"errors"
	"fmt"
	"time"
)

// State is the connection lifecycle of a session.
type State string

// Session states.
const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateEnded      State = "ended"
)

var (
	// ErrStartInProgress is returned by Start while a previous start is
	// still connecting.
	ErrStartInProgress = errors.New("session start already in progress")
	// ErrAlreadyActive is returned when an operation needs an inactive
	// session.
	ErrAlreadyActive = errors.New("session already active")
	// ErrNotActive is returned by End when there is nothing to end.
	ErrNotActive = errors.New("session not active")
	// ErrEndInProgress is returned by End while a previous End is closing.
	ErrEndInProgress = errors.New("session end already in progress")
	// ErrStartCancelled is returned by Start when End cancelled it.
	ErrStartCancelled = errors.New("connection cancelled")
)

// Active reports whether the state holds an open or opening call.
func (s State) Active() bool {
	return s == StateConnecting || s == StateConnected
}

// FormatElapsed renders d as minutes:seconds with zero-padded seconds.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
