package transcript

import (
	"strings"
	"time"

	"github.com/ashureev/riata-onboarding/internal/clock"
)

// SourceUser is the collaborator source tag for learner speech.
const SourceUser = "user"

// EchoGuard suppresses the voice agent's echo of the greeting the
// session appended locally on connect. It is armed when the greeting is
// appended and disarms on the first assistant event or once the window
// has passed, so later assistant turns are never dropped.
type EchoGuard struct {
	clock    clock.Clock
	window   time.Duration
	greeting string
	armedAt  time.Time
	armed    bool
}

// NewEchoGuard returns a disarmed guard.
func NewEchoGuard(c clock.Clock, window time.Duration) *EchoGuard {
	if c == nil {
		c = clock.Real()
	}
	return &EchoGuard{clock: c, window: window}
}

// Arm starts watching for an echo of greeting.
func (g *EchoGuard) Arm(greeting string) {
	g.greeting = normalize(greeting)
	g.armedAt = g.clock.Now()
	g.armed = g.greeting != ""
}

// Disarm stops watching.
func (g *EchoGuard) Disarm() {
	g.armed = false
}

// Suppress reports whether an assistant message is the greeting echo.
// Only the first assistant message after arming is considered.
func (g *EchoGuard) Suppress(message string) bool {
	if !g.armed {
		return false
	}
	g.armed = false
	if g.window > 0 && g.clock.Now().Sub(g.armedAt) > g.window {
		return false
	}
	return normalize(message) == g.greeting
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Ingest applies the collaborator transcript filter: user-sourced
// messages become user turns, everything else becomes an assistant turn
// unless it is the greeting echo. Empty messages are ignored. The
// returned bool reports whether an entry was appended.
func (t *Transcript) Ingest(guard *EchoGuard, message, source string) (Entry, bool) {
	if strings.TrimSpace(message) == "" {
		return Entry{}, false
	}
	if source == SourceUser {
		return t.Append(RoleUser, message), true
	}
	if guard != nil && guard.Suppress(message) {
		return Entry{}, false
	}
	return t.Append(RoleAssistant, message), true
}
