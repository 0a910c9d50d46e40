// Package milestone turns completion-score transitions into one-off
// celebration events.
package milestone

import (
	"fmt"
	"time"
)

// Milestone is a crossed completion threshold.
type Milestone struct {
	Threshold   int           `json:"threshold"`
	Message     string        `json:"message"`
	Celebration time.Duration `json:"-"`
}

// DefaultThresholds are checked in ascending order.
var DefaultThresholds = []int{30, 50, 70, 100}

// DefaultMessages is the celebratory text per threshold.
var DefaultMessages = map[int]string{
	30:  "🌟 Nice progress! Your profile is 30% complete!",
	50:  "🎉 Halfway there! Your profile is 50% complete!",
	70:  "🚀 Amazing! Your profile is 70% complete!",
	100: "🎊 CONGRATULATIONS! Your profile is 100% complete! You did it!",
}

const (
	// DefaultCelebration is how long the celebration is shown.
	DefaultCelebration = 2 * time.Second
	// CompleteCelebration applies to the 100% milestone.
	CompleteCelebration = 3 * time.Second
)

// Notifier detects threshold crossings.
type Notifier struct {
	thresholds []int
	messages   map[int]string
}

// NewNotifier returns a notifier for the default thresholds. Entries in
// messages override the default text for their threshold.
func NewNotifier(messages map[int]string) *Notifier {
	merged := make(map[int]string, len(DefaultMessages))
	for k, v := range DefaultMessages {
		merged[k] = v
	}
	for k, v := range messages {
		if v != "" {
			merged[k] = v
		}
	}
	return &Notifier{thresholds: DefaultThresholds, messages: merged}
}

// Check returns the milestones crossed by moving from previous to next.
// At most one milestone is returned per call: the lowest threshold newly
// reached, so a jump across several thresholds celebrates once.
func (n *Notifier) Check(previous, next int) []Milestone {
	for _, t := range n.thresholds {
		if next >= t && previous < t {
			return []Milestone{n.milestone(t)}
		}
	}
	return nil
}

func (n *Notifier) milestone(threshold int) Milestone {
	msg, ok := n.messages[threshold]
	if !ok {
		msg = fmt.Sprintf("Great job! %d%% complete!", threshold)
	}
	d := DefaultCelebration
	if threshold == 100 {
		d = CompleteCelebration
	}
	return Milestone{Threshold: threshold, Message: msg, Celebration: d}
}
