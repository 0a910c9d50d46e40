package session

import (
	"fmt"
	"strings"

	"github.com/ashureev/riata-onboarding/internal/profile"
)

// DefaultGreeting is appended locally when a call connects.
const DefaultGreeting = "Hey there! 😊 I'm RIATA, your personal learning companion! I'm SO excited to meet you! What should I call you?"

// Persona holds the wording the session generates on its own.
type Persona struct {
	Greeting          string         `yaml:"greeting"`
	SummaryHeader     string         `yaml:"summary_header"`
	SummaryFooter     string         `yaml:"summary_footer"`
	NotShared         string         `yaml:"not_shared"`
	ErrorPrefix       string         `yaml:"error_prefix"`
	MilestoneMessages map[int]string `yaml:"milestones"`
}

// DefaultPersona returns the stock wording.
func DefaultPersona() Persona {
	return Persona{
		Greeting:      DefaultGreeting,
		SummaryHeader: "🎉 Great conversation! Here's what I learned:",
		SummaryFooter: "Thanks for chatting with me!",
		NotShared:     "Not shared",
		ErrorPrefix:   "❌ Error: ",
	}
}

func (p Persona) withDefaults() Persona {
	d := DefaultPersona()
	if p.Greeting == "" {
		p.Greeting = d.Greeting
	}
	if p.SummaryHeader == "" {
		p.SummaryHeader = d.SummaryHeader
	}
	if p.SummaryFooter == "" {
		p.SummaryFooter = d.SummaryFooter
	}
	if p.NotShared == "" {
		p.NotShared = d.NotShared
	}
	if p.ErrorPrefix == "" {
		p.ErrorPrefix = d.ErrorPrefix
	}
	return p
}

// Summary renders the end-of-call recap of what was learned.
func (p Persona) Summary(rec profile.Record) string {
	orNot := func(s string) string {
		if s == "" {
			return p.NotShared
		}
		return s
	}
	var b strings.Builder
	b.WriteString(p.SummaryHeader)
	fmt.Fprintf(&b, "\n• Name: %s", orNot(rec.FirstName))
	fmt.Fprintf(&b, "\n• Location: %s", orNot(rec.Location))
	fmt.Fprintf(&b, "\n• Occupation: %s", orNot(rec.Occupation))
	fmt.Fprintf(&b, "\n• Interests: %s", orNot(strings.Join(rec.Interests, ", ")))
	b.WriteString("\n")
	b.WriteString(p.SummaryFooter)
	return b.String()
}

// ErrorText renders a failure as a system transcript line.
func (p Persona) ErrorText(reason string) string {
	return p.ErrorPrefix + reason
}
