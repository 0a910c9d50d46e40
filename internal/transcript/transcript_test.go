package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/riata-onboarding/internal/clock"
)

const greeting = "Hey there! 😊 I'm RIATA, your personal learning companion! I'm SO excited to meet you! What should I call you?"

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestAppendKeepsArrivalOrder(t *testing.T) {
	c := clock.Fake(epoch)
	tr := New(c)

	a := tr.Append(RoleUser, "hello")
	c.Advance(time.Second)
	b := tr.Append(RoleAssistant, "hi")
	c2 := tr.Append(RoleSystem, "note")

	entries := tr.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{a.ID, b.ID, c2.ID}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, b.ID, c2.ID)
	assert.Equal(t, epoch, a.Timestamp)
	assert.Equal(t, epoch.Add(time.Second), b.Timestamp)
	assert.Equal(t, 1, tr.Count(RoleUser))
}

func TestAppendDoesNotDeduplicate(t *testing.T) {
	tr := New(clock.Fake(epoch))
	tr.Append(RoleUser, "same")
	tr.Append(RoleUser, "same")
	assert.Equal(t, 2, tr.Len())
}

func TestEntriesReturnsCopy(t *testing.T) {
	tr := New(clock.Fake(epoch))
	tr.Append(RoleUser, "original")
	entries := tr.Entries()
	entries[0].Content = "mutated"
	assert.Equal(t, "original", tr.Entries()[0].Content)
}

func TestGreetingEchoSuppressed(t *testing.T) {
	c := clock.Fake(epoch)
	tr := New(c)
	guard := NewEchoGuard(c, 15*time.Second)

	tr.Append(RoleAssistant, greeting)
	guard.Arm(greeting)

	_, added := tr.Ingest(guard, greeting, "ai")
	assert.False(t, added)
	assert.Equal(t, 1, tr.Count(RoleAssistant))

	// Later legitimate assistant text quoting the greeting is kept.
	_, added = tr.Ingest(guard, greeting, "ai")
	assert.True(t, added)
	assert.Equal(t, 2, tr.Count(RoleAssistant))
}

func TestEchoGuardIgnoresSubstringMatches(t *testing.T) {
	c := clock.Fake(epoch)
	tr := New(c)
	guard := NewEchoGuard(c, 15*time.Second)
	guard.Arm(greeting)

	_, added := tr.Ingest(guard, "Hey there! Nice to meet you, Ana.", "ai")
	assert.True(t, added)
}

func TestEchoGuardWindowExpires(t *testing.T) {
	c := clock.Fake(epoch)
	tr := New(c)
	guard := NewEchoGuard(c, 5*time.Second)
	guard.Arm(greeting)

	c.Advance(6 * time.Second)
	_, added := tr.Ingest(guard, greeting, "ai")
	assert.True(t, added)
}

func TestEchoGuardNormalizesWhitespace(t *testing.T) {
	c := clock.Fake(epoch)
	guard := NewEchoGuard(c, 0)
	guard.Arm("Hello   there")
	assert.True(t, guard.Suppress(" Hello there\n"))
}

func TestUserMessagesNeverSuppressed(t *testing.T) {
	c := clock.Fake(epoch)
	tr := New(c)
	guard := NewEchoGuard(c, time.Minute)
	guard.Arm(greeting)

	e, added := tr.Ingest(guard, greeting, SourceUser)
	require.True(t, added)
	assert.Equal(t, RoleUser, e.Role)

	// The guard is still armed for the agent's echo.
	_, added = tr.Ingest(guard, greeting, "ai")
	assert.False(t, added)
}

func TestIngestIgnoresEmpty(t *testing.T) {
	tr := New(clock.Fake(epoch))
	_, added := tr.Ingest(nil, "   ", SourceUser)
	assert.False(t, added)
	assert.Equal(t, 0, tr.Len())
}
