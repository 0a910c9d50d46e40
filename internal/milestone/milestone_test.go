package milestone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	n := NewNotifier(nil)

	tests := []struct {
		name      string
		prev      int
		next      int
		threshold int
	}{
		{name: "cross 30", prev: 0, next: 35, threshold: 30},
		{name: "jump reports lowest", prev: 25, next: 75, threshold: 30},
		{name: "land exactly on 50", prev: 40, next: 50, threshold: 50},
		{name: "cross 70", prev: 60, next: 70, threshold: 70},
		{name: "complete", prev: 90, next: 100, threshold: 100},
		{name: "no crossing", prev: 30, next: 40},
		{name: "decrease", prev: 60, next: 20},
		{name: "unchanged", prev: 100, next: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Check(tt.prev, tt.next)
			if tt.threshold == 0 {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.threshold, got[0].Threshold)
			assert.NotEmpty(t, got[0].Message)
		})
	}
}

func TestCelebrationDuration(t *testing.T) {
	n := NewNotifier(nil)
	assert.Equal(t, 2*time.Second, n.Check(0, 30)[0].Celebration)
	assert.Equal(t, 3*time.Second, n.Check(70, 100)[0].Celebration)
}

func TestMessageOverride(t *testing.T) {
	n := NewNotifier(map[int]string{50: "half!", 70: ""})
	assert.Equal(t, "half!", n.Check(40, 50)[0].Message)
	assert.Equal(t, DefaultMessages[70], n.Check(60, 70)[0].Message)
}

func TestRefiresAfterDropping(t *testing.T) {
	n := NewNotifier(nil)
	assert.Len(t, n.Check(20, 30), 1)
	assert.Empty(t, n.Check(30, 20))
	assert.Len(t, n.Check(20, 30), 1)
}
