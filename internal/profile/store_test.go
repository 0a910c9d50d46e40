package profile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullUpdate() map[string]any {
	return map[string]any{
		"firstName":          "Ana",
		"lastName":           "Kim",
		"occupation":         "Teacher",
		"location":           "Lisbon",
		"interests":          []any{"math", "art"},
		"learningStyle":      "visual",
		"studyTime":          "mornings",
		"shortTermGoals":     []any{"pass exam"},
		"longTermGoals":      []any{"teach abroad"},
		"overallUserPersona": "curious and methodical",
	}
}

func TestApplyUpdateIncrementalScore(t *testing.T) {
	s := NewStore()

	prev, next := s.ApplyUpdate(map[string]any{"firstName": "Ana"})
	assert.Equal(t, 0, prev)
	assert.Equal(t, 10, next)

	prev, next = s.ApplyUpdate(map[string]any{
		"lastName":  "Kim",
		"interests": []any{"math", "art"},
	})
	assert.Equal(t, 10, prev)
	assert.Equal(t, 30, next)

	rec := s.Record()
	assert.Equal(t, "Ana", rec.FirstName)
	assert.Equal(t, []string{"math", "art"}, rec.Interests)
}

func TestScoreBounds(t *testing.T) {
	var empty Record
	assert.Equal(t, 0, empty.Score())
	assert.Equal(t, 10, empty.Remaining())
	assert.Len(t, empty.Missing(), 10)

	s := NewStore()
	_, next := s.ApplyUpdate(fullUpdate())
	assert.Equal(t, 100, next)

	rec := s.Record()
	assert.Equal(t, 0, rec.Remaining())
	assert.Empty(t, rec.Missing())
}

func TestOverwriteWithEmptyLowersScore(t *testing.T) {
	s := NewStore()
	s.ApplyUpdate(map[string]any{"firstName": "Ana", "interests": []any{"chess"}})

	prev, next := s.ApplyUpdate(map[string]any{"firstName": ""})
	assert.Equal(t, 20, prev)
	assert.Equal(t, 10, next)

	prev, next = s.ApplyUpdate(map[string]any{"interests": []any{}})
	assert.Equal(t, 10, prev)
	assert.Equal(t, 0, next)
}

func TestListReplacedWholesale(t *testing.T) {
	s := NewStore()
	s.ApplyUpdate(map[string]any{"interests": []any{"math", "art"}})
	s.ApplyUpdate(map[string]any{"interests": []any{"music"}})

	assert.Equal(t, []string{"music"}, s.Record().Interests)
}

func TestUnknownKeysKeptInExtra(t *testing.T) {
	s := NewStore()
	prev, next := s.ApplyUpdate(map[string]any{"favouriteColor": "green"})
	assert.Equal(t, 0, prev)
	assert.Equal(t, 0, next)

	rec := s.Record()
	assert.Equal(t, "green", rec.Extra["favouriteColor"])
	assert.False(t, rec.IsEmpty())
}

func TestScalarForListField(t *testing.T) {
	s := NewStore()
	_, next := s.ApplyUpdate(map[string]any{"shortTermGoals": "learn Go"})
	assert.Equal(t, 10, next)
	assert.Equal(t, []string{"learn Go"}, s.Record().ShortTermGoals)
}

func TestUncoercibleValueMovesToExtra(t *testing.T) {
	s := NewStore()
	s.ApplyUpdate(map[string]any{"location": "Porto"})

	obj := map[string]any{"city": "Porto"}
	_, next := s.ApplyUpdate(map[string]any{"location": obj})
	assert.Equal(t, 0, next)

	rec := s.Record()
	assert.Empty(t, rec.Location)
	assert.Equal(t, obj, rec.Extra["location"])

	// A later well-typed value clears the raw copy.
	s.ApplyUpdate(map[string]any{"location": "Braga"})
	rec = s.Record()
	assert.Equal(t, "Braga", rec.Location)
	assert.NotContains(t, rec.Extra, "location")
}

func TestNumbersAndNullFromJSON(t *testing.T) {
	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"studyTime": 7, "firstName": "Ana"}`), &fields))

	s := NewStore()
	s.ApplyUpdate(fields)
	assert.Equal(t, "7", s.Record().StudyTime)

	_, next := s.ApplyUpdate(map[string]any{"firstName": nil})
	assert.Equal(t, 10, next)
}

func TestMissingOrderAndFilledAgree(t *testing.T) {
	s := NewStore()
	s.ApplyUpdate(map[string]any{"lastName": "Kim", "longTermGoals": []any{"phd"}})
	rec := s.Record()

	assert.Equal(t, []string{
		"First Name", "Occupation", "Location", "Interests", "Learning Style",
		"Study Time", "Short-term Goals", "Persona Summary",
	}, rec.Missing())
	assert.Equal(t, len(rec.Missing()), rec.Remaining())
	assert.Equal(t, 100-10*rec.Remaining(), rec.Score())
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewStore()
	s.ApplyUpdate(map[string]any{"interests": []any{"a"}, "mood": "happy"})

	rec := s.Record()
	rec.Interests[0] = "changed"
	rec.Extra["mood"] = "sad"

	again := s.Record()
	assert.Equal(t, "a", again.Interests[0])
	assert.Equal(t, "happy", again.Extra["mood"])
}

func TestReset(t *testing.T) {
	s := NewStore()
	s.ApplyUpdate(fullUpdate())
	s.Reset()
	assert.Equal(t, 0, s.Score())
	rec := s.Record()
	assert.True(t, rec.IsEmpty())
}

func TestFieldByKey(t *testing.T) {
	f, ok := FieldByKey("overallUserPersona")
	require.True(t, ok)
	assert.Equal(t, PersonaSummary, f)
	assert.Equal(t, "Persona Summary", f.Label())

	_, ok = FieldByKey("nickname")
	assert.False(t, ok)
}
