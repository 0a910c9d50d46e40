// Package profile holds the learner profile extracted during a voice
// session and derives its completion score.
package profile

// Field identifies one of the tracked profile attributes.
type Field int

// Tracked fields, in display order.
const (
	FirstName Field = iota
	LastName
	Occupation
	Location
	Interests
	LearningStyle
	StudyTime
	ShortTermGoals
	LongTermGoals
	PersonaSummary
)

// TrackedFields lists every field counted by the completion score.
var TrackedFields = []Field{
	FirstName, LastName, Occupation, Location, Interests,
	LearningStyle, StudyTime, ShortTermGoals, LongTermGoals, PersonaSummary,
}

var fieldKeys = [...]string{
	FirstName:      "firstName",
	LastName:       "lastName",
	Occupation:     "occupation",
	Location:       "location",
	Interests:      "interests",
	LearningStyle:  "learningStyle",
	StudyTime:      "studyTime",
	ShortTermGoals: "shortTermGoals",
	LongTermGoals:  "longTermGoals",
	PersonaSummary: "overallUserPersona",
}

var fieldLabels = [...]string{
	FirstName:      "First Name",
	LastName:       "Last Name",
	Occupation:     "Occupation",
	Location:       "Location",
	Interests:      "Interests",
	LearningStyle:  "Learning Style",
	StudyTime:      "Study Time",
	ShortTermGoals: "Short-term Goals",
	LongTermGoals:  "Long-term Goals",
	PersonaSummary: "Persona Summary",
}

// Key returns the wire name the voice agent uses for the field.
func (f Field) Key() string { return fieldKeys[f] }

// Label returns the human-readable name of the field.
func (f Field) Label() string { return fieldLabels[f] }

// IsList reports whether the field holds an ordered list of strings.
func (f Field) IsList() bool {
	switch f {
	case Interests, ShortTermGoals, LongTermGoals:
		return true
	default:
		return false
	}
}

func (f Field) String() string { return f.Key() }

// FieldByKey resolves a wire key to a tracked field.
func FieldByKey(key string) (Field, bool) {
	for _, f := range TrackedFields {
		if fieldKeys[f] == key {
			return f, true
		}
	}
	return 0, false
}
