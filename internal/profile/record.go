package profile

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Record is the learner profile. Tracked fields are typed; any other key
// the agent sends is kept verbatim in Extra.
type Record struct {
	FirstName          string         `json:"firstName,omitempty"`
	LastName           string         `json:"lastName,omitempty"`
	Occupation         string         `json:"occupation,omitempty"`
	Location           string         `json:"location,omitempty"`
	Interests          []string       `json:"interests,omitempty"`
	LearningStyle      string         `json:"learningStyle,omitempty"`
	StudyTime          string         `json:"studyTime,omitempty"`
	ShortTermGoals     []string       `json:"shortTermGoals,omitempty"`
	LongTermGoals      []string       `json:"longTermGoals,omitempty"`
	OverallUserPersona string         `json:"overallUserPersona,omitempty"`
	Extra              map[string]any `json:"extra,omitempty"`
}

func (r *Record) text(f Field) *string {
	switch f {
	case FirstName:
		return &r.FirstName
	case LastName:
		return &r.LastName
	case Occupation:
		return &r.Occupation
	case Location:
		return &r.Location
	case LearningStyle:
		return &r.LearningStyle
	case StudyTime:
		return &r.StudyTime
	case PersonaSummary:
		return &r.OverallUserPersona
	}
	return nil
}

func (r *Record) list(f Field) *[]string {
	switch f {
	case Interests:
		return &r.Interests
	case ShortTermGoals:
		return &r.ShortTermGoals
	case LongTermGoals:
		return &r.LongTermGoals
	}
	return nil
}

// Filled reports whether f holds a value. It is the single predicate
// behind Score, Remaining and Missing.
func (r *Record) Filled(f Field) bool {
	if f.IsList() {
		return len(*r.list(f)) > 0
	}
	return *r.text(f) != ""
}

// Text returns the value of a scalar field, or "" for list fields.
func (r *Record) Text(f Field) string {
	if p := r.text(f); p != nil {
		return *p
	}
	return ""
}

// List returns the value of a list field, or nil for scalar fields.
func (r *Record) List(f Field) []string {
	if p := r.list(f); p != nil {
		return *p
	}
	return nil
}

// FilledCount returns how many tracked fields are filled.
func (r *Record) FilledCount() int {
	n := 0
	for _, f := range TrackedFields {
		if r.Filled(f) {
			n++
		}
	}
	return n
}

// Score returns the completion percentage, rounded half up.
func (r *Record) Score() int {
	total := len(TrackedFields)
	return (100*r.FilledCount()*2 + total) / (2 * total)
}

// Remaining returns how many tracked fields are still empty.
func (r *Record) Remaining() int {
	return len(TrackedFields) - r.FilledCount()
}

// Missing returns the labels of empty tracked fields in display order.
func (r *Record) Missing() []string {
	var missing []string
	for _, f := range TrackedFields {
		if !r.Filled(f) {
			missing = append(missing, f.Label())
		}
	}
	return missing
}

// IsEmpty reports whether nothing at all has been recorded, including
// untracked keys.
func (r *Record) IsEmpty() bool {
	return r.FilledCount() == 0 && len(r.Extra) == 0
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *Record) Clone() Record {
	c := *r
	c.Interests = slices.Clone(r.Interests)
	c.ShortTermGoals = slices.Clone(r.ShortTermGoals)
	c.LongTermGoals = slices.Clone(r.LongTermGoals)
	if r.Extra != nil {
		c.Extra = maps.Clone(r.Extra)
	}
	return c
}

// set overwrites the value stored under key. Tracked keys are coerced to
// their field type; values that cannot be coerced, and unknown keys, land
// in Extra.
func (r *Record) set(key string, value any) {
	f, ok := FieldByKey(key)
	if !ok {
		r.setExtra(key, value)
		return
	}

	delete(r.Extra, key)
	if f.IsList() {
		list, ok := toList(value)
		*r.list(f) = list
		if !ok {
			r.setExtra(key, value)
		}
		return
	}

	s, ok := toText(value)
	*r.text(f) = s
	if !ok {
		r.setExtra(key, value)
	}
}

func (r *Record) setExtra(key string, value any) {
	if r.Extra == nil {
		r.Extra = make(map[string]any)
	}
	r.Extra[key] = value
}

// toText coerces a decoded JSON value to a string. nil clears the field.
func toText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return "", false
	}
}

// toList coerces a decoded JSON value to a list of strings. A bare string
// becomes a one-element list; an empty string or nil clears the field.
func toList(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string:
		if t == "" {
			return nil, true
		}
		return []string{t}, true
	case []string:
		return slices.Clone(t), true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := toText(item)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
