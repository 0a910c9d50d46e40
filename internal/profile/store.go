package profile

// Store owns a Record and applies incremental updates from the voice
// agent. It is not safe for concurrent use; the owning session
// serializes access.
type Store struct {
	record Record
}

// NewStore returns a store holding an empty record.
func NewStore() *Store {
	return &Store{}
}

// ApplyUpdate overwrites each key in fields with its incoming value,
// last write wins per key, and returns the completion score before and
// after the mutation.
func (s *Store) ApplyUpdate(fields map[string]any) (previousScore, newScore int) {
	previousScore = s.record.Score()
	for key, value := range fields {
		s.record.set(key, value)
	}
	return previousScore, s.record.Score()
}

// Record returns a copy of the current record.
func (s *Store) Record() Record {
	return s.record.Clone()
}

// Score returns the current completion score.
func (s *Store) Score() int {
	return s.record.Score()
}

// Reset discards everything recorded so far.
func (s *Store) Reset() {
	s.record = Record{}
}
