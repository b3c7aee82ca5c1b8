package domain

import (
	"encoding/json"
	"fmt"
)

// SurrogateID is a store-assigned identifier that is either unassigned (the
// zero value) or assigned exactly once. The only way to obtain an assigned
// value is AssignedID or Assign.
type SurrogateID struct {
	id       int64
	assigned bool
}

// AssignedID returns an assigned surrogate id.
func AssignedID(id int64) SurrogateID {
	return SurrogateID{id: id, assigned: true}
}

// Get returns the id and whether it has been assigned.
func (s SurrogateID) Get() (int64, bool) {
	return s.id, s.assigned
}

// IsAssigned reports whether the id has been assigned.
func (s SurrogateID) IsAssigned() bool {
	return s.assigned
}

// Int64 returns the id, or -1 when unassigned.
func (s SurrogateID) Int64() int64 {
	if !s.assigned {
		return -1
	}
	return s.id
}

// Assign returns an assigned id. Assigning the same value again is a no-op;
// assigning a different value over an assigned id fails.
func (s SurrogateID) Assign(id int64) (SurrogateID, error) {
	if s.assigned && s.id != id {
		return s, fmt.Errorf("%w: have %d, got %d", ErrIDAlreadyAssigned, s.id, id)
	}
	return AssignedID(id), nil
}

func (s SurrogateID) String() string {
	if !s.assigned {
		return "unassigned"
	}
	return fmt.Sprintf("%d", s.id)
}

// MarshalJSON encodes an unassigned id as null.
func (s SurrogateID) MarshalJSON() ([]byte, error) {
	if !s.assigned {
		return []byte("null"), nil
	}
	return json.Marshal(s.id)
}

// UnmarshalJSON decodes null as unassigned.
func (s *SurrogateID) UnmarshalJSON(data []byte) error {
	var id *int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	if id == nil {
		*s = SurrogateID{}
		return nil
	}
	*s = AssignedID(*id)
	return nil
}
