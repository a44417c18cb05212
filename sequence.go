package purgo

// Relation selects which side of an anchor step InsertRelative inserts on.
type Relation int

const (
	// RelationBefore inserts at the anchor's position, shifting the anchor right.
	RelationBefore Relation = iota
	// RelationAfter inserts directly after the anchor.
	RelationAfter
)

// String returns "before" or "after".
func (r Relation) String() string {
	if r == RelationAfter {
		return "after"
	}
	return "before"
}

// Sequence is the ordered, mutable list of steps of a pipeline. Order is the
// only scheduling mechanism: steps run in sequence order, nothing reorders
// them at run time.
//
// Steps are looked up by name with a linear scan; the first match wins for
// both relative insertion and removal. Duplicate names are allowed.
//
// A failed operation never mutates the sequence or the store.
type Sequence struct {
	steps  []Step
	params *Params
}

// NewSequence creates an empty sequence whose insertions merge their extra
// parameters into params.
func NewSequence(params *Params) *Sequence {
	if params == nil {
		params = NewParams(nil)
	}
	return &Sequence{params: params}
}

// Len returns the number of steps.
func (s *Sequence) Len() int {
	return len(s.steps)
}

// InsertAt inserts step at index, where 0 <= index <= Len. Inserting at Len
// appends. extraParams are merged into the shared store, overwriting
// existing keys.
func (s *Sequence) InsertAt(index int, step Step, extraParams map[string]any) error {
	if err := validateStep("step", step); err != nil {
		return err
	}
	if index < 0 || index > len(s.steps) {
		return &IndexError{Index: index, Length: len(s.steps)}
	}

	s.steps = append(s.steps, nil)
	copy(s.steps[index+1:], s.steps[index:])
	s.steps[index] = step

	s.params.Merge(extraParams)
	return nil
}

// InsertRelative inserts step before or after the first step named anchor.
func (s *Sequence) InsertRelative(anchor string, step Step, extraParams map[string]any, relation Relation) error {
	i := s.IndexOf(anchor)
	if i < 0 {
		return NewNotFoundError("step", anchor)
	}
	if relation == RelationAfter {
		i++
	}
	return s.InsertAt(i, step, extraParams)
}

// Remove removes the first step named name. Values the step wrote to the
// store are kept.
func (s *Sequence) Remove(name string) error {
	i := s.IndexOf(name)
	if i < 0 {
		return NewNotFoundError("step", name)
	}
	s.steps = append(s.steps[:i], s.steps[i+1:]...)
	return nil
}

// IndexOf returns the position of the first step named name, or -1.
func (s *Sequence) IndexOf(name string) int {
	for i, step := range s.steps {
		if step.Name() == name {
			return i
		}
	}
	return -1
}

// At returns the step at index i.
func (s *Sequence) At(i int) (Step, bool) {
	if i < 0 || i >= len(s.steps) {
		return nil, false
	}
	return s.steps[i], true
}

// Steps returns a copy of the ordered steps.
func (s *Sequence) Steps() []Step {
	return append([]Step(nil), s.steps...)
}

// Names returns the step names in order.
func (s *Sequence) Names() []string {
	names := make([]string, len(s.steps))
	for i, step := range s.steps {
		names[i] = step.Name()
	}
	return names
}
