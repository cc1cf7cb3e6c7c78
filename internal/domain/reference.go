package domain

// RefState tells whether a Reference holds nothing, a free-text name, or a
// canonical identifier.
type RefState int

const (
	RefAbsent RefState = iota
	RefUnresolved
	RefResolved
)

// Reference is a tagged account/card reference. A value produced by the
// model starts Unresolved; resolution turns it into Resolved(id) or leaves
// it Unresolved for later reconciliation.
type Reference struct {
	state RefState
	value string
}

// Unresolved wraps a free-text name. An empty name yields an absent reference.
func Unresolved(name string) Reference {
	if name == "" {
		return Reference{}
	}
	return Reference{state: RefUnresolved, value: name}
}

// Resolved wraps a canonical identifier. An empty id yields an absent reference.
func Resolved(id string) Reference {
	if id == "" {
		return Reference{}
	}
	return Reference{state: RefResolved, value: id}
}

func (r Reference) State() RefState    { return r.state }
func (r Reference) IsSet() bool        { return r.state != RefAbsent }
func (r Reference) IsResolved() bool   { return r.state == RefResolved }
func (r Reference) IsUnresolved() bool { return r.state == RefUnresolved }

// Value returns the wrapped name or id, or "" when absent.
func (r Reference) Value() string { return r.value }

func (r Reference) String() string {
	switch r.state {
	case RefResolved:
		return "resolved(" + r.value + ")"
	case RefUnresolved:
		return "unresolved(" + r.value + ")"
	default:
		return "absent"
	}
}
