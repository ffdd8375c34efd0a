// ABOUTME: Update operations: the single internal shape both wire formats reduce to.
// ABOUTME: An Op is an add or a delete; deletes may be narrowed by type and data.

package record

import "fmt"

// Action selects what an Op does to the record set.
type Action uint8

const (
	// ActionAdd inserts a fully specified record.
	ActionAdd Action = iota
	// ActionDelete removes records; Type and Value on the record narrow
	// the scope of the deletion.
	ActionDelete
)

// String returns the canonical name of the action.
func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("Action(%d)", a)
	}
}

// DeleteScope describes how much a delete removes.
type DeleteScope uint8

const (
	// ScopeName removes every record for a name, regardless of type.
	ScopeName DeleteScope = iota
	// ScopeRRset removes every record of one type for a name.
	ScopeRRset
	// ScopeRecord removes the single record matching name, type and data.
	ScopeRecord
)

// Op is one requested mutation within a batch.
type Op struct {
	Action Action
	Record Record
}

// Scope reports how much a delete op removes. Only meaningful when
// Action is ActionDelete.
func (o Op) Scope() DeleteScope {
	switch {
	case o.Record.Type == "":
		return ScopeName
	case o.Record.Value == "":
		return ScopeRRset
	default:
		return ScopeRecord
	}
}

func (o Op) String() string {
	r := o.Record
	if o.Action == ActionAdd {
		return fmt.Sprintf("add %s %s %d %s", r.Name, r.Type, r.TTL, r.Value)
	}
	switch o.Scope() {
	case ScopeName:
		return fmt.Sprintf("delete %s", r.Name)
	case ScopeRRset:
		return fmt.Sprintf("delete %s %s", r.Name, r.Type)
	default:
		return fmt.Sprintf("delete %s %s %s", r.Name, r.Type, r.Value)
	}
}
