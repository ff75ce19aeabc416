package action

import (
	"fmt"
	"iter"

	"github.com/roach88/itemupdate/internal/ir"
)

// Registry holds at most one action per kind, in registration order.
type Registry struct {
	actions []Action
	byKind  map[Kind]Action
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[Kind]Action)}
}

// Register returns the action of the given kind, constructing and
// appending it on first use.
func (r *Registry) Register(kind Kind) (Action, error) {
	if a, ok := r.byKind[kind]; ok {
		return a, nil
	}

	var a Action
	switch kind {
	case KindAddMetadata:
		a = &AddMetadata{}
	case KindDeleteMetadata:
		a = &DeleteMetadata{}
	case KindAddBitstreams:
		a = &AddBitstreams{}
	case KindDeleteBitstreams:
		a = &DeleteBitstreams{}
	case KindDeleteBitstreamsByFilter:
		a = &DeleteBitstreamsByFilter{}
	default:
		return nil, ir.NewConfigError("register action", fmt.Sprintf("unknown action %q", kind), nil)
	}

	r.actions = append(r.actions, a)
	r.byKind[kind] = a
	return a, nil
}

func (r *Registry) mustRegister(kind Kind) Action {
	a, err := r.Register(kind)
	if err != nil {
		panic(err)
	}
	return a
}

// AddMetadata registers (or returns) the add-metadata action.
func (r *Registry) AddMetadata() *AddMetadata {
	return r.mustRegister(KindAddMetadata).(*AddMetadata)
}

// DeleteMetadata registers (or returns) the delete-metadata action.
func (r *Registry) DeleteMetadata() *DeleteMetadata {
	return r.mustRegister(KindDeleteMetadata).(*DeleteMetadata)
}

// AddBitstreams registers (or returns) the add-bitstreams action.
func (r *Registry) AddBitstreams() *AddBitstreams {
	return r.mustRegister(KindAddBitstreams).(*AddBitstreams)
}

// DeleteBitstreams registers (or returns) the delete-bitstreams action.
func (r *Registry) DeleteBitstreams() *DeleteBitstreams {
	return r.mustRegister(KindDeleteBitstreams).(*DeleteBitstreams)
}

// DeleteBitstreamsByFilter registers (or returns) the filtered delete.
func (r *Registry) DeleteBitstreamsByFilter() *DeleteBitstreamsByFilter {
	return r.mustRegister(KindDeleteBitstreamsByFilter).(*DeleteBitstreamsByFilter)
}

// HasActions reports whether anything is registered.
func (r *Registry) HasActions() bool {
	return len(r.actions) > 0
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	return len(r.actions)
}

// All yields the actions in registration order.
func (r *Registry) All() iter.Seq[Action] {
	return func(yield func(Action) bool) {
		for _, a := range r.actions {
			if !yield(a) {
				return
			}
		}
	}
}

// UndoArgs concatenates the undo flags of every action, dropping repeated
// flag/value pairs.
func (r *Registry) UndoArgs() []string {
	var out []string
	seen := map[[2]string]bool{}
	for a := range r.All() {
		args := a.UndoArgs()
		for i := 0; i < len(args); {
			pair := [2]string{args[i], ""}
			n := 1
			if i+1 < len(args) && !isFlag(args[i+1]) {
				pair[1] = args[i+1]
				n = 2
			}
			if !seen[pair] {
				seen[pair] = true
				out = append(out, args[i:i+n]...)
			}
			i += n
		}
	}
	return out
}

// KindsWithoutUndo returns, in registration order, the kinds whose
// effects the undo archive cannot reverse.
func (r *Registry) KindsWithoutUndo() []string {
	var kinds []string
	for a := range r.All() {
		if len(a.UndoArgs()) == 0 {
			kinds = append(kinds, string(a.Kind()))
		}
	}
	return kinds
}

// ParseArgs builds a registry from the flag form UndoArgs produces:
// "-a field", "-d field", "-A" and "-D". Actions are registered in the
// command line's fixed order regardless of argument order.
func ParseArgs(args []string) (*Registry, error) {
	var adds, deletes []ir.FieldName
	var addBitstreams, deleteBitstreams bool

	for i := 0; i < len(args); i++ {
		switch flag := args[i]; flag {
		case "-a", "-d":
			if i+1 >= len(args) || isFlag(args[i+1]) {
				return nil, ir.NewConfigError("parse actions", fmt.Sprintf("%s needs a field name", flag), nil)
			}
			i++
			name, err := ir.ParseFieldName(args[i], false)
			if err != nil {
				return nil, ir.NewConfigError("parse actions", fmt.Sprintf("%s %s", flag, args[i]), err)
			}
			if flag == "-a" {
				adds = append(adds, name)
			} else {
				deletes = append(deletes, name)
			}
		case "-A":
			addBitstreams = true
		case "-D":
			deleteBitstreams = true
		default:
			return nil, ir.NewConfigError("parse actions", fmt.Sprintf("unexpected argument %q", flag), nil)
		}
	}

	r := NewRegistry()
	if len(deletes) > 0 {
		a := r.DeleteMetadata()
		for _, n := range deletes {
			a.AddTarget(n)
		}
	}
	if len(adds) > 0 {
		a := r.AddMetadata()
		for _, n := range adds {
			a.AddTarget(n)
		}
	}
	if deleteBitstreams {
		r.DeleteBitstreams()
	}
	if addBitstreams {
		r.AddBitstreams()
	}
	if !r.HasActions() {
		return nil, ir.NewConfigError("parse actions", "no actions", nil)
	}
	return r, nil
}

func isFlag(s string) bool {
	return len(s) > 1 && s[0] == '-'
}
