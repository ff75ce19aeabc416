package harness

import "fmt"

// Result is the outcome of a scenario run.
type Result struct {
	Scenario string `json:"scenario"`

	// Pass is false when an expectation or assertion failed.
	Pass bool `json:"pass"`

	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Items     []ItemOutcome `json:"items"`

	// State is every seeded item after the batch, in repository order.
	State []ItemState `json:"state"`

	// UndoEntries lists the undo archive root; nil when none was written.
	UndoEntries []string `json:"undo_entries,omitempty"`

	Undo *UndoOutcome `json:"undo,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// ItemOutcome is how one source item fared.
type ItemOutcome struct {
	Dir    string `json:"dir"`
	Handle string `json:"handle,omitempty"`
	Stage  string `json:"stage,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// ItemState is a repository item rendered for comparison.
type ItemState struct {
	Handle string `json:"handle"`

	// Metadata in name[@lang]=value form, in place order.
	Metadata []string `json:"metadata"`

	// Bitstreams as BUNDLE/name.
	Bitstreams []string `json:"bitstreams,omitempty"`
}

// UndoOutcome is the result of replaying the undo archive.
type UndoOutcome struct {
	Total     int  `json:"total"`
	Succeeded int  `json:"succeeded"`
	Restored  bool `json:"restored"`
}

// NewResult creates a passing result for the named scenario.
func NewResult(name string) *Result {
	return &Result{Scenario: name, Pass: true}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

func (r *Result) item(handle string) (ItemState, bool) {
	for _, s := range r.State {
		if s.Handle == handle {
			return s, true
		}
	}
	return ItemState{}, false
}
