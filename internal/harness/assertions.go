package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/itemupdate/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks each assertion against the result and returns
// the failure messages.
func EvaluateAssertions(r *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertMetadata:
			err = assertMetadata(r, a)
		case AssertBitstreams:
			err = assertBitstreams(r, a)
		case AssertUndoEntries:
			err = assertUndoEntries(r, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertMetadata(r *Result, a Assertion) error {
	state, ok := r.item(a.Handle)
	if !ok {
		return fmt.Errorf("no item %s in result state", a.Handle)
	}
	target, err := ir.ParseFieldName(a.Field, true)
	if err != nil {
		return err
	}

	var got []string
	for _, s := range state.Metadata {
		f, err := ir.ParseFieldValue(s)
		if err != nil {
			return err
		}
		if target.Matches(f.Name()) {
			got = append(got, f.Value)
		}
	}

	if !slices.Equal(got, a.Values) {
		return &AssertionError{
			Type:     AssertMetadata,
			Expected: fmt.Sprintf("%s on %s = %q", a.Field, a.Handle, a.Values),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

func assertBitstreams(r *Result, a Assertion) error {
	state, ok := r.item(a.Handle)
	if !ok {
		return fmt.Errorf("no item %s in result state", a.Handle)
	}

	var got []string
	for _, b := range state.Bitstreams {
		if a.Bundle == "" {
			got = append(got, b)
			continue
		}
		if name, ok := strings.CutPrefix(b, a.Bundle+"/"); ok {
			got = append(got, name)
		}
	}

	if !slices.Equal(got, a.Names) {
		where := a.Handle
		if a.Bundle != "" {
			where += " bundle " + a.Bundle
		}
		return &AssertionError{
			Type:     AssertBitstreams,
			Expected: fmt.Sprintf("bitstreams on %s = %q", where, a.Names),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

func assertUndoEntries(r *Result, a Assertion) error {
	if !slices.Equal(r.UndoEntries, a.Entries) {
		return &AssertionError{
			Type:     AssertUndoEntries,
			Expected: fmt.Sprintf("%q", a.Entries),
			Actual:   fmt.Sprintf("%q", r.UndoEntries),
		}
	}
	return nil
}

// checkExpect compares the batch outcome against the expect clause.
func checkExpect(r *Result, e ExpectClause) {
	if r.Succeeded != e.Succeeded {
		r.AddError("expect: %d items succeeded, want %d", r.Succeeded, e.Succeeded)
	}
	if want := e.Succeeded + len(e.Failed); r.Total != want {
		r.AddError("expect: %d items processed, want %d", r.Total, want)
	}

	for _, it := range r.Items {
		kind, shouldFail := e.Failed[it.Dir]
		switch {
		case shouldFail && it.Kind == "":
			r.AddError("expect: %s succeeded, want %s failure", it.Dir, kind)
		case shouldFail && it.Kind != kind:
			r.AddError("expect: %s failed with %s at %s, want %s", it.Dir, it.Kind, it.Stage, kind)
		case !shouldFail && it.Kind != "":
			r.AddError("expect: %s failed with %s at %s", it.Dir, it.Kind, it.Stage)
		}
	}
}
