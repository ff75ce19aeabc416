package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	r := NewResult("sample")
	r.Total, r.Succeeded = 2, 1
	r.Items = []ItemOutcome{
		{Dir: "item_1", Handle: "123/1"},
		{Dir: "item_2", Stage: "load", Kind: "RESOLUTION"},
	}
	r.State = []ItemState{{
		Handle: "123/1",
		Metadata: []string{
			"dc.subject=finance",
			"dc.subject@en=Budgets",
			"dc.subject.other=misc",
			"dc.title=Annual report",
		},
		Bitstreams: []string{"ORIGINAL/a.pdf", "ORIGINAL/b.pdf", "TEXT/a.pdf.txt"},
	}}
	r.UndoEntries = []string{"item_1", "suppress_undo"}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertMetadata, Handle: "123/1", Field: "dc.subject", Values: []string{"finance", "Budgets"}},
		{Type: AssertMetadata, Handle: "123/1", Field: "dc.subject.*", Values: []string{"finance", "Budgets", "misc"}},
		{Type: AssertMetadata, Handle: "123/1", Field: "dc.date"},
		{Type: AssertBitstreams, Handle: "123/1", Bundle: "ORIGINAL", Names: []string{"a.pdf", "b.pdf"}},
		{Type: AssertBitstreams, Handle: "123/1", Names: []string{"ORIGINAL/a.pdf", "ORIGINAL/b.pdf", "TEXT/a.pdf.txt"}},
		{Type: AssertBitstreams, Handle: "123/1", Bundle: "LICENSE"},
		{Type: AssertUndoEntries, Entries: []string{"item_1", "suppress_undo"}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertMetadata, Handle: "123/1", Field: "dc.subject", Values: []string{"Budgets", "finance"}},
		{Type: AssertBitstreams, Handle: "123/1", Bundle: "TEXT", Names: []string{"b.pdf.txt"}},
		{Type: AssertUndoEntries, Entries: []string{"suppress_undo"}},
		{Type: AssertMetadata, Handle: "999/9", Field: "dc.title"},
		{Type: "bogus"},
	})
	require.Len(t, errs, 5)
	assert.Contains(t, errs[0], "assertions[0]: assertion failed: metadata")
	assert.Contains(t, errs[1], "assertions[1]: assertion failed: bitstreams")
	assert.Contains(t, errs[2], "assertions[2]: assertion failed: undo_entries")
	assert.Contains(t, errs[3], "no item 999/9")
	assert.Contains(t, errs[4], `unknown assertion type "bogus"`)
}

func TestCheckExpect(t *testing.T) {
	tests := []struct {
		name   string
		expect ExpectClause
		errors int
	}{
		{"matches", ExpectClause{Succeeded: 1, Failed: map[string]string{"item_2": "RESOLUTION"}}, 0},
		{"wrong kind", ExpectClause{Succeeded: 1, Failed: map[string]string{"item_2": "PARSE"}}, 1},
		{"unexpected failure", ExpectClause{Succeeded: 1}, 2},
		{"expected failure succeeded", ExpectClause{Succeeded: 0, Failed: map[string]string{"item_1": "PARSE", "item_2": "RESOLUTION"}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleResult()
			checkExpect(r, tt.expect)
			assert.Len(t, r.Errors, tt.errors, "%v", r.Errors)
			assert.Equal(t, tt.errors == 0, r.Pass)
		})
	}
}

func TestAssertionError(t *testing.T) {
	err := &AssertionError{Type: AssertMetadata, Expected: "a", Actual: "b"}
	assert.Equal(t, "assertion failed: metadata\n  Expected: a\n  Actual: b", err.Error())
}
