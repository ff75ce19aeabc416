// Package harness runs batch scenarios end to end against a throwaway
// repository.
//
// A scenario seeds a repository with items, writes a source archive, runs
// one batch through the engine and checks the outcome. With undo set it
// then replays the undo archive and verifies every seeded item is back to
// its original state.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: add_subject
//	description: "Adds a subject and undoes it"
//	registries:
//	  - local.cue
//	repository:
//	  - handle: "123/1"
//	    metadata: ["dc.title=Annual report"]
//	    files:
//	      - {name: file1.pdf, content: "%PDF-1.4"}
//	source:
//	  - dir: item_1
//	    handle: "123/1"
//	    metadata: ["dc.subject@en=Budgets"]
//	    files: {contents: "file2.pdf", file2.pdf: "%PDF-1.4"}
//	actions:
//	  add_metadata: [dc.subject]
//	  add_bitstreams: true
//	options:
//	  eperson: curator@example.org
//	  provenance: true
//	expect:
//	  succeeded: 1
//	  failed: {item_2: RESOLUTION}
//	assertions:
//	  - type: metadata
//	    handle: "123/1"
//	    field: dc.subject
//	    values: [Budgets]
//	undo: true
//
// Registry paths are relative to the scenario file. A source item's handle
// becomes its dc.identifier.uri value.
//
// # Assertion Types
//
//   - metadata: the values of a field on an item, in place order
//   - bitstreams: the bitstream names on an item, optionally in one bundle
//   - undo_entries: the entries of the undo archive root
//
// # Deterministic Runs
//
// Every scenario runs with a fixed run id and a clock that never moves, so
// provenance notes and results are identical across runs. RunWithGolden
// compares the JSON result against testdata/golden/{name}.golden.
package harness
