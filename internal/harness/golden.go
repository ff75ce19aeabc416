package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/itemupdate/internal/testutil"
)

// RunWithGolden executes a scenario and compares its JSON result against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	AssertGolden(t, scenario.Name, result)
	return result
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := json.MarshalIndent(result, "", "  ")
	require.NoError(t, err)
	testutil.AssertGolden(t, name, append(data, '\n'))
}
