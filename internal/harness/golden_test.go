package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// First run with -update to create golden files:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden_TwoClients(t *testing.T) {
	s := mustParse(t, `
name: golden_two_clients
description: "A second device picks up the first device's save"
document: d1
users: { alice: {} }
clients: { a1: alice, a2: alice }
steps:
  - client: a1
    set: { milk: "2" }
  - client: a1
    save: true
  - client: a2
    merge: clients
  - client: a2
    expect:
      values: { milk: "2" }
`)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/two_users.yaml")
	require.NoError(t, err)

	first := run(t, s)
	second := run(t, s)
	assert.Equal(t, first.Trace, second.Trace)
}
