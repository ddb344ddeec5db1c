package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minisync/internal/remote"
)

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func run(t *testing.T, s *Scenario, opts ...Option) *Result {
	t.Helper()
	result, err := Run(context.Background(), s, opts...)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestRun_TestdataScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		t.Run(filepath.Base(p), func(t *testing.T) {
			s, err := LoadScenario(p)
			require.NoError(t, err)
			result := run(t, s)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(s.Steps))
		})
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	result := run(t, mustParse(t, minimalScenario))

	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "set", result.Trace[0].Op)
	assert.Equal(t, "save", result.Trace[1].Op)
	assert.Equal(t, true, result.Trace[1].Detail["saved"])
	assert.Equal(t, 0, result.Trace[1].Detail["part"])
}

func TestRun_ValueMismatch(t *testing.T) {
	s := mustParse(t, `
name: mismatch
description: "Wrong expectation"
document: d1
users: { alice: {} }
clients: { a1: alice }
steps:
  - client: a1
    set: { k: "v" }
    expect:
      values: { k: "w", other: "x" }
      absent: [k]
      min_version: 5
`)
	result := run(t, s)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], `key "k": expected "w", got "v"`)
	assert.Contains(t, result.Errors[1], `key "other": expected "x", missing`)
	assert.Contains(t, result.Errors[2], `key "k": expected absent`)
	assert.Contains(t, result.Errors[3], "expected version >= 5, got 1")
	for _, e := range result.Errors {
		assert.Contains(t, e, "step 1 (set a1)")
	}
}

func TestRun_SavedMismatch(t *testing.T) {
	s := mustParse(t, `
name: saved
description: "Saving an unchanged document writes nothing"
document: d1
users: { alice: {} }
clients: { a1: alice }
steps:
  - client: a1
    save: true
    expect: { saved: true }
`)
	result := run(t, s)

	// A new empty document is version 0; its first save still writes a part.
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	s.Steps = append(s.Steps, s.Steps[0])
	result = run(t, s)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected saved=true, got false")
}

func TestRun_UnexpectedError(t *testing.T) {
	s := mustParse(t, `
name: unexpected
description: "Restore before anything was saved"
document: d1
users: { alice: {} }
clients: { a1: alice }
steps:
  - client: a1
    restore: {}
`)
	result := run(t, s)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Contains(t, result.Trace[0].Error, "NO_MASTER_INDEX")
}

func TestRun_ExpectedErrorDidNotHappen(t *testing.T) {
	s := mustParse(t, `
name: no-error
description: "Expected error but the step succeeded"
document: d1
users: { alice: {} }
clients: { a1: alice }
steps:
  - client: a1
    save: true
    expect: { error: NO_MASTER_INDEX }
`)
	result := run(t, s)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step succeeded")
}

func TestRun_ImportBeforeSave(t *testing.T) {
	s := mustParse(t, `
name: import-missing
description: "Nothing to import yet"
document: d1
users: { alice: {}, bob: {} }
clients: { a1: alice, b1: bob }
steps:
  - client: b1
    import: a1
    expect: { error: "not found" }
`)
	result := run(t, s)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_PublicURLStores(t *testing.T) {
	s := mustParse(t, `
name: public
description: "Imports resolve public URLs through the publishing store"
document: d1
users:
  alice: { public_url: "https://alice.example/files" }
  bob: {}
clients: { a1: alice, b1: bob }
steps:
  - client: a1
    set: { k: "v" }
  - client: a1
    save: true
  - client: b1
    import: a1
    expect:
      values: { k: "v" }
`)
	result := run(t, s)

	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "https://alice.example/files/documents/document-d1/master-index.json",
		result.Trace[2].Detail["url"])
}

func TestRun_MergeSkipsForeignClients(t *testing.T) {
	s := mustParse(t, `
name: independent
description: "Clients of different users do not see each other without a peer link"
document: d1
users: { alice: {}, bob: {} }
clients: { a1: alice, b1: bob }
steps:
  - client: a1
    set: { k: "v" }
  - client: a1
    save: true
  - client: b1
    merge: clients
    expect:
      absent: [k]
  - client: b1
    merge: peers
    expect:
      absent: [k]
`)
	result := run(t, s)

	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{}, result.Trace[2].Detail["merged"])
	assert.Equal(t, []string{}, result.Trace[3].Detail["merged"])
}

func TestRun_FailedAssertions(t *testing.T) {
	s := mustParse(t, `
name: assertions
description: "Assertions over clients that never saved"
document: d1
users: { alice: {} }
clients: { a1: alice, a2: alice }
steps:
  - client: a1
    save: true
assertions:
  - type: part_count
    client: a1
    count: 2
  - type: part_chain
    client: a2
  - type: master_client
    client: a2
  - type: master_client
    client: a1
    latest: true
`)
	result := run(t, s)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "expected 2 parts, got 1")
	assert.Contains(t, result.Errors[1], "client index not found")
	assert.Contains(t, result.Errors[2], "client not listed in master index")
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, mustParse(t, minimalScenario))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_WithMetrics(t *testing.T) {
	m := remote.NewMetrics(prometheus.NewRegistry())
	s, err := LoadScenario("testdata/scenarios/rollover.yaml")
	require.NoError(t, err)

	result := run(t, s, WithMetrics(m))

	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 3.0, promtest.ToFloat64(m.PartsWritten))
	assert.Equal(t, 3.0, promtest.ToFloat64(m.PartsApplied))
}
