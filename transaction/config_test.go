package transaction

import (
	"encoding/json"
	"testing"

	"github.com/nsf/jsondiff"
	"github.com/stretchr/testify/require"
)

func TestMergeConfigAppliesRuntimeOverride(t *testing.T) {
	var base = json.RawMessage(`{"timeout":5,"retries":1}`)
	var override = json.RawMessage(`{"retries":3}`)

	merged, err := mergeConfig(base, override)
	require.NoError(t, err)

	var want = json.RawMessage(`{"timeout":5,"retries":3}`)
	diff, _ := jsondiff.Compare(merged, want, jsondiff.DefaultConsoleOptions())
	require.Equal(t, jsondiff.FullMatch, diff, "merged config %s did not structurally match %s", merged, want)
}

func TestMergeConfigWithNoOverridePassesBaseThrough(t *testing.T) {
	var base = json.RawMessage(`{"value":1}`)
	merged, err := mergeConfig(base, nil)
	require.NoError(t, err)
	require.Equal(t, base, merged)
}

func TestMergeConfigWithNoBaseOrOverrideYieldsEmptyObject(t *testing.T) {
	merged, err := mergeConfig(nil, nil)
	require.NoError(t, err)
	diff, _ := jsondiff.Compare(merged, json.RawMessage(`{}`), jsondiff.DefaultConsoleOptions())
	require.Equal(t, jsondiff.FullMatch, diff)
}
