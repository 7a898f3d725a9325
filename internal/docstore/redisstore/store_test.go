package redisstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnionIntoSkipsDuplicates(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	entry := map[string]any{"actor": "alice", "action": "hangup", "at": at}

	arr := unionInto(nil, []any{entry})
	require.Len(t, arr, 1)

	// A retried write offers the same entry again.
	arr = unionInto(arr, []any{entry})
	assert.Len(t, arr, 1)

	other := map[string]any{"actor": "bob", "action": "reject", "at": at}
	arr = unionInto(arr, []any{other})
	require.Len(t, arr, 2)
	assert.Equal(t, entry, arr[0])
	assert.Equal(t, other, arr[1])
}

// Stored arrays come back from Redis as generic JSON values. A retry after
// a successful write must still be recognized as a duplicate even though
// the stored element and the offered one have different Go types.
func TestUnionIntoMatchesAcrossJSONRoundTrip(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	native := map[string]any{"actor": "alice", "action": "mute", "count": 1, "at": at}

	encoded, err := json.Marshal([]any{native})
	require.NoError(t, err)
	var stored []any
	require.NoError(t, json.Unmarshal(encoded, &stored))

	arr := unionInto(stored, []any{native})
	assert.Len(t, arr, 1)

	fresh := map[string]any{"actor": "alice", "action": "unmute", "count": 2, "at": at}
	arr = unionInto(arr, []any{fresh})
	assert.Len(t, arr, 2)
}
