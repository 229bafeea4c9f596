package audit

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordWritesNewlineDelimitedJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)

	require.NoError(t, logger.Record(ActionInsert, "192.0.2.1", "static"))
	require.NoError(t, logger.Record(ActionRemove, "192.0.2.2", "domain:example.com"))

	dec := json.NewDecoder(&buf)

	var first Entry
	require.NoError(t, dec.Decode(&first))
	require.Equal(t, ActionInsert, first.Action)
	require.Equal(t, "192.0.2.1", first.IPv4)
	require.Equal(t, "static", first.Source)
	require.NotZero(t, first.Timestamp)

	var second Entry
	require.NoError(t, dec.Decode(&second))
	require.Equal(t, ActionRemove, second.Action)
	require.Equal(t, "192.0.2.2", second.IPv4)
	require.Equal(t, "domain:example.com", second.Source)
}

func TestRecordReusesPooledEntriesWithoutLeakingFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)

	for i := 0; i < 8; i++ {
		require.NoError(t, logger.Record(ActionInsert, "10.0.0.1", "nameserver"))
	}

	dec := json.NewDecoder(&buf)
	for i := 0; i < 8; i++ {
		var e Entry
		require.NoError(t, dec.Decode(&e))
		require.Equal(t, "10.0.0.1", e.IPv4)
		require.Equal(t, "nameserver", e.Source)
	}
}
