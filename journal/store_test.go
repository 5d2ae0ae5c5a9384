package journal

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowd/core/events"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAssignsOrderedSequence(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "journal.db"))
	for i := 0; i < 5; i++ {
		err := store.Append(&events.Event{
			Type:       "escrow.trade.created",
			Attributes: map[string]string{"tradeId": fmt.Sprintf("%d", i+1)},
		})
		require.NoError(t, err)
	}
	records, err := store.After(0, 10)
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, rec := range records {
		require.Equal(t, int64(i+1), rec.Seq)
		require.Equal(t, "escrow.trade.created", rec.Type)
		require.Equal(t, fmt.Sprintf("%d", i+1), rec.Attributes["tradeId"])
		require.False(t, rec.RecordedAt.IsZero())
	}
}

func TestAfterCursorAndLimit(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "journal.db"))
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Append(&events.Event{Type: "escrow.trade.funded", Attributes: map[string]string{}}))
	}
	records, err := store.After(7, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, int64(8), records[0].Seq)

	records, err = store.After(0, 4)
	require.NoError(t, err)
	require.Len(t, records, 4)

	// Non-positive limit falls back to the default page size.
	records, err = store.After(0, 0)
	require.NoError(t, err)
	require.Len(t, records, 10)

	records, err = store.After(100, 10)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestReopenPersistsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Append(&events.Event{
		Type:       "escrow.trade.released",
		Attributes: map[string]string{"payout": "975"},
	}))
	require.NoError(t, store.Close())

	reopened := openStore(t, path)
	records, err := reopened.After(0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "escrow.trade.released", records[0].Type)
	require.Equal(t, "975", records[0].Attributes["payout"])

	// New appends continue the existing sequence.
	require.NoError(t, reopened.Append(&events.Event{Type: "escrow.fee.converted", Attributes: map[string]string{}}))
	records, err = reopened.After(1, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, int64(2), records[0].Seq)
}

func TestAppendRejectsNilEvent(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "journal.db"))
	require.Error(t, store.Append(nil))
}

func TestEmitSwallowsFailures(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "journal.db"))
	// Emit must not panic even when the append cannot succeed.
	store.Emit(nil)
	records, err := store.After(0, 10)
	require.NoError(t, err)
	require.Empty(t, records)

	store.Emit(&events.Event{Type: "escrow.trade.created", Attributes: map[string]string{}})
	records, err = store.After(0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
}
