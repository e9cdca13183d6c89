// ABOUTME: Tests for the SQLite Store implementation
// ABOUTME: Covers defaults, partial updates, activity retention and full sync

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func strPtr(s string) *string {
	return &s
}

func TestStore_InsertTicket_Defaults(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ticket := &Ticket{ID: "T-1", Title: "Fix login"}
	require.NoError(t, store.InsertTicket(ctx, ticket))

	got, err := store.GetTicket(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "Fix login", got.Title)
	assert.Equal(t, "feature", got.Type)
	assert.Equal(t, "medium", got.Priority)
	assert.Equal(t, "open", got.Status)
	assert.Empty(t, got.Description)
	assert.Empty(t, got.Assignee)
	assert.True(t, got.CreatedAt.Equal(got.UpdatedAt), "createdAt and updatedAt should match at creation")
}

func TestStore_InsertTicket_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTicket(ctx, &Ticket{ID: "T-1", Title: "first"}))
	err := store.InsertTicket(ctx, &Ticket{ID: "T-1", Title: "second"})
	assert.ErrorIs(t, err, ErrDuplicateTicket)
}

func TestStore_GetTicket_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetTicket(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateTicket_PartialMerge(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ticket := &Ticket{
		ID:       "T-1",
		Title:    "Fix login",
		Priority: "high",
		Assignee: "sam",
	}
	require.NoError(t, store.InsertTicket(ctx, ticket))
	created := ticket.CreatedAt

	updated, err := store.UpdateTicket(ctx, "T-1", TicketPatch{Status: strPtr("closed")})
	require.NoError(t, err)

	// Only status changed; everything else keeps its prior value.
	assert.Equal(t, "closed", updated.Status)
	assert.Equal(t, "Fix login", updated.Title)
	assert.Equal(t, "high", updated.Priority)
	assert.Equal(t, "sam", updated.Assignee)
	assert.True(t, updated.CreatedAt.Equal(created))
	assert.False(t, updated.UpdatedAt.Before(created))
}

func TestStore_UpdateTicket_EmptyStringIsAValue(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTicket(ctx, &Ticket{ID: "T-1", Title: "x", Assignee: "sam"}))

	updated, err := store.UpdateTicket(ctx, "T-1", TicketPatch{Assignee: strPtr("")})
	require.NoError(t, err)
	assert.Empty(t, updated.Assignee, "explicit empty string should clear the field")
}

func TestStore_UpdateTicket_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.UpdateTicket(context.Background(), "nope", TicketPatch{Status: strPtr("closed")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteTicket(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTicket(ctx, &Ticket{ID: "T-1", Title: "x"}))
	require.NoError(t, store.DeleteTicket(ctx, "T-1"))

	_, err := store.GetTicket(ctx, "T-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteTicket_NotFoundLeavesTableUnchanged(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTicket(ctx, &Ticket{ID: "T-1", Title: "x"}))

	err := store.DeleteTicket(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	tickets, err := store.ListTickets(ctx)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestStore_ListTickets_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.InsertTicket(ctx, &Ticket{
			ID:        fmt.Sprintf("T-%d", i),
			Title:     fmt.Sprintf("ticket %d", i),
			CreatedAt: ts,
			UpdatedAt: ts,
		}))
	}

	tickets, err := store.ListTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	assert.Equal(t, "T-2", tickets[0].ID)
	assert.Equal(t, "T-0", tickets[2].ID)
}

func TestStore_AppendActivity_Retention(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		require.NoError(t, store.AppendActivity(ctx, &ActivityEntry{
			Action: fmt.Sprintf("action-%d", i),
		}))
	}

	entries, err := store.ListActivity(ctx)
	require.NoError(t, err)
	require.Len(t, entries, ActivityRetention)

	// Exactly the 100 most recently inserted remain, newest first.
	assert.Equal(t, "action-149", entries[0].Action)
	assert.Equal(t, "action-50", entries[len(entries)-1].Action)
}

func TestStore_AppendActivity_ConcurrentWritersStayBounded(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 30; i++ {
				_ = store.AppendActivity(ctx, &ActivityEntry{
					Action: fmt.Sprintf("w%d-%d", w, i),
				})
			}
		}(w)
	}
	wg.Wait()

	entries, err := store.ListActivity(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, ActivityRetention)
}

func TestStore_ReplaceAll(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTicket(ctx, &Ticket{ID: "old", Title: "old ticket"}))
	require.NoError(t, store.AppendActivity(ctx, &ActivityEntry{Action: "old-action"}))

	snap := &Snapshot{
		Tickets: []*Ticket{
			{ID: "A", Title: "ticket A"},
			{ID: "B", Title: "ticket B"},
		},
		Activity: []*ActivityEntry{
			{Action: "synced"},
		},
	}
	require.NoError(t, store.ReplaceAll(ctx, snap))

	data, err := store.GetData(ctx)
	require.NoError(t, err)
	require.Len(t, data.Tickets, 2)
	require.Len(t, data.Activity, 1)
	assert.Equal(t, "synced", data.Activity[0].Action)
	assert.JSONEq(t, "{}", string(data.KBNotes))

	_, err = store.GetTicket(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound, "prior tickets are gone after full sync")
}

func TestStore_ReplaceAll_RollsBackOnFailure(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTicket(ctx, &Ticket{ID: "keep", Title: "kept"}))

	// Duplicate ids inside the snapshot force the bulk insert to fail.
	snap := &Snapshot{
		Tickets: []*Ticket{
			{ID: "dup", Title: "one"},
			{ID: "dup", Title: "two"},
		},
	}
	err := store.ReplaceAll(ctx, snap)
	require.Error(t, err)

	// The original state is intact.
	got, err := store.GetTicket(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Title)
}

func TestStore_ReplaceAll_ConcurrentSyncsNeverExposeEmptyState(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceAll(ctx, &Snapshot{
		Tickets: []*Ticket{{ID: "seed", Title: "seed"}},
	}))

	done := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_ = store.ReplaceAll(ctx, &Snapshot{
					Tickets: []*Ticket{{ID: fmt.Sprintf("w%d-%d", w, i), Title: "t"}},
				})
			}
		}(w)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	// A third reader must always see exactly one ticket: either the old
	// state or a fully applied sync, never the in-between empty table.
	for {
		select {
		case <-done:
			return
		default:
		}
		tickets, err := store.ListTickets(ctx)
		require.NoError(t, err)
		assert.Len(t, tickets, 1, "reader observed a half-applied sync")
	}
}

func TestStore_Settings_Upsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetSetting(ctx, SettingTheme, "dark"))
	require.NoError(t, store.SetSetting(ctx, SettingTheme, "light"))

	value, err := store.GetSetting(ctx, SettingTheme)
	require.NoError(t, err)
	assert.Equal(t, "light", value)
}

func TestStore_Settings_DeleteAndMissing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetSetting(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetSetting(ctx, SettingAnthropicKey, "sk-ant-test"))
	require.NoError(t, store.DeleteSetting(ctx, SettingAnthropicKey))

	_, err = store.GetSetting(ctx, SettingAnthropicKey)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, store.DeleteSetting(ctx, SettingAnthropicKey))
}

func TestStore_ListSettings(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetSetting(ctx, SettingTheme, "dark"))
	require.NoError(t, store.SetSetting(ctx, SettingOpenAIKey, "sk-test"))

	settings, err := store.ListSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		SettingTheme:     "dark",
		SettingOpenAIKey: "sk-test",
	}, settings)
}

func TestStore_ActivityEntry_TicketReference(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id := "T-1"
	require.NoError(t, store.AppendActivity(ctx, &ActivityEntry{
		Action:   "created",
		TicketID: &id,
		Title:    "Fix login",
	}))
	require.NoError(t, store.AppendActivity(ctx, &ActivityEntry{Action: "sync"}))

	entries, err := store.ListActivity(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Nil(t, entries[0].TicketID)
	require.NotNil(t, entries[1].TicketID)
	assert.Equal(t, "T-1", *entries[1].TicketID)
}

func TestStore_DeleteAll(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTicket(ctx, &Ticket{ID: "T-1", Title: "a"}))
	require.NoError(t, store.InsertTicket(ctx, &Ticket{ID: "T-2", Title: "b"}))
	require.NoError(t, store.AppendActivity(ctx, &ActivityEntry{Action: "created"}))

	require.NoError(t, store.DeleteAllTickets(ctx))
	tickets, err := store.ListTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, tickets)

	// Activity survives a ticket wipe until wiped itself.
	entries, err := store.ListActivity(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, store.DeleteAllActivity(ctx))
	entries, err = store.ListActivity(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
