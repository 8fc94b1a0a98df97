package records

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryValidate(t *testing.T) {
	assert.NoError(t, Query{Collection: "items", OrderBy: "name", Limit: 100, LastN: true}.validate())
	assert.NoError(t, Query{Collection: "items"}.validate())
	assert.Error(t, Query{}.validate())
	assert.Error(t, Query{Collection: "items", OrderBy: "name'); DROP"}.validate())
	assert.Error(t, Query{Collection: "items", Limit: -1}.validate())
}

func TestApplyQuery_OrderTieBreakAndLimit(t *testing.T) {
	docs := []Document{
		{Key: "3", Data: json.RawMessage(`{"name":"Bolt"}`)},
		{Key: "1", Data: json.RawMessage(`{"name":"Anchor"}`)},
		{Key: "2", Data: json.RawMessage(`{"name":"Bolt"}`)},
		{Key: "0", Data: json.RawMessage(`{"quantity":1}`)},
	}

	all := applyQuery(append([]Document(nil), docs...), Query{Collection: "c", OrderBy: "name"})
	assert.Equal(t, []string{"0", "1", "2", "3"}, keys(all))

	last := applyQuery(append([]Document(nil), docs...), Query{Collection: "c", OrderBy: "name", Limit: 2, LastN: true})
	assert.Equal(t, []string{"2", "3"}, keys(last))

	first := applyQuery(append([]Document(nil), docs...), Query{Collection: "c", OrderBy: "name", Limit: 2})
	assert.Equal(t, []string{"0", "1"}, keys(first))

	byKey := applyQuery(append([]Document(nil), docs...), Query{Collection: "c"})
	assert.Equal(t, []string{"0", "1", "2", "3"}, keys(byKey))
}

func TestValidData(t *testing.T) {
	assert.NoError(t, validData(json.RawMessage(`{"a":1}`)))
	assert.Error(t, validData(json.RawMessage(`[1]`)))
	assert.Error(t, validData(json.RawMessage(`{`)))
	assert.Error(t, validData(nil))
}

// -------- shared behaviour of every backend with in-process notification --------

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func keys(s Snapshot) []string {
	out := make([]string, len(s))
	for i, d := range s {
		out[i] = d.Key
	}
	return out
}

func names(t *testing.T, s Snapshot) []string {
	t.Helper()
	out := make([]string, len(s))
	for i, d := range s {
		var v struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.Unmarshal(d.Data, &v))
		out[i] = v.Name
	}
	return out
}

func subscribe(t *testing.T, s Store, q Query) (<-chan Snapshot, Subscription) {
	t.Helper()
	ch := make(chan Snapshot, 64)
	sub, err := s.Subscribe(context.Background(), q, func(snap Snapshot) { ch <- snap })
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return ch, sub
}

func waitFor(t *testing.T, ch <-chan Snapshot, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case snap := <-ch:
			if pred(snap) {
				return snap
			}
		case <-timeout:
			t.Fatalf("timed out waiting for snapshot")
			return nil
		}
	}
}

func runStoreConformance(t *testing.T, newStore func(t *testing.T, c *clock) Store) {
	ctx := context.Background()
	itemsByName := Query{Collection: common.ItemsCollection, OrderBy: common.OrderByName, Limit: 3, LastN: true}

	t.Run("SetGetPreservesCreatedAt", func(t *testing.T) {
		c := &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
		s := newStore(t, c)

		first, err := s.Set(ctx, "items", "a", json.RawMessage(`{"name":"A"}`))
		require.NoError(t, err)
		assert.Equal(t, c.t, first.CreatedAt)
		assert.Equal(t, c.t, first.UpdatedAt)

		c.t = c.t.Add(time.Hour)
		second, err := s.Set(ctx, "items", "a", json.RawMessage(`{"name":"B"}`))
		require.NoError(t, err)
		assert.Equal(t, first.CreatedAt, second.CreatedAt)
		assert.Equal(t, c.t, second.UpdatedAt)

		got, err := s.Get(ctx, "items", "a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"B"}`, string(got.Data))
		assert.Equal(t, first.CreatedAt, got.CreatedAt)
		assert.Equal(t, c.t, got.UpdatedAt)

		_, err = s.Get(ctx, "other", "a")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("SetRejectsInvalidDocuments", func(t *testing.T) {
		s := newStore(t, &clock{t: time.Now().UTC()})
		_, err := s.Set(ctx, "items", "a", json.RawMessage(`not json`))
		assert.Error(t, err)
		_, err = s.Set(ctx, "items", "", json.RawMessage(`{}`))
		assert.Error(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t, &clock{t: time.Now().UTC()})
		_, err := s.Set(ctx, "items", "a", json.RawMessage(`{"name":"A"}`))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "items", "a"))
		assert.ErrorIs(t, s.Delete(ctx, "items", "a"), common.ErrNotFound)
		_, err = s.Get(ctx, "items", "a")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("SubscribeDeliversOrderedSnapshots", func(t *testing.T) {
		s := newStore(t, &clock{t: time.Now().UTC()})
		ch, _ := subscribe(t, s, itemsByName)

		initial := waitFor(t, ch, func(Snapshot) bool { return true })
		assert.Empty(t, initial)

		_, err := s.Set(ctx, "items", "k1", json.RawMessage(`{"name":"Bolt"}`))
		require.NoError(t, err)
		_, err = s.Set(ctx, "items", "k2", json.RawMessage(`{"name":"Anchor"}`))
		require.NoError(t, err)
		snap := waitFor(t, ch, func(s Snapshot) bool { return len(s) == 2 })
		assert.Equal(t, []string{"Anchor", "Bolt"}, names(t, snap))

		// Writes to other collections do not leak in.
		_, err = s.Set(ctx, "other", "x", json.RawMessage(`{"name":"Aardvark"}`))
		require.NoError(t, err)

		for i, n := range []string{"Cable", "Drill"} {
			_, err = s.Set(ctx, "items", fmt.Sprintf("n%d", i), json.RawMessage(fmt.Sprintf(`{"name":%q}`, n)))
			require.NoError(t, err)
		}
		snap = waitFor(t, ch, func(s Snapshot) bool {
			return len(s) == 3 && names(t, s)[2] == "Drill"
		})
		assert.Equal(t, []string{"Bolt", "Cable", "Drill"}, names(t, snap))

		require.NoError(t, s.Delete(ctx, "items", "n1"))
		snap = waitFor(t, ch, func(s Snapshot) bool { return names(t, s)[2] == "Cable" })
		assert.Equal(t, []string{"Anchor", "Bolt", "Cable"}, names(t, snap))
	})

	t.Run("ClosedSubscriptionStopsDelivering", func(t *testing.T) {
		s := newStore(t, &clock{t: time.Now().UTC()})
		ch, sub := subscribe(t, s, itemsByName)
		waitFor(t, ch, func(Snapshot) bool { return true })

		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())
		_, err := s.Set(ctx, "items", "a", json.RawMessage(`{"name":"A"}`))
		require.NoError(t, err)

		select {
		case snap := <-ch:
			t.Fatalf("unexpected delivery after close: %v", keys(snap))
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("SubscribeAfterCloseFails", func(t *testing.T) {
		s := newStore(t, &clock{t: time.Now().UTC()})
		require.NoError(t, s.Close())
		_, err := s.Subscribe(ctx, itemsByName, func(Snapshot) {})
		assert.ErrorIs(t, err, common.ErrClosed)
	})

	t.Run("SubscribeRejectsBadQuery", func(t *testing.T) {
		s := newStore(t, &clock{t: time.Now().UTC()})
		_, err := s.Subscribe(ctx, Query{}, func(Snapshot) {})
		assert.Error(t, err)
	})
}
