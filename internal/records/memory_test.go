package records

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreConformance(t, func(t *testing.T, c *clock) Store {
		s := NewMemoryStore(logging.Nop())
		s.now = c.now
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()

	data := json.RawMessage(`{"name":"A"}`)
	_, err := s.Set(context.Background(), "items", "a", data)
	require.NoError(t, err)
	data[2] = 'X'

	got, err := s.Get(context.Background(), "items", "a")
	require.NoError(t, err)
	got.Data[2] = 'Y'

	again, err := s.Get(context.Background(), "items", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"A"}`, string(again.Data))
}

func TestMemoryStore_SubscriptionEndsWithContext(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Subscribe(ctx, Query{Collection: "items"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.hub.len())

	cancel()
	require.Eventually(t, func() bool { return s.hub.len() == 0 }, time.Second, 5*time.Millisecond)
}
