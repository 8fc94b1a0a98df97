// Package collection keeps a live, name-ordered view of all inventory items
// and republishes it to subscribers whenever the record store reports a
// change.
package collection

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
	"github.com/dmitrijs2005/invkeeper/internal/models"
	"github.com/dmitrijs2005/invkeeper/internal/records"
)

// Handle identifies a subscription.
type Handle uint64

// Sync shares one live query among all of its subscribers. The query starts
// with the first subscriber and stops after the last one leaves.
type Sync struct {
	store  records.Store
	logger logging.Logger
	query  records.Query

	mu     sync.Mutex
	subs   map[Handle]*subscriber
	next   Handle
	live   records.Subscription
	gen    uint64
	latest []models.Item
	ready  bool
	closed bool
}

// New creates a Sync over the items collection. limit <= 0 uses the default
// of 100 items.
func New(store records.Store, logger logging.Logger, limit int) *Sync {
	if logger == nil {
		logger = logging.Nop()
	}
	if limit <= 0 {
		limit = common.DefaultCollectionLimit
	}
	return &Sync{
		store:  store,
		logger: logger,
		query: records.Query{
			Collection: common.ItemsCollection,
			OrderBy:    common.OrderByName,
			Limit:      limit,
			LastN:      true,
		},
		subs: make(map[Handle]*subscriber),
	}
}

// Subscribe registers onUpdate. It receives the current view if one is
// already known, then every later view, in order and never concurrently.
func (s *Sync) Subscribe(onUpdate func([]models.Item)) (Handle, error) {
	if onUpdate == nil {
		return 0, errors.New("nil update callback")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, common.ErrClosed
	}

	if s.live == nil {
		s.gen++
		gen := s.gen
		live, err := s.store.Subscribe(context.Background(), s.query, func(snap records.Snapshot) {
			s.publish(gen, snap)
		})
		if err != nil {
			return 0, err
		}
		s.live = live
		s.logger.Debug(context.Background(), "live query started", "collection", s.query.Collection)
	}

	s.next++
	h := s.next
	sub := newSubscriber(onUpdate)
	s.subs[h] = sub
	if s.ready {
		sub.offer(s.latest)
	}
	return h, nil
}

// Unsubscribe removes h. Unknown handles are ignored.
func (s *Sync) Unsubscribe(h Handle) {
	s.mu.Lock()
	sub, ok := s.subs[h]
	delete(s.subs, h)
	var live records.Subscription
	if ok && len(s.subs) == 0 {
		live = s.stopLocked()
	}
	s.mu.Unlock()

	if sub != nil {
		sub.stop()
	}
	if live != nil {
		_ = live.Close()
		s.logger.Debug(context.Background(), "live query stopped", "collection", s.query.Collection)
	}
}

// Latest returns the most recent view and whether one has been received
// since the live query started.
func (s *Sync) Latest() ([]models.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.latest), s.ready
}

// Current returns the view, waiting for the first one when no live query is
// running yet.
func (s *Sync) Current(ctx context.Context) ([]models.Item, error) {
	if items, ok := s.Latest(); ok {
		return items, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan []models.Item, 1)
	h, err := s.Subscribe(func(items []models.Item) {
		select {
		case ch <- items:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer s.Unsubscribe(h)

	select {
	case items := <-ch:
		return items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the live query and all subscribers.
func (s *Sync) Close() {
	s.mu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = make(map[Handle]*subscriber)
	live := s.stopLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	if live != nil {
		_ = live.Close()
	}
}

func (s *Sync) stopLocked() records.Subscription {
	live := s.live
	s.live = nil
	s.latest = nil
	s.ready = false
	return live
}

// publish decodes a snapshot and hands the result to every subscriber.
// Snapshots from a live query that has since been stopped are ignored.
func (s *Sync) publish(gen uint64, snap records.Snapshot) {
	items := s.decode(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil || s.gen != gen {
		return
	}
	s.latest = items
	s.ready = true
	for _, sub := range s.subs {
		sub.offer(items)
	}
}

// decode drops documents that do not decode, keeping the order of the rest.
func (s *Sync) decode(snap records.Snapshot) []models.Item {
	items := make([]models.Item, 0, len(snap))
	for _, doc := range snap {
		item, err := models.DecodeItem(doc.Data)
		if err != nil {
			s.logger.Warn(context.Background(), "dropping malformed item", "key", doc.Key, "error", err)
			continue
		}
		if !doc.CreatedAt.IsZero() {
			created := doc.CreatedAt
			item.CreatedAt = &created
		}
		if !doc.UpdatedAt.IsZero() {
			updated := doc.UpdatedAt
			item.UpdatedAt = &updated
		}
		items = append(items, *item)
	}
	if len(items) > s.query.Limit {
		items = items[len(items)-s.query.Limit:]
	}
	return items
}
