package collection

import (
	"sync"

	"github.com/dmitrijs2005/invkeeper/internal/models"
)

// subscriber delivers views to one callback from its own goroutine. Only
// the newest undelivered view is kept, so a slow callback skips
// intermediate views but never sees them out of order.
type subscriber struct {
	fn   func([]models.Item)
	wake chan struct{}
	quit chan struct{}

	mu      sync.Mutex
	pending []models.Item
	has     bool
	once    sync.Once
}

func newSubscriber(fn func([]models.Item)) *subscriber {
	sub := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
	go sub.loop()
	return sub
}

func (sub *subscriber) offer(items []models.Item) {
	sub.mu.Lock()
	sub.pending = items
	sub.has = true
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) loop() {
	for {
		select {
		case <-sub.quit:
			return
		case <-sub.wake:
		}

		sub.mu.Lock()
		items, has := sub.pending, sub.has
		sub.pending, sub.has = nil, false
		sub.mu.Unlock()

		if !has {
			continue
		}
		select {
		case <-sub.quit:
			return
		default:
		}
		// Each delivery gets its own copy.
		sub.fn(cloneItems(items))
	}
}

func (sub *subscriber) stop() {
	sub.once.Do(func() { close(sub.quit) })
}

func cloneItems(items []models.Item) []models.Item {
	if items == nil {
		return nil
	}
	out := make([]models.Item, len(items))
	for i, it := range items {
		out[i] = cloneItem(it)
	}
	return out
}

func cloneItem(it models.Item) models.Item {
	if it.CreatedAt != nil {
		t := *it.CreatedAt
		it.CreatedAt = &t
	}
	if it.UpdatedAt != nil {
		t := *it.UpdatedAt
		it.UpdatedAt = &t
	}
	if it.AssetLink != nil {
		s := *it.AssetLink
		it.AssetLink = &s
	}
	if it.ThumbnailLink != nil {
		s := *it.ThumbnailLink
		it.ThumbnailLink = &s
	}
	return it
}
