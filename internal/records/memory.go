package records

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
)

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]map[string]Document
	now   func() time.Time
	hub   *hub
	close sync.Once
}

func NewMemoryStore(logger logging.Logger) *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]Document),
		now:  time.Now,
		hub:  newHub(logger),
	}
}

func (m *MemoryStore) Set(ctx context.Context, collection, key string, data json.RawMessage) (*Document, error) {
	if err := validData(data); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("empty key")
	}

	m.mu.Lock()
	coll, ok := m.data[collection]
	if !ok {
		coll = make(map[string]Document)
		m.data[collection] = coll
	}
	now := m.now().UTC()
	doc := Document{Key: key, Data: append(json.RawMessage(nil), data...), CreatedAt: now, UpdatedAt: now}
	if prev, ok := coll[key]; ok {
		doc.CreatedAt = prev.CreatedAt
	}
	coll[key] = doc
	m.mu.Unlock()

	m.hub.wake(collection)
	return copyDoc(doc), nil
}

func (m *MemoryStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.data[collection][key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	_, ok := m.data[collection][key]
	delete(m.data[collection], key)
	m.mu.Unlock()

	if !ok {
		return common.ErrNotFound
	}
	m.hub.wake(collection)
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (Subscription, error) {
	l, err := m.hub.add(ctx, q, m.query, fn)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (m *MemoryStore) query(ctx context.Context, q Query) (Snapshot, error) {
	m.mu.RLock()
	docs := make([]Document, 0, len(m.data[q.Collection]))
	for _, d := range m.data[q.Collection] {
		docs = append(docs, *copyDoc(d))
	}
	m.mu.RUnlock()
	return applyQuery(docs, q), nil
}

func (m *MemoryStore) Close() error {
	m.close.Do(m.hub.close)
	return nil
}

func copyDoc(d Document) *Document {
	d.Data = append(json.RawMessage(nil), d.Data...)
	return &d
}
