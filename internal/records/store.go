// Package records is the document store behind inventory items: keyed JSON
// documents grouped in collections, server-assigned timestamps, and live
// ordered queries that redeliver the full matching set on every change.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// Document is one stored record.
type Document struct {
	Key       string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is the ordered result of a live query at one point in time.
type Snapshot []Document

// Query selects documents of a collection ordered by a top-level JSON field.
// Ties are broken by key. With LastN the final Limit entries of that order
// are kept, otherwise the first Limit. A zero Limit means no limit.
type Query struct {
	Collection string
	OrderBy    string
	Limit      int
	LastN      bool
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (q Query) validate() error {
	if q.Collection == "" {
		return fmt.Errorf("query: collection is required")
	}
	if q.OrderBy != "" && !fieldName.MatchString(q.OrderBy) {
		return fmt.Errorf("query: invalid order field %q", q.OrderBy)
	}
	if q.Limit < 0 {
		return fmt.Errorf("query: negative limit %d", q.Limit)
	}
	return nil
}

// Subscription is a running live query.
type Subscription interface {
	// Close stops the query. A delivery already in progress may still
	// complete; no new deliveries start afterwards.
	Close() error
}

// Store is implemented by every backend.
type Store interface {
	// Set writes data under key, replacing any previous document. created_at
	// is kept from the first write; updated_at is set on every write.
	Set(ctx context.Context, collection, key string, data json.RawMessage) (*Document, error)
	Get(ctx context.Context, collection, key string) (*Document, error)
	Delete(ctx context.Context, collection, key string) error
	// Subscribe runs q now and after every change to its collection,
	// calling fn with each full snapshot. Calls to fn are sequential.
	Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (Subscription, error)
	Close() error
}

func validData(data json.RawMessage) error {
	if !json.Valid(data) {
		return fmt.Errorf("document is not valid JSON")
	}
	if t := bytes.TrimSpace(data); len(t) == 0 || t[0] != '{' {
		return fmt.Errorf("document must be a JSON object")
	}
	return nil
}

// orderKey extracts the sort value of field from data. Strings compare by
// their value, other JSON values by their encoding; a missing field sorts
// first.
func orderKey(data json.RawMessage, field string) (string, bool) {
	if field == "" {
		return "", false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", false
	}
	raw, ok := obj[field]
	if !ok || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

// applyQuery sorts docs and applies the limit. docs is reordered in place.
func applyQuery(docs []Document, q Query) Snapshot {
	type keyed struct {
		doc     Document
		val     string
		present bool
	}
	ks := make([]keyed, len(docs))
	for i, d := range docs {
		v, ok := orderKey(d.Data, q.OrderBy)
		ks[i] = keyed{doc: d, val: v, present: ok}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		a, b := ks[i], ks[j]
		if a.present != b.present {
			return !a.present
		}
		if a.val != b.val {
			return a.val < b.val
		}
		return a.doc.Key < b.doc.Key
	})

	if q.Limit > 0 && len(ks) > q.Limit {
		if q.LastN {
			ks = ks[len(ks)-q.Limit:]
		} else {
			ks = ks[:q.Limit]
		}
	}

	out := make(Snapshot, len(ks))
	for i, k := range ks {
		out[i] = k.doc
	}
	return out
}

func reverse(s Snapshot) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
