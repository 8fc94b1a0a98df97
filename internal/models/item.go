// Package models defines the inventory item document and the ephemeral
// upload-session types shared by the pipeline, sync and transport layers.
package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/google/uuid"
)

// Item is an inventory item as persisted in the record store.
//
// CreatedAt and UpdatedAt are assigned by the store and never sent by the
// client. AssetLink and ThumbnailLink hold plain retrieval-URL strings; they
// are parsed into URLs only when read (AssetURL, ThumbnailURL).
type Item struct {
	ID        string     `json:"id"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	Name     string `json:"name"`
	Quantity int    `json:"quantity"`

	AssetLink     *string `json:"usdzLink,omitempty"`
	ThumbnailLink *string `json:"thumbnailLink,omitempty"`
}

// NewItemID returns a fresh opaque item identifier.
func NewItemID() string {
	return uuid.NewString()
}

// AssetURL parses AssetLink; nil when absent or unparsable.
func (i Item) AssetURL() *url.URL {
	return parseLink(i.AssetLink)
}

// ThumbnailURL parses ThumbnailLink; nil when absent or unparsable.
func (i Item) ThumbnailURL() *url.URL {
	return parseLink(i.ThumbnailLink)
}

// HasDanglingThumbnail reports a thumbnail without its source asset.
func (i Item) HasDanglingThumbnail() bool {
	return i.ThumbnailLink != nil && i.AssetLink == nil
}

// Validate checks the fields a client must get right before persisting.
func (i Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return common.ErrBlankName
	}
	if i.Quantity < 0 {
		return common.ErrNegativeQuantity
	}
	return nil
}

// Encode marshals the client-owned fields. Server timestamps are dropped so
// a write can never set them.
func (i Item) Encode() ([]byte, error) {
	i.CreatedAt = nil
	i.UpdatedAt = nil
	return json.Marshal(i)
}

// DecodeItem parses a stored document. Documents without an id, with a
// mistyped field, or with a negative quantity are reported as ErrDecode.
func DecodeItem(data []byte) (*Item, error) {
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecode, err)
	}
	if item.ID == "" {
		return nil, fmt.Errorf("%w: missing id", common.ErrDecode)
	}
	if item.Quantity < 0 {
		return nil, fmt.Errorf("%w: negative quantity", common.ErrDecode)
	}
	return &item, nil
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseLink(link *string) *url.URL {
	if link == nil {
		return nil
	}
	u, err := url.Parse(*link)
	if err != nil {
		return nil
	}
	return u
}
