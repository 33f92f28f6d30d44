package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ItemVersion is the envelope format written by this package
const ItemVersion = 1

var errMalformedItem = errors.New("malformed storage item")

// Item is the envelope persisted for every stored value. Timestamps are
// unix milliseconds.
type Item struct {
	Value   json.RawMessage `json:"value"`
	Created int64           `json:"created"`
	Expires *int64          `json:"expires,omitempty"`
	Version int             `json:"version"`
}

func newItem(value any, now time.Time, ttl time.Duration) (*Item, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	item := &Item{
		Value:   raw,
		Created: now.UnixMilli(),
		Version: ItemVersion,
	}
	if ttl > 0 {
		expires := now.Add(ttl).UnixMilli()
		item.Expires = &expires
	}
	return item, nil
}

func decodeItem(data []byte) (*Item, error) {
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedItem, err)
	}
	if item.Value == nil || item.Version < 1 {
		return nil, errMalformedItem
	}
	return &item, nil
}

// expired reports whether the item's expiry has passed at now
func (i *Item) expired(now time.Time) bool {
	return i.Expires != nil && now.UnixMilli() > *i.Expires
}

// remaining returns the time left before expiry, clamped at zero
func (i *Item) remaining(now time.Time) time.Duration {
	left := time.Duration(*i.Expires-now.UnixMilli()) * time.Millisecond
	if left < 0 {
		return 0
	}
	return left
}
