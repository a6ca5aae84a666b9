package tokenstore

import (
	"context"
	"encoding/json"
	"time"
)

// Well-known keys. The session blob lives under the namespace prefix; the
// two raw slots are written unprefixed because the low-level token manager
// predates the namespacing scheme and still reads them directly.
const (
	SessionKey = "session"

	RawAccessTokenSlot  = "auth_token"
	RawRefreshTokenSlot = "refresh_token"
)

// record wraps every persisted value with its write time and expiry so reads
// can evict stale entries lazily. There is no background sweep.
type record struct {
	Value     json.RawMessage `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
	Expiry    time.Time       `json:"expiry"`
}

// Store is namespaced key-value persistence for session blobs and raw
// provider tokens.
//
// Get never fails: a missing, unparseable or expired entry reads as absent,
// and expired entries are evicted on the way out. Set returns a storage-kind
// error when the backing medium rejects the write. Clear removes everything
// under the namespace plus both raw token slots.
type Store interface {
	Set(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error

	SetRaw(ctx context.Context, slot, token string) error
	GetRaw(ctx context.Context, slot string) (string, bool)
}

// GetValue reads a namespaced entry and unmarshals it into out. A false
// return means absent (including expired or undecodable entries).
func GetValue(ctx context.Context, s Store, key string, out any) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false
	}
	return true
}

func newRecord(value any, now time.Time, maxAge time.Duration) (record, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return record{}, err
	}
	return record{Value: payload, Timestamp: now, Expiry: now.Add(maxAge)}, nil
}

func (r record) expired(now time.Time) bool {
	return now.After(r.Expiry)
}
