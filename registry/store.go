package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no record was found for the given key.
var ErrNotFound = errors.New("session record not found")

// Record is the persisted description of a negotiated session.
type Record struct {
	ID              string    `json:"id"`
	Key             string    `json:"key"`
	BaseURL         string    `json:"baseURL"`
	SessionPath     string    `json:"sessionPath,omitempty"`
	Endpoint        string    `json:"endpoint"`
	ProtocolVersion string    `json:"protocolVersion,omitempty"`
	ServerName      string    `json:"serverName,omitempty"`
	State           string    `json:"state"`
	CreatedAt       time.Time `json:"createdAt"`
	LastUsedAt      time.Time `json:"lastUsedAt"`
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	dup := *r
	return &dup
}

// Store keeps session records. Implementations must be safe for concurrent use.
// A record only describes a session; the live connection never leaves the process that opened it.
type Store interface {
	// Put inserts or replaces the record for r.Key.
	Put(ctx context.Context, r *Record) error

	// Get returns ErrNotFound if the record is missing or expired.
	Get(ctx context.Context, key string) (*Record, error)

	// Touch updates the last-used timestamp and extends the expiry.
	Touch(ctx context.Context, key string, at time.Time) error

	// Delete removes a record; deleting a missing record is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every live record.
	List(ctx context.Context) ([]*Record, error)
}
