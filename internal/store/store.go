// Package store persists render job records in a shared key-value backend.
// The record is addressed by session id; Save replaces the whole value and
// there is no transaction spanning a Load and a later Save.
package store

import (
	"context"
	"errors"

	"github.com/tendant/simple-renderer/pkg/schema"
)

// ErrNotFound is returned by Load, and by Save, when no record exists for the
// session. Records are created by the scene producer only.
var ErrNotFound = errors.New("job record not found")

// JobStore is implemented by every backend.
type JobStore interface {
	Load(ctx context.Context, sessionID string) (*schema.JobRecord, error)
	Save(ctx context.Context, sessionID string, rec *schema.JobRecord) error
	Keys(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}
