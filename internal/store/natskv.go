package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/tendant/simple-renderer/pkg/schema"
)

var _ JobStore = (*NATSKV)(nil)

// NATSKV stores records in a JetStream key-value bucket keyed by session id.
// The bucket plays the role of the Redis key prefix.
type NATSKV struct {
	kv jetstream.KeyValue
}

// KVConfig describes the bucket to bind. A zero TTL keeps records forever.
type KVConfig struct {
	Bucket string
	TTL    time.Duration
}

// NewNATSKV creates the bucket if needed and binds to it.
func NewNATSKV(ctx context.Context, js jetstream.JetStream, cfg KVConfig) (*NATSKV, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "render job records",
		TTL:         cfg.TTL,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("store/nats: bind bucket %s: %w", cfg.Bucket, err)
	}
	return &NATSKV{kv: kv}, nil
}

func (s *NATSKV) Load(ctx context.Context, sessionID string) (*schema.JobRecord, error) {
	entry, err := s.kv.Get(ctx, sessionID)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, fmt.Errorf("store/nats: load %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store/nats: load %s: %w", sessionID, err)
	}
	rec, err := schema.DecodeJobRecord(entry.Value())
	if err != nil {
		return nil, fmt.Errorf("store/nats: load %s: %w", sessionID, err)
	}
	return rec, nil
}

func (s *NATSKV) Save(ctx context.Context, sessionID string, rec *schema.JobRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store/nats: save %s: %w", sessionID, err)
	}
	// Put would recreate a record the bucket TTL or the producer removed.
	if _, err := s.kv.Get(ctx, sessionID); errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("store/nats: save %s: %w", sessionID, ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("store/nats: save %s: %w", sessionID, err)
	}
	if _, err := s.kv.Put(ctx, sessionID, b); err != nil {
		return fmt.Errorf("store/nats: save %s: %w", sessionID, err)
	}
	return nil
}

func (s *NATSKV) Keys(ctx context.Context) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("store/nats: list keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var ids []string
	for k := range lister.Keys() {
		ids = append(ids, k)
	}
	return ids, nil
}

func (s *NATSKV) Ping(ctx context.Context) error {
	if _, err := s.kv.Status(ctx); err != nil {
		return fmt.Errorf("store/nats: status: %w", err)
	}
	return nil
}
