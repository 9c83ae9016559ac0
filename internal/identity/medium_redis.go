package identity

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key holding the identity snapshot.
const DefaultRedisKey = "msbot:identity"

// RedisMedium stores the snapshot JSON under a single Redis key.
type RedisMedium struct {
	client *redis.Client
	key    string
}

// NewRedisMedium constructs a RedisMedium. An empty key selects DefaultRedisKey.
func NewRedisMedium(client *redis.Client, key string) *RedisMedium {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisMedium{client: client, key: key}
}

// Name identifies the medium in logs.
func (m *RedisMedium) Name() string { return "redis:" + m.key }

// Load reads the snapshot. A missing key yields an empty snapshot.
func (m *RedisMedium) Load(ctx context.Context) (Snapshot, error) {
	if m == nil || m.client == nil {
		return Snapshot{}, errors.New("identity: redis client not configured")
	}
	payload, err := m.client.Get(ctx, m.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	return DecodeSnapshot(payload)
}

// Save replaces the stored snapshot. SET is atomic, so readers never observe a
// partial document.
func (m *RedisMedium) Save(ctx context.Context, snap Snapshot) error {
	if m == nil || m.client == nil {
		return errors.New("identity: redis client not configured")
	}
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, m.key, data, 0).Err()
}
