package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/cascade/internal/core/domain"
)

// SignalStore persists provider signals in Redis with a TTL so that
// separate processes and runs share fetched signals.
type SignalStore struct {
	client *Client
}

// NewSignalStore creates a signal store on top of client.
func NewSignalStore(client *Client) *SignalStore {
	return &SignalStore{client: client}
}

// Get returns the signal stored under key. A missing key is not an error.
func (s *SignalStore) Get(ctx context.Context, key string) (domain.Signal, bool, error) {
	raw, err := s.client.rdb.Get(ctx, s.client.signalKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Signal{}, false, nil
	}
	if err != nil {
		return domain.Signal{}, false, fmt.Errorf("get signal %s: %w", key, err)
	}

	sig, err := decodeSignal(raw)
	if err != nil {
		return domain.Signal{}, false, fmt.Errorf("decode signal %s: %w", key, err)
	}
	return sig, true, nil
}

// Set stores sig under key with the configured TTL.
func (s *SignalStore) Set(ctx context.Context, key string, sig domain.Signal) error {
	raw, err := encodeSignal(sig)
	if err != nil {
		return fmt.Errorf("encode signal %s: %w", key, err)
	}
	if err := s.client.rdb.Set(ctx, s.client.signalKey(key), raw, s.client.ttl).Err(); err != nil {
		return fmt.Errorf("set signal %s: %w", key, err)
	}
	return nil
}

// Clear removes every stored signal under the client's prefix.
func (s *SignalStore) Clear(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.client.rdb.Scan(ctx, cursor, s.client.signalPattern(), 500).Result()
		if err != nil {
			return removed, fmt.Errorf("scan failed: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("del failed: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

func encodeSignal(sig domain.Signal) ([]byte, error) {
	return json.Marshal(sig)
}

func decodeSignal(raw []byte) (domain.Signal, error) {
	var sig domain.Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return domain.Signal{}, err
	}
	return sig, nil
}
