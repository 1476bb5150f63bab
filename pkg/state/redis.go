package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cfoust/avalon/pkg/config"
	"github.com/cfoust/avalon/pkg/game"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-redis/redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	CACHE_PREFIX = "cache:room:"
	KEY_ROOM     = CACHE_PREFIX + "%s"
	CACHE_TTL    = time.Hour
	// Default budget for one cache call.
	CACHE_TIMEOUT = 500 * time.Millisecond
)

func cacheTimeout(settings config.RedisSettings) time.Duration {
	if settings.TimeoutMillis < 1 {
		return CACHE_TIMEOUT
	}
	return time.Duration(settings.TimeoutMillis) * time.Millisecond
}

// NewRedisClient gives up quickly on an unresponsive server: the cache is
// optional and every miss falls back to the database.
func NewRedisClient(settings config.RedisSettings) *redis.Client {
	timeout := cacheTimeout(settings)
	return redis.NewClient(&redis.Options{
		Addr:         settings.Address,
		Password:     settings.Password,
		DB:           settings.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   -1,
	})
}

type cachedRoom struct {
	ID        string
	Owner     string
	Version   uint64
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
	State     []byte
}

var cacheEncoding, _ = cbor.EncOptions{
	Time: cbor.TimeRFC3339Nano,
}.EncMode()

// CachedStore is a cache-aside layer in front of another Store. The cache is
// never authoritative: failures talking to redis are logged and the backing
// store is used instead, and every write invalidates the entry.
type CachedStore struct {
	Store
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

func NewCachedStore(backing Store, client *redis.Client) *CachedStore {
	return &CachedStore{
		Store:   backing,
		client:  client,
		ttl:     CACHE_TTL,
		timeout: CACHE_TIMEOUT,
	}
}

// SetTimeout bounds every individual cache call.
func (s *CachedStore) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.timeout = timeout
	}
}

func (s *CachedStore) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func roomKey(id string) string {
	return fmt.Sprintf(KEY_ROOM, id)
}

func encodeRoom(room *Room) ([]byte, error) {
	gameState, err := game.Marshal(room.State)
	if err != nil {
		return nil, err
	}

	return cacheEncoding.Marshal(cachedRoom{
		ID:        room.ID,
		Owner:     string(room.Owner),
		Version:   room.Version,
		Status:    string(room.Status),
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
		State:     gameState,
	})
}

func decodeRoom(data []byte) (*Room, error) {
	var cached cachedRoom
	if err := cbor.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	gameState, err := game.Unmarshal(cached.State)
	if err != nil {
		return nil, err
	}

	return &Room{
		ID:        cached.ID,
		Owner:     game.PlayerID(cached.Owner),
		Version:   cached.Version,
		Status:    Status(cached.Status),
		CreatedAt: cached.CreatedAt,
		UpdatedAt: cached.UpdatedAt,
		State:     gameState,
	}, nil
}

func (s *CachedStore) Load(ctx context.Context, id string) (*Room, error) {
	logger := log.With().Str("room", id).Logger()
	key := roomKey(id)

	cacheCtx, cancel := s.cacheContext(ctx)
	data, err := s.client.Get(cacheCtx, key).Bytes()
	cancel()
	switch {
	case err == nil:
		room, err := decodeRoom(data)
		if err == nil {
			logger.Debug().Msg("cache hit")
			return room, nil
		}
		logger.Warn().Err(err).Msg("dropping undecodable cache entry")
	case errors.Is(err, redis.Nil):
	default:
		logger.Warn().Err(err).Msg("cache read failed, falling back to store")
	}

	room, err := s.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err = encodeRoom(room)
	if err == nil {
		cacheCtx, cancel := s.cacheContext(ctx)
		err = s.client.Set(cacheCtx, key, data, s.ttl).Err()
		cancel()
	}
	if err != nil {
		logger.Warn().Err(err).Msg("failed to fill cache")
	}

	return room, nil
}

func (s *CachedStore) invalidate(ctx context.Context, id string) {
	cacheCtx, cancel := s.cacheContext(ctx)
	defer cancel()

	err := s.client.Del(cacheCtx, roomKey(id)).Err()
	if err != nil {
		log.Warn().Err(err).Str("room", id).Msg("failed to invalidate cache")
	}
}

func (s *CachedStore) Save(ctx context.Context, room *Room) error {
	err := s.Store.Save(ctx, room)
	if errors.Is(err, ErrConflict) {
		// The entry we were served may be the stale one.
		s.invalidate(ctx, room.ID)
		return err
	}
	if err != nil {
		return err
	}

	s.invalidate(ctx, room.ID)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	err := s.Store.Delete(ctx, id)
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	return nil
}
