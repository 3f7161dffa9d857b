package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/gamestate/internal/config"
	"github.com/aretw0/gamestate/pkg/adapters/file"
	"github.com/aretw0/gamestate/pkg/adapters/memory"
	redisadapter "github.com/aretw0/gamestate/pkg/adapters/redis"
	"github.com/aretw0/gamestate/pkg/adapters/sqlite"
	"github.com/aretw0/gamestate/pkg/persistence/middleware"
	"github.com/aretw0/gamestate/pkg/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisURL is used when the redis store has no URL configured.
const DefaultRedisURL = "redis://localhost:6379/0"

// Backend is an opened store with its optional locker.
type Backend struct {
	Store  ports.CriticalDataStore
	Locker ports.DistributedLocker
	Kind   string

	close func() error
}

// Close releases the connections held by the backend.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenStore creates the store described by cfg, wrapped with the configured
// masking and encryption middleware.
func OpenStore(cfg config.StoreConfig, logger *slog.Logger) (*Backend, error) {
	b := &Backend{Kind: cfg.Kind}

	switch cfg.Kind {
	case config.StoreMemory:
		b.Store = memory.NewStore()
	case config.StoreFile:
		b.Store = file.New(cfg.Path)
	case config.StoreSQLite:
		s, err := sqlite.New(cfg.Path, sqlite.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		b.Store, b.close = s, s.Close
	case config.StoreRedis:
		url := cfg.RedisURL
		if url == "" {
			url = DefaultRedisURL
		}
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		s := redisadapter.NewFromClient(client, redisadapter.WithPrefix(cfg.RedisPrefix))
		b.Store, b.close = s, s.Close
		b.Locker = redisadapter.NewLocker(client, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStore, cfg.Kind)
	}

	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.PIIPatterns))
	}
	if cfg.EncryptionKey != "" {
		keys, err := cfg.Keys()
		if err != nil {
			b.Close()
			return nil, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    keys[0],
			FallbackKeys: keys[1:],
		}))
	}
	b.Store = middleware.Chain(b.Store, mws...)

	logger.Debug("store opened", "kind", cfg.Kind, "middleware", len(mws))
	return b, nil
}
