package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPrefix = "searsia:exact:"

// RedisStore compartilha o nível exato entre réplicas do nó. Falhas do
// Redis viram miss e são apenas registradas.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore conecta em redisURL (formato redis://)
func NewRedisStore(redisURL string, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStore{client: redis.NewClient(opts), ttl: ttl, logger: logger}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.client.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("falha ao ler cache exato", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return data, true
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) {
	if err := s.client.Set(ctx, redisPrefix+key, value, s.ttl).Err(); err != nil {
		s.logger.Warn("falha ao gravar cache exato", zap.String("key", key), zap.Error(err))
	}
}

// Ping verifica a conexão na inicialização
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ ExactStore = (*RedisStore)(nil)
