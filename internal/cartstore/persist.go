package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cartsync/internal/domain/model"
)

const DefaultNamespace = "cartsync:cart"

// Persister はローカル状態の保存先。
type Persister interface {
	Load(ctx context.Context) ([]model.CartLine, bool, error)
	Save(ctx context.Context, lines []model.CartLine) error
	Delete(ctx context.Context) error
}

// go-redis のうち使う分だけ
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisPersister は namespace をキーにして明細を JSON で保存する。
type RedisPersister struct {
	client redisClient
	key    string
	ttl    time.Duration
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	TTL       time.Duration
}

// NewRedisPersister は接続を確認してから返す。
func NewRedisPersister(ctx context.Context, cfg RedisConfig) (*RedisPersister, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisPersisterWithClient(client, cfg.Namespace, cfg.TTL), client, nil
}

func NewRedisPersisterWithClient(client redisClient, namespace string, ttl time.Duration) *RedisPersister {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisPersister{client: client, key: namespace, ttl: ttl}
}

// ForSubject はユーザーごとのキーに切り替えたコピーを返す。
func (p *RedisPersister) ForSubject(subject string) *RedisPersister {
	if subject == "" {
		return p
	}
	cp := *p
	cp.key = p.key + ":" + subject
	return &cp
}

func (p *RedisPersister) Key() string {
	return p.key
}

func (p *RedisPersister) Load(ctx context.Context) ([]model.CartLine, bool, error) {
	raw, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load cart state: %w", err)
	}

	var lines []model.CartLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, false, fmt.Errorf("decode cart state: %w", err)
	}
	return lines, true, nil
}

func (p *RedisPersister) Save(ctx context.Context, lines []model.CartLine) error {
	if lines == nil {
		lines = []model.CartLine{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cart state: %w", err)
	}
	if err := p.client.Set(ctx, p.key, raw, p.ttl).Err(); err != nil {
		return fmt.Errorf("save cart state: %w", err)
	}
	return nil
}

func (p *RedisPersister) Delete(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("delete cart state: %w", err)
	}
	return nil
}

// Restore は保存済みの明細を読み込む。最初の照合より前に呼ぶ。
func Restore(ctx context.Context, s *Store, p Persister) (bool, error) {
	lines, found, err := p.Load(ctx)
	if err != nil || !found {
		return false, err
	}
	s.ReplaceAll(lines)
	return true, nil
}

// RunAutosave は変更のたびに最新スナップショットを保存する。ctx が終わるまで戻らない。
// 保存中に来た変更はまとめて次の1回で保存する。
func RunAutosave(ctx context.Context, s *Store, p Persister, log *zap.Logger) error {
	kick := make(chan struct{}, 1)
	unsubscribe := s.Subscribe(func(model.CartState) {
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-kick:
			snap := s.Read()
			if err := p.Save(ctx, snap.Lines); err != nil {
				log.Warn("autosave failed", zap.Uint64("version", snap.Version), zap.Error(err))
				continue
			}
			log.Debug("cart state saved", zap.Uint64("version", snap.Version), zap.Int("lines", len(snap.Lines)))
		}
	}
}
