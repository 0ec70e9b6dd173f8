package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/entities"
)

const (
	defaultPrefix = "aidoctor:"
	// keys outlive the session so the cleanup service still sees them
	expiryGrace = time.Hour
)

// SessionRepository keeps consultation sessions in Redis. Each session is a
// JSON value; a sorted set indexes them by expiration.
type SessionRepository struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

// NewClient connects to a redis:// URL and verifies the connection
func NewClient(ctx context.Context, url string, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	logger.Info("Successfully connected to Redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return rdb, nil
}

// NewSessionRepository creates a repository whose keys start with prefix
func NewSessionRepository(rdb *redis.Client, prefix string, logger *zap.Logger) *SessionRepository {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &SessionRepository{
		rdb:    rdb,
		prefix: prefix,
		logger: logger,
	}
}

func (r *SessionRepository) key(id string) string {
	return r.prefix + "session:" + id
}

func (r *SessionRepository) expiryKey() string {
	return r.prefix + "sessions:expiry"
}

func ttlFor(session *entities.Session) time.Duration {
	ttl := time.Until(session.ExpiresAt) + expiryGrace
	if ttl < expiryGrace {
		ttl = expiryGrace
	}
	return ttl
}

func (r *SessionRepository) encode(session *entities.Session) ([]byte, error) {
	if session == nil {
		return nil, errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return data, nil
}

func (r *SessionRepository) index(ctx context.Context, session *entities.Session) error {
	err := r.rdb.ZAdd(ctx, r.expiryKey(), redis.Z{
		Score:  float64(session.ExpiresAt.Unix()),
		Member: session.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// Create implements SessionRepository interface
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	data, err := r.encode(session)
	if err != nil {
		return err
	}

	created, err := r.rdb.SetNX(ctx, r.key(session.ID), data, ttlFor(session)).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !created {
		return fmt.Errorf("session %s already exists", session.ID)
	}

	r.logger.Debug("Session stored in Redis", zap.String("sessionID", session.ID))
	return r.index(ctx, session)
}

// GetByID implements SessionRepository interface
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session entities.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Update implements SessionRepository interface
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	data, err := r.encode(session)
	if err != nil {
		return err
	}

	updated, err := r.rdb.SetXX(ctx, r.key(session.ID), data, ttlFor(session)).Result()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if !updated {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, session.ID)
	}
	return r.index(ctx, session)
}

// Delete implements SessionRepository interface
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	var deleted *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, r.key(id))
		pipe.ZRem(ctx, r.expiryKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if deleted.Val() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return nil
}

// ListExpired implements SessionRepository interface. Sessions still running
// the pipeline are reported only once they have stalled; IDs whose key
// already vanished always are.
func (r *SessionRepository) ListExpired(ctx context.Context) ([]string, error) {
	candidates, err := r.rdb.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	now := time.Now()
	var ids []string
	for _, id := range candidates {
		session, err := r.GetByID(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			ids = append(ids, id)
			continue
		}
		if err != nil {
			r.logger.Warn("Skipping unreadable session", zap.String("sessionID", id), zap.Error(err))
			continue
		}
		// the index lags behind when a session was touched concurrently
		if session.CanExpire(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
