package repository

import (
	"context"
	"encoding/json"
	"errors"
	"exam_portal_backend/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	sessionKeyPrefix      = "session:"
	loginAttemptKeyPrefix = "login_attempts:"
)

// SessionRepository 会话记录，TTL 即不活跃超时
type SessionRepository struct {
	Client *redis.Client
}

func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{Client: client}
}

func (r *SessionRepository) Save(ctx context.Context, s *model.Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, sessionKeyPrefix+s.Token, data, ttl).Err()
}

func (r *SessionRepository) Get(ctx context.Context, token string) (*model.Session, error) {
	data, err := r.Client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	return r.Client.Del(ctx, sessionKeyPrefix+token).Err()
}

// LoginAttemptRepository 按 IP 记录登录失败次数，窗口从第一次失败开始计算
type LoginAttemptRepository struct {
	Client *redis.Client
}

func NewLoginAttemptRepository(client *redis.Client) *LoginAttemptRepository {
	return &LoginAttemptRepository{Client: client}
}

func (r *LoginAttemptRepository) Count(ctx context.Context, ip string) (int64, error) {
	n, err := r.Client.Get(ctx, loginAttemptKeyPrefix+ip).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *LoginAttemptRepository) Increment(ctx context.Context, ip string, window time.Duration) (int64, error) {
	key := loginAttemptKeyPrefix + ip
	n, err := r.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := r.Client.Expire(ctx, key, window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (r *LoginAttemptRepository) Reset(ctx context.Context, ip string) error {
	return r.Client.Del(ctx, loginAttemptKeyPrefix+ip).Err()
}
