package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
)

var (
	// ErrTokenNotFound is returned for unknown or expired refresh tokens.
	ErrTokenNotFound = errors.New("refresh token expired or invalid")
	// ErrChallengeNotFound is returned for unknown or expired challenges.
	ErrChallengeNotFound = errors.New("challenge expired or invalid")
)

// RedisTokenRepo implements domain.TokenRepository, domain.ChallengeRepository
// and domain.CodeUsageRepository using Redis.
type RedisTokenRepo struct {
	client *redis.Client
}

// NewRedisTokenRepo creates a new repository instance.
func NewRedisTokenRepo(client *redis.Client) *RedisTokenRepo {
	return &RedisTokenRepo{client: client}
}

func refreshKey(token string) string { return "auth:refresh:" + token }

func challengeKey(id string) string { return "auth:challenge:" + id }

func attemptsKey(id string) string { return "auth:challenge:" + id + ":attempts" }

func usedCodeKey(userID, code string) string { return fmt.Sprintf("auth:totp:used:%s:%s", userID, code) }

// StoreRefreshToken saves an opaque token in Redis with a specific Time-To-Live (TTL).
// The key pattern is "auth:refresh:<token>" -> value "userID".
func (r *RedisTokenRepo) StoreRefreshToken(ctx context.Context, userID string, token string, ttl time.Duration) error {
	if err := r.client.Set(ctx, refreshKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token in redis: %w", err)
	}
	return nil
}

// GetUserIDByRefreshToken validates if a refresh token exists and returns the associated User ID.
func (r *RedisTokenRepo) GetUserIDByRefreshToken(ctx context.Context, token string) (string, error) {
	userID, err := r.client.Get(ctx, refreshKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("redis error: %w", err)
	}
	return userID, nil
}

// DeleteRefreshToken removes a token immediately.
// This is used for "Logout" or when a token is rotated.
func (r *RedisTokenRepo) DeleteRefreshToken(ctx context.Context, token string) error {
	return r.client.Del(ctx, refreshKey(token)).Err()
}

// StoreChallenge saves a pending MFA challenge as JSON under "auth:challenge:<id>".
func (r *RedisTokenRepo) StoreChallenge(ctx context.Context, ch *domain.Challenge, ttl time.Duration) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}
	if err := r.client.Set(ctx, challengeKey(ch.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge in redis: %w", err)
	}
	return nil
}

// GetChallenge loads a pending challenge.
func (r *RedisTokenRepo) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	payload, err := r.client.Get(ctx, challengeKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	var ch domain.Challenge
	if err := json.Unmarshal(payload, &ch); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}
	return &ch, nil
}

// DeleteChallenge consumes a challenge along with its attempt counter.
func (r *RedisTokenRepo) DeleteChallenge(ctx context.Context, id string) error {
	return r.client.Del(ctx, challengeKey(id), attemptsKey(id)).Err()
}

// CountFailedAttempt increments "auth:challenge:<id>:attempts". The counter
// expires with the challenge it belongs to.
func (r *RedisTokenRepo) CountFailedAttempt(ctx context.Context, id string, ttl time.Duration) (int64, error) {
	n, err := r.client.Incr(ctx, attemptsKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, attemptsKey(id), ttl).Err(); err != nil {
			return 0, fmt.Errorf("redis error: %w", err)
		}
	}
	return n, nil
}

// MarkCodeUsed records a code for ttl. SETNX makes concurrent submissions of
// the same code race safely: only one caller sees true.
func (r *RedisTokenRepo) MarkCodeUsed(ctx context.Context, userID, code string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, usedCodeKey(userID, code), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return ok, nil
}
