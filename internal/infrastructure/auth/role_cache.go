package auth

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tenana/wallet-service/internal/infrastructure/redis"
	"github.com/tenana/wallet-service/internal/models"
	"github.com/tenana/wallet-service/internal/repository"
)

// RoleCache is a read-through cache of the admin check. Entries live in
// Redis under user:<id>:is_admin and expire after ttl; Invalidate drops one
// explicitly (sign-out, role change).
type RoleCache struct {
	redisClient redis.RedisClient
	users       repository.UserRepository
	ttl         time.Duration
}

func NewRoleCache(redisClient redis.RedisClient, users repository.UserRepository, ttl time.Duration) *RoleCache {
	return &RoleCache{redisClient: redisClient, users: users, ttl: ttl}
}

func (c *RoleCache) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	key := redis.AdminRoleKey(userID)
	val, err := c.redisClient.Get(ctx, key)
	switch {
	case err == nil:
		return val == "1", nil
	case !stderrors.Is(err, redis.ErrKeyNotFound):
		slog.Warn("admin role cache unavailable, reading store", "user_id", userID, "error", err)
	}

	isAdmin, err := c.users.HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		return false, err
	}

	val = "0"
	if isAdmin {
		val = "1"
	}
	if err := c.redisClient.Set(ctx, key, val, c.ttl); err != nil {
		slog.Warn("failed to cache admin role", "user_id", userID, "error", err)
	}
	return isAdmin, nil
}

func (c *RoleCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.redisClient.Del(ctx, redis.AdminRoleKey(userID)); err != nil {
		slog.Warn("failed to invalidate admin role cache", "user_id", userID, "error", err)
	}
}
