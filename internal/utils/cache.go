package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"strconv"       // Cache key building
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// historyPagesInvalidated is how many leading history pages are dropped after
// a mutation; deeper pages age out via TTL.
const historyPagesInvalidated = 5

// GetCache retrieves a value from Redis and unmarshals it into dest
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes a key from Redis
func DeleteCache(ctx context.Context, rdb *redis.Client, key string) error {
	return rdb.Del(ctx, key).Err() // Delete key from Redis
}

// AccountsKey is the cache key for a user's account list.
func AccountsKey(userID uint) string {
	return "accounts:user:" + strconv.Itoa(int(userID))
}

// HistoryKey is the cache key for one page of a user's transaction history.
func HistoryKey(userID uint, page, pageSize int) string {
	return "txhistory:user:" + strconv.Itoa(int(userID)) +
		":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
}

// InvalidateUserCache drops a user's cached account list and leading history
// pages after a balance mutation. Best effort: a cold cache is always safe.
func InvalidateUserCache(ctx context.Context, rdb *redis.Client, userID uint) {
	_ = DeleteCache(ctx, rdb, AccountsKey(userID)) // Account balances changed
	// Drop the first pages of paginated history (default page size)
	for page := 1; page <= historyPagesInvalidated; page++ {
		_ = DeleteCache(ctx, rdb, HistoryKey(userID, page, 20))
	}
}
