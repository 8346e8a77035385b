package utils

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
)

func IsValidEmail(email string) bool {
	// Basic email validation regex pattern
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

func UniqueSlice[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	out := make([]T, 0, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// GenerateTrackingNumber produces a globally unique order tracking number.
// The uuid fragment keeps it unguessable; uniqueness is still enforced by
// the DB index and retried on collision.
func GenerateTrackingNumber() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TRK-" + time.Now().UTC().Format("20060102") + "-" + raw[:10]
}

// GenerateUnitSerial derives an order unit serial from the variation's
// product/color/size plus a random suffix.
func GenerateUnitSerial(sku, color, size string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	norm := func(s string) string {
		s = strings.ToUpper(strings.TrimSpace(s))
		return strings.ReplaceAll(s, " ", "")
	}
	return fmt.Sprintf("%s-%s-%s-%s", norm(sku), norm(color), norm(size), suffix)
}

// StockLock serializes stock posting per variation across instances.
// Best-effort layer: correctness does not depend on it, the conditional
// decrement on stock_levels is the real guard.
func StockLock(ctx context.Context, key string, moduleName string, functionName string) (*redislock.Lock, error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when the Redis lock isn't initialized yet.
		return nil, nil
	}
	lockKey := fmt.Sprintf("stockLock:%s", key)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain stock lock", key, err)
		return nil, errors.New("could not obtain stock lock")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining stock lock", key, err)
		return nil, err
	}
	return lock, nil
}

func ReleaseLock(ctx context.Context, lock *redislock.Lock) {
	if lock == nil {
		return
	}
	_ = lock.Release(ctx)
}
