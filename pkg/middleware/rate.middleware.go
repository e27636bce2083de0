package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/response"
)

// RateStore is the counter backend for RateLimiter. *cache.Cache implements it.
type RateStore interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	GetTTL(ctx context.Context, namespace, key string) (time.Duration, error)
	Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error
	IncrWithExpire(ctx context.Context, namespace, key string, window time.Duration) (int64, error)
}

func RateLimiter(store RateStore, limit int, window, blockDuration time.Duration, keyPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// 1. Prefer userID if authenticated
			var clientID string
			if userID, ok := GetUserID(ctx); ok {
				clientID = "uid:" + userID
			} else {
				// 2. Fallback: IP (check proxy headers first)
				ip := r.Header.Get("X-Forwarded-For")
				if ip == "" {
					ip = r.RemoteAddr
				}
				clientID = "ip:" + strings.TrimSpace(strings.Split(ip, ",")[0])
			}

			blockKey := clientID + ":blocked"

			blocked, _ := store.Get(ctx, keyPrefix, blockKey)
			if blocked == "1" {
				ttl, _ := store.GetTTL(ctx, keyPrefix, blockKey)
				w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
				response.Error(w, http.StatusTooManyRequests, "Too Many Requests. Try again in "+ttl.String())
				return
			}

			count, err := store.IncrWithExpire(ctx, keyPrefix, clientID, window)
			if err != nil {
				// fail open when redis is unavailable
				next.ServeHTTP(w, r)
				return
			}

			if count > int64(limit) {
				_ = store.Set(ctx, keyPrefix, blockKey, "1", blockDuration)
				w.Header().Set("Retry-After", strconv.Itoa(int(blockDuration.Seconds())))
				response.Error(w, http.StatusTooManyRequests, "Too Many Requests. Blocked for "+blockDuration.String())
				return
			}

			ttl, _ := store.GetTTL(ctx, keyPrefix, clientID)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

			next.ServeHTTP(w, r)
		})
	}
}
