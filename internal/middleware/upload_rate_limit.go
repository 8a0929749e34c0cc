package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/trackforge/backend/internal/config"
)

// UploadRateLimiter caps the number of media uploads per user per day. The
// counter lives in Redis with a midnight-relative TTL; without Redis the cap
// is bypassed rather than blocking uploads.
func UploadRateLimiter(redisClient *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("WARN: Redis not available for upload limiting: %v", err)
			c.Next()
			return
		}

		userID, ok := UserID(c)
		if !ok {
			c.Next()
			return
		}

		key := fmt.Sprintf("upload_count:%s:%s", userID, time.Now().UTC().Format("2006-01-02"))
		count, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			log.Printf("WARN: Upload limiter failed to increment: %v", err)
			c.Next()
			return
		}
		if count == 1 {
			redisClient.Expire(ctx, key, 24*time.Hour)
		}

		if count > int64(cfg.UploadMaxPerDay) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Daily upload limit of %d reached", cfg.UploadMaxPerDay),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
