package data

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

const streamPublished = "contentmaker.published"

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

// PublishEvent appends a published-post event to the Redis stream for
// downstream consumers (analytics, cross-posting).
func PublishEvent(ctx context.Context, rdb *redis.Client, payload map[string]interface{}) error {
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamPublished,
		Values: payload,
	}).Result()
	return err
}
