package db

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// RDB caches NVD CVE lookups. It is optional: when REDIS_ADDR is unset the
// lookup service goes straight to the upstream API on every call.
var RDB *redis.Client

func ConnectRedis() {
	addr := os.Getenv("REDIS_ADDR")

	if addr == "" {
		log.Println("REDIS_ADDR not set, CVE lookup cache disabled")
		return
	}

	RDB = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RDB.Ping(ctx).Result(); err != nil {
		log.Printf("Failed to connect to Redis, CVE lookup cache disabled: %v", err)
		RDB = nil
		return
	}

	log.Println("Redis connection established")
}
