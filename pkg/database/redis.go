package database

import (
	"context"

	"github.com/go-redis/redis/v8"

	"oc-search-go/pkg/log"
)

// RDB holds export file keys, generation locks and task status.
var RDB *redis.Client

// InitRedis connects to Redis and checks the connection.
func InitRedis(addr, password string, db int) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
}
