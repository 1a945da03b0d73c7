package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

func GetRedisObject(ctx context.Context, key string, dest interface{}) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err = json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, objInByte, exp).Err()
}

func SetRedisValue(ctx context.Context, key string, value string, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	return rdb.Set(ctx, key, value, exp).Err()
}

func RemoveRedisKey(ctx context.Context, keys ...string) error {
	if rdb == nil {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}

// ConnectRedisWithRetry connects and sets the global Redis client and lock client.
// Call this from main() after the HTTP server is listening.
func ConnectRedisWithRetry(ctx context.Context) {
	s := GetSettings()

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     s.RedisAddress,
			Password: s.RedisPassword,
			DB:       0,
			PoolSize: 100,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			rdb = client
			locker = redislock.New(rdb)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, s.RedisAddress)
			return
		}
		_ = client.Close()
		if ctx.Err() != nil {
			log.Printf("redis connect cancelled: %v", ctx.Err())
			return
		}
		sleep := backoff(attempt)
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, s.RedisAddress, err, sleep)
		time.Sleep(sleep)
	}
}
