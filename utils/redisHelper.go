package utils

import (
	"context"
	"reflect"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
)

func GetCacheLifespan() time.Duration {
	return config.GetSettings().CacheLifespan
}

func GetTypeName[T any]() string {
	var v T
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	return t.Name()
}

func cacheKey[T any](tenantId string, id string) string {
	return tenantId + ":" + strings.ToLower(GetTypeName[T]()) + ":" + id
}

// StoreRedis caches obj under the tenant-scoped key for T.
func StoreRedis[T any](ctx context.Context, tenantId string, id string, obj *T) error {
	return config.SetRedisObject(ctx, cacheKey[T](tenantId, id), obj, GetCacheLifespan())
}

// RetrieveRedis returns nil without error on a cache miss.
func RetrieveRedis[T any](ctx context.Context, tenantId string, id string) (*T, error) {
	var obj T
	exists, err := config.GetRedisObject(ctx, cacheKey[T](tenantId, id), &obj)
	if err != nil || !exists {
		return nil, err
	}
	return &obj, nil
}

func RemoveRedisItem[T any](ctx context.Context, tenantId string, id string) error {
	return config.RemoveRedisKey(ctx, cacheKey[T](tenantId, id))
}
