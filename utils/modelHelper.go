package utils

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// FetchModel loads one row by id, scoped to the tenant, with the given preloads.
// A missing row becomes NotFound naming the entity.
func FetchModel[T any](ctx context.Context, db *gorm.DB, tenantId string, entity string, id string, associations ...string) (*T, error) {
	dbCtx := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("%s not found", entity)
		}
		return nil, err
	}
	return &result, nil
}
