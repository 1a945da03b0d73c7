package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"gorm.io/gorm"
)

func skipTenant(ctx context.Context) bool {
	skip, _ := utils.GetSkipTenantScopeFromContext(ctx)
	return skip
}

func tenantOf(ctx context.Context) string {
	tenantId, _ := utils.GetTenantIdFromContext(ctx)
	return tenantId
}

// scoped starts a statement filtered to the request tenant.
// The tenant guard plugin enforces the same rule for statements that forget it.
func scoped(ctx context.Context, db *gorm.DB, table string) *gorm.DB {
	q := db.WithContext(ctx)
	if skipTenant(ctx) {
		return q
	}
	return q.Where(table+".tenant_id = ?", tenantOf(ctx))
}

// fetch loads one tenant row by id, mapping a miss to NotFound.
func fetch[T any](ctx context.Context, db *gorm.DB, entity string, id string, associations ...string) (*T, error) {
	if !skipTenant(ctx) {
		return utils.FetchModel[T](ctx, db, tenantOf(ctx), entity, id, associations...)
	}
	q := db.WithContext(ctx)
	for _, field := range associations {
		q = q.Preload(field)
	}
	var result T
	if err := q.Where("id = ?", id).First(&result).Error; err != nil {
		return nil, translate(err, entity)
	}
	return &result, nil
}
