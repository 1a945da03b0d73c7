package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/logistics_backend/appctx"
)

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyTenantId      = appctx.ContextKeyTenantId
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyRole          = appctx.ContextKeyRole
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeyIsAdmin         = appctx.ContextKeyIsAdmin
	ContextKeySkipTenantScope = appctx.ContextKeySkipTenantScope
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetTenantIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTenantId)
}

func GetUserIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetRoleFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRole)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetIsAdminFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsAdmin)
}

func GetSkipTenantScopeFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeySkipTenantScope)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetTenantIdInContext(ctx context.Context, tenantId string) context.Context {
	return appctx.Set(ctx, ContextKeyTenantId, tenantId)
}

func SetUserIdInContext(ctx context.Context, userId string) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetRoleInContext(ctx context.Context, role string) context.Context {
	return appctx.Set(ctx, ContextKeyRole, role)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetIsAdminInContext(ctx context.Context, isAdmin bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsAdmin, isAdmin)
}

func SetSkipTenantScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, ContextKeySkipTenantScope, skip)
}

// WithActor attaches the acting user and tenant in one call.
func WithActor(ctx context.Context, tenantId, userId, userName, role string) context.Context {
	ctx = SetTenantIdInContext(ctx, tenantId)
	ctx = SetUserIdInContext(ctx, userId)
	ctx = SetUserNameInContext(ctx, userName)
	return SetRoleInContext(ctx, role)
}
