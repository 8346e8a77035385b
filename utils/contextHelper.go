package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/shop_backend/appctx"
)

var (
	ContextKeyStaffId       = appctx.ContextKeyStaffId
	ContextKeyStaffRole     = appctx.ContextKeyStaffRole
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetStaffIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyStaffId)
}

func GetStaffRoleFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyStaffRole)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetStaffIdInContext(ctx context.Context, staffId int) context.Context {
	return appctx.Set(ctx, ContextKeyStaffId, staffId)
}

func SetStaffRoleInContext(ctx context.Context, role string) context.Context {
	return appctx.Set(ctx, ContextKeyStaffRole, role)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
