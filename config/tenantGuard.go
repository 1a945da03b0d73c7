package config

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/logistics_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const TenantColumn = "tenant_id"

// TenantGuardPlugin scopes queries, updates and deletes to the request tenant
// whenever the model carries a tenant_id column and the statement does not filter on it already.
// Raw SQL is not covered. Internal jobs bypass it with ContextKeySkipTenantScope.
type TenantGuardPlugin struct {
	Column string
}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{Column: TenantColumn} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		name     string
		register func() error
	}{
		{"query", func() error { return cb.Query().Before("gorm:query").Register("tenant_guard:query", p.scope) }},
		{"row", func() error { return cb.Row().Before("gorm:row").Register("tenant_guard:row", p.scope) }},
		{"update", func() error { return cb.Update().Before("gorm:update").Register("tenant_guard:update", p.scope) }},
		{"delete", func() error { return cb.Delete().Before("gorm:delete").Register("tenant_guard:delete", p.scope) }},
	}
	for _, h := range hooks {
		if err := h.register(); err != nil {
			return err
		}
	}
	return nil
}

func (p *TenantGuardPlugin) scope(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Context == nil || db.Statement.Schema == nil {
		return
	}
	ctx := db.Statement.Context
	if bypassTenantScope(ctx) {
		return
	}
	tenantID, _ := appctx.GetString(ctx, appctx.ContextKeyTenantId)
	if tenantID == "" {
		return
	}
	if db.Statement.Schema.LookUpField(p.Column) == nil {
		return
	}
	if where, ok := db.Statement.Clauses["WHERE"].Expression.(clause.Where); ok && exprsMention(where.Exprs, p.Column) {
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: db.Statement.Table, Name: p.Column}, Value: tenantID},
	}})
}

func bypassTenantScope(ctx context.Context) bool {
	if v, _ := appctx.GetBool(ctx, appctx.ContextKeySkipTenantScope); v {
		return true
	}
	v, _ := appctx.GetBool(ctx, appctx.ContextKeyIsAdmin)
	return v
}

func exprsMention(exprs []clause.Expression, column string) bool {
	for _, e := range exprs {
		if exprMentions(e, column) {
			return true
		}
	}
	return false
}

func exprMentions(e clause.Expression, column string) bool {
	switch v := e.(type) {
	case clause.Eq:
		return columnIs(v.Column, column)
	case clause.Neq:
		return columnIs(v.Column, column)
	case clause.IN:
		return columnIs(v.Column, column)
	case clause.AndConditions:
		return exprsMention(v.Exprs, column)
	case clause.OrConditions:
		return exprsMention(v.Exprs, column)
	case clause.Expr:
		// gorm turns Where("tenant_id = ?", x) into a raw Expr.
		return strings.Contains(strings.ToLower(v.SQL), column)
	default:
		return false
	}
}

func columnIs(col any, column string) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, column)
	case clause.Column:
		return strings.EqualFold(c.Name, column)
	default:
		return false
	}
}
