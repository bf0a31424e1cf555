package database

import (
	"context"
	"errors"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoTenant is returned (as a statement error) when a tenant-scoped model
// is touched without a tenant bound to the operation's context.
var ErrNoTenant = errors.New("no tenant bound to this operation")

// Scope carries the active tenant (and optionally store) identity for one
// operation. It travels in the context so the gorm callbacks below can
// inject the tenant filter into every statement; callers cannot forget it.
type Scope struct {
	TenantID uint
	StoreID  *uint
	Bypass   bool // trusted system operations that run before a tenant is known
}

type scopeKey struct{}

func WithTenant(ctx context.Context, tenantID uint) context.Context {
	return context.WithValue(ctx, scopeKey{}, Scope{TenantID: tenantID})
}

func WithTenantStore(ctx context.Context, tenantID, storeID uint) context.Context {
	return context.WithValue(ctx, scopeKey{}, Scope{TenantID: tenantID, StoreID: &storeID})
}

// WithBypass marks the operation as unscoped. Reserved for system reads
// that must run before a tenant is resolved (token lookup, bootstrap).
func WithBypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, Scope{Bypass: true})
}

func ScopeFrom(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// Models exempt from auto-scoping: the tenant table itself is the only
// persisted global entity (the role/permission catalog lives in code).
var scopeExemptTables = map[string]bool{
	"tenants": true,
}

// registerScopeCallbacks installs the tenant interceptor on every statement
// kind. A model opts in simply by having a TenantID field; there is no
// per-query convention to remember.
func registerScopeCallbacks(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("stockroom:scope_query", scopeFilter); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("stockroom:scope_row", scopeFilter); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("stockroom:scope_update", scopeFilter); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("stockroom:scope_delete", scopeFilter); err != nil {
		return err
	}
	return db.Callback().Create().Before("gorm:create").Register("stockroom:scope_create", scopeCreate)
}

func requireScope(tx *gorm.DB) (Scope, bool) {
	sc, ok := ScopeFrom(tx.Statement.Context)
	if !ok || (!sc.Bypass && sc.TenantID == 0) {
		_ = tx.AddError(ErrNoTenant)
		return Scope{}, false
	}
	return sc, true
}

func tenantScoped(tx *gorm.DB) bool {
	sch := tx.Statement.Schema
	if sch == nil {
		return false
	}
	if scopeExemptTables[sch.Table] {
		return false
	}
	return sch.LookUpField("TenantID") != nil
}

// scopeFilter adds "tenant_id = ?" to reads, updates and deletes.
func scopeFilter(tx *gorm.DB) {
	if !tenantScoped(tx) {
		return
	}
	sc, ok := requireScope(tx)
	if !ok || sc.Bypass {
		return
	}
	tx.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: "tenant_id"},
			Value:  sc.TenantID,
		},
	}})
}

// scopeCreate forces the active tenant id into every inserted row, so a
// handler can never write another tenant's data even by passing a poisoned
// model value.
func scopeCreate(tx *gorm.DB) {
	if !tenantScoped(tx) {
		return
	}
	sc, ok := requireScope(tx)
	if !ok || sc.Bypass {
		return
	}

	field := tx.Statement.Schema.LookUpField("TenantID")
	switch tx.Statement.ReflectValue.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < tx.Statement.ReflectValue.Len(); i++ {
			if err := field.Set(tx.Statement.Context, tx.Statement.ReflectValue.Index(i), sc.TenantID); err != nil {
				_ = tx.AddError(err)
				return
			}
		}
	case reflect.Struct:
		if err := field.Set(tx.Statement.Context, tx.Statement.ReflectValue, sc.TenantID); err != nil {
			_ = tx.AddError(err)
		}
	}
}
