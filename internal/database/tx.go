package database

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockForUpdate adds FOR UPDATE row locking on dialects that support it.
// sqlite (used by the tests) serializes writers on its own and rejects the
// clause, so it is skipped there.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// JSONContains filters rows whose JSON column contains the given substring.
// Postgres stores these columns as JSONB, which has no LIKE operator, so the
// column must be cast to text first; sqlite keeps JSON as text and matches
// it directly.
func JSONContains(tx *gorm.DB, column, needle string) *gorm.DB {
	pattern := "%" + needle + "%"
	if tx.Dialector.Name() == "postgres" {
		return tx.Where(column+"::text LIKE ?", pattern)
	}
	return tx.Where(column+" LIKE ?", pattern)
}
