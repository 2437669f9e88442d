package common

import "sync/atomic"

// UsingSQLite, UsingMySQL and UsingPostgreSQL record which backend model.InitDB
// selected after sniffing config.SQLDSN, so call sites that need
// driver-specific behavior (SQLite busy retry, MySQL DSN normalization) don't
// need to re-parse the DSN themselves.
var (
	UsingSQLite     atomic.Bool
	UsingMySQL      atomic.Bool
	UsingPostgreSQL atomic.Bool
)
