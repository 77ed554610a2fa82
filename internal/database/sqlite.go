package database

import (
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// sqliteDriverName is go-sqlite3 with the helper functions the queries need
const sqliteDriverName = "sqlite3_collabchat"

// foldFunc lowercases with full Unicode rules. SQLite's LOWER only folds
// ASCII, so search compares unicode_lower(content) against a pattern folded
// the same way in Go. The postgres schema defines the same name over LOWER.
const foldFunc = "unicode_lower"

func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(foldFunc, strings.ToLower, true)
		},
	})
}
