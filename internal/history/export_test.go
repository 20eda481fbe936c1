package history

import "database/sql"

// DB exposes the internal *sql.DB for test helpers in history_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FailCommit makes every later commit fail with err.
func (s *Store) FailCommit(err error) {
	s.hooks.commit = func(tx *sql.Tx) error {
		_ = tx.Rollback()
		return err
	}
}
