package store

import (
	"database/sql"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// sqlmockMock aliases sqlmock.Sqlmock, the expectation handle NewMock
// returns alongside the Store.
type sqlmockMock = sqlmock.Sqlmock

func newSQLMock() (*sql.DB, sqlmock.Sqlmock, error) {
	return sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
}
