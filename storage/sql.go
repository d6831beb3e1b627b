package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/korylprince/agent-neo/api"
)

const createTable = `CREATE TABLE IF NOT EXISTS kv (
	k VARCHAR(255) NOT NULL PRIMARY KEY,
	v TEXT NOT NULL
);`

//errNoTable is the MySQL error number for a missing table
const errNoTable = 1146

//SQLStore represents a Store backed by a MySQL kv table
type SQLStore struct {
	db *sql.DB
}

//NewSQLStore returns a new SQLStore using db, creating the kv table if it doesn't exist
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if _, err := db.Exec(createTable); err != nil {
		return nil, &api.Error{Description: "Could not create kv table", Type: api.ErrorTypeServer, Err: err}
	}
	return &SQLStore{db: db}, nil
}

func wrapSQLError(description string, err error) error {
	var e *mysql.MySQLError
	if errors.As(err, &e) && e.Number == errNoTable {
		return &api.Error{Description: description, Type: api.ErrorTypeServer, Err: fmt.Errorf("kv table is missing: %w", err)}
	}
	return &api.Error{Description: description, Type: api.ErrorTypeServer, Err: err}
}

//Get returns the value for key, or an error if one occurred
func (s *SQLStore) Get(key string) (value string, ok bool, err error) {
	row := s.db.QueryRow("SELECT v FROM kv WHERE k=?;", key)
	err = row.Scan(&value)

	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, wrapSQLError(fmt.Sprintf("Could not query key(%s)", key), err)
	}

	return value, true, nil
}

//Set stores value under key, or returns an error if one occurred
func (s *SQLStore) Set(key, value string) error {
	_, err := s.db.Exec("INSERT INTO kv(k, v) VALUES(?, ?) ON DUPLICATE KEY UPDATE v=VALUES(v);", key, value)
	if err != nil {
		return wrapSQLError(fmt.Sprintf("Could not set key(%s)", key), err)
	}
	return nil
}

//Remove deletes the given keys, or returns an error if one occurred
func (s *SQLStore) Remove(keys ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &api.Error{Description: "Could not begin transaction", Type: api.ErrorTypeServer, Err: err}
	}

	for _, k := range keys {
		if _, err = tx.Exec("DELETE FROM kv WHERE k=?;", k); err != nil {
			if rErr := tx.Rollback(); rErr != nil && rErr != sql.ErrTxDone {
				return &api.Error{Description: "Could not rollback transaction", Type: api.ErrorTypeServer, Err: rErr}
			}
			return wrapSQLError(fmt.Sprintf("Could not remove key(%s)", k), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return &api.Error{Description: "Could not commit transaction", Type: api.ErrorTypeServer, Err: err}
	}
	return nil
}
