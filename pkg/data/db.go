package data

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "data.db"

	// HistoryLimit is the maximum number of entries kept in history.
	HistoryLimit = 100
)

var (
	//go:embed sql/* schema/*
	f embed.FS

	ErrDBNotInitialized = errors.New("database not initialized")
)

// Init creates the database file and applies the schema. Safe to call on
// an existing database.
func Init(dbFilePath string) error {
	if dbFilePath == "" {
		return errors.New("dbFilePath not specified")
	}

	if _, err := os.Stat(dbFilePath); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating database", "path", dbFilePath)
	}

	db, err := GetDB(dbFilePath)
	if err != nil {
		return fmt.Errorf("opening database %s: %w", dbFilePath, err)
	}
	defer db.Close()

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return fmt.Errorf("reading schema file: %w", err)
	}
	if _, err := db.Exec(string(b)); err != nil {
		return fmt.Errorf("creating database schema in %s: %w", dbFilePath, err)
	}
	slog.Debug("db schema applied", "path", dbFilePath)

	return nil
}

// GetDB opens the sqlite database at path. Writes are serialized on a
// single connection.
func GetDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}
