// Package sqlite implements the library catalog on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/logger"
	"github.com/lumenlib/lumen-server/internal/store"

	_ "modernc.org/sqlite"
)

// DatabaseFile is the catalog file name inside a library root.
const DatabaseFile = "library_data.db"

//go:embed schema.sql
var schemaSQL string

var _ store.Catalog = (*Store)(nil)

// Store is the SQLite catalog for one library.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	path   string

	closed atomic.Bool

	// txMu serializes top-level transactions on this store.
	txMu sync.Mutex

	// beforeNodeDelete runs before each folder/tag row is removed. Tests use it to inject failures.
	beforeNodeDelete func(table string, id domain.EntityID) error
}

// Open opens (creating if needed) the catalog at path and applies the schema.
// Opening an existing catalog leaves its schema and data untouched.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = logger.Discard()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Filesystem(err, "create catalog directory")
	}

	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Storage(err, "open sqlite")
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Storage(err, "enable WAL")
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Storage(err, "apply schema")
	}

	log.Debug("catalog opened", "path", path)

	return &Store{db: db, logger: log, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle. Later calls fail with NotInitialized.
func (s *Store) Close() error {
	if s == nil || s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// ready fails fast when the connection is gone.
func (s *Store) ready() error {
	if s == nil || s.db == nil || s.closed.Load() {
		return errors.ErrNotInitialized
	}
	return nil
}

// translate maps driver failures onto coded errors.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "PRIMARY KEY constraint failed"):
		return errors.Wrap(err, errors.CodeConflict, what+": already exists")
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return errors.Wrap(err, errors.CodeValidation, what+": references a missing folder or tag")
	}
	return errors.Storage(err, what)
}

// encodeObject stores a custom-fields map as a JSON object, never null.
func encodeObject(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", errors.Validationf("custom_fields is not serializable: %v", err)
	}
	return string(b), nil
}

// decodeObject parses custom_fields. Malformed JSON yields an empty map.
func decodeObject(s string) map[string]any {
	m := map[string]any{}
	if s == "" {
		return m
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// encodeTags stores tag ids as a JSON array of strings.
func encodeTags(tags []domain.EntityID) string {
	if len(tags) == 0 {
		return "[]"
	}
	seen := make(map[domain.EntityID]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, string(t))
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// decodeTags parses the tags column. Malformed JSON yields an empty list.
func decodeTags(s string) []domain.EntityID {
	var tags []domain.EntityID
	if err := json.Unmarshal([]byte(s), &tags); err != nil || tags == nil {
		return []domain.EntityID{}
	}
	return tags
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// normalizeParent maps the "0" sentinel onto no parent.
func normalizeParent(id *domain.EntityID) *domain.EntityID {
	if id == nil || id.IsZero() {
		return nil
	}
	v := *id
	return &v
}

func nullableID(id *domain.EntityID) sql.NullString {
	if id == nil || id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func idFromNull(ns sql.NullString) *domain.EntityID {
	if !ns.Valid {
		return nil
	}
	id := domain.EntityID(ns.String)
	return &id
}

func stringFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// exec runs a statement on the ambient transaction or the pool.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn(ctx).ExecContext(ctx, query, args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn(ctx).QueryRowContext(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn(ctx).QueryContext(ctx, query, args...)
}

// affected reports whether a write touched at least one row.
func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
