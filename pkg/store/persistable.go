package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/richard-senior/podds/internal/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup by primary key matches nothing
var ErrNotFound = errors.New("record not found")

// Persistable interface defines methods that persistent objects must implement
type Persistable interface {
	GetTableName() string
	GetPrimaryKey() map[string]any
	BeforeSave() error
}

// Store is a sqlite database holding Persistable rows
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the sqlite database at path. ":memory:" is allowed
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Debug("Database opened", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for ad-hoc queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateTable creates a table for the given persistable object using struct tags
func (s *Store) CreateTable(ctx context.Context, obj Persistable) error {
	tableName := obj.GetTableName()
	createSQL := generateCreateTableSQL(obj, tableName)
	logger.Debug("Creating table with SQL", createSQL)

	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}
	for _, query := range generateIndexSQL(obj, tableName) {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			logger.Warn("Failed to create index", err)
		}
	}
	return nil
}

type column struct {
	name    string
	dbType  string
	primary bool
	index   bool
	value   reflect.Value
}

// columns walks the exported, tagged fields of obj
func columns(obj any) []column {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()

	var out []column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("persist") == "false" {
			continue
		}
		dbType := field.Tag.Get("dbtype")
		if dbType == "" {
			continue
		}
		name := field.Tag.Get("column")
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		out = append(out, column{
			name:    name,
			dbType:  dbType,
			primary: field.Tag.Get("primary") == "true",
			index:   field.Tag.Get("index") == "true",
			value:   v.Field(i),
		})
	}
	return out
}

// generateCreateTableSQL generates CREATE TABLE SQL from struct tags
func generateCreateTableSQL(obj any, tableName string) string {
	var defs, primaryKeys []string
	for _, c := range columns(obj) {
		defs = append(defs, fmt.Sprintf("%s %s", c.name, c.dbType))
		if c.primary {
			primaryKeys = append(primaryKeys, c.name)
		}
	}
	if len(primaryKeys) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(primaryKeys, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName, strings.Join(defs, ", "))
}

// generateIndexSQL generates index creation SQL from struct tags
func generateIndexSQL(obj any, tableName string) []string {
	var out []string
	for _, c := range columns(obj) {
		if !c.index || c.primary {
			continue
		}
		out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", tableName, c.name, tableName, c.name))
	}
	return out
}

// Save upserts obj. Concurrent saves of the same key resolve last-writer-wins
func (s *Store) Save(ctx context.Context, obj Persistable) error {
	if err := obj.BeforeSave(); err != nil {
		return fmt.Errorf("before save hook failed: %w", err)
	}

	tableName := obj.GetTableName()
	cols := columns(obj)
	names := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	values := make([]any, 0, len(cols))
	var pk, updates []string
	for _, c := range cols {
		names = append(names, c.name)
		placeholders = append(placeholders, "?")
		values = append(values, c.value.Interface())
		if c.primary {
			pk = append(pk, c.name)
		} else {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c.name, c.name))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tableName, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if len(pk) > 0 && len(updates) > 0 {
		query += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", strings.Join(pk, ", "), strings.Join(updates, ", "))
	}

	if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to save into %s: %w", tableName, err)
	}
	return nil
}

// FindByPrimaryKey loads the row matching obj's primary key into obj
func (s *Store) FindByPrimaryKey(ctx context.Context, obj Persistable) error {
	tableName := obj.GetTableName()
	names, destinations := selectTargets(obj)
	whereClause, values := buildWhereClause(obj.GetPrimaryKey())

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(names, ", "), tableName, whereClause)
	err := s.db.QueryRowContext(ctx, query, values...).Scan(destinations...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w in %s", ErrNotFound, tableName)
	}
	if err != nil {
		return fmt.Errorf("failed to scan row from %s: %w", tableName, err)
	}
	return nil
}

// FindWhere runs a custom WHERE query and returns one freshly allocated T per row
func FindWhere[T any, PT interface {
	*T
	Persistable
}](ctx context.Context, s *Store, whereClause string, args ...any) ([]*T, error) {
	probe := PT(new(T))
	tableName := probe.GetTableName()
	names, _ := selectTargets(probe)

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), tableName)
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableName, err)
	}
	defer rows.Close()

	var results []*T
	for rows.Next() {
		item := new(T)
		_, destinations := selectTargets(item)
		if err := rows.Scan(destinations...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", tableName, err)
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows from %s: %w", tableName, err)
	}
	return results, nil
}

// Delete removes the row matching obj's primary key
func (s *Store) Delete(ctx context.Context, obj Persistable) error {
	whereClause, values := buildWhereClause(obj.GetPrimaryKey())
	_, err := s.DeleteWhere(ctx, obj, whereClause, values...)
	return err
}

// DeleteWhere removes rows of obj's table matching whereClause and returns how many went.
// An empty clause deletes every row
func (s *Store) DeleteWhere(ctx context.Context, obj Persistable, whereClause string, args ...any) (int64, error) {
	tableName := obj.GetTableName()
	query := "DELETE FROM " + tableName
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", tableName, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of rows in obj's table matching whereClause
func (s *Store) Count(ctx context.Context, obj Persistable, whereClause string, args ...any) (int64, error) {
	tableName := obj.GetTableName()
	query := "SELECT COUNT(*) FROM " + tableName
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", tableName, err)
	}
	return n, nil
}

// selectTargets extracts column names and scan destinations for SELECT
func selectTargets(obj any) ([]string, []any) {
	cols := columns(obj)
	names := make([]string, len(cols))
	dest := make([]any, len(cols))
	for i, c := range cols {
		names[i] = c.name
		dest[i] = c.value.Addr().Interface()
	}
	return names, dest
}

// buildWhereClause builds a WHERE clause from a primary key map. Columns are sorted
// so the generated SQL is stable
func buildWhereClause(primaryKey map[string]any) (string, []any) {
	keys := make([]string, 0, len(primaryKey))
	for k := range primaryKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]string, len(keys))
	values := make([]any, len(keys))
	for i, k := range keys {
		conditions[i] = fmt.Sprintf("%s = ?", k)
		values[i] = primaryKey[k]
	}
	return strings.Join(conditions, " AND "), values
}
