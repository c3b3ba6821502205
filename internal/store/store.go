// Package store persists entities, named queries and subscriptions in
// SQLite, and runs parsed queries against them in bulk.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is bumped whenever the schema changes incompatibly.
const CurrentSchemaVersion = 1

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// Store is the SQLite database handle.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn, err := prepareDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens a private in-memory database.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// prepareDSN adds the connection pragmas to a file path. The driver applies
// them to every pooled connection, so concurrent writers wait for the lock
// instead of failing with SQLITE_BUSY.
func prepareDSN(path string) (string, error) {
	query := url.Values{}
	if i := strings.Index(path, "?"); i != -1 {
		var err error
		if query, err = url.ParseQuery(path[i+1:]); err != nil {
			return "", fmt.Errorf("error parsing database path: %w", err)
		}
		path = path[:i]
	}

	found := map[string]bool{}
	for _, val := range query["_pragma"] {
		name, _, _ := strings.Cut(val, "(")
		found[strings.TrimSpace(name)] = true
	}
	for _, p := range []string{"journal_mode(WAL)", "synchronous(NORMAL)", "busy_timeout(5000)"} {
		name, _, _ := strings.Cut(p, "(")
		if !found[name] {
			query.Add("_pragma", p)
		}
	}
	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}
	return path + "?" + query.Encode(), nil
}

func (s *Store) initialize() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, CurrentSchemaVersion)
	}

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, CurrentSchemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// Optional text columns hold NULL rather than ''; times are unix seconds.
const schema = `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS users (
		login TEXT PRIMARY KEY,
		name TEXT,
		email TEXT
	);

	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY,
		project_id INTEGER NOT NULL,
		number INTEGER NOT NULL,
		job TEXT NOT NULL,
		status TEXT NOT NULL,
		version TEXT,
		branch TEXT,
		submitter TEXT,
		canceller TEXT,
		submitted_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS pull_requests (
		id INTEGER PRIMARY KEY,
		project_id INTEGER NOT NULL,
		number INTEGER NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		source_branch TEXT NOT NULL,
		target_branch TEXT NOT NULL,
		submitter TEXT,
		submitted_at INTEGER NOT NULL
	);

	-- build_id is NULL for a required build that has not been created yet
	CREATE TABLE IF NOT EXISTS pull_request_builds (
		request_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		build_id INTEGER,
		PRIMARY KEY (request_id, position)
	);

	CREATE TABLE IF NOT EXISTS commits (
		id INTEGER PRIMARY KEY,
		project_id INTEGER NOT NULL,
		hash TEXT NOT NULL,
		branch TEXT NOT NULL,
		message TEXT NOT NULL,
		author_email TEXT,
		committer_email TEXT,
		committed_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS issues (
		id INTEGER PRIMARY KEY,
		project_id INTEGER NOT NULL,
		number INTEGER NOT NULL,
		title TEXT NOT NULL,
		state TEXT NOT NULL,
		milestone TEXT,
		submitter TEXT,
		assignee TEXT,
		submitted_at INTEGER NOT NULL
	);

	-- owner is '' for shared queries; project_id 0 is the system or personal global scope
	CREATE TABLE IF NOT EXISTS named_queries (
		kind TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		project_id INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL,
		query TEXT NOT NULL,
		PRIMARY KEY (kind, owner, project_id, name)
	);

	CREATE TABLE IF NOT EXISTS query_subscriptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		login TEXT NOT NULL,
		project_id INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		name TEXT,
		query TEXT
	);

	CREATE TABLE IF NOT EXISTS deliveries (
		delivery_id TEXT NOT NULL,
		event TEXT NOT NULL,
		recipient TEXT NOT NULL,
		delivered_at INTEGER NOT NULL,
		PRIMARY KEY (delivery_id, recipient)
	);

	CREATE INDEX IF NOT EXISTS idx_builds_project ON builds(project_id);
	CREATE INDEX IF NOT EXISTS idx_pull_requests_project ON pull_requests(project_id);
	CREATE INDEX IF NOT EXISTS idx_pull_request_builds_build ON pull_request_builds(build_id);
	CREATE INDEX IF NOT EXISTS idx_commits_project ON commits(project_id);
	CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_id);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_kind ON query_subscriptions(kind, project_id);
`

// handleSQLError maps driver errors onto store errors.
func handleSQLError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
