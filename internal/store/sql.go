package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/peaklee4u/inquirytutor/internal/domain"
	"github.com/peaklee4u/inquirytutor/internal/shared"
)

const maxConflictRetries = 3

type dialect struct {
	name        string
	driver      string
	schema      string
	returningID bool
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	schema: `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS qna (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT NOT NULL,
		name TEXT NOT NULL,
		chat TEXT NOT NULL,
		"time" INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_qna_number_time ON qna(number, "time");
	`,
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "postgres",
	schema: `
	CREATE TABLE IF NOT EXISTS qna (
		id BIGSERIAL PRIMARY KEY,
		number TEXT NOT NULL,
		name TEXT NOT NULL,
		chat TEXT NOT NULL,
		"time" BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_qna_number_time ON qna(number, "time");
	`,
	returningID: true,
}

// rebind rewrites ? placeholders to $n for postgres.
func (d dialect) rebind(query string) string {
	if d.name != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore implements Repository on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	// initialRetryDelay seeds the exponential backoff on conflicts.
	initialRetryDelay time.Duration
}

// Open connects to the configured backend: "sqlite" takes a file path or DSN,
// "postgres" a lib/pq connection string.
func Open(driver, dataSource string) (Repository, error) {
	var (
		s   *SQLStore
		err error
	)
	switch driver {
	case "sqlite":
		s, err = NewSQLite(dataSource)
	case "postgres":
		s, err = NewPostgres(dataSource)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// sqliteDSN appends the connection pragmas, WAL mode for better concurrency.
func sqliteDSN(dbPath string) string {
	const pragmas = "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + pragmas
	}
	return dbPath + "?" + pragmas
}

// NewSQLite creates a new SQLite-backed repository.
// dbPath may be a plain path or a DSN that already carries query parameters.
func NewSQLite(dbPath string) (*SQLStore, error) {
	file, _, _ := strings.Cut(strings.TrimPrefix(dbPath, "file:"), "?")
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open(sqliteDialect.driver, sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, sqliteDialect)
}

// NewPostgres creates a new PostgreSQL-backed repository.
func NewPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, postgresDialect)
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{db: db, dialect: d, initialRetryDelay: 100 * time.Millisecond}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	if _, err := s.db.Exec(s.dialect.schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// SaveTranscript inserts a transcript row. Conflicts are retried up to three
// attempts with exponential backoff: 100ms, 200ms.
func (s *SQLStore) SaveTranscript(ctx context.Context, t *domain.Transcript) (int64, error) {
	if t == nil || !t.HasIdentity() {
		return 0, ErrMissingIdentity
	}

	chat, err := domain.MarshalConversation(t.Messages)
	if err != nil {
		return 0, err
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	number := strings.TrimSpace(t.StudentNumber)
	name := strings.TrimSpace(t.StudentName)

	var id int64
	err = s.withRetry(ctx, "save transcript", func() error {
		var insertErr error
		id, insertErr = s.insert(ctx, number, name, chat, createdAt.Unix())
		return insertErr
	})
	if err != nil {
		return 0, fmt.Errorf("save transcript: %w", err)
	}

	t.ID = id
	t.CreatedAt = createdAt
	return id, nil
}

func (s *SQLStore) insert(ctx context.Context, number, name, chat string, ts int64) (int64, error) {
	query := `INSERT INTO qna (number, name, chat, "time") VALUES (?, ?, ?, ?)`

	if s.dialect.returningID {
		var id int64
		row := s.db.QueryRowContext(ctx, s.dialect.rebind(query+" RETURNING id"), number, name, chat, ts)
		if err := row.Scan(&id); err != nil {
			return 0, fmt.Errorf("insert transcript: %w", err)
		}
		return id, nil
	}

	result, err := s.db.ExecContext(ctx, query, number, name, chat, ts)
	if err != nil {
		return 0, fmt.Errorf("insert transcript: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// GetTranscript retrieves a transcript by ID.
func (s *SQLStore) GetTranscript(ctx context.Context, id int64) (*domain.Transcript, error) {
	query := `SELECT id, number, name, chat, "time" FROM qna WHERE id = ?`

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(query), id)
	t, err := scanTranscript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan transcript row: %w", err)
	}
	return t, nil
}

// ListTranscripts returns transcripts newest first.
func (s *SQLStore) ListTranscripts(ctx context.Context, filter ListFilter) ([]*domain.Transcript, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, number, name, chat, "time" FROM qna`
	var args []interface{}
	if filter.StudentNumber != "" {
		query += ` WHERE number = ?`
		args = append(args, filter.StudentNumber)
	}
	query += ` ORDER BY "time" DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close transcript rows", "error", closeErr)
		}
	}()

	var out []*domain.Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcripts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row rowScanner) (*domain.Transcript, error) {
	var (
		t    domain.Transcript
		chat string
		ts   int64
	)
	if err := row.Scan(&t.ID, &t.StudentNumber, &t.StudentName, &chat, &ts); err != nil {
		return nil, err
	}
	msgs, err := domain.UnmarshalConversation(chat)
	if err != nil {
		return nil, err
	}
	t.Messages = msgs
	t.CreatedAt = time.Unix(ts, 0)
	return &t, nil
}

func (s *SQLStore) withRetry(ctx context.Context, op string, fn func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.initialRetryDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	b := backoff.WithContext(backoff.WithMaxRetries(exp, maxConflictRetries-1), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !shared.IsConflictError(err) {
			return backoff.Permanent(err)
		}
		slog.Debug("Database conflict, retrying",
			"op", op,
			"backend", s.dialect.name,
			"attempt", attempt,
			"error", err)
		return err
	}, b)
}
