package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	logx "adhand/pkg/logx"
)

//go:embed migrations_sqlite.sql migrations_postgres.sql
var migrationsFS embed.FS

// sqlStore serves both sqlite and postgres; queries are written with '?'
// and rebound for the driver.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger

	insertQ string
	recentQ string
}

type historyRow struct {
	AtMS   int64  `db:"at_ms"`
	Kind   string `db:"kind"`
	Date   string `db:"date"`
	Event  string `db:"event"`
	Actor  string `db:"actor"`
	Detail string `db:"detail"`
	OK     bool   `db:"ok"`
	Err    string `db:"err"`
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	return newSQLStore(db, "migrations_sqlite.sql", log)
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return newSQLStore(db, "migrations_postgres.sql", log)
}

func newSQLStore(db *sqlx.DB, migration string, log logx.Logger) (Store, error) {
	s := &sqlStore{
		db:  db,
		log: log,
		insertQ: db.Rebind(`INSERT INTO history(at_ms, kind, date, event, actor, detail, ok, err)
			VALUES(?,?,?,?,?,?,?,?)`),
		recentQ: db.Rebind(`SELECT at_ms, kind, date, event, actor, detail, ok, err
			FROM history ORDER BY at_ms DESC, id DESC LIMIT ?`),
	}
	b, err := migrationsFS.ReadFile(migration)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return s, nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) Append(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.insertQ,
		e.At.UnixMilli(), e.Kind, e.Date, e.Event, e.Actor, e.Detail, e.OK, e.Error)
	return err
}

func (s *sqlStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows, s.recentQ, clampLimit(limit)); err != nil {
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{
			At:     time.UnixMilli(r.AtMS),
			Kind:   r.Kind,
			Date:   r.Date,
			Event:  r.Event,
			Actor:  r.Actor,
			Detail: r.Detail,
			OK:     r.OK,
			Error:  r.Err,
		}
	}
	return out, nil
}
