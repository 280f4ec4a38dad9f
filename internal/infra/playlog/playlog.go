// Package playlog provides a persistent SQLite log of every item played.
package playlog

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trakify/internal/domain/track"
)

// DefaultPath is the default path of the play log database.
const DefaultPath = "data/playlog.db"

const schema = `
CREATE TABLE IF NOT EXISTS plays (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	artist      TEXT NOT NULL DEFAULT '',
	content_ref TEXT NOT NULL,
	artwork_ref TEXT NOT NULL DEFAULT '',
	played_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plays_played_at ON plays(played_at);
`

// Entry is one row of the play log.
type Entry struct {
	ID         int64
	ItemID     string
	Title      string
	Artist     string
	ContentRef string
	ArtworkRef string
	PlayedAt   time.Time
}

// Log is the SQLite play log.
type Log struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the play log at path.
func Open(path string) (*Log, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create play log directory")
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open play log")
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize play log schema")
	}

	zlog.Info().Msgf("playlog: opened: path=%s", path)
	return &Log{db: db, now: time.Now}, nil
}

// RecordPlay appends a row for an item that was sent to the engine.
func (l *Log) RecordPlay(item track.QueueItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return errors.New("play log is closed")
	}
	_, err := l.db.Exec(
		`INSERT INTO plays (item_id, title, artist, content_ref, artwork_ref, played_at) VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.Title, item.Artist, item.ContentRef, item.ArtworkRef,
		l.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrap(err, "failed to record play")
	}
	return nil
}

// Recent returns up to limit entries, most recent first.
func (l *Log) Recent(limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil, errors.New("play log is closed")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.Query(
		`SELECT id, item_id, title, artist, content_ref, artwork_ref, played_at FROM plays ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query play log")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var playedAt string
		if err := rows.Scan(&e.ID, &e.ItemID, &e.Title, &e.Artist, &e.ContentRef, &e.ArtworkRef, &playedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan play log row")
		}
		e.PlayedAt, _ = time.Parse(time.RFC3339Nano, playedAt)
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "failed to read play log")
}

// Close closes the database.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}
