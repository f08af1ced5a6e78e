package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-voicebatch/internal/audio"
	"github.com/loqalabs/loqa-voicebatch/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when no entry has the requested id.
var ErrNotFound = errors.New("history entry not found")

// Entry is a persisted successful job. ID is the job id.
type Entry struct {
	ID          string    `json:"id"`
	Voice       string    `json:"voice"`
	Model       string    `json:"model"`
	ModelLabel  string    `json:"model_label,omitempty"`
	StyleTag    string    `json:"style_tag,omitempty"`
	StyleLabel  string    `json:"style_label,omitempty"`
	CustomStyle string    `json:"custom_style,omitempty"`
	Text        string    `json:"text"`
	Audio       []byte    `json:"-"`
	MIMEType    string    `json:"mime_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// FileName is the export name of the entry's audio.
func (e Entry) FileName() string {
	return fmt.Sprintf("tts-%s-%d%s", e.Voice, e.CreatedAt.UnixMilli(), audio.Extension(e.MIMEType))
}

// Store is the sqlite-backed history. A database handle is opened for each operation and
// closed when it completes; the Store itself holds no connection.
type Store struct {
	cfg   config.HistoryConfig
	dsn   string
	log   *slog.Logger
	clock func() time.Time
}

// Open prepares the database file and schema, then applies retention.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("history path is required")
	}
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	s := &Store{
		cfg:   cfg,
		dsn:   fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path),
		log:   log.With(slog.String("component", "history")),
		clock: time.Now,
	}

	err := s.withDB(ctx, func(db *sql.DB) error {
		if err := initSchema(ctx, db); err != nil {
			return err
		}
		if cfg.VacuumOnStart {
			if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
				s.log.Warn("history vacuum failed", slogError(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.Prune(ctx); err != nil {
		s.log.Warn("history prune on open failed", slogError(err))
	}
	if err := s.registerMetrics(); err != nil {
		s.log.Warn("failed to initialize metrics", slogError(err))
	}
	return s, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	ddl := `
CREATE TABLE IF NOT EXISTS history (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    voice TEXT NOT NULL,
    model TEXT NOT NULL,
    model_label TEXT,
    style_tag TEXT,
    style_label TEXT,
    custom_style TEXT,
    text TEXT NOT NULL,
    audio BLOB NOT NULL,
    mime_type TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at DESC, seq DESC);
`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

func (s *Store) withDB(ctx context.Context, fn func(*sql.DB) error) error {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return fn(db)
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.withDB(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// Insert stores e, replacing any entry with the same id.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return errors.New("history entry id is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO history(id, voice, model, model_label, style_tag, style_label, custom_style, text, audio, mime_type, created_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   voice=excluded.voice, model=excluded.model, model_label=excluded.model_label,
			   style_tag=excluded.style_tag, style_label=excluded.style_label, custom_style=excluded.custom_style,
			   text=excluded.text, audio=excluded.audio, mime_type=excluded.mime_type, created_at=excluded.created_at`,
			e.ID, e.Voice, e.Model, e.ModelLabel, e.StyleTag, e.StyleLabel, e.CustomStyle, e.Text,
			e.Audio, e.MIMEType, e.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert history entry %s: %w", e.ID, err)
		}
		return nil
	})
}

// InsertAll stores entries in one transaction.
func (s *Store) InsertAll(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := s.clock()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO history(id, voice, model, model_label, style_tag, style_label, custom_style, text, audio, mime_type, created_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   voice=excluded.voice, model=excluded.model, model_label=excluded.model_label,
			   style_tag=excluded.style_tag, style_label=excluded.style_label, custom_style=excluded.custom_style,
			   text=excluded.text, audio=excluded.audio, mime_type=excluded.mime_type, created_at=excluded.created_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range entries {
			if e.ID == "" {
				return errors.New("history entry id is required")
			}
			if e.CreatedAt.IsZero() {
				e.CreatedAt = now
			}
			if _, err := stmt.ExecContext(ctx, e.ID, e.Voice, e.Model, e.ModelLabel, e.StyleTag, e.StyleLabel,
				e.CustomStyle, e.Text, e.Audio, e.MIMEType, e.CreatedAt.UnixMilli()); err != nil {
				return fmt.Errorf("insert history entry %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

const selectColumns = `id, voice, model, model_label, style_tag, style_label, custom_style, text, audio, mime_type, created_at`

// List returns every entry, newest first. Entries with equal timestamps are ordered by
// insertion, latest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.withDB(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT `+selectColumns+` FROM history ORDER BY created_at DESC, seq DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}

// Get returns the entry with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	var e Entry
	err := s.withDB(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM history WHERE id = ?`, id)
		var err error
		e, err = scanEntry(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	return e, err
}

// Delete removes the entry with id. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
		return err
	})
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM history`)
		return err
	})
}

// Count reports the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.withDB(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n)
	})
	return n, err
}

// Prune applies retention_days and max_entries. Zero values disable each rule.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionDays <= 0 && s.cfg.MaxEntries <= 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if s.cfg.RetentionDays > 0 {
			cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
			if _, err := tx.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, cutoff.UnixMilli()); err != nil {
				return err
			}
		}
		if s.cfg.MaxEntries > 0 {
			_, err := tx.ExecContext(ctx, `DELETE FROM history WHERE seq IN (
				SELECT seq FROM history ORDER BY created_at DESC, seq DESC LIMIT -1 OFFSET ?
			)`, s.cfg.MaxEntries)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) registerMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-voicebatch/history")
	_, err := meter.Int64ObservableGauge("voicebatch.history.entries",
		metric.WithDescription("Entries in the history store"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			n, err := s.Count(ctx)
			if err != nil {
				return err
			}
			o.Observe(n)
			return nil
		}))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                              Entry
		modelLabel, tag, label, custom sql.NullString
		createdMillis                  int64
	)
	if err := row.Scan(&e.ID, &e.Voice, &e.Model, &modelLabel, &tag, &label, &custom,
		&e.Text, &e.Audio, &e.MIMEType, &createdMillis); err != nil {
		return Entry{}, err
	}
	e.ModelLabel = modelLabel.String
	e.StyleTag = tag.String
	e.StyleLabel = label.String
	e.CustomStyle = custom.String
	e.CreatedAt = time.UnixMilli(createdMillis).UTC()
	return e, nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
