package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"herald/pkg/logx"
)

//go:embed schema.sql
var schemaFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Events ----

func (s *sqliteStore) ActiveEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, starts_at, status, reminders_fired, COALESCE(welcome_video_id, '')
		 FROM events WHERE status = ? ORDER BY starts_at`, string(StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev    Event
			at    string
			fired int64
		)
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Description, &at, &ev.Status, &fired, &ev.WelcomeVideoID); err != nil {
			return nil, err
		}
		ev.StartsAt, err = parseTime(at)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.ID, err)
		}
		ev.Fired = TierSet(fired)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddEvent(ctx context.Context, name, description string, startsAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events(name, description, starts_at) VALUES(?,?,?)`,
		name, description, formatTime(startsAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// MarkTierFired sets one tier bit. The update is an OR so a bit can never be
// cleared by a concurrent writer racing on a stale read.
func (s *sqliteStore) MarkTierFired(ctx context.Context, eventID int64, t Tier) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET reminders_fired = reminders_fired | ? WHERE id = ?`,
		int64(TierSet(0).With(t)), eventID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteEvent flips an active event to completed. The status guard keeps
// the transition strictly forward.
func (s *sqliteStore) CompleteEvent(ctx context.Context, eventID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ? WHERE id = ? AND status = ?`,
		string(StatusCompleted), eventID, string(StatusActive))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- Users / registrations ----

func (s *sqliteStore) AllUserIDs(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT user_id FROM users ORDER BY user_id`)
}

func (s *sqliteStore) RegisteredUserIDs(ctx context.Context, eventID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT user_id FROM registrations WHERE event_id = ? ORDER BY user_id`, eventID)
}

func (s *sqliteStore) AdminIDs(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT user_id FROM users WHERE is_admin = 1 ORDER BY user_id`)
}

func (s *sqliteStore) queryIDs(ctx context.Context, q string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, first_name, last_name, is_admin) VALUES(?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   first_name = excluded.first_name,
		   last_name  = excluded.last_name,
		   is_admin   = excluded.is_admin`,
		u.ID, u.FirstName, u.LastName, boolInt(u.Admin))
	return err
}

func (s *sqliteStore) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_admin = ? WHERE user_id = ?`, boolInt(admin), userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Register(ctx context.Context, userID, eventID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registrations(user_id, event_id, registered_at) VALUES(?,?,?)
		 ON CONFLICT(user_id, event_id) DO NOTHING`,
		userID, eventID, formatTime(time.Now()))
	return err
}

// ---- Broadcast queue ----

func (s *sqliteStore) EnqueueBroadcast(ctx context.Context, e BroadcastEntry) (int64, error) {
	if e.Kind == "" {
		e.Kind = MediaText
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcast_queue(text, media_id, media_kind, created_at) VALUES(?,?,?,?)`,
		nullStr(e.Text), nullStr(e.MediaID), string(e.Kind), formatTime(e.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// OldestPendingBroadcast returns the lowest-id entry with no sent marker, or
// (nil, nil) when the queue is drained.
func (s *sqliteStore) OldestPendingBroadcast(ctx context.Context) (*BroadcastEntry, error) {
	var (
		e       BroadcastEntry
		text    sql.NullString
		mediaID sql.NullString
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, text, media_id, media_kind, created_at
		 FROM broadcast_queue WHERE sent_at IS NULL ORDER BY id LIMIT 1`).
		Scan(&e.ID, &text, &mediaID, &e.Kind, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Text = text.String
	e.MediaID = mediaID.String
	e.CreatedAt, err = parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("broadcast %d: %w", e.ID, err)
	}
	return &e, nil
}

// MarkBroadcastSent stamps the entry once; a second call is a no-op error so
// callers notice double-drain bugs instead of silently resending.
func (s *sqliteStore) MarkBroadcastSent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE broadcast_queue SET sent_at = ? WHERE id = ? AND sent_at IS NULL`,
		formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- helpers ----

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
