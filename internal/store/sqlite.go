package store

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

	"courtbot/internal/player"
	"courtbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// SQLite implements JobStore and PlayerStore on a single database file.
type SQLite struct {
	db  *sql.DB
	log logx.Logger
}

func OpenSQLite(cfg Config, log logx.Logger) (*SQLite, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
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

	st := &SQLite{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- JobStore ----

func (s *SQLite) PutJob(ctx context.Context, d JobDescriptor) error {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(job_id, version, user_id, days, hour, minute, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(job_id) DO UPDATE SET
		   version=excluded.version, user_id=excluded.user_id, days=excluded.days,
		   hour=excluded.hour, minute=excluded.minute, updated_at=excluded.updated_at`,
		d.JobID, d.Version, d.UserID, d.Days, d.Hour, d.Minute, d.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: put job: %v", ErrPersistence, err)
	}
	return nil
}

func (s *SQLite) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("%w: delete job: %v", ErrPersistence, err)
	}
	return nil
}

func (s *SQLite) Jobs(ctx context.Context) ([]JobDescriptor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, version, user_id, days, hour, minute, updated_at FROM jobs ORDER BY job_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list jobs: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var out []JobDescriptor
	for rows.Next() {
		var d JobDescriptor
		var updated string
		if err := rows.Scan(&d.JobID, &d.Version, &d.UserID, &d.Days, &d.Hour, &d.Minute, &updated); err != nil {
			return nil, fmt.Errorf("%w: scan job: %v", ErrPersistence, err)
		}
		d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list jobs: %v", ErrPersistence, err)
	}
	return out, nil
}

// ---- PlayerStore ----

func (s *SQLite) Player(ctx context.Context, id string) (player.Preference, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, sports, localities, notify_time, frequency FROM players WHERE id = ?`, id)
	p, err := scanPlayer(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return player.Preference{}, player.ErrNotFound
	}
	if err != nil {
		return player.Preference{}, fmt.Errorf("%w: get player: %v", ErrPersistence, err)
	}
	return p, nil
}

func (s *SQLite) Players(ctx context.Context) ([]player.Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, sports, localities, notify_time, frequency FROM players ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list players: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var out []player.Preference
	for rows.Next() {
		p, err := scanPlayer(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%w: scan player: %v", ErrPersistence, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list players: %v", ErrPersistence, err)
	}
	return out, nil
}

func (s *SQLite) SavePlayer(ctx context.Context, p player.Preference) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO players(id, name, sports, localities, notify_time, frequency, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, sports=excluded.sports, localities=excluded.localities,
		   notify_time=excluded.notify_time, frequency=excluded.frequency, updated_at=excluded.updated_at`,
		p.ID, p.Name, player.JoinTokens(p.Sports), player.JoinTokens(p.Localities),
		p.NotifyTime, p.Frequency, time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: save player: %v", ErrPersistence, err)
	}
	return nil
}

func (s *SQLite) DeletePlayer(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete player: %v", ErrPersistence, err)
	}
	return nil
}

func scanPlayer(scan func(dest ...any) error) (player.Preference, error) {
	var p player.Preference
	var sports, localities string
	if err := scan(&p.ID, &p.Name, &sports, &localities, &p.NotifyTime, &p.Frequency); err != nil {
		return player.Preference{}, err
	}
	p.Sports = player.SplitTokens(sports)
	p.Localities = player.SplitTokens(localities)
	return p, nil
}
