// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runlog is the journal of narration runs. Every run is recorded in a
// SQLite table when it starts and updated with its final report when it ends,
// so the API can list past runs and a crash leaves a trace: runs still marked
// running when the journal is opened again are flagged interrupted.
package runlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/jaycherian/go-media-narrator/internal/telemetry"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal records run reports. It is safe for concurrent use.
type Journal struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the journal at dbPath and marks the runs a
// previous process left behind as interrupted.
func Open(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	j := &Journal{conn: conn, logger: telemetry.Component("runlog")}
	if err := j.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if n, err := j.MarkInterrupted(context.Background()); err != nil {
		j.logger.Warn("failed to mark interrupted runs", "error", err)
	} else if n > 0 {
		j.logger.Warn("runs interrupted by restart", "count", n)
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.conn.Close()
}

func (j *Journal) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if j.isMigrationApplied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := j.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := j.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		j.logger.Info("applied migration", "name", name)
	}
	return nil
}

func (j *Journal) isMigrationApplied(name string) bool {
	var exists int
	if err := j.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists); err != nil {
		return false
	}
	var applied int
	err := j.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Begin records a run that just started.
func (j *Journal) Begin(ctx context.Context, report *model.RunReport) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = j.conn.ExecContext(ctx,
		`INSERT INTO runs (run_id, video_id, source, voice, status, stage, started_at, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.VideoID, report.Source, string(report.Voice),
		string(report.Status), string(report.Stage), formatTime(report.StartedAt), string(doc))
	if err != nil {
		return fmt.Errorf("%w: journal run %s: %v", model.ErrStorage, report.RunID, err)
	}
	return nil
}

// Finish stores the final report of a run. A run that was never begun is
// inserted.
func (j *Journal) Finish(ctx context.Context, report *model.RunReport) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = j.conn.ExecContext(ctx,
		`INSERT INTO runs (run_id, video_id, source, voice, status, stage, error, started_at, finished_at, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   video_id = excluded.video_id,
		   status = excluded.status,
		   stage = excluded.stage,
		   error = excluded.error,
		   finished_at = excluded.finished_at,
		   report = excluded.report`,
		report.RunID, report.VideoID, report.Source, string(report.Voice),
		string(report.Status), string(report.Stage), report.Error,
		formatTime(report.StartedAt), formatTime(report.FinishedAt), string(doc))
	if err != nil {
		return fmt.Errorf("%w: journal run %s: %v", model.ErrStorage, report.RunID, err)
	}
	return nil
}

// MarkInterrupted flags every run still marked running and returns how many
// there were.
func (j *Journal) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := j.conn.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = 'interrupted by restart', finished_at = ? WHERE status = ?`,
		string(model.RunInterrupted), formatTime(time.Now()), string(model.RunRunning))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectRuns = `SELECT status, error, report FROM runs`

func scanReport(row interface{ Scan(dest ...any) error }) (*model.RunReport, error) {
	var status, errText, doc string
	if err := row.Scan(&status, &errText, &doc); err != nil {
		return nil, err
	}
	report := &model.RunReport{}
	if err := json.Unmarshal([]byte(doc), report); err != nil {
		return nil, fmt.Errorf("%w: decode run report: %v", model.ErrStorage, err)
	}
	// the columns win: MarkInterrupted only touches them
	report.Status = model.RunStatus(status)
	if errText != "" {
		report.Error = errText
	}
	return report, nil
}

// Get returns the latest known report of a run.
func (j *Journal) Get(ctx context.Context, runID string) (*model.RunReport, error) {
	report, err := scanReport(j.conn.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", model.ErrNotFound, runID)
	}
	return report, err
}

// List returns the most recent runs first. A limit of zero or less returns
// every run.
func (j *Journal) List(ctx context.Context, limit int) ([]*model.RunReport, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.conn.QueryContext(ctx, selectRuns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.RunReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, rows.Err()
}
