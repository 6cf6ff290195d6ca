package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ScrapeStatus mirrors the creators.scrape_status column.
type ScrapeStatus string

// Per-creator collection states. A creator moves not_started -> in_progress
// -> {completed, partial, failed}; partial and failed (and in_progress left
// stale by a crash) may move back to in_progress on a resumed run.
const (
	StatusNotStarted ScrapeStatus = "not_started"
	StatusInProgress ScrapeStatus = "in_progress"
	StatusCompleted  ScrapeStatus = "completed"
	StatusPartial    ScrapeStatus = "partial"
	StatusFailed     ScrapeStatus = "failed"
)

// Valid reports whether s is one of the persisted statuses.
func (s ScrapeStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// Creator models one collection target.
type Creator struct {
	UserID         string
	Nickname       string
	AvatarURL      string
	SourceKeyword  string
	InitialFans    int
	CurrentFans    int
	Status         ScrapeStatus
	NotesCollected int
	NotesTarget    int
	// FailureReason is free text, non-empty only in the failed state.
	FailureReason string
	LastRunAt     *time.Time
	CreatedAt     time.Time
}

// Remaining returns how many notes are still wanted for this creator,
// floored at zero.
func (c Creator) Remaining() int {
	if r := c.NotesTarget - c.NotesCollected; r > 0 {
		return r
	}
	return 0
}

const creatorColumns = `user_id, nickname, avatar_url, source_keyword, initial_fans, current_fans,
	scrape_status, notes_collected, notes_target, failure_reason, last_run_at, created_at`

// UpsertCreator inserts a newly discovered creator. Existing rows are left
// untouched so re-running discovery never resets progress. It reports
// whether a new row was written.
func (s *Store) UpsertCreator(ctx context.Context, c Creator) (bool, error) {
	status := c.Status
	if status == "" {
		status = StatusNotStarted
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO creators (user_id, nickname, avatar_url, source_keyword, initial_fans, current_fans, scrape_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.Nickname, c.AvatarURL, c.SourceKeyword, c.InitialFans, c.InitialFans, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("insert creator %s: %w", c.UserID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetCreator loads a single creator or returns ErrNotFound.
func (s *Store) GetCreator(ctx context.Context, userID string) (Creator, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+creatorColumns+` FROM creators WHERE user_id = ?`, userID)
	c, err := scanCreator(row)
	if err == sql.ErrNoRows {
		return Creator{}, ErrNotFound
	}
	if err != nil {
		return Creator{}, fmt.Errorf("get creator %s: %w", userID, err)
	}
	return c, nil
}

// ListCreators returns creators, optionally filtered by status, newest
// activity first.
func (s *Store) ListCreators(ctx context.Context, status ScrapeStatus) ([]Creator, error) {
	query := `SELECT ` + creatorColumns + ` FROM creators`
	args := []any{}
	if status != "" {
		query += ` WHERE scrape_status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, user_id`
	return s.queryCreators(ctx, query, args...)
}

// PendingCreators returns up to limit creators that have never been
// collected, oldest-discovered first, optionally filtered by source
// keyword. limit <= 0 means no cap.
func (s *Store) PendingCreators(ctx context.Context, limit int, keyword string) ([]Creator, error) {
	query := `SELECT ` + creatorColumns + ` FROM creators WHERE scrape_status = ?`
	args := []any{string(StatusNotStarted)}
	if keyword != "" {
		query += ` AND source_keyword = ?`
		args = append(args, keyword)
	}
	query += ` ORDER BY created_at ASC, user_id LIMIT ?`
	args = append(args, normalizeLimit(limit))
	return s.queryCreators(ctx, query, args...)
}

// ResumableCreators returns up to limit creators whose last run was
// interrupted: status partial, or in_progress left stale by a crash.
// Oldest-interrupted first so starved creators are retried eventually.
// limit <= 0 means no cap.
func (s *Store) ResumableCreators(ctx context.Context, limit int) ([]Creator, error) {
	return s.queryCreators(ctx, `
		SELECT `+creatorColumns+` FROM creators
		WHERE scrape_status IN (?, ?)
		ORDER BY last_run_at ASC, user_id
		LIMIT ?`,
		string(StatusPartial), string(StatusInProgress), normalizeLimit(limit))
}

// normalizeLimit maps "no cap" onto SQLite's unlimited LIMIT.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// CountByStatus counts creators in the given state.
func (s *Store) CountByStatus(ctx context.Context, status ScrapeStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM creators WHERE scrape_status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count by status %s: %w", status, err)
	}
	return n, nil
}

// Keywords returns the distinct non-empty source keywords present.
func (s *Store) Keywords(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT source_keyword FROM creators WHERE source_keyword != '' ORDER BY source_keyword`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

// MarkInProgress transitions the listed creators to in_progress and records
// the per-creator target, before any external process launches. A crash
// after this point leaves the creators resumable instead of silently
// not_started.
func (s *Store) MarkInProgress(ctx context.Context, userIDs []string, target int) error {
	if len(userIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning mark transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range userIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE creators
			SET scrape_status = ?, notes_target = ?, failure_reason = '', last_run_at = ?
			WHERE user_id = ?`,
			string(StatusInProgress), target, now, id,
		)
		if err != nil {
			return fmt.Errorf("marking creator %s in progress: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("marking creator %s in progress: %w", id, ErrNotFound)
		}
	}
	return tx.Commit()
}

// RecordResult applies one batch's outcome for a creator: it increments
// notes_collected by delta and derives the terminal status. failureReason
// empty means the batch ended cleanly; the creator becomes completed when
// the target is met and partial otherwise. A non-empty failureReason marks
// the creator failed. The whole update is one transaction so a crash
// mid-update cannot leave the counter inconsistent.
func (s *Store) RecordResult(ctx context.Context, userID string, delta int, failureReason string) (Creator, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Creator{}, fmt.Errorf("beginning result transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+creatorColumns+` FROM creators WHERE user_id = ?`, userID)
	c, err := scanCreator(row)
	if err == sql.ErrNoRows {
		return Creator{}, ErrNotFound
	}
	if err != nil {
		return Creator{}, fmt.Errorf("loading creator %s: %w", userID, err)
	}

	c.NotesCollected += delta
	switch {
	case c.NotesCollected >= c.NotesTarget && c.NotesTarget > 0:
		c.Status = StatusCompleted
		c.FailureReason = ""
	case failureReason != "":
		c.Status = StatusFailed
		c.FailureReason = failureReason
	default:
		c.Status = StatusPartial
		c.FailureReason = ""
	}

	now := time.Now().UTC()
	c.LastRunAt = &now
	if _, err := tx.ExecContext(ctx, `
		UPDATE creators
		SET scrape_status = ?, notes_collected = ?, failure_reason = ?, last_run_at = ?
		WHERE user_id = ?`,
		string(c.Status), c.NotesCollected, c.FailureReason, now.Format(time.RFC3339), userID,
	); err != nil {
		return Creator{}, fmt.Errorf("recording result for %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return Creator{}, fmt.Errorf("committing result for %s: %w", userID, err)
	}
	return c, nil
}

// UpdateFans records the current follower count for a creator.
func (s *Store) UpdateFans(ctx context.Context, userID string, fans int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE creators SET current_fans = ? WHERE user_id = ?`, fans, userID)
	if err != nil {
		return fmt.Errorf("updating fans for %s: %w", userID, err)
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

// ResetCreator is the administrative reset: the creator returns to
// not_started and all of its notes are deleted. The orchestrator never
// calls this.
func (s *Store) ResetCreator(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reset transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting notes for %s: %w", userID, err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE creators
		SET scrape_status = ?, notes_collected = 0, notes_target = 0, failure_reason = '', last_run_at = NULL
		WHERE user_id = ?`,
		string(StatusNotStarted), userID,
	)
	if err != nil {
		return fmt.Errorf("resetting creator %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// DeleteCreator removes a creator and all of its notes. Administrative
// only, like ResetCreator.
func (s *Store) DeleteCreator(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting notes for %s: %w", userID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM creators WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deleting creator %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) queryCreators(ctx context.Context, query string, args ...any) ([]Creator, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creators []Creator
	for rows.Next() {
		c, err := scanCreator(rows)
		if err != nil {
			return nil, err
		}
		creators = append(creators, c)
	}
	return creators, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCreator(row rowScanner) (Creator, error) {
	var c Creator
	var status, createdAt string
	var lastRunAt sql.NullString
	if err := row.Scan(
		&c.UserID, &c.Nickname, &c.AvatarURL, &c.SourceKeyword, &c.InitialFans, &c.CurrentFans,
		&status, &c.NotesCollected, &c.NotesTarget, &c.FailureReason, &lastRunAt, &createdAt,
	); err != nil {
		return Creator{}, err
	}
	c.Status = ScrapeStatus(status)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		c.CreatedAt = t
	}
	if lastRunAt.Valid && lastRunAt.String != "" {
		t, err := time.Parse(time.RFC3339, lastRunAt.String)
		if err != nil {
			return Creator{}, fmt.Errorf("parsing last_run_at for %s: %w", c.UserID, err)
		}
		c.LastRunAt = &t
	}
	return c, nil
}

// StatusFilter parses a status query parameter, tolerating the empty string.
func StatusFilter(raw string) (ScrapeStatus, error) {
	if raw == "" {
		return "", nil
	}
	status := ScrapeStatus(strings.ToLower(raw))
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return status, nil
}
