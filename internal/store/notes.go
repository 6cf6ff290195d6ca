package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Note is one cleaned record persisted for a creator.
type Note struct {
	NoteID      string
	UserID      string
	Title       string
	Description string
	// Type is "video" or "image".
	Type      string
	Likes     int
	Collects  int
	Comments  int
	NoteURL   string
	CoverURL  string
	CreatedAt *time.Time
	CrawledAt time.Time
}

// InsertNotes writes a batch of cleaned notes for one creator and returns
// how many were new. Existing notes are refreshed in place (engagement
// counts drift between crawls) but never removed, so the identifier set
// only ever grows.
func (s *Store) InsertNotes(ctx context.Context, notes []Note) (int, error) {
	if len(notes) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning notes transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, n := range notes {
		if n.NoteID == "" || n.UserID == "" {
			continue
		}
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM notes WHERE note_id = ?`, n.NoteID).Scan(&exists); err != nil {
			return 0, fmt.Errorf("checking note %s: %w", n.NoteID, err)
		}

		var createdAt any
		if n.CreatedAt != nil {
			createdAt = n.CreatedAt.UTC().Format(time.RFC3339)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notes (note_id, user_id, title, description, note_type, likes, collects, comments, note_url, cover_url, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(note_id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				likes = excluded.likes,
				collects = excluded.collects,
				comments = excluded.comments,
				note_url = excluded.note_url,
				cover_url = excluded.cover_url`,
			n.NoteID, n.UserID, n.Title, n.Description, n.Type,
			n.Likes, n.Collects, n.Comments, n.NoteURL, n.CoverURL, createdAt,
		); err != nil {
			return 0, fmt.Errorf("inserting note %s: %w", n.NoteID, err)
		}
		if exists == 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing notes: %w", err)
	}
	return inserted, nil
}

// CollectedNoteIDs returns every persisted note identifier for a creator.
// The exclude-filter mechanism is built on this set.
func (s *Store) CollectedNoteIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note_id FROM notes WHERE user_id = ? ORDER BY note_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing note ids for %s: %w", userID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NotesByCreator returns a creator's notes, newest first. limit <= 0
// means no cap.
func (s *Store) NotesByCreator(ctx context.Context, userID string, limit int) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT note_id, user_id, title, description, note_type, likes, collects, comments, note_url, cover_url, created_at, crawled_at
		FROM notes WHERE user_id = ?
		ORDER BY created_at DESC, note_id
		LIMIT ?`, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing notes for %s: %w", userID, err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var createdAt sql.NullString
		var crawledAt string
		if err := rows.Scan(
			&n.NoteID, &n.UserID, &n.Title, &n.Description, &n.Type,
			&n.Likes, &n.Collects, &n.Comments, &n.NoteURL, &n.CoverURL, &createdAt, &crawledAt,
		); err != nil {
			return nil, err
		}
		if createdAt.Valid && createdAt.String != "" {
			if t, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
				n.CreatedAt = &t
			}
		}
		if t, err := time.Parse(time.RFC3339, crawledAt); err == nil {
			n.CrawledAt = t
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// CountNotes returns the number of persisted notes for a creator.
func (s *Store) CountNotes(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting notes for %s: %w", userID, err)
	}
	return n, nil
}
