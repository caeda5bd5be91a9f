package notehive

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveNote upserts a note. When op is non-nil the offline operation is
// enqueued in the same transaction, so the queue entry is durable before the
// mutation reports success.
func (s *Store) SaveNote(n *Note, op *OfflineOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	if err := upsertNote(tx, n); err != nil {
		return err
	}

	if op != nil {
		if err := enqueueOperation(tx, op); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func upsertNote(tx *sql.Tx, n *Note) error {
	var reminder *string
	if n.ReminderTime != nil {
		r := formatTime(*n.ReminderTime)
		reminder = &r
	}

	_, err := tx.Exec(`
		INSERT INTO notes (id, user_id, title, content, timestamp, archived, deleted, in_bin, has_reminder, reminder_time, labels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id=excluded.user_id, title=excluded.title, content=excluded.content,
			timestamp=excluded.timestamp, archived=excluded.archived, deleted=excluded.deleted,
			in_bin=excluded.in_bin, has_reminder=excluded.has_reminder,
			reminder_time=excluded.reminder_time, labels=excluded.labels
	`,
		n.ID,
		n.UserID,
		n.Title,
		n.Content,
		formatTime(n.Timestamp),
		n.Archived,
		n.Deleted,
		n.InBin,
		n.HasReminder,
		reminder,
		encodeLabels(n.Labels),
	)
	if err != nil {
		return fmt.Errorf("store: upsert note: %w", err)
	}
	return nil
}

// GetNote retrieves a note by ID.
func (s *Store) GetNote(id string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRow(`
		SELECT id, user_id, title, content, timestamp, archived, deleted, in_bin, has_reminder, reminder_time, labels
		FROM notes WHERE id = ?
	`, id)
	return scanNote(row)
}

// ActiveNotes returns the user's active notes, most recently modified first.
func (s *Store) ActiveNotes(userID string) ([]Note, error) {
	return s.queryNotes(userID, "archived = 0 AND in_bin = 0")
}

// ArchivedNotes returns the user's archived notes, most recently modified first.
func (s *Store) ArchivedNotes(userID string) ([]Note, error) {
	return s.queryNotes(userID, "archived = 1 AND in_bin = 0")
}

// BinNotes returns the user's binned notes, most recently modified first.
func (s *Store) BinNotes(userID string) ([]Note, error) {
	return s.queryNotes(userID, "in_bin = 1")
}

// ReminderNotes returns the user's notes carrying a reminder, excluding the
// bin, most recently modified first.
func (s *Store) ReminderNotes(userID string) ([]Note, error) {
	return s.queryNotes(userID, "has_reminder = 1 AND in_bin = 0")
}

func (s *Store) queryNotes(userID, filter string) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	return queryNotesLocked(s.db, userID, filter)
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func queryNotesLocked(q querier, userID, filter string) ([]Note, error) {
	rows, err := q.Query(`
		SELECT id, user_id, title, content, timestamp, archived, deleted, in_bin, has_reminder, reminder_time, labels
		FROM notes WHERE user_id = ? AND `+filter+`
		ORDER BY timestamp DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: query notes: %w", err)
	}
	defer rows.Close()

	var results []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *n)
	}
	return results, rows.Err()
}

// allNotesTx returns every note of the user across all buckets, for label
// cascade rewrites. Caller holds the write lock and the transaction.
func allNotesTx(tx *sql.Tx, userID string) ([]Note, error) {
	return queryNotesLocked(tx, userID, "1=1")
}

// DeleteNotePermanently removes a note row. When op is non-nil the offline
// operation is enqueued in the same transaction.
func (s *Store) DeleteNotePermanently(id string, op *OfflineOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM notes WHERE id = ?", id); err != nil {
		return fmt.Errorf("store: delete note: %w", err)
	}

	if op != nil {
		if err := enqueueOperation(tx, op); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ReplaceNotes atomically replaces the user's entire note table slice with
// the given snapshot (clear-then-insert). Used by reverse reconciliation.
func (s *Store) ReplaceNotes(userID string, notes []Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM notes WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("store: clear notes: %w", err)
	}
	for i := range notes {
		if err := upsertNote(tx, &notes[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// scanner abstracts the Scan method shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanNote scans a single note row from any scanner (Row or Rows).
// Returns ErrNotFound for sql.ErrNoRows from *sql.Row.
func scanNote(sc scanner) (*Note, error) {
	var (
		n         Note
		timestamp string
		reminder  sql.NullString
		labels    sql.NullString
	)

	err := sc.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Content,
		&timestamp,
		&n.Archived,
		&n.Deleted,
		&n.InBin,
		&n.HasReminder,
		&reminder,
		&labels,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	n.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
	if reminder.Valid {
		t, _ := time.Parse(time.RFC3339, reminder.String)
		n.ReminderTime = &t
	}
	n.Labels = decodeLabels(labels)

	return &n, nil
}
