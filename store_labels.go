package notehive

import (
	"database/sql"
	"fmt"
	"strings"
)

// AddLabel inserts a label. Label names are unique per user, case-insensitive.
// When op is non-nil the offline operation is enqueued in the same transaction.
func (s *Store) AddLabel(l *Label, op *OfflineOperation) error {
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

	var existing int
	if err := tx.QueryRow(`
		SELECT COUNT(*) FROM labels WHERE user_id = ? AND name = ? COLLATE NOCASE
	`, l.UserID, l.Name).Scan(&existing); err != nil {
		return fmt.Errorf("store: check label name: %w", err)
	}
	if existing > 0 {
		return ErrDuplicateLabel
	}

	if _, err := tx.Exec(`
		INSERT INTO labels (id, user_id, name) VALUES (?, ?, ?)
	`, l.ID, l.UserID, l.Name); err != nil {
		return fmt.Errorf("store: insert label: %w", err)
	}

	if op != nil {
		if err := enqueueOperation(tx, op); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpsertLabel writes a label by id without the duplicate-name check. Used
// when mirroring remote state, which is authoritative.
func (s *Store) UpsertLabel(l *Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO labels (id, user_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, name=excluded.name
	`, l.ID, l.UserID, l.Name)
	if err != nil {
		return fmt.Errorf("store: upsert label: %w", err)
	}
	return nil
}

// GetLabel retrieves a label by ID.
func (s *Store) GetLabel(id string) (*Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var l Label
	err := s.db.QueryRow(`
		SELECT id, user_id, name FROM labels WHERE id = ?
	`, id).Scan(&l.ID, &l.UserID, &l.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: query label: %w", err)
	}
	return &l, nil
}

// Labels returns the user's labels ordered by name.
func (s *Store) Labels(userID string) ([]Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT id, user_id, name FROM labels WHERE user_id = ? ORDER BY name COLLATE NOCASE
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: query labels: %w", err)
	}
	defer rows.Close()

	var results []Label
	for rows.Next() {
		var l Label
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name); err != nil {
			return nil, err
		}
		results = append(results, l)
	}
	return results, rows.Err()
}

// RenameLabel renames a label and rewrites every note of the user that
// references the old name. The rename, the fan-out, and the optional offline
// operation commit in one transaction.
func (s *Store) RenameLabel(id, newName string, op *OfflineOperation) error {
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

	var userID, oldName string
	err = tx.QueryRow("SELECT user_id, name FROM labels WHERE id = ?", id).Scan(&userID, &oldName)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: query label: %w", err)
	}

	var existing int
	if err := tx.QueryRow(`
		SELECT COUNT(*) FROM labels WHERE user_id = ? AND name = ? COLLATE NOCASE AND id != ?
	`, userID, newName, id).Scan(&existing); err != nil {
		return fmt.Errorf("store: check label name: %w", err)
	}
	if existing > 0 {
		return ErrDuplicateLabel
	}

	if _, err := tx.Exec("UPDATE labels SET name = ? WHERE id = ?", newName, id); err != nil {
		return fmt.Errorf("store: rename label: %w", err)
	}

	if err := rewriteNoteLabels(tx, userID, oldName, newName); err != nil {
		return err
	}

	if op != nil {
		if err := enqueueOperation(tx, op); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteLabel removes a label and strips its name from every note of the
// user. Exactly one offline operation is enqueued for the whole cascade when
// op is non-nil.
func (s *Store) DeleteLabel(id string, op *OfflineOperation) error {
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

	var userID, name string
	err = tx.QueryRow("SELECT user_id, name FROM labels WHERE id = ?", id).Scan(&userID, &name)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: query label: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM labels WHERE id = ?", id); err != nil {
		return fmt.Errorf("store: delete label: %w", err)
	}

	if err := rewriteNoteLabels(tx, userID, name, ""); err != nil {
		return err
	}

	if op != nil {
		if err := enqueueOperation(tx, op); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ToggleLabel applies or removes one label name across the given notes.
// A single offline operation covers the whole toggle when op is non-nil.
func (s *Store) ToggleLabel(params ToggleLabelParams, op *OfflineOperation) error {
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

	for _, noteID := range params.NoteIDs {
		row := tx.QueryRow(`
			SELECT id, user_id, title, content, timestamp, archived, deleted, in_bin, has_reminder, reminder_time, labels
			FROM notes WHERE id = ?
		`, noteID)
		n, err := scanNote(row)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}

		changed := toggleNoteLabel(n, params.LabelName, params.Checked)
		if !changed {
			continue
		}
		if err := upsertNote(tx, n); err != nil {
			return err
		}
	}

	if op != nil {
		if err := enqueueOperation(tx, op); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ReplaceLabels atomically replaces the user's entire label table slice with
// the given snapshot (clear-then-insert). Used by reverse reconciliation.
func (s *Store) ReplaceLabels(userID string, labels []Label) error {
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

	if _, err := tx.Exec("DELETE FROM labels WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("store: clear labels: %w", err)
	}
	for _, l := range labels {
		if _, err := tx.Exec(`
			INSERT INTO labels (id, user_id, name) VALUES (?, ?, ?)
		`, l.ID, l.UserID, l.Name); err != nil {
			return fmt.Errorf("store: insert label: %w", err)
		}
	}

	return tx.Commit()
}

// rewriteNoteLabels walks every note of the user and replaces oldName in the
// labels column with newName; an empty newName removes the label.
func rewriteNoteLabels(tx *sql.Tx, userID, oldName, newName string) error {
	notes, err := allNotesTx(tx, userID)
	if err != nil {
		return err
	}

	for i := range notes {
		n := &notes[i]
		if !n.HasLabel(oldName) {
			continue
		}

		rewritten := make([]string, 0, len(n.Labels))
		for _, l := range n.Labels {
			switch {
			case l != oldName:
				rewritten = append(rewritten, l)
			case newName != "":
				rewritten = append(rewritten, newName)
			}
		}
		n.Labels = rewritten

		if err := upsertNote(tx, n); err != nil {
			return err
		}
	}
	return nil
}

// toggleNoteLabel adds or removes the label name on the note in memory,
// reporting whether anything changed.
func toggleNoteLabel(n *Note, name string, checked bool) bool {
	if checked {
		if n.HasLabel(name) {
			return false
		}
		n.Labels = append(n.Labels, name)
		return true
	}

	if !n.HasLabel(name) {
		return false
	}
	kept := make([]string, 0, len(n.Labels))
	for _, l := range n.Labels {
		if l != name {
			kept = append(kept, l)
		}
	}
	n.Labels = kept
	return true
}

// validateLabelName rejects names the labels column cannot round-trip.
func validateLabelName(name string) error {
	if name == "" {
		return ErrEmptyLabelName
	}
	if strings.Contains(name, labelDelimiter) {
		return ErrInvalidLabelName
	}
	return nil
}
