package notehive

import (
	"database/sql"
	"fmt"
	"time"
)

// enqueueOperation appends an offline operation inside an existing
// transaction. QueuedAt defaults to now.
func enqueueOperation(tx *sql.Tx, op *OfflineOperation) error {
	queuedAt := op.QueuedAt
	if queuedAt.IsZero() {
		queuedAt = time.Now().UTC()
	}

	res, err := tx.Exec(`
		INSERT INTO offline_operations (op_kind, entity_kind, entity_id, queued_at, payload)
		VALUES (?, ?, ?, ?, ?)
	`, string(op.Kind), string(op.Entity), op.EntityID, formatTime(queuedAt), op.Payload)
	if err != nil {
		return fmt.Errorf("store: enqueue operation: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		op.ID = id
	}
	op.QueuedAt = queuedAt
	return nil
}

// EnqueueOperation appends an offline operation in its own transaction.
func (s *Store) EnqueueOperation(op *OfflineOperation) error {
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

	if err := enqueueOperation(tx, op); err != nil {
		return err
	}
	return tx.Commit()
}

// PendingOperations returns all queued operations in enqueue order, oldest
// first. The auto-increment id breaks ties between equal timestamps.
func (s *Store) PendingOperations() ([]OfflineOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT id, op_kind, entity_kind, entity_id, queued_at, payload
		FROM offline_operations
		ORDER BY queued_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query operations: %w", err)
	}
	defer rows.Close()

	var results []OfflineOperation
	for rows.Next() {
		var (
			op       OfflineOperation
			kind     string
			entity   string
			queuedAt string
			payload  sql.NullString
		)
		if err := rows.Scan(&op.ID, &kind, &entity, &op.EntityID, &queuedAt, &payload); err != nil {
			return nil, err
		}
		op.Kind = OpKind(kind)
		op.Entity = EntityKind(entity)
		op.QueuedAt, _ = time.Parse(time.RFC3339, queuedAt)
		if payload.Valid {
			op.Payload = []byte(payload.String)
		}
		results = append(results, op)
	}
	return results, rows.Err()
}

// RemoveOperation deletes a queued operation by id. Removing an id that is
// already gone is a no-op.
func (s *Store) RemoveOperation(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec("DELETE FROM offline_operations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: remove operation: %w", err)
	}
	return nil
}

// DeadLetterOperation moves a failed operation to the dead_letters table and
// removes it from the queue, atomically.
func (s *Store) DeadLetterOperation(op *OfflineOperation, attempts int, lastErr string) error {
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

	if _, err := tx.Exec(`
		INSERT INTO dead_letters (op_kind, entity_kind, entity_id, payload, attempts, last_error, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(op.Kind), string(op.Entity), op.EntityID, op.Payload, attempts, lastErr, formatTime(time.Now().UTC())); err != nil {
		return fmt.Errorf("store: insert dead letter: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM offline_operations WHERE id = ?", op.ID); err != nil {
		return fmt.Errorf("store: remove operation: %w", err)
	}

	return tx.Commit()
}

// DeadLetters returns operations abandoned under the retry policy, most
// recent first.
func (s *Store) DeadLetters() ([]DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT id, op_kind, entity_kind, entity_id, payload, attempts, last_error, failed_at
		FROM dead_letters ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query dead letters: %w", err)
	}
	defer rows.Close()

	var results []DeadLetter
	for rows.Next() {
		var (
			dl       DeadLetter
			kind     string
			entity   string
			payload  sql.NullString
			failedAt string
		)
		if err := rows.Scan(&dl.ID, &kind, &entity, &dl.EntityID, &payload, &dl.Attempts, &dl.LastError, &failedAt); err != nil {
			return nil, err
		}
		dl.Kind = OpKind(kind)
		dl.Entity = EntityKind(entity)
		if payload.Valid {
			dl.Payload = []byte(payload.String)
		}
		dl.FailedAt, _ = time.Parse(time.RFC3339, failedAt)
		results = append(results, dl)
	}
	return results, rows.Err()
}
